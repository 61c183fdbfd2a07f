package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "shipmentqa:session:"

// casAttempts bounds the optimistic retry loop in Update. Contention on a
// single conversation id is a client misuse, not a hot path.
const casAttempts = 5

// RedisStore persists sessions in redis with a TTL. Update uses WATCH so
// concurrent writers to the same conversation id serialize via
// compare-and-swap instead of a lock.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(conversationID string) string {
	return redisKeyPrefix + conversationID
}

func (r *RedisStore) Get(ctx context.Context, conversationID string) (Slots, bool, error) {
	raw, err := r.client.Get(ctx, redisKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Slots{}, false, nil
	}
	if err != nil {
		return Slots{}, false, fmt.Errorf("session get: %w", err)
	}

	var slots Slots
	if err := json.Unmarshal(raw, &slots); err != nil {
		return Slots{}, false, fmt.Errorf("session decode: %w", err)
	}
	return slots, true, nil
}

func (r *RedisStore) Update(ctx context.Context, conversationID string, fn func(Slots) Slots) error {
	key := redisKey(conversationID)

	txn := func(tx *redis.Tx) error {
		var current Slots
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("session decode: %w", err)
			}
		}

		next := fn(current)
		next.UpdatedAt = time.Now()

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("session encode: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < casAttempts; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("session update: %w", err)
	}
	return fmt.Errorf("session update: contention on conversation %s", conversationID)
}

func (r *RedisStore) Delete(ctx context.Context, conversationID string) error {
	if err := r.client.Del(ctx, redisKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}
