package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Minute)
}

func TestRedisStore_UpdateThenGet(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	err := store.Update(ctx, "conv-1", func(s Slots) Slots {
		s.LastIntent = "analytics"
		s.LastQuestion = "how many shipments are delayed"
		s.Turns++
		return s
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	slots, ok, err := store.Get(ctx, "conv-1")
	if err != nil || !ok {
		t.Fatalf("expected stored slots, ok=%v err=%v", ok, err)
	}
	if slots.LastIntent != "analytics" || slots.Turns != 1 {
		t.Fatalf("unexpected slots %+v", slots)
	}
}

func TestRedisStore_UpdateAccumulates(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.Update(ctx, "conv-1", func(s Slots) Slots {
			s.Turns++
			return s
		})
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	slots, _, _ := store.Get(ctx, "conv-1")
	if slots.Turns != 3 {
		t.Fatalf("expected 3 turns, got %d", slots.Turns)
	}
}

func TestRedisStore_GetUnknownConversation(t *testing.T) {
	store := newRedisStore(t)

	_, ok, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if ok {
		t.Fatal("unknown conversation must not be found")
	}
}

func TestRedisStore_Delete(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	_ = store.Update(ctx, "conv-1", func(s Slots) Slots { return s })
	if err := store.Delete(ctx, "conv-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, ok, _ := store.Get(ctx, "conv-1")
	if ok {
		t.Fatal("deleted conversation must be gone")
	}
}
