package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Suitable for a single
// instance; multi-instance deployments use the redis store.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	data  map[string]Slots
	ttl   time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		locks: make(map[string]*sync.Mutex),
		data:  make(map[string]Slots),
		ttl:   ttl,
	}
}

func (m *MemoryStore) keyLock(conversationID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[conversationID] = lock
	}
	return lock
}

func (m *MemoryStore) Get(ctx context.Context, conversationID string) (Slots, bool, error) {
	lock := m.keyLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	slots, ok := m.data[conversationID]
	m.mu.Unlock()
	if !ok {
		return Slots{}, false, nil
	}
	if m.ttl > 0 && time.Since(slots.UpdatedAt) > m.ttl {
		m.mu.Lock()
		delete(m.data, conversationID)
		m.mu.Unlock()
		return Slots{}, false, nil
	}
	return slots, true, nil
}

func (m *MemoryStore) Update(ctx context.Context, conversationID string, fn func(Slots) Slots) error {
	lock := m.keyLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	current := m.data[conversationID]
	m.mu.Unlock()

	next := fn(current)
	next.UpdatedAt = time.Now()

	m.mu.Lock()
	m.data[conversationID] = next
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	lock := m.keyLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	delete(m.data, conversationID)
	m.mu.Unlock()
	return nil
}
