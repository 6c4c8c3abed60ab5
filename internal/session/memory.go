package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store, used by the ask command and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	sess    *Session
	expires time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !ok || !m.now().Before(it.expires) {
		return nil, nil
	}
	return it.sess.Clone(), nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key string, s *Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryItem{sess: s.Clone(), expires: m.now().Add(ttl)}
	return nil
}

// Purge drops expired sessions.
func (m *MemoryStore) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	now := m.now()
	for k, it := range m.items {
		if !now.Before(it.expires) {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}
