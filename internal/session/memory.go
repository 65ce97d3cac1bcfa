package session

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/spotalytics/internal/shared"
	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

// MemoryStore keeps sessions in a bounded LRU cache. The least recently used session is
// evicted when capacity is reached.
type MemoryStore struct {
	cache *lru.Cache[string, memoryEntry]
	mu    sync.Mutex
	now   func() time.Time
}

// NewMemoryStore creates a [MemoryStore] holding at most capacity sessions.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = 1024
	}
	cache, err := lru.New[string, memoryEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache.Get(id)
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	if !m.now().Before(entry.expiresAt) {
		m.cache.Remove(id)
		return nil, shared.ErrSessionNotFound
	}
	data := entry.data
	return &data, nil
}

func (m *MemoryStore) Save(_ context.Context, id string, data Data, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Add(id, memoryEntry{data: data, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Remove(id)
	return nil
}

// Len returns the number of cached sessions, expired ones included.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
