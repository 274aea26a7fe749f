package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	insertion time.Time
	ttl       time.Duration
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.Sub(e.insertion) >= e.ttl
}

// memoryStore keeps entries in process memory with lazy expiry: an expired
// entry is treated as absent on lookup and removed then, not by a sweeper.
type memoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemory builds an in-memory cache store.
func NewMemory() Store {
	return &memoryStore{
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// NewMemoryWithClock builds a store on a controllable clock, for tests.
func NewMemoryWithClock(now func() time.Time) Store {
	return &memoryStore{
		items: make(map[string]memoryEntry),
		now:   now,
	}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if entry.expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock: a concurrent Put may have
		// refreshed the entry.
		if cur, ok := s.items[key]; ok && cur.expired(s.now()) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.payload, true, nil
}

func (s *memoryStore) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stored := append([]byte(nil), payload...)
	s.mu.Lock()
	s.items[key] = memoryEntry{
		payload:   stored,
		insertion: s.now(),
		ttl:       ttl,
	}
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Ping(context.Context) error {
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.items = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}
