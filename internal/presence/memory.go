package presence

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	at        time.Time
	expiresAt time.Time
}

// MemoryStore is the in-process heartbeat store used for single-node runs and
// tests. Same TTL semantics as the Redis store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) SetHeartbeat(_ context.Context, userID string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = memoryEntry{at: at, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) LastSeen(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[userID]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		return time.Time{}, false, nil
	}
	return entry.at, true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
