package typing

import (
	"sync"
	"time"
)

// Set is the receiver-side view of who is typing in which conversation.
// Entries expire on their own after a grace period slightly longer than the
// sender's idle window, so a dropped final stop event heals itself. Entries
// are only ever timed out, never trusted to be deleted remotely.
type Set struct {
	grace time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]map[string]time.Time // conversationKey -> userID -> expiresAt
}

func NewSet(grace time.Duration) *Set {
	if grace <= 0 {
		grace = 3 * time.Second
	}
	return &Set{
		grace:   grace,
		now:     time.Now,
		entries: make(map[string]map[string]time.Time),
	}
}

// Observe records a received typing event.
func (s *Set) Observe(conversationKey, userID string, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !typing {
		if users, ok := s.entries[conversationKey]; ok {
			delete(users, userID)
			if len(users) == 0 {
				delete(s.entries, conversationKey)
			}
		}
		return
	}

	if s.entries[conversationKey] == nil {
		s.entries[conversationKey] = make(map[string]time.Time)
	}
	s.entries[conversationKey][userID] = s.now().Add(s.grace)
}

// TypingUsers returns who is currently typing in a conversation, pruning
// expired entries as a side effect.
func (s *Set) TypingUsers(conversationKey string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.entries[conversationKey]
	if !ok {
		return nil
	}

	now := s.now()
	var typing []string
	for userID, expiresAt := range users {
		if now.After(expiresAt) {
			delete(users, userID)
			continue
		}
		typing = append(typing, userID)
	}
	if len(users) == 0 {
		delete(s.entries, conversationKey)
	}
	return typing
}
