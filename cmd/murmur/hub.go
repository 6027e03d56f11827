package main

import (
	"sync"

	"murmur/internal/models"
)

// eventHub fans typing events out to event-socket subscribers. It is the
// Broadcaster behind every session's typing coordinator; a subscriber never
// sees its own events. Every broadcast also feeds the observer, which keeps
// the receiver-side typing view current.
type eventHub struct {
	observe func(conversationKey, userID string, typing bool)

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]*hubSub
}

type hubSub struct {
	userID string
	ch     chan models.Envelope
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[string]map[int]*hubSub)}
}

func (h *eventHub) subscribe(conversationKey, userID string) (<-chan models.Envelope, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	sub := &hubSub{userID: userID, ch: make(chan models.Envelope, 16)}
	if h.subs[conversationKey] == nil {
		h.subs[conversationKey] = make(map[int]*hubSub)
	}
	h.subs[conversationKey][id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subs[conversationKey]; ok {
				if s, ok := subs[id]; ok {
					delete(subs, id)
					close(s.ch)
				}
				if len(subs) == 0 {
					delete(h.subs, conversationKey)
				}
			}
		})
	}

	return sub.ch, cancel
}

// BroadcastTyping implements typing.Broadcaster.
func (h *eventHub) BroadcastTyping(conversationKey, userID string, typing bool) {
	if h.observe != nil {
		h.observe(conversationKey, userID, typing)
	}

	envelope, err := models.NewEnvelope(models.EnvelopeTyping, models.TypingEvent{
		ConversationKey: conversationKey,
		UserID:          userID,
		Typing:          typing,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[conversationKey] {
		if sub.userID == userID {
			continue
		}
		select {
		case sub.ch <- envelope:
		default:
			// Typing state is advisory; a slow subscriber just misses it.
		}
	}
}
