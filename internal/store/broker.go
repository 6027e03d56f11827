package store

import (
	"sync"

	"murmur/internal/constants"
	"murmur/internal/models"

	"github.com/sirupsen/logrus"
)

// Broker fans committed row changes out to change-stream subscribers, keyed by
// conversation. Delivery is best-effort: a subscriber that falls more than the
// channel buffer behind loses events and must replay history from the store,
// which is the source of truth anyway.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan models.ChangeEvent
	logger *logrus.Logger
}

func NewBroker(logger *logrus.Logger) *Broker {
	return &Broker{
		subs:   make(map[string]map[int]chan models.ChangeEvent),
		logger: logger,
	}
}

// Subscribe registers a change-stream subscriber for one conversation. The
// returned cancel func unregisters and closes the channel; it is safe to call
// more than once.
func (b *Broker) Subscribe(conversationKey string) (<-chan models.ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan models.ChangeEvent, constants.ChangeStreamBufferSize)
	if b.subs[conversationKey] == nil {
		b.subs[conversationKey] = make(map[int]chan models.ChangeEvent)
	}
	b.subs[conversationKey][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[conversationKey]; ok {
				if c, ok := subs[id]; ok {
					delete(subs, id)
					close(c)
				}
				if len(subs) == 0 {
					delete(b.subs, conversationKey)
				}
			}
		})
	}

	return ch, cancel
}

// Publish delivers one change event to every subscriber of the affected
// conversation without blocking the writer.
func (b *Broker) Publish(ev models.ChangeEvent) {
	if ev.Message == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs[ev.Message.ConversationKey] {
		select {
		case ch <- ev:
		default:
			b.logger.WithFields(logrus.Fields{
				"subscriber":   id,
				"conversation": ev.Message.ConversationKey,
				"op":           ev.Op,
			}).Warn("Change stream subscriber is behind, dropping event")
		}
	}
}

// SubscriberCount returns the number of live subscribers for a conversation.
func (b *Broker) SubscriberCount(conversationKey string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationKey])
}
