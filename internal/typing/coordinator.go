// Package typing implements the typing-indicator protocol: a sender-side
// debounce that turns a stream of keystrokes into at most one start and one
// stop broadcast, and a receiver-side set that expires entries on its own so
// the protocol survives one lost stop event.
package typing

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Broadcaster carries typing events to the other side of a conversation.
type Broadcaster interface {
	BroadcastTyping(conversationKey, userID string, typing bool)
}

// Coordinator debounces the local user's typing state per conversation.
// SetTyping(key, true) broadcasts a start on the rising edge and arms a timer;
// every further keystroke re-arms it. When the idle window elapses with no
// keystroke, a single stop is broadcast.
type Coordinator struct {
	selfID string
	bc     Broadcaster
	idle   time.Duration
	logger *logrus.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewCoordinator(selfID string, bc Broadcaster, idle time.Duration, logger *logrus.Logger) *Coordinator {
	if idle <= 0 {
		idle = 2 * time.Second
	}
	return &Coordinator{
		selfID: selfID,
		bc:     bc,
		idle:   idle,
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// SetTyping updates the local typing state for one conversation.
func (c *Coordinator) SetTyping(conversationKey string, typing bool) {
	c.mu.Lock()
	timer, armed := c.timers[conversationKey]

	if typing {
		if armed {
			timer.Reset(c.idle)
			c.mu.Unlock()
			return
		}
		c.timers[conversationKey] = time.AfterFunc(c.idle, func() {
			c.SetTyping(conversationKey, false)
		})
		c.mu.Unlock()
		c.bc.BroadcastTyping(conversationKey, c.selfID, true)
		return
	}

	if !armed {
		c.mu.Unlock()
		return
	}
	timer.Stop()
	delete(c.timers, conversationKey)
	c.mu.Unlock()

	c.bc.BroadcastTyping(conversationKey, c.selfID, false)
}

// StopAll cancels every armed timer without broadcasting; used on shutdown.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, timer := range c.timers {
		timer.Stop()
		delete(c.timers, key)
	}
}
