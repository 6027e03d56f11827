package service

import (
	"context"
	"sync"
	"time"

	"murmur/internal/models"

	"github.com/sirupsen/logrus"
)

// ExpiryGateway is the slice of the store the expiry scheduler needs.
type ExpiryGateway interface {
	ExpiredMessages(ctx context.Context, conversationKey string, cutoff time.Time) ([]*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

// ExpiryScheduler deletes messages past their configured time-to-live. One
// sweep loop runs per open conversation and stops when the conversation is
// closed; there is no durable background job, so a conversation nobody ever
// reopens keeps its expired messages until someone does. Deletes are
// idempotent, so racing a sweep against a read receipt or a manual delete is
// harmless either way.
type ExpiryScheduler struct {
	gw       ExpiryGateway
	interval time.Duration
	logger   *logrus.Logger
	now      func() time.Time

	mu        sync.Mutex
	durations map[string]models.TemporaryDuration
	stops     map[string]chan struct{}
}

func NewExpiryScheduler(gw ExpiryGateway, interval time.Duration, logger *logrus.Logger) *ExpiryScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ExpiryScheduler{
		gw:        gw,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		durations: make(map[string]models.TemporaryDuration),
		stops:     make(map[string]chan struct{}),
	}
}

// Configure sets the time-to-live for one conversation. Takes effect on the
// next sweep.
func (s *ExpiryScheduler) Configure(conversationKey string, duration models.TemporaryDuration) {
	s.mu.Lock()
	s.durations[conversationKey] = duration
	s.mu.Unlock()
}

// Start launches the sweep loop for one conversation. Starting an already
// running conversation is a no-op.
func (s *ExpiryScheduler) Start(ctx context.Context, conversationKey string) {
	s.mu.Lock()
	if _, running := s.stops[conversationKey]; running {
		s.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	s.stops[conversationKey] = stopCh
	s.mu.Unlock()

	go s.run(ctx, conversationKey, stopCh)
}

// Stop halts the sweep loop for one conversation.
func (s *ExpiryScheduler) Stop(conversationKey string) {
	s.mu.Lock()
	stopCh, running := s.stops[conversationKey]
	if running {
		delete(s.stops, conversationKey)
	}
	s.mu.Unlock()

	if running {
		close(stopCh)
	}
}

func (s *ExpiryScheduler) run(ctx context.Context, conversationKey string, stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("conversation", conversationKey).Debug("Starting expiry sweep loop")

	s.runSweep(ctx, conversationKey)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.runSweep(ctx, conversationKey)
		}
	}
}

func (s *ExpiryScheduler) runSweep(ctx context.Context, conversationKey string) {
	s.mu.Lock()
	duration := s.durations[conversationKey]
	s.mu.Unlock()

	ttl, enabled := duration.TTL()
	if !enabled {
		return
	}

	cutoff := s.now().Add(-ttl)
	expired, err := s.gw.ExpiredMessages(ctx, conversationKey, cutoff)
	if err != nil {
		s.logger.WithError(err).WithField("conversation", conversationKey).
			Error("Failed to query expired messages")
		return
	}

	for _, msg := range expired {
		if err := s.gw.DeleteMessage(ctx, msg.ID); err != nil {
			s.logger.WithError(err).WithField("message", msg.ID).
				Error("Failed to delete expired message")
		}
	}

	if len(expired) > 0 {
		s.logger.WithFields(logrus.Fields{
			"conversation": conversationKey,
			"deleted":      len(expired),
		}).Info("Expired temporary messages")
	}
}
