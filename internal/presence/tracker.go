package presence

import (
	"context"
	"time"

	"murmur/internal/models"

	"github.com/sirupsen/logrus"
)

// Tracker announces one user's own heartbeat and answers status queries about
// peers.
type Tracker struct {
	store    Store
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

// NewTracker builds a tracker. interval is how often Heartbeat loops announce;
// timeout is how stale a heartbeat may be before the user reads as offline.
func NewTracker(store Store, interval, timeout time.Duration, logger *logrus.Logger) *Tracker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Tracker{
		store:    store,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Heartbeat writes one heartbeat for userID. The TTL is the offline timeout,
// so a crashed client disappears from the store on its own.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	return t.store.SetHeartbeat(ctx, userID, t.now(), t.timeout)
}

// Run announces userID every interval until the context ends. The first beat
// fires immediately.
func (t *Tracker) Run(ctx context.Context, userID string) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if err := t.Heartbeat(ctx, userID); err != nil {
		t.logger.WithError(err).WithField("user", userID).Warn("Heartbeat failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Heartbeat(ctx, userID); err != nil {
				t.logger.WithError(err).WithField("user", userID).Warn("Heartbeat failed")
			}
		}
	}
}

// Status returns the current best-effort presence of a user.
func (t *Tracker) Status(ctx context.Context, userID string) (models.PresenceState, error) {
	lastSeen, ok, err := t.store.LastSeen(ctx, userID)
	if err != nil {
		return models.PresenceState{UserID: userID}, err
	}
	online := ok && t.now().Sub(lastSeen) <= t.timeout
	return models.PresenceState{UserID: userID, Online: online, LastSeen: lastSeen}, nil
}

// Watch polls a user's presence and emits a state on every change, closing the
// channel when the context ends. Advisory UI state only.
func (t *Tracker) Watch(ctx context.Context, userID string) <-chan models.PresenceState {
	out := make(chan models.PresenceState, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		var last *models.PresenceState
		emit := func() {
			state, err := t.Status(ctx, userID)
			if err != nil {
				t.logger.WithError(err).WithField("user", userID).Debug("Presence lookup failed")
				return
			}
			if last != nil && last.Online == state.Online {
				return
			}
			last = &state
			select {
			case out <- state:
			case <-ctx.Done():
			}
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emit()
			}
		}
	}()

	return out
}
