package integration_test

import (
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/models"
	"murmur/internal/presence"
	"murmur/internal/service"
	"murmur/internal/store"
	"murmur/pkg/media"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestEnvironment wires a real store, two lifecycle managers and the
// supporting services the way the daemon does, minus the HTTP surface.
type TestEnvironment struct {
	Store       *store.Store
	Alice       *service.Lifecycle
	Bob         *service.Lifecycle
	Scheduler   *service.ExpiryScheduler
	Tracker     *presence.Tracker
	ObjectStore *media.LocalObjectStore
	Logger      *logrus.Logger
}

func newTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	dir := t.TempDir()
	db, err := store.New(filepath.Join(dir, "murmur.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mediaConfig := models.MediaConfig{
		MaxSizeMB: models.MediaSizeLimits{Image: 5, Video: 100, Voice: 16},
	}
	objectStore, err := media.NewLocalObjectStore(filepath.Join(dir, "media"), "", mediaConfig)
	require.NoError(t, err)

	return &TestEnvironment{
		Store:       db,
		Alice:       service.NewLifecycle("alice", db, nil, logger),
		Bob:         service.NewLifecycle("bob", db, nil, logger),
		Scheduler:   service.NewExpiryScheduler(db, 10*time.Millisecond, logger),
		Tracker:     presence.NewTracker(presence.NewMemoryStore(), time.Second, 30*time.Second, logger),
		ObjectStore: objectStore,
		Logger:      logger,
	}
}

// waitForMessages blocks until the lifecycle's local view of the peer
// conversation satisfies the predicate.
func waitForMessages(t *testing.T, l *service.Lifecycle, peerID string, predicate func([]*models.Message) bool) []*models.Message {
	t.Helper()

	var snapshot []*models.Message
	require.Eventually(t, func() bool {
		snapshot = l.Messages(peerID)
		return predicate(snapshot)
	}, 2*time.Second, 10*time.Millisecond, "conversation view never reached the expected state")
	return snapshot
}
