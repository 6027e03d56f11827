package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcast
}

type broadcast struct {
	conversationKey string
	userID          string
	typing          bool
}

func (b *recordingBroadcaster) BroadcastTyping(conversationKey, userID string, typing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcast{conversationKey, userID, typing})
}

func (b *recordingBroadcaster) snapshot() []broadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcast(nil), b.events...)
}

func newTestCoordinator(bc Broadcaster, idle time.Duration) *Coordinator {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewCoordinator("alice", bc, idle, logger)
}

func TestCoordinatorBroadcastsOnceOnRisingEdge(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := newTestCoordinator(bc, time.Minute)
	defer c.StopAll()

	c.SetTyping("alice:bob", true)
	c.SetTyping("alice:bob", true)
	c.SetTyping("alice:bob", true)

	events := bc.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, broadcast{"alice:bob", "alice", true}, events[0])
}

func TestCoordinatorAutoStopsAfterIdleWindow(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := newTestCoordinator(bc, 20*time.Millisecond)
	defer c.StopAll()

	c.SetTyping("alice:bob", true)

	require.Eventually(t, func() bool {
		return len(bc.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	events := bc.snapshot()
	assert.Equal(t, broadcast{"alice:bob", "alice", true}, events[0])
	assert.Equal(t, broadcast{"alice:bob", "alice", false}, events[1])
}

func TestCoordinatorKeystrokesExtendTheWindow(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := newTestCoordinator(bc, 60*time.Millisecond)
	defer c.StopAll()

	c.SetTyping("alice:bob", true)
	for i := 0; i < 4; i++ {
		time.Sleep(25 * time.Millisecond)
		c.SetTyping("alice:bob", true)
	}

	// The window was re-armed each time, so no stop yet.
	events := bc.snapshot()
	require.Len(t, events, 1)
	assert.True(t, events[0].typing)

	require.Eventually(t, func() bool {
		return len(bc.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.False(t, bc.snapshot()[1].typing)
}

func TestCoordinatorExplicitStop(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := newTestCoordinator(bc, time.Minute)
	defer c.StopAll()

	c.SetTyping("alice:bob", true)
	c.SetTyping("alice:bob", false)
	// A second stop with no armed timer broadcasts nothing.
	c.SetTyping("alice:bob", false)

	events := bc.snapshot()
	require.Len(t, events, 2)
	assert.True(t, events[0].typing)
	assert.False(t, events[1].typing)
}

func TestCoordinatorStopWithoutStartIsSilent(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := newTestCoordinator(bc, time.Minute)

	c.SetTyping("alice:bob", false)
	assert.Empty(t, bc.snapshot())
}

func TestCoordinatorTracksConversationsIndependently(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := newTestCoordinator(bc, time.Minute)
	defer c.StopAll()

	c.SetTyping("alice:bob", true)
	c.SetTyping("alice:carol", true)
	c.SetTyping("alice:bob", false)

	events := bc.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, broadcast{"alice:bob", "alice", true}, events[0])
	assert.Equal(t, broadcast{"alice:carol", "alice", true}, events[1])
	assert.Equal(t, broadcast{"alice:bob", "alice", false}, events[2])
}

func TestCoordinatorStopAllSkipsBroadcast(t *testing.T) {
	bc := &recordingBroadcaster{}
	c := newTestCoordinator(bc, 20*time.Millisecond)

	c.SetTyping("alice:bob", true)
	c.StopAll()

	time.Sleep(60 * time.Millisecond)
	events := bc.snapshot()
	require.Len(t, events, 1)
	assert.True(t, events[0].typing)
}
