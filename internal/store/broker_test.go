package store

import (
	"testing"

	"murmur/internal/constants"
	"murmur/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker() *Broker {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewBroker(logger)
}

func insertEvent(conversationKey, id string) models.ChangeEvent {
	return models.ChangeEvent{
		Op: models.ChangeInsert,
		Message: &models.Message{
			ID:              id,
			ConversationKey: conversationKey,
		},
	}
}

func TestBrokerFanOut(t *testing.T) {
	b := newTestBroker()

	first, cancelFirst := b.Subscribe("a:b")
	defer cancelFirst()
	second, cancelSecond := b.Subscribe("a:b")
	defer cancelSecond()

	b.Publish(insertEvent("a:b", "m1"))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "m1", (<-first).Message.ID)
	assert.Equal(t, "m1", (<-second).Message.ID)
}

func TestBrokerScopesByConversation(t *testing.T) {
	b := newTestBroker()

	ch, cancel := b.Subscribe("a:b")
	defer cancel()

	b.Publish(insertEvent("c:d", "m1"))
	assert.Empty(t, ch)
}

func TestBrokerCancelIsIdempotent(t *testing.T) {
	b := newTestBroker()

	ch, cancel := b.Subscribe("a:b")
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.SubscriberCount("a:b"))

	// Publishing after the last unsubscribe is harmless.
	b.Publish(insertEvent("a:b", "m1"))
}

func TestBrokerDropsWhenSubscriberIsBehind(t *testing.T) {
	b := newTestBroker()

	ch, cancel := b.Subscribe("a:b")
	defer cancel()

	for i := 0; i < constants.ChangeStreamBufferSize+10; i++ {
		b.Publish(insertEvent("a:b", "m"))
	}

	assert.Len(t, ch, constants.ChangeStreamBufferSize)
}
