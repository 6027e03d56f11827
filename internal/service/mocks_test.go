package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"murmur/internal/models"
	"murmur/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// fakeGateway is a controllable in-memory Gateway for lifecycle tests.
type fakeGateway struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	settings map[string]*models.ChatSettings
	inserts  int

	insertErr  error
	updateErr  error
	deleteErr  error
	markErr    error
	insertGate chan struct{} // when set, InsertMessage blocks until closed

	events chan models.ChangeEvent
	now    time.Time
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		messages: make(map[string]*models.Message),
		settings: make(map[string]*models.ChatSettings),
		events:   make(chan models.ChangeEvent, 64),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (g *fakeGateway) InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	g.mu.Lock()
	gate := g.insertGate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inserts++
	if g.insertErr != nil {
		return nil, g.insertErr
	}

	persisted := *msg
	persisted.ID = uuid.NewString()
	persisted.ConversationKey = models.ConversationKey(msg.SenderID, msg.ReceiverID)
	persisted.CreatedAt = g.now
	persisted.Pending = false
	g.now = g.now.Add(time.Second)
	g.messages[persisted.ID] = &persisted
	return &persisted, nil
}

func (g *fakeGateway) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg := g.messages[id]
	if msg == nil {
		return nil, store.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (g *fakeGateway) UpdateContent(ctx context.Context, id, content string) (*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return nil, g.updateErr
	}
	msg := g.messages[id]
	if msg == nil {
		return nil, store.ErrNotFound
	}
	msg.Content = content
	msg.Edited = true
	copied := *msg
	return &copied, nil
}

func (g *fakeGateway) DeleteMessage(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	delete(g.messages, id)
	return nil
}

func (g *fakeGateway) MarkRead(ctx context.Context, conversationKey, readerID string, at time.Time) ([]*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.markErr != nil {
		return nil, g.markErr
	}
	var updated []*models.Message
	for _, msg := range g.messages {
		if msg.ConversationKey == conversationKey && msg.ReceiverID == readerID && msg.ReadAt == nil {
			readAt := at
			msg.ReadAt = &readAt
			copied := *msg
			updated = append(updated, &copied)
		}
	}
	return updated, nil
}

func (g *fakeGateway) QueryMessages(ctx context.Context, conversationKey string, since time.Time) ([]*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.Message
	for _, msg := range g.messages {
		if msg.ConversationKey == conversationKey && !msg.CreatedAt.Before(since) {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (g *fakeGateway) Subscribe(conversationKey string) (<-chan models.ChangeEvent, func()) {
	return g.events, func() {}
}

func (g *fakeGateway) GetChatSettings(ctx context.Context, ownerID, partnerID string) (*models.ChatSettings, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.settings[ownerID+"|"+partnerID]; ok {
		copied := *s
		return &copied, nil
	}
	return models.DefaultChatSettings(ownerID, partnerID), nil
}

func (g *fakeGateway) setSettings(s *models.ChatSettings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.settings[s.OwnerID+"|"+s.PartnerID] = s
}

func (g *fakeGateway) insertCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inserts
}

// mockNotifier records notification side effects.
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) ShowNotification(title, body, icon string) {
	m.Called(title, body, icon)
}

// mockExpiryGateway is the scheduler's view of the store.
type mockExpiryGateway struct {
	mock.Mock
	sweeps atomic.Int64
}

func (m *mockExpiryGateway) ExpiredMessages(ctx context.Context, conversationKey string, cutoff time.Time) ([]*models.Message, error) {
	m.sweeps.Add(1)
	args := m.Called(ctx, conversationKey, cutoff)
	if msgs, ok := args.Get(0).([]*models.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockExpiryGateway) DeleteMessage(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
