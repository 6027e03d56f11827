package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"murmur/internal/apperr"
	"murmur/internal/models"
	"murmur/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Gateway is the consumer-side view of the message store used by the
// lifecycle manager.
type Gateway interface {
	InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	UpdateContent(ctx context.Context, id, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	MarkRead(ctx context.Context, conversationKey, readerID string, at time.Time) ([]*models.Message, error)
	QueryMessages(ctx context.Context, conversationKey string, since time.Time) ([]*models.Message, error)
	Subscribe(conversationKey string) (<-chan models.ChangeEvent, func())
	GetChatSettings(ctx context.Context, ownerID, partnerID string) (*models.ChatSettings, error)
}

// Notifier surfaces an incoming message while the app is backgrounded.
type Notifier interface {
	ShowNotification(title, body, icon string)
}

// conversation holds the local, client-side view of one open conversation.
type conversation struct {
	key      string
	peerID   string
	messages []*models.Message
	byID     map[string]*models.Message
	cancel   func()
}

// Lifecycle owns the client-side message state machine: optimistic sends with
// duplicate suppression, change-stream mirroring, read receipts, edits and
// deletes. All entry points serialize on one mutex, mirroring the single
// event-loop model the protocol assumes.
type Lifecycle struct {
	logger   *logrus.Logger
	gw       Gateway
	notifier Notifier
	selfID   string

	mu            sync.Mutex
	conversations map[string]*conversation
	attempts      map[string]struct{}
	unlocked      map[string]struct{}
	backgrounded  bool
	now           func() time.Time
}

func NewLifecycle(selfID string, gw Gateway, notifier Notifier, logger *logrus.Logger) *Lifecycle {
	return &Lifecycle{
		logger:        logger,
		gw:            gw,
		notifier:      notifier,
		selfID:        selfID,
		conversations: make(map[string]*conversation),
		attempts:      make(map[string]struct{}),
		unlocked:      make(map[string]struct{}),
		now:           time.Now,
	}
}

func (l *Lifecycle) SelfID() string {
	return l.selfID
}

// Open loads the conversation with peerID, subscribes to its change stream and
// returns the current history. Opening an already open conversation just
// returns the local state. A locked conversation must be unlocked first.
func (l *Lifecycle) Open(ctx context.Context, peerID string) ([]*models.Message, error) {
	key := models.ConversationKey(l.selfID, peerID)

	l.mu.Lock()
	if conv, ok := l.conversations[key]; ok {
		snapshot := snapshotMessages(conv)
		l.mu.Unlock()
		return snapshot, nil
	}
	_, unlocked := l.unlocked[key]
	l.mu.Unlock()

	settings, err := l.gw.GetChatSettings(ctx, l.selfID, peerID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodePersistenceFailure, "failed to load chat settings")
	}
	if settings.IsLocked && !unlocked {
		return nil, apperr.New(apperr.CodeChatLocked, "conversation is locked").
			WithUserMessage("Enter the PIN to open this chat")
	}

	history, err := l.gw.QueryMessages(ctx, key, time.Time{})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodePersistenceFailure, "failed to load history")
	}

	events, cancel := l.gw.Subscribe(key)

	conv := &conversation{
		key:    key,
		peerID: peerID,
		byID:   make(map[string]*models.Message),
		cancel: cancel,
	}
	for _, msg := range history {
		conv.messages = append(conv.messages, msg)
		conv.byID[msg.ID] = msg
	}
	sortMessages(conv.messages)

	// Snapshot before the consume goroutine starts; once it runs, conv is
	// only touched under l.mu.
	l.mu.Lock()
	l.conversations[key] = conv
	snapshot := snapshotMessages(conv)
	l.mu.Unlock()

	go l.consume(conv, events)

	return snapshot, nil
}

// Close tears down the change-stream subscription for the conversation with
// peerID and drops its local state.
func (l *Lifecycle) Close(peerID string) {
	key := models.ConversationKey(l.selfID, peerID)

	l.mu.Lock()
	conv, ok := l.conversations[key]
	if ok {
		delete(l.conversations, key)
	}
	l.mu.Unlock()

	if ok {
		conv.cancel()
	}
}

// Unlock verifies the PIN for a locked conversation. A successful unlock is
// remembered for the lifetime of this manager.
func (l *Lifecycle) Unlock(ctx context.Context, peerID, pin string) error {
	settings, err := l.gw.GetChatSettings(ctx, l.selfID, peerID)
	if err != nil {
		return apperr.Wrap(err, apperr.CodePersistenceFailure, "failed to load chat settings")
	}
	if !settings.IsLocked {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(settings.PinHash), []byte(pin)); err != nil {
		return apperr.New(apperr.CodeNotPermitted, "wrong PIN").
			WithUserMessage("Wrong PIN")
	}

	l.mu.Lock()
	l.unlocked[models.ConversationKey(l.selfID, peerID)] = struct{}{}
	l.mu.Unlock()
	return nil
}

// Send validates the draft, suppresses literal duplicate submissions, appends
// an optimistic entry and persists it. On success the optimistic entry is
// replaced by the canonical message; on failure it is rolled back and the
// caller must re-invoke Send with a fresh draft. Sends are never retried
// automatically.
func (l *Lifecycle) Send(ctx context.Context, peerID string, draft models.Draft) (*models.Message, error) {
	if draft.Empty() {
		return nil, apperr.New(apperr.CodeValidationFailed, "empty draft")
	}
	if err := draft.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidationFailed, "invalid draft")
	}

	key := models.ConversationKey(l.selfID, peerID)
	attemptKey := key + "\x00" + draft.Content + "\x00" + draft.MediaURL

	l.mu.Lock()
	if _, inFlight := l.attempts[attemptKey]; inFlight {
		l.mu.Unlock()
		// Double-tap on the send button; silently swallowed upstream.
		return nil, apperr.New(apperr.CodeDuplicateSuppressed, "identical send already in flight")
	}
	l.attempts[attemptKey] = struct{}{}

	optimistic := l.draftToMessage(key, peerID, draft)
	l.appendLocked(key, optimistic)
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.attempts, attemptKey)
		l.mu.Unlock()
	}()

	persisted, err := l.gw.InsertMessage(ctx, optimistic)
	if err != nil {
		l.mu.Lock()
		l.removeLocked(key, optimistic.ID)
		l.mu.Unlock()
		return nil, apperr.WrapRetryable(err, apperr.CodePersistenceFailure, "failed to send message").
			WithUserMessage("Message not sent, try again")
	}

	l.mu.Lock()
	l.resolveLocked(key, optimistic.ID, persisted)
	l.mu.Unlock()

	return persisted, nil
}

// MarkRead stamps every unread message addressed to self in the conversation.
// Idempotent: already-read messages are untouched.
func (l *Lifecycle) MarkRead(ctx context.Context, peerID string) error {
	key := models.ConversationKey(l.selfID, peerID)
	if _, err := l.gw.MarkRead(ctx, key, l.selfID, l.now()); err != nil {
		return apperr.Wrap(err, apperr.CodePersistenceFailure, "failed to mark conversation read")
	}
	return nil
}

// Edit replaces the content of one of self's text messages.
func (l *Lifecycle) Edit(ctx context.Context, messageID, newContent string) error {
	msg, err := l.lookup(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return apperr.New(apperr.CodeNotFound, "message not found")
	}
	if msg.Pending {
		return apperr.New(apperr.CodeValidationFailed, "message is not confirmed yet")
	}
	if msg.SenderID != l.selfID {
		return apperr.New(apperr.CodeNotPermitted, "only the sender can edit a message")
	}
	if msg.Type != models.TextMessage {
		return apperr.New(apperr.CodeValidationFailed, "only text messages can be edited")
	}
	if _, err := l.gw.UpdateContent(ctx, messageID, newContent); err != nil {
		return apperr.Wrap(err, apperr.CodePersistenceFailure, "failed to edit message").
			WithUserMessage("Edit not saved, try again")
	}
	return nil
}

// Delete hard-deletes one of self's messages. The expiry scheduler issues its
// own deletes and does not go through this permission check.
func (l *Lifecycle) Delete(ctx context.Context, messageID string) error {
	msg, err := l.lookup(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		// Already gone; delete is idempotent.
		return nil
	}
	if msg.SenderID != l.selfID {
		return apperr.New(apperr.CodeNotPermitted, "only the sender can delete a message")
	}
	if err := l.gw.DeleteMessage(ctx, messageID); err != nil {
		return apperr.Wrap(err, apperr.CodePersistenceFailure, "failed to delete message").
			WithUserMessage("Delete failed, try again")
	}
	return nil
}

// Messages returns a snapshot of the local state for an open conversation.
func (l *Lifecycle) Messages(peerID string) []*models.Message {
	key := models.ConversationKey(l.selfID, peerID)

	l.mu.Lock()
	defer l.mu.Unlock()
	conv, ok := l.conversations[key]
	if !ok {
		return nil
	}
	return snapshotMessages(conv)
}

// SetBackgrounded flips the app visibility flag that gates incoming-message
// notifications.
func (l *Lifecycle) SetBackgrounded(backgrounded bool) {
	l.mu.Lock()
	l.backgrounded = backgrounded
	l.mu.Unlock()
}

func (l *Lifecycle) consume(conv *conversation, events <-chan models.ChangeEvent) {
	for ev := range events {
		l.handleEvent(conv.key, ev)
	}
}

func (l *Lifecycle) handleEvent(key string, ev models.ChangeEvent) {
	if ev.Message == nil || ev.Message.ConversationKey != key {
		return
	}

	l.mu.Lock()
	conv, ok := l.conversations[key]
	if !ok {
		l.mu.Unlock()
		return
	}

	notify := false
	switch ev.Op {
	case models.ChangeInsert:
		if _, seen := conv.byID[ev.Message.ID]; !seen {
			l.appendLocked(key, ev.Message)
			notify = l.backgrounded && ev.Message.SenderID != l.selfID
		}
	case models.ChangeUpdate:
		if existing, seen := conv.byID[ev.Message.ID]; seen {
			*existing = *ev.Message
		}
	case models.ChangeDelete:
		l.removeLocked(key, ev.Message.ID)
	}
	l.mu.Unlock()

	if notify && l.notifier != nil {
		l.notifier.ShowNotification("New message", previewOf(ev.Message), "")
	}
}

func (l *Lifecycle) draftToMessage(key, peerID string, draft models.Draft) *models.Message {
	msg := &models.Message{
		ID:              "tmp-" + uuid.NewString(),
		ConversationKey: key,
		SenderID:        l.selfID,
		ReceiverID:      peerID,
		Content:         draft.Content,
		Type:            draft.Type,
		CreatedAt:       l.now().UTC(),
		Pending:         true,
	}
	if draft.MediaURL != "" {
		mediaURL := draft.MediaURL
		msg.MediaURL = &mediaURL
	}
	if draft.DurationSeconds > 0 {
		duration := draft.DurationSeconds
		msg.DurationSeconds = &duration
	}
	return msg
}

func (l *Lifecycle) appendLocked(key string, msg *models.Message) {
	conv, ok := l.conversations[key]
	if !ok {
		return
	}
	conv.messages = append(conv.messages, msg)
	conv.byID[msg.ID] = msg
	sortMessages(conv.messages)
}

func (l *Lifecycle) removeLocked(key, id string) {
	conv, ok := l.conversations[key]
	if !ok {
		return
	}
	if _, seen := conv.byID[id]; !seen {
		return
	}
	delete(conv.byID, id)
	for i, msg := range conv.messages {
		if msg.ID == id {
			conv.messages = append(conv.messages[:i], conv.messages[i+1:]...)
			break
		}
	}
}

// resolveLocked swaps the optimistic entry for the canonical message,
// replacing by identity rather than mutating in place. If the change stream
// already delivered the canonical insert, the temporary entry is just dropped.
func (l *Lifecycle) resolveLocked(key, tempID string, persisted *models.Message) {
	conv, ok := l.conversations[key]
	if !ok {
		return
	}
	l.removeLocked(key, tempID)
	if _, seen := conv.byID[persisted.ID]; !seen {
		l.appendLocked(key, persisted)
	}
}

// lookup finds a message in any open conversation, falling back to the store
// for conversations that are not open. Returns nil, nil when the message does
// not exist anywhere.
func (l *Lifecycle) lookup(ctx context.Context, messageID string) (*models.Message, error) {
	l.mu.Lock()
	msg := l.findLocked(messageID)
	l.mu.Unlock()
	if msg != nil {
		return msg, nil
	}

	msg, err := l.gw.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, apperr.Wrap(err, apperr.CodePersistenceFailure, "failed to load message")
	}
	return msg, nil
}

func (l *Lifecycle) findLocked(messageID string) *models.Message {
	for _, conv := range l.conversations {
		if msg, ok := conv.byID[messageID]; ok {
			return msg
		}
	}
	return nil
}

func snapshotMessages(conv *conversation) []*models.Message {
	out := make([]*models.Message, len(conv.messages))
	copy(out, conv.messages)
	return out
}

// sortMessages orders by the store-assigned creation time; stream arrival
// order is never assumed to be temporal order.
func sortMessages(messages []*models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

func previewOf(msg *models.Message) string {
	switch msg.Type {
	case models.AudioMessage:
		return "Voice message"
	case models.ImageMessage:
		return "Photo"
	case models.VideoMessage:
		return "Video"
	default:
		// Truncate on rune boundaries so multibyte content never gets split
		// mid-character.
		if runes := []rune(msg.Content); len(runes) > 80 {
			return string(runes[:80]) + "…"
		}
		return msg.Content
	}
}
