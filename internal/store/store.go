package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"murmur/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when an operation targets a message id that does not
// exist. Deletes are the exception: deleting a missing id is a no-op.
var ErrNotFound = errors.New("message not found")

// Store is the durable message gateway: typed CRUD over sqlite plus a
// change-stream fan-out fired after every committed write. It is the only
// shared mutable resource in the system; clients treat it as append/update-only
// and never require isolation beyond atomic update-by-id.
type Store struct {
	db     *sql.DB
	broker *Broker
	logger *logrus.Logger
	now    func() time.Time
}

func New(dbPath string, logger *logrus.Logger) (*Store, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{
		db:     db,
		broker: NewBroker(logger),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Subscribe opens a change stream for one conversation.
func (s *Store) Subscribe(conversationKey string) (<-chan models.ChangeEvent, func()) {
	return s.broker.Subscribe(conversationKey)
}

// InsertMessage persists a new message. The store is authoritative for the
// canonical id, the conversation key and the creation timestamp; whatever the
// caller put in those fields is overwritten.
func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	persisted := *msg
	persisted.ID = uuid.NewString()
	persisted.ConversationKey = models.ConversationKey(msg.SenderID, msg.ReceiverID)
	persisted.CreatedAt = s.now()
	persisted.ReadAt = nil
	persisted.Edited = false
	persisted.Pending = false

	_, err := s.db.ExecContext(ctx, insertMessageQuery,
		persisted.ID,
		persisted.ConversationKey,
		persisted.SenderID,
		persisted.ReceiverID,
		persisted.Content,
		string(persisted.Type),
		persisted.MediaURL,
		persisted.DurationSeconds,
		persisted.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	s.broker.Publish(models.ChangeEvent{Op: models.ChangeInsert, Message: &persisted})
	return &persisted, nil
}

// GetMessage returns the message with the given id, or ErrNotFound.
func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, selectMessageByIDQuery, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// QueryMessages returns all messages of a conversation created at or after
// since, ordered by the store-assigned creation time. A zero since returns the
// full history.
func (s *Store) QueryMessages(ctx context.Context, conversationKey string, since time.Time) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, selectMessagesSinceQuery, conversationKey, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// MarkRead stamps read_at on every unread message of the conversation that is
// addressed to readerID. Re-applying is a no-op: read_at is only ever set on
// rows where it is still null. Returns the messages that were updated.
func (s *Store) MarkRead(ctx context.Context, conversationKey, readerID string, at time.Time) ([]*models.Message, error) {
	at = at.UTC()
	res, err := s.db.ExecContext(ctx, markReadQuery, at, conversationKey, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to count marked messages: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	// Re-select the rows the UPDATE stamped rather than pre-selecting the
	// unread set, so a message inserted between the two statements cannot be
	// stamped without a change event going out for it.
	rows, err := s.db.QueryContext(ctx, selectReadStampedQuery, conversationKey, readerID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to query marked messages: %w", err)
	}
	stamped, err := collectMessages(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, msg := range stamped {
		s.broker.Publish(models.ChangeEvent{Op: models.ChangeUpdate, Message: msg})
	}
	return stamped, nil
}

// UpdateContent replaces the content of a message and flags it edited.
func (s *Store) UpdateContent(ctx context.Context, id, content string) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, updateContentQuery, content, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	s.broker.Publish(models.ChangeEvent{Op: models.ChangeUpdate, Message: msg})
	return msg, nil
}

// DeleteMessage removes a message. Deleting an id that no longer exists is a
// no-op, not an error; delete is terminal and idempotent.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if _, err := s.db.ExecContext(ctx, deleteMessageQuery, id); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	s.broker.Publish(models.ChangeEvent{Op: models.ChangeDelete, Message: msg})
	return nil
}

// ExpiredMessages returns the messages of a conversation created at or before
// the cutoff, oldest first.
func (s *Store) ExpiredMessages(ctx context.Context, conversationKey string, cutoff time.Time) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, selectExpiredQuery, conversationKey, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// SaveChatSettings upserts one owner's settings for a conversation.
func (s *Store) SaveChatSettings(ctx context.Context, settings *models.ChatSettings) error {
	_, err := s.db.ExecContext(ctx, upsertChatSettingsQuery,
		settings.OwnerID,
		settings.PartnerID,
		settings.IsLocked,
		settings.PinHash,
		string(settings.TemporaryDuration),
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save chat settings: %w", err)
	}
	return nil
}

// GetChatSettings returns the owner's settings for a conversation, or the
// defaults when the owner never configured anything.
func (s *Store) GetChatSettings(ctx context.Context, ownerID, partnerID string) (*models.ChatSettings, error) {
	row := s.db.QueryRowContext(ctx, selectChatSettingsQuery, ownerID, partnerID)

	var settings models.ChatSettings
	var duration string
	err := row.Scan(
		&settings.OwnerID,
		&settings.PartnerID,
		&settings.IsLocked,
		&settings.PinHash,
		&duration,
		&settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultChatSettings(ownerID, partnerID), nil
		}
		return nil, fmt.Errorf("failed to get chat settings: %w", err)
	}

	settings.TemporaryDuration = models.TemporaryDuration(duration)
	return &settings, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var msgType string
	var mediaURL sql.NullString
	var duration sql.NullFloat64
	var readAt sql.NullTime

	err := row.Scan(
		&msg.ID,
		&msg.ConversationKey,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&msgType,
		&mediaURL,
		&duration,
		&msg.CreatedAt,
		&readAt,
		&msg.Edited,
	)
	if err != nil {
		return nil, err
	}

	msg.Type = models.MessageType(msgType)
	if mediaURL.Valid {
		msg.MediaURL = &mediaURL.String
	}
	if duration.Valid {
		msg.DurationSeconds = &duration.Float64
	}
	if readAt.Valid {
		t := readAt.Time
		msg.ReadAt = &t
	}
	return &msg, nil
}

func collectMessages(rows *sql.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
