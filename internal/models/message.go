package models

import (
	"strings"
	"time"
)

type MessageType string

const (
	TextMessage  MessageType = "text"
	ImageMessage MessageType = "image"
	VideoMessage MessageType = "video"
	AudioMessage MessageType = "audio"
)

// Message is one direct message between two users. The store assigns ID and
// CreatedAt; everything else is set by the sender. Pending is client-side only
// and marks an optimistic entry that has not been confirmed by the store yet.
type Message struct {
	ID              string      `db:"id" json:"id"`
	ConversationKey string      `db:"conversation_key" json:"conversationKey"`
	SenderID        string      `db:"sender_id" json:"senderId"`
	ReceiverID      string      `db:"receiver_id" json:"receiverId"`
	Content         string      `db:"content" json:"content"`
	Type            MessageType `db:"type" json:"type"`
	MediaURL        *string     `db:"media_url" json:"mediaUrl,omitempty"`
	DurationSeconds *float64    `db:"duration_seconds" json:"durationSeconds,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	ReadAt          *time.Time  `db:"read_at" json:"readAt,omitempty"`
	Edited          bool        `db:"edited" json:"edited"`
	Pending         bool        `db:"-" json:"pending,omitempty"`
}

// Draft is the user-supplied part of a message before it is sent.
type Draft struct {
	Content         string      `json:"content"`
	Type            MessageType `json:"type"`
	MediaURL        string      `json:"mediaUrl,omitempty"`
	DurationSeconds float64     `json:"durationSeconds,omitempty"`
}

// Empty reports whether the draft carries neither content nor media.
func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Content) == "" && d.MediaURL == ""
}

// Validate checks the draft against the message type rules: text requires
// non-empty content, every other type requires a media URL.
func (d Draft) Validate() error {
	switch d.Type {
	case TextMessage:
		if strings.TrimSpace(d.Content) == "" {
			return ValidationError{Message: "text message requires content"}
		}
	case ImageMessage, VideoMessage, AudioMessage:
		if d.MediaURL == "" {
			return ValidationError{Message: "media message requires a media URL"}
		}
	default:
		return ValidationError{Message: "unknown message type: " + string(d.Type)}
	}
	return nil
}

// ConversationKey derives the canonical key for the unordered pair of two user
// IDs. Both orderings of the same pair map to the same key.
func ConversationKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}

// ValidationError rejects a draft before any I/O happens.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}
