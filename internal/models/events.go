package models

import (
	"encoding/json"
	"time"
)

// ChangeOp is the kind of row-level change delivered on a change stream.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeEvent is one row-level change on the messages table, fanned out to
// every subscriber of the affected conversation. For deletes the message
// carries its last known state.
type ChangeEvent struct {
	Op      ChangeOp `json:"op"`
	Message *Message `json:"message"`
}

// PresenceState is the best-effort online status of one user. Advisory only;
// never used for correctness decisions.
type PresenceState struct {
	UserID   string    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// TypingEvent signals that a user started or stopped typing in a conversation.
type TypingEvent struct {
	ConversationKey string `json:"conversationKey"`
	UserID          string `json:"userId"`
	Typing          bool   `json:"typing"`
}

// Envelope kinds carried on the client event socket.
const (
	EnvelopeMessage  = "message"
	EnvelopeTyping   = "typing"
	EnvelopePresence = "presence"
)

// Envelope wraps one event for the client socket so message, typing and
// presence traffic can share a single stream.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
func NewEnvelope(kind string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: kind, Payload: raw}, nil
}
