package store

// Schema is applied unconditionally on open; every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_key TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	media_url TEXT,
	duration_seconds REAL,
	created_at TIMESTAMP NOT NULL,
	read_at TIMESTAMP,
	edited INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_key, created_at);

CREATE INDEX IF NOT EXISTS idx_messages_unread
	ON messages(conversation_key, receiver_id) WHERE read_at IS NULL;

CREATE TABLE IF NOT EXISTS chat_settings (
	owner_id TEXT NOT NULL,
	partner_id TEXT NOT NULL,
	is_locked INTEGER NOT NULL DEFAULT 0,
	pin_hash TEXT NOT NULL DEFAULT '',
	temporary_duration TEXT NOT NULL DEFAULT 'disabled',
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (owner_id, partner_id)
);
`

// Message queries
const (
	insertMessageQuery = `
		INSERT INTO messages (
			id, conversation_key, sender_id, receiver_id,
			content, type, media_url, duration_seconds,
			created_at, read_at, edited
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)
	`

	selectMessageByIDQuery = `
		SELECT id, conversation_key, sender_id, receiver_id,
		       content, type, media_url, duration_seconds,
		       created_at, read_at, edited
		FROM messages
		WHERE id = ?
	`

	selectMessagesSinceQuery = `
		SELECT id, conversation_key, sender_id, receiver_id,
		       content, type, media_url, duration_seconds,
		       created_at, read_at, edited
		FROM messages
		WHERE conversation_key = ? AND created_at >= ?
		ORDER BY created_at ASC, id ASC
	`

	selectReadStampedQuery = `
		SELECT id, conversation_key, sender_id, receiver_id,
		       content, type, media_url, duration_seconds,
		       created_at, read_at, edited
		FROM messages
		WHERE conversation_key = ? AND receiver_id = ? AND read_at = ?
		ORDER BY created_at ASC, id ASC
	`

	markReadQuery = `
		UPDATE messages
		SET read_at = ?
		WHERE conversation_key = ? AND receiver_id = ? AND read_at IS NULL
	`

	updateContentQuery = `
		UPDATE messages
		SET content = ?, edited = 1
		WHERE id = ?
	`

	deleteMessageQuery = `
		DELETE FROM messages
		WHERE id = ?
	`

	selectExpiredQuery = `
		SELECT id, conversation_key, sender_id, receiver_id,
		       content, type, media_url, duration_seconds,
		       created_at, read_at, edited
		FROM messages
		WHERE conversation_key = ? AND created_at <= ?
		ORDER BY created_at ASC, id ASC
	`
)

// Chat settings queries
const (
	upsertChatSettingsQuery = `
		INSERT OR REPLACE INTO chat_settings (
			owner_id, partner_id, is_locked, pin_hash, temporary_duration, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	selectChatSettingsQuery = `
		SELECT owner_id, partner_id, is_locked, pin_hash, temporary_duration, updated_at
		FROM chat_settings
		WHERE owner_id = ? AND partner_id = ?
	`
)
