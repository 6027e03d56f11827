// Package presence tracks best-effort online/offline status per user via a
// heartbeat against a TTL store. Absence of a heartbeat past the timeout reads
// as offline; nothing else in the system depends on this for correctness.
package presence

import (
	"context"
	"time"
)

// Store persists heartbeats. Entries are ephemeral: they expire with the TTL
// and are rebuilt from scratch on reconnect.
type Store interface {
	SetHeartbeat(ctx context.Context, userID string, at time.Time, ttl time.Duration) error
	LastSeen(ctx context.Context, userID string) (time.Time, bool, error)
	Close() error
}
