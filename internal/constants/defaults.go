package constants

// Default timing values for the typing/presence coordination protocol
const (
	DefaultTypingDebounceMs   = 2000
	DefaultTypingGraceMs      = 3000
	DefaultHeartbeatSec       = 10
	DefaultPresenceTimeoutSec = 30
)

// Default expiry scheduler values
const (
	DefaultExpiryTickSec = 30
)

// Default server values
const (
	DefaultServerPort            = 8084
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Default startup retry values
const (
	DefaultBackoffInitialMs       = 500
	DefaultMaxBackoffMs           = 60000
	DefaultStoreOpenRetryAttempts = 3
)

// Default media configuration values
const (
	DefaultMaxImageSizeMB = 5
	DefaultMaxVideoSizeMB = 100
	DefaultMaxVoiceSizeMB = 16
)

// Change-stream fan-out buffering. Slow subscribers past this depth lose
// events and must replay from the store.
const (
	ChangeStreamBufferSize = 64
)
