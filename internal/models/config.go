package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Presence PresenceConfig `json:"presence"`
	Typing   TypingConfig   `json:"typing"`
	Expiry   ExpiryConfig   `json:"expiry"`
	Media    MediaConfig    `json:"media"`
	Retry    RetryConfig    `json:"retry"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// ServerConfig holds HTTP server related configurations
type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// RedisConfig selects the presence backend. When Addr is empty presence falls
// back to the in-process store.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// PresenceConfig holds heartbeat tuning parameters
type PresenceConfig struct {
	HeartbeatIntervalSec int `json:"heartbeatIntervalSec"`
	OfflineTimeoutSec    int `json:"offlineTimeoutSec"`
}

// TypingConfig holds typing indicator timing windows, in milliseconds
type TypingConfig struct {
	DebounceMs int `json:"debounceMs"`
	GraceMs    int `json:"graceMs"`
}

// ExpiryConfig holds the disappearing-message sweep interval
type ExpiryConfig struct {
	TickSec int `json:"tickSec"`
}

// MediaConfig holds voice/media upload related configurations
type MediaConfig struct {
	Dir       string          `json:"dir"`
	BaseURL   string          `json:"base_url"`
	MaxSizeMB MediaSizeLimits `json:"maxSizeMB"`
}

// MediaSizeLimits defines size limits for different media types in MB
type MediaSizeLimits struct {
	Image int `json:"image"`
	Video int `json:"video"`
	Voice int `json:"voice"`
}

// RetryConfig holds startup-connection retry configurations. Message sends are
// never retried automatically.
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry tracing configurations
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	ServiceName  string  `json:"serviceName"`
	Environment  string  `json:"environment"`
	OTLPEndpoint string  `json:"otlpEndpoint"`
	SampleRate   float64 `json:"sampleRate"`
	UseStdout    bool    `json:"useStdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
