package config

import (
	"encoding/json"
	"os"
	"strconv"

	"murmur/internal/constants"
	"murmur/internal/models"
)

var (
	ErrMissingDBPath   = models.ConfigError{Message: "missing database path"}
	ErrMissingMediaDir = models.ConfigError{Message: "missing media directory"}
)

// LoadConfig reads the JSON config file, applies defaults and environment
// overrides and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Media.Dir == "" {
		return ErrMissingMediaDir
	}
	if c.Typing.DebounceMs <= 0 || c.Typing.GraceMs <= 0 {
		return models.ConfigError{Message: "typing windows must be positive"}
	}
	if c.Typing.GraceMs < c.Typing.DebounceMs {
		return models.ConfigError{Message: "typing grace window must not be shorter than the debounce window"}
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Presence.HeartbeatIntervalSec == 0 {
		c.Presence.HeartbeatIntervalSec = constants.DefaultHeartbeatSec
	}
	if c.Presence.OfflineTimeoutSec == 0 {
		c.Presence.OfflineTimeoutSec = constants.DefaultPresenceTimeoutSec
	}
	if c.Typing.DebounceMs == 0 {
		c.Typing.DebounceMs = constants.DefaultTypingDebounceMs
	}
	if c.Typing.GraceMs == 0 {
		c.Typing.GraceMs = constants.DefaultTypingGraceMs
	}
	if c.Expiry.TickSec == 0 {
		c.Expiry.TickSec = constants.DefaultExpiryTickSec
	}
	if c.Media.MaxSizeMB.Image == 0 {
		c.Media.MaxSizeMB.Image = constants.DefaultMaxImageSizeMB
	}
	if c.Media.MaxSizeMB.Video == 0 {
		c.Media.MaxSizeMB.Video = constants.DefaultMaxVideoSizeMB
	}
	if c.Media.MaxSizeMB.Voice == 0 {
		c.Media.MaxSizeMB.Voice = constants.DefaultMaxVoiceSizeMB
	}
	if c.Retry.InitialBackoffMs == 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs == 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = constants.DefaultStoreOpenRetryAttempts
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("MURMUR_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("MURMUR_MEDIA_DIR"); v != "" {
		c.Media.Dir = v
	}
	if v := os.Getenv("MURMUR_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("MURMUR_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("MURMUR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MURMUR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}
