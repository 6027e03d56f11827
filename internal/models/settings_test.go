package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTemporaryDurationTTL(t *testing.T) {
	tests := []struct {
		duration TemporaryDuration
		ttl      time.Duration
		enabled  bool
	}{
		{TemporaryDisabled, 0, false},
		{TemporaryFiveMin, 5 * time.Minute, true},
		{TemporaryOneHour, time.Hour, true},
		{TemporaryOneDay, 24 * time.Hour, true},
		{TemporaryOneWeek, 7 * 24 * time.Hour, true},
		{TemporaryDuration(""), 0, false},
		{TemporaryDuration("2h"), 0, false},
	}

	for _, tt := range tests {
		ttl, enabled := tt.duration.TTL()
		assert.Equal(t, tt.ttl, ttl, "duration %q", tt.duration)
		assert.Equal(t, tt.enabled, enabled, "duration %q", tt.duration)
	}
}

func TestTemporaryDurationValid(t *testing.T) {
	assert.True(t, TemporaryDisabled.Valid())
	assert.True(t, TemporaryOneWeek.Valid())
	assert.False(t, TemporaryDuration("").Valid())
	assert.False(t, TemporaryDuration("2h").Valid())
}

func TestDefaultChatSettings(t *testing.T) {
	s := DefaultChatSettings("alice", "bob")
	assert.Equal(t, "alice", s.OwnerID)
	assert.Equal(t, "bob", s.PartnerID)
	assert.False(t, s.IsLocked)
	assert.Empty(t, s.PinHash)
	assert.Equal(t, TemporaryDisabled, s.TemporaryDuration)
}
