package models

import "time"

// TemporaryDuration is the configured time-to-live for disappearing messages
// in one conversation, as seen by its owner.
type TemporaryDuration string

const (
	TemporaryDisabled TemporaryDuration = "disabled"
	TemporaryFiveMin  TemporaryDuration = "5m"
	TemporaryOneHour  TemporaryDuration = "1h"
	TemporaryOneDay   TemporaryDuration = "1d"
	TemporaryOneWeek  TemporaryDuration = "1w"
)

// TTL returns the duration value and whether expiry is enabled at all.
func (d TemporaryDuration) TTL() (time.Duration, bool) {
	switch d {
	case TemporaryFiveMin:
		return 5 * time.Minute, true
	case TemporaryOneHour:
		return time.Hour, true
	case TemporaryOneDay:
		return 24 * time.Hour, true
	case TemporaryOneWeek:
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Valid reports whether d is one of the known enum values.
func (d TemporaryDuration) Valid() bool {
	switch d {
	case TemporaryDisabled, TemporaryFiveMin, TemporaryOneHour, TemporaryOneDay, TemporaryOneWeek:
		return true
	}
	return false
}

// ChatSettings is the per-owner view of one conversation. PinHash is a bcrypt
// hash; the raw PIN is never persisted.
type ChatSettings struct {
	OwnerID           string            `db:"owner_id" json:"ownerId"`
	PartnerID         string            `db:"partner_id" json:"partnerId"`
	IsLocked          bool              `db:"is_locked" json:"isLocked"`
	PinHash           string            `db:"pin_hash" json:"-"`
	TemporaryDuration TemporaryDuration `db:"temporary_duration" json:"temporaryMessagesDuration"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updatedAt"`
}

// DefaultChatSettings is what a conversation looks like before its owner ever
// touched the settings screen.
func DefaultChatSettings(ownerID, partnerID string) *ChatSettings {
	return &ChatSettings{
		OwnerID:           ownerID,
		PartnerID:         partnerID,
		TemporaryDuration: TemporaryDisabled,
	}
}
