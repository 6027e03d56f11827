// Package view assembles the conversation screen model: messages grouped by
// day in server-time order plus per-message receipt state.
package view

import (
	"sort"
	"time"

	"murmur/internal/models"
)

// ReceiptState is the delivery indicator rendered next to one of self's
// messages.
type ReceiptState string

const (
	ReceiptPending ReceiptState = "pending"
	ReceiptSent    ReceiptState = "sent"
	ReceiptRead    ReceiptState = "read"
)

// Section is one day's worth of messages.
type Section struct {
	Label    string            `json:"label"`
	Date     time.Time         `json:"date"`
	Messages []*models.Message `json:"messages"`
}

// Compose re-sorts the batch by store-assigned creation time and groups it
// into day sections. The input order is never trusted: stream arrival order is
// not temporal order.
func Compose(messages []*models.Message, now time.Time) []Section {
	sorted := make([]*models.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var sections []Section
	for _, msg := range sorted {
		day := startOfDay(msg.CreatedAt.Local())
		if len(sections) == 0 || !sections[len(sections)-1].Date.Equal(day) {
			sections = append(sections, Section{
				Label: dayLabel(day, now),
				Date:  day,
			})
		}
		last := &sections[len(sections)-1]
		last.Messages = append(last.Messages, msg)
	}
	return sections
}

// Receipt returns the delivery indicator for a message from selfID's point of
// view. Messages from the peer carry no indicator.
func Receipt(msg *models.Message, selfID string) ReceiptState {
	if msg.SenderID != selfID {
		return ""
	}
	if msg.Pending {
		return ReceiptPending
	}
	if msg.ReadAt != nil {
		return ReceiptRead
	}
	return ReceiptSent
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayLabel(day, now time.Time) string {
	today := startOfDay(now.Local())
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("January 2, 2006")
	}
}
