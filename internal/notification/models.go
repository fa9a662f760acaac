// Package notification provides storage for per-device notification records.
//
// Exactly one Notification row exists per (message, user, device) triple,
// created at fan-out time before any push attempt. SentAt and Error record
// the outcome of the most recent delivery attempt; a retry that succeeds
// after an earlier failure sets SentAt and clears Error.
package notification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotificationNotFound is returned when a notification does not exist.
var ErrNotificationNotFound = errors.New("notification not found")

// Notification is one delivery record for a message on a single device.
type Notification struct {
	ID        string
	MessageID string
	UserID    string

	// UserDeviceID is nil once the device has been deleted; the record is
	// kept for the user's history.
	UserDeviceID *string

	Title string
	Body  string

	SentAt    *time.Time
	ReadAt    *time.Time
	Error     *string
	CreatedAt time.Time
}

// New creates a notification record for a message on a device.
func New(messageID, userID, deviceID, title, body string, now time.Time) *Notification {
	id := deviceID
	return &Notification{
		ID:           "ntf_" + uuid.NewString(),
		MessageID:    messageID,
		UserID:       userID,
		UserDeviceID: &id,
		Title:        title,
		Body:         body,
		CreatedAt:    now,
	}
}

// PresentationCopy returns an in-memory clone with the title prefixed.
// The clone is handed to a delivery attempt and never persisted, so the
// stored title is unaffected.
func (n *Notification) PresentationCopy(prefix string) *Notification {
	c := *n
	if prefix != "" {
		c.Title = prefix + ": " + n.Title
	}
	return &c
}

// Unread reports whether the notification has not been read yet.
func (n *Notification) Unread() bool {
	return n.ReadAt == nil
}
