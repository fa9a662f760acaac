// Package redelivery implements deferred re-sending of notifications:
// recurring reminders attached to a message and one-off postpones attached to
// a single notification.
package redelivery

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRecordNotFound is returned when a redelivery record does not exist.
var ErrRecordNotFound = errors.New("redelivery record not found")

// Kind distinguishes the two redelivery flavors.
type Kind string

const (
	// KindReminder re-sends every unread notification of a message to one
	// user, repeatedly, until read or exhausted.
	KindReminder Kind = "REMINDER"

	// KindPostpone re-sends one specific notification after a delay.
	KindPostpone Kind = "POSTPONE"
)

// Record is one scheduled redelivery.
type Record struct {
	ID   string
	Kind Kind

	// MessageID is set for reminders, NotificationID for postpones.
	MessageID      *string
	NotificationID *string

	UserID string

	// IntervalMinutes separates consecutive fires.
	IntervalMinutes int

	// MaxOccurrences caps the number of fires; OccurrencesSent counts them.
	MaxOccurrences  int
	OccurrencesSent int

	// NextFireAt is the earliest time the record is due. It never moves
	// backwards.
	NextFireAt time.Time

	CreatedAt time.Time
}

// NewReminder schedules a recurring reminder for a user's unread
// notifications of a message.
func NewReminder(messageID, userID string, intervalMinutes, maxOccurrences int, now time.Time) *Record {
	return &Record{
		ID:              "rdl_" + uuid.NewString(),
		Kind:            KindReminder,
		MessageID:       &messageID,
		UserID:          userID,
		IntervalMinutes: intervalMinutes,
		MaxOccurrences:  maxOccurrences,
		NextFireAt:      now.Add(time.Duration(intervalMinutes) * time.Minute),
		CreatedAt:       now,
	}
}

// NewPostpone schedules a deferred re-send of one notification.
func NewPostpone(notificationID, userID string, intervalMinutes, maxOccurrences int, now time.Time) *Record {
	return &Record{
		ID:              "rdl_" + uuid.NewString(),
		Kind:            KindPostpone,
		NotificationID:  &notificationID,
		UserID:          userID,
		IntervalMinutes: intervalMinutes,
		MaxOccurrences:  maxOccurrences,
		NextFireAt:      now.Add(time.Duration(intervalMinutes) * time.Minute),
		CreatedAt:       now,
	}
}

// Interval returns the fire interval as a duration.
func (r *Record) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// Exhausted reports whether the record has used up its occurrence budget.
func (r *Record) Exhausted() bool {
	return r.OccurrencesSent >= r.MaxOccurrences
}
