package redelivery

import (
	"context"
	"time"
)

// Repository defines the interface for redelivery record persistence.
type Repository interface {
	// Create creates a new redelivery record.
	Create(ctx context.Context, r *Record) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*Record, error)

	// FindDue retrieves all records with next_fire_at at or before now.
	FindDue(ctx context.Context, now time.Time) ([]*Record, error)

	// Advance claims a due record: bumps the occurrence count and moves
	// next_fire_at to nextFireAt. Returns false when the record was no longer
	// due at the given instant, which means a concurrent tick claimed it
	// first.
	Advance(ctx context.Context, id string, nextFireAt, due time.Time) (bool, error)

	// Delete removes a record.
	Delete(ctx context.Context, id string) error

	// DeleteByMessage removes all reminder records for a message.
	DeleteByMessage(ctx context.Context, messageID string) error

	// DeleteByNotification removes all postpone records for a notification.
	DeleteByNotification(ctx context.Context, notificationID string) error
}
