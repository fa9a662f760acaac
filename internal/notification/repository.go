package notification

import (
	"context"
	"time"
)

// Repository defines the interface for notification persistence.
type Repository interface {
	// Create creates a new notification record.
	Create(ctx context.Context, n *Notification) error

	// FindByID retrieves a notification by ID.
	FindByID(ctx context.Context, id string) (*Notification, error)

	// MarkSent records a successful delivery. Clears any previous error.
	MarkSent(ctx context.Context, id string, at time.Time) error

	// MarkFailed records a failed delivery attempt.
	MarkFailed(ctx context.Context, id string, reason string) error

	// MarkRead records that the user has read the notification.
	MarkRead(ctx context.Context, id string, at time.Time) error

	// FindUnreadByMessageAndUser retrieves the unread notifications a user
	// has for a message.
	FindUnreadByMessageAndUser(ctx context.Context, messageID, userID string) ([]*Notification, error)
}
