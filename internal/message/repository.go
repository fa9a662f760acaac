package message

import "context"

// Repository defines the interface for message persistence.
type Repository interface {
	// Get retrieves a message by ID.
	Get(ctx context.Context, messageID string) (*Message, error)

	// Create creates a new message.
	Create(ctx context.Context, message *Message) error
}
