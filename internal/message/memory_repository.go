package message

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use the PostgreSQL implementation.
type InMemoryRepository struct {
	mu       sync.RWMutex
	messages map[string]*Message
}

// NewInMemoryRepository creates a new in-memory message repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		messages: make(map[string]*Message),
	}
}

// Get retrieves a message by ID.
func (r *InMemoryRepository) Get(_ context.Context, messageID string) (*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.messages[messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}

	c := *msg
	return &c, nil
}

// Create creates a new message.
func (r *InMemoryRepository) Create(_ context.Context, message *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *message
	r.messages[message.ID] = &c
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
