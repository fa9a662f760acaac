package notification

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use the PostgreSQL implementation.
type InMemoryRepository struct {
	mu            sync.RWMutex
	notifications map[string]*Notification
}

// NewInMemoryRepository creates a new in-memory notification repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		notifications: make(map[string]*Notification),
	}
}

// Create creates a new notification record.
func (r *InMemoryRepository) Create(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notifications[n.ID] = copyNotification(n)
	return nil
}

// FindByID retrieves a notification by ID.
func (r *InMemoryRepository) FindByID(_ context.Context, id string) (*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}

	return copyNotification(n), nil
}

// MarkSent records a successful delivery. Clears any previous error.
func (r *InMemoryRepository) MarkSent(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}

	t := at
	n.SentAt = &t
	n.Error = nil
	return nil
}

// MarkFailed records a failed delivery attempt.
func (r *InMemoryRepository) MarkFailed(_ context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}

	msg := reason
	n.Error = &msg
	return nil
}

// MarkRead records that the user has read the notification.
func (r *InMemoryRepository) MarkRead(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}

	t := at
	n.ReadAt = &t
	return nil
}

// FindUnreadByMessageAndUser retrieves the unread notifications a user has
// for a message.
func (r *InMemoryRepository) FindUnreadByMessageAndUser(_ context.Context, messageID, userID string) ([]*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Notification
	for _, n := range r.notifications {
		if n.MessageID == messageID && n.UserID == userID && n.ReadAt == nil {
			result = append(result, copyNotification(n))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func copyNotification(n *Notification) *Notification {
	c := *n
	return &c
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
