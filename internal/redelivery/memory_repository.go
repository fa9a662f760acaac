package redelivery

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Intended for testing.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryRepository creates a new in-memory redelivery repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
	}
}

// Create creates a new redelivery record.
func (r *InMemoryRepository) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *rec
	r.records[rec.ID] = &c
	return nil
}

// Get retrieves a record by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}

	c := *rec
	return &c, nil
}

// FindDue retrieves all records with next_fire_at at or before now.
func (r *InMemoryRepository) FindDue(_ context.Context, now time.Time) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*Record
	for _, rec := range r.records {
		if !rec.NextFireAt.After(now) {
			c := *rec
			due = append(due, &c)
		}
	}

	return due, nil
}

// Advance claims a due record.
func (r *InMemoryRepository) Advance(_ context.Context, id string, nextFireAt, due time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.NextFireAt.After(due) {
		return false, nil
	}

	rec.OccurrencesSent++
	rec.NextFireAt = nextFireAt
	return true, nil
}

// Delete removes a record.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return ErrRecordNotFound
	}

	delete(r.records, id)
	return nil
}

// DeleteByMessage removes all reminder records for a message.
func (r *InMemoryRepository) DeleteByMessage(_ context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.records {
		if rec.MessageID != nil && *rec.MessageID == messageID {
			delete(r.records, id)
		}
	}
	return nil
}

// DeleteByNotification removes all postpone records for a notification.
func (r *InMemoryRepository) DeleteByNotification(_ context.Context, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.records {
		if rec.NotificationID != nil && *rec.NotificationID == notificationID {
			delete(r.records, id)
		}
	}
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
