package settings

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository for testing.
type InMemoryRepository struct {
	mu     sync.RWMutex
	server map[ServerKey]Value
	user   []UserSettingRow
}

// NewInMemoryRepository creates a new in-memory settings repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		server: make(map[ServerKey]Value),
	}
}

// GetServerSetting retrieves a process-wide setting.
func (r *InMemoryRepository) GetServerSetting(_ context.Context, key ServerKey) (Value, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.server[key]
	if !ok {
		return Value{}, ErrSettingNotFound
	}
	return v, nil
}

// SetServerSetting stores a process-wide setting.
func (r *InMemoryRepository) SetServerSetting(_ context.Context, key ServerKey, value Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.server[key] = value
	return nil
}

// GetUserSettings retrieves every stored row for the given users and keys.
func (r *InMemoryRepository) GetUserSettings(_ context.Context, userIDs []string, keys []UserKey) ([]UserSettingRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		users[id] = true
	}
	wanted := make(map[UserKey]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	var result []UserSettingRow
	for _, row := range r.user {
		if users[row.UserID] && wanted[row.Key] {
			result = append(result, row)
		}
	}

	return result, nil
}

// SetUserSetting stores a user or device scoped setting.
func (r *InMemoryRepository) SetUserSetting(_ context.Context, row UserSettingRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.user {
		if existing.UserID == row.UserID && existing.Key == row.Key && sameDevice(existing.DeviceID, row.DeviceID) {
			r.user[i] = row
			return nil
		}
	}

	r.user = append(r.user, row)
	return nil
}

func sameDevice(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
