package snooze

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository for testing.
type InMemoryRepository struct {
	mu      sync.RWMutex
	configs map[string]map[string]*MuteConfig // bucketID -> userID -> config
}

// NewInMemoryRepository creates a new in-memory mute configuration repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		configs: make(map[string]map[string]*MuteConfig),
	}
}

// Set stores the mute configuration for a (bucket, user) pair.
func (r *InMemoryRepository) Set(cfg *MuteConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.configs[cfg.BucketID] == nil {
		r.configs[cfg.BucketID] = make(map[string]*MuteConfig)
	}
	r.configs[cfg.BucketID][cfg.UserID] = cfg
}

// GetForUsers retrieves the mute configuration of each of the given users for
// a bucket.
func (r *InMemoryRepository) GetForUsers(_ context.Context, bucketID string, userIDs []string) (map[string]*MuteConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*MuteConfig)
	byUser := r.configs[bucketID]
	for _, userID := range userIDs {
		if cfg, ok := byUser[userID]; ok {
			c := *cfg
			result[userID] = &c
		}
	}

	return result, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
