package bucket

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory PermissionService for testing.
type InMemoryRepository struct {
	mu      sync.RWMutex
	members map[string]map[string]bool // bucketID -> userID set
}

// NewInMemoryRepository creates a new in-memory bucket membership repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		members: make(map[string]map[string]bool),
	}
}

// Grant adds a user to a bucket.
func (r *InMemoryRepository) Grant(bucketID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[bucketID] == nil {
		r.members[bucketID] = make(map[string]bool)
	}
	r.members[bucketID][userID] = true
}

// AuthorizedUserIDs returns the IDs of all users with access to the bucket.
func (r *InMemoryRepository) AuthorizedUserIDs(_ context.Context, bucketID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var userIDs []string
	for id := range r.members[bucketID] {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	return userIDs, nil
}

// Ensure InMemoryRepository implements PermissionService.
var _ PermissionService = (*InMemoryRepository)(nil)
