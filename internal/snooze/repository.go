package snooze

import "context"

// Repository defines the interface for mute configuration storage.
type Repository interface {
	// GetForUsers retrieves the mute configuration of each of the given
	// users for a bucket, in one read. Users without configuration are
	// absent from the result.
	GetForUsers(ctx context.Context, bucketID string, userIDs []string) (map[string]*MuteConfig, error)
}
