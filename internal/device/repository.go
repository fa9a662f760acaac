package device

import (
	"context"
	"time"
)

// Repository defines the interface for device persistence.
type Repository interface {
	// Get retrieves a device by ID.
	Get(ctx context.Context, deviceID string) (*UserDevice, error)

	// DevicesForUsers retrieves all devices registered by any of the given
	// users, across all platforms.
	DevicesForUsers(ctx context.Context, userIDs []string) ([]*UserDevice, error)

	// Create creates a new device.
	Create(ctx context.Context, device *UserDevice) error

	// UpdateLastUsed records the time a push was last delivered to the device.
	UpdateLastUsed(ctx context.Context, deviceID string, at time.Time) error

	// Delete deletes a device.
	Delete(ctx context.Context, deviceID string) error
}
