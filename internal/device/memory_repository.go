package device

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use the PostgreSQL implementation.
type InMemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*UserDevice // keyed by device ID
}

// NewInMemoryRepository creates a new in-memory device repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		devices: make(map[string]*UserDevice),
	}
}

// Get retrieves a device by ID.
func (r *InMemoryRepository) Get(_ context.Context, deviceID string) (*UserDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	return copyDevice(device), nil
}

// DevicesForUsers retrieves all devices registered by any of the given users.
func (r *InMemoryRepository) DevicesForUsers(_ context.Context, userIDs []string) ([]*UserDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}

	var devices []*UserDevice
	for _, device := range r.devices {
		if wanted[device.UserID] {
			devices = append(devices, copyDevice(device))
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].CreatedAt.Before(devices[j].CreatedAt)
	})

	return devices, nil
}

// Create creates a new device.
func (r *InMemoryRepository) Create(_ context.Context, device *UserDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices[device.ID] = copyDevice(device)
	return nil
}

// UpdateLastUsed records the time a push was last delivered to the device.
func (r *InMemoryRepository) UpdateLastUsed(_ context.Context, deviceID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}

	t := at
	device.LastUsed = &t
	return nil
}

// Delete deletes a device.
func (r *InMemoryRepository) Delete(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; !ok {
		return ErrDeviceNotFound
	}

	delete(r.devices, deviceID)
	return nil
}

func copyDevice(d *UserDevice) *UserDevice {
	c := *d
	return &c
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
