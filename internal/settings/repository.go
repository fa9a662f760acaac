package settings

import "context"

// Repository defines the interface for settings persistence.
type Repository interface {
	// GetServerSetting retrieves a process-wide setting.
	// Returns ErrSettingNotFound when no value is stored.
	GetServerSetting(ctx context.Context, key ServerKey) (Value, error)

	// SetServerSetting stores a process-wide setting.
	SetServerSetting(ctx context.Context, key ServerKey, value Value) error

	// GetUserSettings retrieves every stored row for the given users and
	// keys, both user-level and device-scoped, in one read.
	GetUserSettings(ctx context.Context, userIDs []string, keys []UserKey) ([]UserSettingRow, error)

	// SetUserSetting stores a user or device scoped setting.
	SetUserSetting(ctx context.Context, row UserSettingRow) error
}
