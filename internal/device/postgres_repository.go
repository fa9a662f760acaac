package device

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const deviceColumns = `id, user_id, platform, token, only_local, endpoint, p256dh, auth, public_key, private_key, last_used, created_at`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL device repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a device by ID.
func (r *PostgresRepository) Get(ctx context.Context, deviceID string) (*UserDevice, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM user_devices
		WHERE id = $1
	`

	var device UserDevice
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(deviceFields(&device)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	return &device, nil
}

// DevicesForUsers retrieves all devices registered by any of the given users.
func (r *PostgresRepository) DevicesForUsers(ctx context.Context, userIDs []string) ([]*UserDevice, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + deviceColumns + `
		FROM user_devices
		WHERE user_id = ANY($1)
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*UserDevice
	for rows.Next() {
		var device UserDevice
		if err := rows.Scan(deviceFields(&device)...); err != nil {
			return nil, err
		}
		devices = append(devices, &device)
	}

	return devices, rows.Err()
}

// Create creates a new device.
func (r *PostgresRepository) Create(ctx context.Context, device *UserDevice) error {
	query := `
		INSERT INTO user_devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		device.ID,
		device.UserID,
		device.Platform,
		device.Token,
		device.OnlyLocal,
		device.Endpoint,
		device.P256DH,
		device.Auth,
		device.PublicKey,
		device.PrivateKey,
		device.LastUsed,
		device.CreatedAt,
	)
	return err
}

// UpdateLastUsed records the time a push was last delivered to the device.
func (r *PostgresRepository) UpdateLastUsed(ctx context.Context, deviceID string, at time.Time) error {
	query := `UPDATE user_devices SET last_used = $2 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, deviceID, at)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Delete deletes a device.
func (r *PostgresRepository) Delete(ctx context.Context, deviceID string) error {
	query := `DELETE FROM user_devices WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, deviceID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

func deviceFields(d *UserDevice) []interface{} {
	return []interface{}{
		&d.ID,
		&d.UserID,
		&d.Platform,
		&d.Token,
		&d.OnlyLocal,
		&d.Endpoint,
		&d.P256DH,
		&d.Auth,
		&d.PublicKey,
		&d.PrivateKey,
		&d.LastUsed,
		&d.CreatedAt,
	}
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
