package snooze

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
//
// Mute configuration lives on the user<->bucket relation: one row in
// bucket_user_mutes per configured pair, recurring windows in
// bucket_user_mute_windows ordered by position.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL mute configuration repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetForUsers retrieves the mute configuration of each of the given users for
// a bucket.
func (r *PostgresRepository) GetForUsers(ctx context.Context, bucketID string, userIDs []string) (map[string]*MuteConfig, error) {
	if len(userIDs) == 0 {
		return map[string]*MuteConfig{}, nil
	}

	configs := make(map[string]*MuteConfig)

	query := `
		SELECT user_id, snooze_until
		FROM bucket_user_mutes
		WHERE bucket_id = $1 AND user_id = ANY($2)
	`

	rows, err := r.pool.Query(ctx, query, bucketID, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		cfg := MuteConfig{BucketID: bucketID}
		if err := rows.Scan(&cfg.UserID, &cfg.SnoozeUntil); err != nil {
			return nil, err
		}
		configs[cfg.UserID] = &cfg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(configs) == 0 {
		return configs, nil
	}

	windowQuery := `
		SELECT user_id, days, time_from, time_till, enabled
		FROM bucket_user_mute_windows
		WHERE bucket_id = $1 AND user_id = ANY($2)
		ORDER BY user_id, position
	`

	windowRows, err := r.pool.Query(ctx, windowQuery, bucketID, userIDs)
	if err != nil {
		return nil, err
	}
	defer windowRows.Close()

	for windowRows.Next() {
		var userID string
		var w Window
		if err := windowRows.Scan(&userID, &w.Days, &w.TimeFrom, &w.TimeTill, &w.Enabled); err != nil {
			return nil, err
		}
		if cfg, ok := configs[userID]; ok {
			cfg.Windows = append(cfg.Windows, w)
		}
	}

	return configs, windowRows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
