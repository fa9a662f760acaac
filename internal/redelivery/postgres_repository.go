package redelivery

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, kind, message_id, notification_id, user_id, interval_minutes, max_occurrences, occurrences_sent, next_fire_at, created_at`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL redelivery repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create creates a new redelivery record.
func (r *PostgresRepository) Create(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO redelivery_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Kind,
		rec.MessageID,
		rec.NotificationID,
		rec.UserID,
		rec.IntervalMinutes,
		rec.MaxOccurrences,
		rec.OccurrencesSent,
		rec.NextFireAt,
		rec.CreatedAt,
	)
	return err
}

// Get retrieves a record by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM redelivery_records
		WHERE id = $1
	`

	var rec Record
	err := r.pool.QueryRow(ctx, query, id).Scan(recordFields(&rec)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return &rec, nil
}

// FindDue retrieves all records with next_fire_at at or before now.
func (r *PostgresRepository) FindDue(ctx context.Context, now time.Time) ([]*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM redelivery_records
		WHERE next_fire_at <= $1
		ORDER BY next_fire_at
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(recordFields(&rec)...); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// Advance claims a due record. The next_fire_at predicate makes the claim
// atomic under concurrent ticks.
func (r *PostgresRepository) Advance(ctx context.Context, id string, nextFireAt, due time.Time) (bool, error) {
	query := `
		UPDATE redelivery_records
		SET occurrences_sent = occurrences_sent + 1, next_fire_at = $2
		WHERE id = $1 AND next_fire_at <= $3
	`

	result, err := r.pool.Exec(ctx, query, id, nextFireAt, due)
	if err != nil {
		return false, err
	}

	return result.RowsAffected() == 1, nil
}

// Delete removes a record.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM redelivery_records WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// DeleteByMessage removes all reminder records for a message.
func (r *PostgresRepository) DeleteByMessage(ctx context.Context, messageID string) error {
	query := `DELETE FROM redelivery_records WHERE message_id = $1`

	_, err := r.pool.Exec(ctx, query, messageID)
	return err
}

// DeleteByNotification removes all postpone records for a notification.
func (r *PostgresRepository) DeleteByNotification(ctx context.Context, notificationID string) error {
	query := `DELETE FROM redelivery_records WHERE notification_id = $1`

	_, err := r.pool.Exec(ctx, query, notificationID)
	return err
}

func recordFields(rec *Record) []interface{} {
	return []interface{}{
		&rec.ID,
		&rec.Kind,
		&rec.MessageID,
		&rec.NotificationID,
		&rec.UserID,
		&rec.IntervalMinutes,
		&rec.MaxOccurrences,
		&rec.OccurrencesSent,
		&rec.NextFireAt,
		&rec.CreatedAt,
	}
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
