package notification

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationColumns = `id, message_id, user_id, user_device_id, title, body, sent_at, read_at, error, created_at`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL notification repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create creates a new notification record.
func (r *PostgresRepository) Create(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		n.ID,
		n.MessageID,
		n.UserID,
		n.UserDeviceID,
		n.Title,
		n.Body,
		n.SentAt,
		n.ReadAt,
		n.Error,
		n.CreatedAt,
	)
	return err
}

// FindByID retrieves a notification by ID.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1
	`

	var n Notification
	err := r.pool.QueryRow(ctx, query, id).Scan(notificationFields(&n)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}

	return &n, nil
}

// MarkSent records a successful delivery. Clears any previous error.
func (r *PostgresRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE notifications SET sent_at = $2, error = NULL WHERE id = $1`
	return r.exec(ctx, query, id, at)
}

// MarkFailed records a failed delivery attempt.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	query := `UPDATE notifications SET error = $2 WHERE id = $1`
	return r.exec(ctx, query, id, reason)
}

// MarkRead records that the user has read the notification.
func (r *PostgresRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE notifications SET read_at = $2 WHERE id = $1`
	return r.exec(ctx, query, id, at)
}

// FindUnreadByMessageAndUser retrieves the unread notifications a user has
// for a message.
func (r *PostgresRepository) FindUnreadByMessageAndUser(ctx context.Context, messageID, userID string) ([]*Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE message_id = $1 AND user_id = $2 AND read_at IS NULL
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, messageID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(notificationFields(&n)...); err != nil {
			return nil, err
		}
		notifications = append(notifications, &n)
	}

	return notifications, rows.Err()
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func notificationFields(n *Notification) []interface{} {
	return []interface{}{
		&n.ID,
		&n.MessageID,
		&n.UserID,
		&n.UserDeviceID,
		&n.Title,
		&n.Body,
		&n.SentAt,
		&n.ReadAt,
		&n.Error,
		&n.CreatedAt,
	}
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
