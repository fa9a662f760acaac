package message

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL message repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a message by ID.
func (r *PostgresRepository) Get(ctx context.Context, messageID string) (*Message, error) {
	query := `
		SELECT id, bucket_id, delivery_type, locale, title, body, created_at
		FROM messages
		WHERE id = $1
	`

	var msg Message
	err := r.pool.QueryRow(ctx, query, messageID).Scan(
		&msg.ID,
		&msg.BucketID,
		&msg.DeliveryType,
		&msg.Locale,
		&msg.Title,
		&msg.Body,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	return &msg, nil
}

// Create creates a new message.
func (r *PostgresRepository) Create(ctx context.Context, message *Message) error {
	query := `
		INSERT INTO messages (id, bucket_id, delivery_type, locale, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		message.ID,
		message.BucketID,
		message.DeliveryType,
		message.Locale,
		message.Title,
		message.Body,
		message.CreatedAt,
	)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
