package bucket

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository resolves bucket membership from the bucket_users table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL bucket membership repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// AuthorizedUserIDs returns the IDs of all users with access to the bucket.
func (r *PostgresRepository) AuthorizedUserIDs(ctx context.Context, bucketID string) ([]string, error) {
	query := `
		SELECT user_id
		FROM bucket_users
		WHERE bucket_id = $1
		ORDER BY user_id
	`

	rows, err := r.pool.Query(ctx, query, bucketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}

	return userIDs, rows.Err()
}

// Ensure PostgresRepository implements PermissionService.
var _ PermissionService = (*PostgresRepository)(nil)
