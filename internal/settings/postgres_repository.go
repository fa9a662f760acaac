package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
//
// Both tables store one nullable column per value type plus a kind
// discriminator; scanValue converts the row into a tagged Value so the
// nullable columns never leak past this file.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL settings repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetServerSetting retrieves a process-wide setting.
func (r *PostgresRepository) GetServerSetting(ctx context.Context, key ServerKey) (Value, error) {
	query := `
		SELECT kind, text_value, number_value, flag_value
		FROM server_settings
		WHERE key = $1
	`

	var (
		kind   string
		text   *string
		number *int64
		flag   *bool
	)
	err := r.pool.QueryRow(ctx, query, key).Scan(&kind, &text, &number, &flag)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Value{}, ErrSettingNotFound
		}
		return Value{}, err
	}

	return scanValue(kind, text, number, flag), nil
}

// SetServerSetting stores a process-wide setting.
func (r *PostgresRepository) SetServerSetting(ctx context.Context, key ServerKey, value Value) error {
	query := `
		INSERT INTO server_settings (key, kind, text_value, number_value, flag_value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			kind = EXCLUDED.kind,
			text_value = EXCLUDED.text_value,
			number_value = EXCLUDED.number_value,
			flag_value = EXCLUDED.flag_value
	`

	text, number, flag := valueColumns(value)
	_, err := r.pool.Exec(ctx, query, key, string(value.Kind), text, number, flag)
	return err
}

// GetUserSettings retrieves every stored row for the given users and keys.
func (r *PostgresRepository) GetUserSettings(ctx context.Context, userIDs []string, keys []UserKey) ([]UserSettingRow, error) {
	if len(userIDs) == 0 || len(keys) == 0 {
		return nil, nil
	}

	keyStrings := make([]string, 0, len(keys))
	for _, k := range keys {
		keyStrings = append(keyStrings, string(k))
	}

	query := `
		SELECT user_id, device_id, key, kind, text_value, number_value, flag_value
		FROM user_settings
		WHERE user_id = ANY($1) AND key = ANY($2)
	`

	rows, err := r.pool.Query(ctx, query, userIDs, keyStrings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []UserSettingRow
	for rows.Next() {
		var (
			row    UserSettingRow
			kind   string
			text   *string
			number *int64
			flag   *bool
		)
		if err := rows.Scan(&row.UserID, &row.DeviceID, &row.Key, &kind, &text, &number, &flag); err != nil {
			return nil, err
		}
		row.Value = scanValue(kind, text, number, flag)
		result = append(result, row)
	}

	return result, rows.Err()
}

// SetUserSetting stores a user or device scoped setting.
func (r *PostgresRepository) SetUserSetting(ctx context.Context, row UserSettingRow) error {
	query := `
		INSERT INTO user_settings (user_id, device_id, key, kind, text_value, number_value, flag_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, device_id, key) DO UPDATE SET
			kind = EXCLUDED.kind,
			text_value = EXCLUDED.text_value,
			number_value = EXCLUDED.number_value,
			flag_value = EXCLUDED.flag_value
	`

	text, number, flag := valueColumns(row.Value)
	_, err := r.pool.Exec(ctx, query, row.UserID, row.DeviceID, row.Key, string(row.Value.Kind), text, number, flag)
	return err
}

func scanValue(kind string, text *string, number *int64, flag *bool) Value {
	switch Kind(kind) {
	case KindNumber:
		if number != nil {
			return NumberValue(*number)
		}
	case KindFlag:
		if flag != nil {
			return FlagValue(*flag)
		}
	case KindText:
		if text != nil {
			return TextValue(*text)
		}
	}
	// Mismatched kind and columns; treat as empty text so callers fall back
	// to their defaults.
	return TextValue("")
}

func valueColumns(v Value) (text *string, number *int64, flag *bool) {
	switch v.Kind {
	case KindText:
		text = &v.Text
	case KindNumber:
		number = &v.Number
	case KindFlag:
		flag = &v.Flag
	}
	return text, number, flag
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
