package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatusRepository implements contracts.StatusStore on PostgreSQL. It
// holds the incremental-run watermarks.
type StatusRepository struct {
	pool *pgxpool.Pool
}

// NewStatusRepository creates a new run-status repository.
func NewStatusRepository(pool *pgxpool.Pool) *StatusRepository {
	return &StatusRepository{pool: pool}
}

// Get returns the value for a key, with ok=false when the key is unset.
func (r *StatusRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM run_status WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get status %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes a key, replacing any previous value.
func (r *StatusRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO run_status (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`

	if _, err := r.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set status %q: %w", key, err)
	}

	return nil
}
