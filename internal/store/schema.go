package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the three core tables if they do not exist. The store
// owns price_bars, the breadth computer owns breadth_stats, the
// controller owns run_status.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_bars (
			ts_code    TEXT             NOT NULL,
			trade_date DATE             NOT NULL,
			open       DOUBLE PRECISION NOT NULL,
			high       DOUBLE PRECISION NOT NULL,
			low        DOUBLE PRECISION NOT NULL,
			close      DOUBLE PRECISION NOT NULL,
			adj_factor DOUBLE PRECISION NOT NULL DEFAULT 1,
			vol        DOUBLE PRECISION NOT NULL DEFAULT 0,
			amount     DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (ts_code, trade_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_bars_trade_date
			ON price_bars (trade_date)`,
		`CREATE TABLE IF NOT EXISTS breadth_stats (
			trade_date   DATE    NOT NULL,
			window_label TEXT    NOT NULL,
			high_count   INTEGER NOT NULL,
			low_count    INTEGER NOT NULL,
			net_high     INTEGER NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (trade_date, window_label)
		)`,
		`CREATE TABLE IF NOT EXISTS run_status (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
