package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhaoqi/breadth/internal/contracts"
)

// PriceRepository implements contracts.PriceStore on PostgreSQL. It is
// the only writer of price_bars.
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository.
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// UpsertBars inserts new (code, date) rows. Rows whose key already
// exists are skipped, never updated: bars are append-only once final,
// so re-ingesting an overlapping batch is a no-op for the overlap.
func (r *PriceRepository) UpsertBars(ctx context.Context, bars []contracts.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO price_bars (ts_code, trade_date, open, high, low, close, adj_factor, vol, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ts_code, trade_date) DO NOTHING
	`

	inserted := 0
	for _, bar := range bars {
		tag, err := r.pool.Exec(ctx, query,
			bar.Code, contracts.Day(bar.TradeDate),
			bar.Open, bar.High, bar.Low, bar.Close,
			bar.AdjFactor, bar.Volume, bar.Amount,
		)
		if err != nil {
			return inserted, fmt.Errorf("upsert bar %s/%s: %w", bar.Code, contracts.DayKey(bar.TradeDate), err)
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}

// BarsByCode returns one instrument's bars in [from, to] ascending.
func (r *PriceRepository) BarsByCode(ctx context.Context, code string, from, to time.Time) ([]contracts.PriceBar, error) {
	query := `
		SELECT ts_code, trade_date, open, high, low, close, adj_factor, vol, amount
		FROM price_bars
		WHERE ts_code = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, code, contracts.Day(from), contracts.Day(to))
	if err != nil {
		return nil, fmt.Errorf("query bars for %s: %w", code, err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// BarsByDate returns the full cross-section for one trading day.
func (r *PriceRepository) BarsByDate(ctx context.Context, date time.Time) ([]contracts.PriceBar, error) {
	query := `
		SELECT ts_code, trade_date, open, high, low, close, adj_factor, vol, amount
		FROM price_bars
		WHERE trade_date = $1
		ORDER BY ts_code ASC
	`

	rows, err := r.pool.Query(ctx, query, contracts.Day(date))
	if err != nil {
		return nil, fmt.Errorf("query bars for %s: %w", contracts.DayKey(date), err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// LatestDate returns the maximum trade date across all instruments.
func (r *PriceRepository) LatestDate(ctx context.Context) (time.Time, bool, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MAX(trade_date) FROM price_bars`).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query latest date: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return contracts.Day(*latest), true, nil
}

// Prune deletes bars older than the retainDays most recent distinct
// trade dates present in the store. Callers sequence this after breadth
// computation so no in-flight window loses its tail.
func (r *PriceRepository) Prune(ctx context.Context, retainDays int) (int64, error) {
	if retainDays <= 0 {
		return 0, fmt.Errorf("retainDays must be positive, got %d", retainDays)
	}

	query := `
		DELETE FROM price_bars
		WHERE trade_date < (
			SELECT MIN(trade_date) FROM (
				SELECT DISTINCT trade_date
				FROM price_bars
				ORDER BY trade_date DESC
				LIMIT $1
			) keep
		)
	`

	tag, err := r.pool.Exec(ctx, query, retainDays)
	if err != nil {
		return 0, fmt.Errorf("prune price bars: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanBars(rows pgx.Rows) ([]contracts.PriceBar, error) {
	var bars []contracts.PriceBar
	for rows.Next() {
		var b contracts.PriceBar
		if err := rows.Scan(
			&b.Code, &b.TradeDate,
			&b.Open, &b.High, &b.Low, &b.Close,
			&b.AdjFactor, &b.Volume, &b.Amount,
		); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.TradeDate = contracts.Day(b.TradeDate)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
