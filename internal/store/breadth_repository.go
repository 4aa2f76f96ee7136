package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhaoqi/breadth/internal/contracts"
)

// BreadthRepository implements contracts.BreadthStore on PostgreSQL.
type BreadthRepository struct {
	pool *pgxpool.Pool
}

// NewBreadthRepository creates a new breadth stats repository.
func NewBreadthRepository(pool *pgxpool.Pool) *BreadthRepository {
	return &BreadthRepository{pool: pool}
}

// SaveStat writes one (date, window) row. Recomputing a day overwrites
// the previous row rather than appending.
func (r *BreadthRepository) SaveStat(ctx context.Context, stat contracts.BreadthStat) error {
	query := `
		INSERT INTO breadth_stats (trade_date, window_label, high_count, low_count, net_high, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (trade_date, window_label) DO UPDATE SET
			high_count = EXCLUDED.high_count,
			low_count  = EXCLUDED.low_count,
			net_high   = EXCLUDED.net_high,
			created_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		contracts.Day(stat.TradeDate), stat.Window,
		stat.HighCount, stat.LowCount, stat.NetHigh,
	)
	if err != nil {
		return fmt.Errorf("save breadth stat %s/%s: %w", contracts.DayKey(stat.TradeDate), stat.Window, err)
	}

	return nil
}

// StatsRange returns rows for one window label in [from, to] ascending
// by date. This is the read contract used by downstream reporting.
func (r *BreadthRepository) StatsRange(ctx context.Context, from, to time.Time, window string) ([]contracts.BreadthStat, error) {
	query := `
		SELECT trade_date, window_label, high_count, low_count, net_high
		FROM breadth_stats
		WHERE window_label = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, window, contracts.Day(from), contracts.Day(to))
	if err != nil {
		return nil, fmt.Errorf("query breadth stats: %w", err)
	}
	defer rows.Close()

	var stats []contracts.BreadthStat
	for rows.Next() {
		var s contracts.BreadthStat
		if err := rows.Scan(&s.TradeDate, &s.Window, &s.HighCount, &s.LowCount, &s.NetHigh); err != nil {
			return nil, fmt.Errorf("scan breadth stat: %w", err)
		}
		s.TradeDate = contracts.Day(s.TradeDate)
		stats = append(stats, s)
	}

	return stats, rows.Err()
}
