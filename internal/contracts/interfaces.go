package contracts

import (
	"context"
	"time"
)

// PriceStore is the persistent per-instrument daily bar cache. It is
// the only owner of price_bars rows.
type PriceStore interface {
	// UpsertBars inserts new (code, date) rows and silently skips rows
	// whose key already exists. Returns the count actually inserted.
	UpsertBars(ctx context.Context, bars []PriceBar) (int, error)

	// BarsByCode returns one instrument's bars in [from, to], ascending.
	BarsByCode(ctx context.Context, code string, from, to time.Time) ([]PriceBar, error)

	// BarsByDate returns the full cross-section for one trading day.
	BarsByDate(ctx context.Context, date time.Time) ([]PriceBar, error)

	// LatestDate returns the maximum trade date across all instruments,
	// or ok=false when the store is empty.
	LatestDate(ctx context.Context) (time.Time, bool, error)

	// Prune deletes bars older than the retainDays most recent distinct
	// trade dates and returns the deleted-row count.
	Prune(ctx context.Context, retainDays int) (int64, error)
}

// BreadthStore owns breadth_stats rows.
type BreadthStore interface {
	// SaveStat writes one (date, window) row, overwriting any previous
	// value for the same key.
	SaveStat(ctx context.Context, stat BreadthStat) error

	// StatsRange returns rows for one window label in [from, to],
	// ascending by date.
	StatsRange(ctx context.Context, from, to time.Time, window string) ([]BreadthStat, error)
}

// StatusStore is the durable key-value record of run metadata.
type StatusStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// MarketData is the remote provider. All methods tolerate empty results;
// transient errors are retried inside the implementation.
type MarketData interface {
	// TradingDays returns the ordered open trading days in [from, to].
	TradingDays(ctx context.Context, from, to time.Time) ([]time.Time, error)

	// DailyByDate returns the full market cross-section for one day,
	// with adjustment factors merged in.
	DailyByDate(ctx context.Context, date time.Time) ([]PriceBar, error)

	// DailyByCode returns one instrument's bars in [from, to], ascending,
	// with adjustment factors merged in.
	DailyByCode(ctx context.Context, code string, from, to time.Time) ([]PriceBar, error)

	// Instruments returns the current listed-instrument universe.
	Instruments(ctx context.Context) ([]Instrument, error)

	// MarketValues returns total market value by code for one day.
	MarketValues(ctx context.Context, date time.Time) (map[string]float64, error)
}
