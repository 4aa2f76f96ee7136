package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaoqi/breadth/internal/contracts"
)

// testPool connects to the database named by TEST_DATABASE_URL and
// skips otherwise, so the suite passes without infrastructure.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err, "database connection failed")
	t.Cleanup(pool.Close)

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, pool))

	_, err = pool.Exec(ctx, `TRUNCATE price_bars, breadth_stats, run_status`)
	require.NoError(t, err)

	return pool
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestPriceRepository_UpsertIdempotent(t *testing.T) {
	pool := testPool(t)
	repo := NewPriceRepository(pool)
	ctx := context.Background()

	batch := []contracts.PriceBar{
		{Code: "000001.SZ", TradeDate: day(2025, 4, 10), Open: 10, High: 11, Low: 9.5, Close: 10.5, AdjFactor: 1, Volume: 1000, Amount: 10500},
		{Code: "000002.SZ", TradeDate: day(2025, 4, 10), Open: 20, High: 21, Low: 19, Close: 20.5, AdjFactor: 1, Volume: 500, Amount: 10250},
	}

	inserted, err := repo.UpsertBars(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Same batch again: zero new rows, content unchanged.
	inserted, err = repo.UpsertBars(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	// Historical bars are never updated in place.
	mutated := batch
	mutated[0].Close = 99
	_, err = repo.UpsertBars(ctx, mutated)
	require.NoError(t, err)

	bars, err := repo.BarsByCode(ctx, "000001.SZ", day(2025, 4, 1), day(2025, 4, 30))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 10.5, bars[0].Close)
}

func TestPriceRepository_QueriesAndLatestDate(t *testing.T) {
	pool := testPool(t)
	repo := NewPriceRepository(pool)
	ctx := context.Background()

	_, ok, err := repo.LatestDate(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty store has no latest date")

	var bars []contracts.PriceBar
	for d := 1; d <= 5; d++ {
		bars = append(bars, contracts.PriceBar{Code: "600000.SH", TradeDate: day(2025, 4, d), Close: float64(d), AdjFactor: 1})
	}
	bars = append(bars, contracts.PriceBar{Code: "000001.SZ", TradeDate: day(2025, 4, 3), Close: 7, AdjFactor: 1})

	_, err = repo.UpsertBars(ctx, bars)
	require.NoError(t, err)

	got, err := repo.BarsByCode(ctx, "600000.SH", day(2025, 4, 2), day(2025, 4, 4))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].TradeDate.Before(got[1].TradeDate))
	assert.True(t, got[1].TradeDate.Before(got[2].TradeDate))

	section, err := repo.BarsByDate(ctx, day(2025, 4, 3))
	require.NoError(t, err)
	assert.Len(t, section, 2)

	latest, ok, err := repo.LatestDate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(2025, 4, 5), latest)
}

func TestPriceRepository_Prune(t *testing.T) {
	pool := testPool(t)
	repo := NewPriceRepository(pool)
	ctx := context.Background()

	var bars []contracts.PriceBar
	for d := 1; d <= 6; d++ {
		bars = append(bars, contracts.PriceBar{Code: "600000.SH", TradeDate: day(2025, 4, d), Close: float64(d), AdjFactor: 1})
	}
	_, err := repo.UpsertBars(ctx, bars)
	require.NoError(t, err)

	deleted, err := repo.Prune(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	kept, err := repo.BarsByCode(ctx, "600000.SH", day(2025, 4, 1), day(2025, 4, 30))
	require.NoError(t, err)
	require.Len(t, kept, 4)
	assert.Equal(t, day(2025, 4, 3), kept[0].TradeDate)

	// Fewer distinct dates than the retention target: nothing deleted.
	deleted, err = repo.Prune(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestBreadthRepository_SaveOverwrites(t *testing.T) {
	pool := testPool(t)
	repo := NewBreadthRepository(pool)
	ctx := context.Background()

	stat := contracts.BreadthStat{TradeDate: day(2025, 4, 10), Window: "52w", HighCount: 12, LowCount: 3, NetHigh: 9}
	require.NoError(t, repo.SaveStat(ctx, stat))

	stat.HighCount, stat.NetHigh = 15, 12
	require.NoError(t, repo.SaveStat(ctx, stat))

	rows, err := repo.StatsRange(ctx, day(2025, 4, 1), day(2025, 4, 30), "52w")
	require.NoError(t, err)
	require.Len(t, rows, 1, "recompute overwrites, never appends")
	assert.Equal(t, 15, rows[0].HighCount)
	assert.Equal(t, 3, rows[0].LowCount)
	assert.Equal(t, 12, rows[0].NetHigh)
}

func TestStatusRepository_RoundTrip(t *testing.T) {
	pool := testPool(t)
	repo := NewStatusRepository(pool)
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, contracts.KeyLastUpdate)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, contracts.KeyLastUpdate, "20250410"))
	require.NoError(t, repo.Set(ctx, contracts.KeyLastUpdate, "20250411"))

	v, ok, err := repo.Get(ctx, contracts.KeyLastUpdate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "20250411", v)
}
