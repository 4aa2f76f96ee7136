package screen

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaoqi/breadth/internal/contracts"
	"github.com/zhaoqi/breadth/pkg/config"
	"github.com/zhaoqi/breadth/pkg/logger"
)

type stubPrices struct {
	bars map[string][]contracts.PriceBar
}

func newStubPrices() *stubPrices {
	return &stubPrices{bars: make(map[string][]contracts.PriceBar)}
}

func (s *stubPrices) UpsertBars(ctx context.Context, bars []contracts.PriceBar) (int, error) {
	inserted := 0
	for _, b := range bars {
		exists := false
		for _, have := range s.bars[b.Code] {
			if have.TradeDate.Equal(b.TradeDate) {
				exists = true
				break
			}
		}
		if !exists {
			s.bars[b.Code] = append(s.bars[b.Code], b)
			inserted++
		}
	}
	for code := range s.bars {
		sort.Slice(s.bars[code], func(i, j int) bool {
			return s.bars[code][i].TradeDate.Before(s.bars[code][j].TradeDate)
		})
	}
	return inserted, nil
}

func (s *stubPrices) BarsByCode(ctx context.Context, code string, from, to time.Time) ([]contracts.PriceBar, error) {
	var out []contracts.PriceBar
	for _, b := range s.bars[code] {
		if !b.TradeDate.Before(from) && !b.TradeDate.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubPrices) BarsByDate(ctx context.Context, date time.Time) ([]contracts.PriceBar, error) {
	return nil, nil
}

func (s *stubPrices) LatestDate(ctx context.Context) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (s *stubPrices) Prune(ctx context.Context, retainDays int) (int64, error) {
	return 0, nil
}

type stubProvider struct {
	instruments []contracts.Instrument
	values      map[string]float64
	series      map[string][]contracts.PriceBar
	codeCalls   int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		values: make(map[string]float64),
		series: make(map[string][]contracts.PriceBar),
	}
}

func (p *stubProvider) TradingDays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	return nil, nil
}

func (p *stubProvider) DailyByDate(ctx context.Context, date time.Time) ([]contracts.PriceBar, error) {
	return nil, nil
}

func (p *stubProvider) DailyByCode(ctx context.Context, code string, from, to time.Time) ([]contracts.PriceBar, error) {
	p.codeCalls++
	var out []contracts.PriceBar
	for _, b := range p.series[code] {
		if !b.TradeDate.Before(from) && !b.TradeDate.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (p *stubProvider) Instruments(ctx context.Context) ([]contracts.Instrument, error) {
	return p.instruments, nil
}

func (p *stubProvider) MarketValues(ctx context.Context, date time.Time) (map[string]float64, error) {
	return p.values, nil
}

var seriesStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// mkSeries turns a close slice into consecutive daily bars with
// high = low = close and a unit adjustment factor.
func mkSeries(code string, closes []float64) []contracts.PriceBar {
	bars := make([]contracts.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = contracts.PriceBar{
			Code:      code,
			TradeDate: seriesStart.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			AdjFactor: 1,
		}
	}
	return bars
}

func seriesEnd(closes []float64) time.Time {
	return seriesStart.AddDate(0, 0, len(closes)-1)
}

// passingCloses falls hard from 100 to 30, then grinds up to a fresh
// trailing high at 33: at the high, trend up, calm, barely rebounded.
func passingCloses() []float64 {
	var cs []float64
	for i := 0; i < 20; i++ {
		cs = append(cs, 100-3.5*float64(i))
	}
	for i := 0; i < 40; i++ {
		cs = append(cs, 30+3.0*float64(i)/39)
	}
	return cs
}

func screenConfig() *config.Config {
	return &config.Config{
		Screen: config.ScreenConfig{
			TradeDays:           30,
			MinMarketValue:      100,
			MaxVolatility:       0.03,
			MaxRecentVolatility: 0.02,
			MinUptrendDays:      10,
			MAWindow:            5,
			HistoryYears:        1,
			MaxRebound:          0.4,
			RecentDays:          10,
			MaxRecentReturn:     0.15,
		},
	}
}

func newScreener(provider *stubProvider, prices *stubPrices) *Screener {
	return New(screenConfig(), provider, prices, logger.NewNop())
}

func evalOne(t *testing.T, closes []float64, marketValue float64) (contracts.Candidate, string) {
	t.Helper()

	provider := newStubProvider()
	prices := newStubPrices()
	provider.series["X"] = mkSeries("X", closes)

	s := newScreener(provider, prices)
	date := seriesEnd(closes)
	from := date.AddDate(-1, 0, -30)

	cand, reason, err := s.evaluate(context.Background(), contracts.Instrument{Code: "X", Name: "x"}, date, from, marketValue)
	require.NoError(t, err)
	return cand, reason
}

func TestEvaluate_Passes(t *testing.T) {
	cand, reason := evalOne(t, passingCloses(), 1000)
	require.Empty(t, reason)

	assert.Equal(t, "X", cand.Code)
	assert.InDelta(t, 33.0, cand.LastClose, 1e-9)
	assert.InDelta(t, (33.0-30.0)/(100.0-30.0), cand.ReboundRatio, 1e-9)
	assert.Positive(t, cand.TrendSlope)
	assert.Less(t, cand.Volatility, 0.03)
	assert.Less(t, cand.RecentReturn, 0.15)
}

func TestEvaluate_BelowTrailingHigh(t *testing.T) {
	closes := passingCloses()
	closes[len(closes)-1] = 31.0

	_, reason := evalOne(t, closes, 1000)
	assert.Equal(t, reasonNotAtHigh, reason)
}

func TestEvaluate_TieWithTrailingHighPasses(t *testing.T) {
	// Matching the trailing max is enough here, unlike the breadth
	// counts. A flat series ties its own high, then fails on trend.
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 50.0
	}

	_, reason := evalOne(t, closes, 1000)
	assert.Equal(t, reasonTrendDown, reason)
}

func TestEvaluate_MarketValueFloor(t *testing.T) {
	_, reason := evalOne(t, passingCloses(), 50)
	assert.Equal(t, reasonSmallCap, reason)
}

func TestEvaluate_TooVolatile(t *testing.T) {
	// Same shape as the passing series but sawtoothing hard around the
	// uptrend, ending on a peak so it still prints the high.
	var closes []float64
	for i := 0; i < 20; i++ {
		closes = append(closes, 100-3.5*float64(i))
	}
	for i := 0; i < 40; i++ {
		closes = append(closes, 30+3.0*float64(i)/39+1.5*float64(i%2))
	}

	_, reason := evalOne(t, closes, 1000)
	assert.Equal(t, reasonVolatile, reason)
}

func TestEvaluate_RecentRallyTooHot(t *testing.T) {
	// Flat at 30, then +20% across the last ten sessions. Every other
	// gate holds; the short-term return guard trips.
	var closes []float64
	for i := 0; i < 20; i++ {
		closes = append(closes, 100-3.5*float64(i))
	}
	for i := 0; i < 50; i++ {
		closes = append(closes, 30.0)
	}
	for i := 1; i <= 10; i++ {
		closes = append(closes, 30.0+0.6*float64(i))
	}

	_, reason := evalOne(t, closes, 1000)
	assert.Equal(t, reasonRecentRally, reason)
}

func TestEvaluate_ReboundTooHigh(t *testing.T) {
	// Recovered past 40% of the 100-to-30 collapse by the time it
	// prints the high.
	var closes []float64
	for i := 0; i < 20; i++ {
		closes = append(closes, 100-3.5*float64(i))
	}
	closes = append(closes, 30.0)
	for i := 1; i <= 20; i++ {
		closes = append(closes, 30+25.0*float64(i)/20)
	}
	for i := 0; i < 40; i++ {
		closes = append(closes, 55+5.0*float64(i)/39)
	}

	_, reason := evalOne(t, closes, 1000)
	assert.Equal(t, reasonRebounded, reason)
}

func TestEvaluate_ShortHistory(t *testing.T) {
	closes := []float64{10, 10.1, 10.2, 10.3, 10.4, 10.5, 10.6, 10.7, 10.8, 10.9}

	_, reason := evalOne(t, closes, 1000)
	assert.Equal(t, reasonShortHistory, reason)
}

func TestEvaluate_ListedShorterThanLookbackNeverQualifies(t *testing.T) {
	// 25 sessions against a 30-day lookback. The grind from 40 to 44
	// with a wide early range would clear every metric gate; the
	// history floor must reject it before any of them run.
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 40 + 4.0*float64(i)/24
	}
	bars := mkSeries("X", closes)
	bars[1].High = 120
	bars[1].Low = 30

	provider := newStubProvider()
	prices := newStubPrices()
	provider.series["X"] = bars

	s := newScreener(provider, prices)
	date := seriesEnd(closes)
	from := date.AddDate(-1, 0, -30)

	_, reason, err := s.evaluate(context.Background(), contracts.Instrument{Code: "X"}, date, from, 1000)
	require.NoError(t, err)
	assert.Equal(t, reasonShortHistory, reason)
}

func TestEvaluate_NoBarOnDate(t *testing.T) {
	provider := newStubProvider()
	prices := newStubPrices()
	closes := passingCloses()
	provider.series["X"] = mkSeries("X", closes)

	s := newScreener(provider, prices)
	date := seriesEnd(closes).AddDate(0, 0, 3)
	from := date.AddDate(-1, 0, -30)

	_, reason, err := s.evaluate(context.Background(), contracts.Instrument{Code: "X"}, date, from, 1000)
	require.NoError(t, err)
	assert.Equal(t, reasonNoBar, reason)
}

func TestRun_FiltersAndOrdersByCode(t *testing.T) {
	provider := newStubProvider()
	prices := newStubPrices()

	// Two passing instruments seeded in reverse code order, one flat
	// reject, one under the market-value floor.
	for _, code := range []string{"600000.SH", "000001.SZ", "000002.SZ", "300001.SZ"} {
		provider.instruments = append(provider.instruments, contracts.Instrument{Code: code, Name: "n-" + code})
		provider.values[code] = 1000
		provider.series[code] = mkSeries(code, passingCloses())
	}
	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 50.0
	}
	provider.series["000002.SZ"] = mkSeries("000002.SZ", flat)
	provider.values["300001.SZ"] = 10

	s := newScreener(provider, prices)
	out, err := s.Run(context.Background(), seriesEnd(passingCloses()))
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "000001.SZ", out[0].Code)
	assert.Equal(t, "600000.SH", out[1].Code)
	assert.Equal(t, "n-000001.SZ", out[0].Name)
}

func TestHistory_BackfillsThroughStore(t *testing.T) {
	provider := newStubProvider()
	prices := newStubPrices()
	closes := passingCloses()
	provider.series["X"] = mkSeries("X", closes)

	s := newScreener(provider, prices)
	date := seriesEnd(closes)
	from := date.AddDate(-1, 0, -30)

	bars, err := s.history(context.Background(), "X", from, date)
	require.NoError(t, err)
	assert.Len(t, bars, len(closes))
	assert.Len(t, prices.bars["X"], len(closes), "backfill lands in the store")

	// Idempotent on the second pass.
	_, err = s.history(context.Background(), "X", from, date)
	require.NoError(t, err)
	assert.Len(t, prices.bars["X"], len(closes))
}

func TestHistory_SkipsProviderWhenStoreIsDeep(t *testing.T) {
	provider := newStubProvider()
	prices := newStubPrices()

	long := make([]float64, 260)
	for i := range long {
		long[i] = 50.0
	}
	_, err := prices.UpsertBars(context.Background(), mkSeries("X", long))
	require.NoError(t, err)

	s := newScreener(provider, prices)
	date := seriesEnd(long)
	from := date.AddDate(-1, 0, -30)

	bars, err := s.history(context.Background(), "X", from, date)
	require.NoError(t, err)
	assert.Len(t, bars, 260)
	assert.Zero(t, provider.codeCalls)
}
