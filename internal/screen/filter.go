package screen

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zhaoqi/breadth/internal/contracts"
	"github.com/zhaoqi/breadth/internal/store"
	"github.com/zhaoqi/breadth/pkg/config"
	"github.com/zhaoqi/breadth/pkg/logger"
)

// Screener selects instruments printing a long-window high while still
// cheap on trend, volatility and rebound measures. Results are
// request-scoped and never persisted.
type Screener struct {
	cfg      *config.Config
	provider contracts.MarketData
	prices   contracts.PriceStore
	logger   *logger.Logger
}

func New(cfg *config.Config, provider contracts.MarketData, prices contracts.PriceStore, log *logger.Logger) *Screener {
	return &Screener{cfg: cfg, provider: provider, prices: prices, logger: log}
}

// rejection reasons, counted per run for the summary log.
const (
	reasonNoBar         = "no_bar_on_date"
	reasonShortHistory  = "short_history"
	reasonNotAtHigh     = "below_trailing_high"
	reasonSmallCap      = "below_market_value_floor"
	reasonTrendDown     = "ma_slope_not_positive"
	reasonVolatile      = "returns_too_volatile"
	reasonJittery       = "recent_returns_too_volatile"
	reasonRebounded     = "rebound_too_high"
	reasonRecentRally   = "recent_return_too_high"
	reasonHistoryFailed = "history_fetch_failed"
)

// Run screens the listed universe as of date and returns the passing
// candidates ordered by instrument code.
func (s *Screener) Run(ctx context.Context, date time.Time) ([]contracts.Candidate, error) {
	date = contracts.Day(date)

	instruments, err := s.provider.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load instrument universe: %w", err)
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("instrument universe is empty")
	}

	marketValues, err := s.provider.MarketValues(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load market values for %s: %w", contracts.DayKey(date), err)
	}

	from := date.AddDate(-s.cfg.Screen.HistoryYears, 0, -30)
	rejections := make(map[string]int)

	var candidates []contracts.Candidate
	for _, inst := range instruments {
		cand, reason, err := s.evaluate(ctx, inst, date, from, marketValues[inst.Code])
		if err != nil {
			s.logger.WithError(err).WithField("code", inst.Code).Warn("screen evaluation failed, skipping")
			rejections[reasonHistoryFailed]++
			continue
		}
		if reason != "" {
			rejections[reason]++
			continue
		}
		candidates = append(candidates, cand)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Code < candidates[j].Code })

	fields := map[string]interface{}{
		"date":       contracts.DayKey(date),
		"universe":   len(instruments),
		"candidates": len(candidates),
	}
	for reason, n := range rejections {
		fields[reason] = n
	}
	s.logger.WithFields(fields).Info("screen complete")

	return candidates, nil
}

// evaluate applies the five conditions to one instrument. It returns a
// non-empty reason when the instrument is rejected.
func (s *Screener) evaluate(ctx context.Context, inst contracts.Instrument, date, from time.Time, marketValue float64) (contracts.Candidate, string, error) {
	scr := s.cfg.Screen

	bars, err := s.history(ctx, inst.Code, from, date)
	if err != nil {
		return contracts.Candidate{}, "", err
	}
	if len(bars) == 0 || !contracts.Day(bars[len(bars)-1].TradeDate).Equal(date) {
		return contracts.Candidate{}, reasonNoBar, nil
	}

	// Instruments listed for fewer sessions than the lookback never
	// qualify: a "trailing high" over a stub of history means nothing.
	if len(bars) < scr.TradeDays {
		return contracts.Candidate{}, reasonShortHistory, nil
	}

	adj := store.Adjusted(bars)
	closes := make([]float64, len(adj))
	for i, b := range adj {
		closes[i] = b.Close
	}
	last := closes[len(closes)-1]

	// 1. Close at (or equal to) its trailing-window high. Ties pass
	// here, unlike the breadth counts.
	if last < maxOf(tail(closes, scr.TradeDays)) {
		return contracts.Candidate{}, reasonNotAtHigh, nil
	}

	// 2. Market-value floor.
	if marketValue < scr.MinMarketValue {
		return contracts.Candidate{}, reasonSmallCap, nil
	}

	// 3. Trend up, volatility bounded. The moving average needs a full
	// window before the slope span starts.
	if len(closes) < scr.MAWindow+scr.MinUptrendDays {
		return contracts.Candidate{}, reasonShortHistory, nil
	}
	ma := SMA(closes, scr.MAWindow)
	slope := Slope(tail(ma, scr.MinUptrendDays))
	if slope <= 0 {
		return contracts.Candidate{}, reasonTrendDown, nil
	}
	rets := Returns(closes)
	vol := StdDev(tail(rets, scr.MinUptrendDays))
	if vol >= scr.MaxVolatility {
		return contracts.Candidate{}, reasonVolatile, nil
	}
	if StdDev(tail(rets, 5)) >= scr.MaxRecentVolatility {
		return contracts.Candidate{}, reasonJittery, nil
	}

	// 4. Rebound position inside the multi-year range.
	rebound := reboundRatio(adj, last)
	if rebound > scr.MaxRebound {
		return contracts.Candidate{}, reasonRebounded, nil
	}

	// 5. Short-term return guard against chasing a spike.
	if len(closes) < scr.RecentDays+1 {
		return contracts.Candidate{}, reasonShortHistory, nil
	}
	base := closes[len(closes)-1-scr.RecentDays]
	if base == 0 {
		return contracts.Candidate{}, reasonShortHistory, nil
	}
	recent := last/base - 1
	if recent > scr.MaxRecentReturn {
		return contracts.Candidate{}, reasonRecentRally, nil
	}

	return contracts.Candidate{
		Code:         inst.Code,
		Name:         inst.Name,
		Industry:     inst.Industry,
		TradeDate:    date,
		LastClose:    last,
		MarketValue:  marketValue,
		RecentReturn: recent,
		ReboundRatio: rebound,
		TrendSlope:   slope,
		Volatility:   vol,
	}, "", nil
}

// history reads one instrument's bars from the store, backfilling from
// the provider when retention pruning has shortened the stored series
// below the screen's lookback. The upsert keeps the refill idempotent.
func (s *Screener) history(ctx context.Context, code string, from, to time.Time) ([]contracts.PriceBar, error) {
	bars, err := s.prices.BarsByCode(ctx, code, from, to)
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", code, err)
	}
	if len(bars) >= s.historyBars() {
		return bars, nil
	}

	fetched, err := s.provider.DailyByCode(ctx, code, from, to)
	if err != nil {
		return nil, fmt.Errorf("backfill history for %s: %w", code, err)
	}
	if len(fetched) <= len(bars) {
		return bars, nil
	}
	if _, err := s.prices.UpsertBars(ctx, fetched); err != nil {
		return nil, fmt.Errorf("store backfilled history for %s: %w", code, err)
	}
	return fetched, nil
}

// historyBars is the stored-series length below which the screen goes
// back to the provider, sized to the rebound lookback.
func (s *Screener) historyBars() int {
	return s.cfg.Screen.HistoryYears * 250
}

// reboundRatio places the last close inside the [min low, max high]
// range of the series. Degenerate ranges and series under 20 bars pin
// the ratio to 1.0 so any rebound ceiling below 1 rejects them.
func reboundRatio(adj []contracts.PriceBar, last float64) float64 {
	if len(adj) < 20 {
		return 1.0
	}

	hi := adj[0].High
	lo := adj[0].Low
	for _, b := range adj[1:] {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	if hi == lo {
		return 1.0
	}
	return (last - lo) / (hi - lo)
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
