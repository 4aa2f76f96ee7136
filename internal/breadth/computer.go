package breadth

import (
	"context"
	"fmt"
	"time"

	"github.com/zhaoqi/breadth/internal/contracts"
	"github.com/zhaoqi/breadth/pkg/config"
	"github.com/zhaoqi/breadth/pkg/logger"
)

// BarCache holds per-day market cross-sections for the duration of one
// run. Windows overlap heavily between consecutive target days, so each
// stored day is read at most once per run regardless of how many
// windows and targets reuse it.
type BarCache struct {
	prices contracts.PriceStore
	byDay  map[string]map[string]contracts.PriceBar
}

func NewBarCache(prices contracts.PriceStore) *BarCache {
	return &BarCache{
		prices: prices,
		byDay:  make(map[string]map[string]contracts.PriceBar),
	}
}

// CrossSection returns the code-keyed bars for one trading day, loading
// from the store on first access. An empty map means the store has no
// bars for that day.
func (c *BarCache) CrossSection(ctx context.Context, date time.Time) (map[string]contracts.PriceBar, error) {
	key := contracts.DayKey(date)
	if cs, ok := c.byDay[key]; ok {
		return cs, nil
	}

	bars, err := c.prices.BarsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load cross-section %s: %w", key, err)
	}

	cs := make(map[string]contracts.PriceBar, len(bars))
	for _, b := range bars {
		cs[b.Code] = b
	}
	c.byDay[key] = cs
	return cs, nil
}

// Put seeds the cache for a day whose bars were just fetched and
// written, saving the immediate re-read.
func (c *BarCache) Put(date time.Time, bars []contracts.PriceBar) {
	cs := make(map[string]contracts.PriceBar, len(bars))
	for _, b := range bars {
		cs[b.Code] = b
	}
	c.byDay[contracts.DayKey(date)] = cs
}

// Computer counts new 52- and 26-week highs and lows for single trading
// days and persists the result.
type Computer struct {
	stats      contracts.BreadthStore
	logger     *logger.Logger
	windows    []int
	minHistory int
}

func NewComputer(cfg *config.Config, stats contracts.BreadthStore, log *logger.Logger) *Computer {
	return &Computer{
		stats:      stats,
		logger:     log,
		windows:    cfg.Breadth.WindowWeeks,
		minHistory: cfg.Breadth.MinHistoryBars,
	}
}

// trail accumulates one instrument's trailing close extremes inside a
// window.
type trail struct {
	max float64
	min float64
	n   int
}

// ComputeDay counts, for target day t, the instruments whose close
// strictly exceeds (falls below) their own max (min) close over the
// trading days in the trailing window, and upserts one stat row per
// configured window. calendar must cover at least the widest window
// before t; days it names that the store lacks simply contribute no
// bars. Instruments without a bar on t are skipped; instruments with
// fewer than minHistory trailing bars count as neither high nor low.
func (c *Computer) ComputeDay(ctx context.Context, cache *BarCache, calendar []time.Time, t time.Time) ([]contracts.BreadthStat, error) {
	t = contracts.Day(t)

	today, err := cache.CrossSection(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(today) == 0 {
		return nil, fmt.Errorf("no bars stored for %s", contracts.DayKey(t))
	}

	out := make([]contracts.BreadthStat, 0, len(c.windows))
	for _, weeks := range c.windows {
		stat, err := c.computeWindow(ctx, cache, calendar, t, today, weeks)
		if err != nil {
			return nil, err
		}
		if err := c.stats.SaveStat(ctx, stat); err != nil {
			return nil, fmt.Errorf("save %s stat for %s: %w", stat.Window, contracts.DayKey(t), err)
		}
		out = append(out, stat)
	}

	return out, nil
}

func (c *Computer) computeWindow(ctx context.Context, cache *BarCache, calendar []time.Time, t time.Time, today map[string]contracts.PriceBar, weeks int) (contracts.BreadthStat, error) {
	from := t.AddDate(0, 0, -weeks*7)

	acc := make(map[string]*trail, len(today))
	for _, d := range calendar {
		d = contracts.Day(d)
		// Window is [t - weeks*7 days, t): the target day itself never
		// competes with its own close.
		if d.Before(from) || !d.Before(t) {
			continue
		}

		cs, err := cache.CrossSection(ctx, d)
		if err != nil {
			return contracts.BreadthStat{}, err
		}
		for code, bar := range cs {
			tr, ok := acc[code]
			if !ok {
				acc[code] = &trail{max: bar.Close, min: bar.Close, n: 1}
				continue
			}
			if bar.Close > tr.max {
				tr.max = bar.Close
			}
			if bar.Close < tr.min {
				tr.min = bar.Close
			}
			tr.n++
		}
	}

	stat := contracts.BreadthStat{
		TradeDate: t,
		Window:    contracts.WindowLabel(weeks),
	}
	for code, bar := range today {
		tr, ok := acc[code]
		if !ok || tr.n < c.minHistory {
			continue
		}
		switch {
		case bar.Close > tr.max:
			stat.HighCount++
		case bar.Close < tr.min:
			stat.LowCount++
		}
	}
	stat.NetHigh = stat.HighCount - stat.LowCount

	c.logger.WithFields(map[string]interface{}{
		"date":   contracts.DayKey(t),
		"window": stat.Window,
		"highs":  stat.HighCount,
		"lows":   stat.LowCount,
	}).Debug("breadth window computed")

	return stat, nil
}
