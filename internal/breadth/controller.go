package breadth

import (
	"context"
	"fmt"
	"time"

	"github.com/zhaoqi/breadth/internal/contracts"
	"github.com/zhaoqi/breadth/pkg/config"
	"github.com/zhaoqi/breadth/pkg/logger"
)

// State describes where a controller run ended up.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateFullBackfill  State = "full_backfill"
	StateIncremental   State = "incremental"
	StateUpToDate      State = "up_to_date"
	StateFailed        State = "failed"
)

// RunResult summarizes one controller run.
type RunResult struct {
	Mode          State
	State         State
	From          time.Time
	To            time.Time
	DaysProcessed int
	DaysSkipped   int
	BarsInserted  int
	RowsPruned    int64
}

// Controller sequences one breadth run: pick the target day range from
// the watermark, ensure the price store covers the targets plus their
// trailing windows, compute and persist each day ascending, advance the
// watermark per committed day, then prune retention.
type Controller struct {
	cfg      *config.Config
	provider contracts.MarketData
	prices   contracts.PriceStore
	status   contracts.StatusStore
	computer *Computer
	logger   *logger.Logger
}

func NewController(cfg *config.Config, provider contracts.MarketData, prices contracts.PriceStore, stats contracts.BreadthStore, status contracts.StatusStore, log *logger.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		provider: provider,
		prices:   prices,
		status:   status,
		computer: NewComputer(cfg, stats, log),
		logger:   log,
	}
}

// Update runs incrementally from the last_update watermark up to end.
// With no watermark yet it falls through to a full backfill.
func (c *Controller) Update(ctx context.Context, end time.Time) (*RunResult, error) {
	wm, ok, err := c.watermark(ctx, contracts.KeyLastUpdate)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.Info("no watermark, switching to full backfill")
		return c.run(ctx, StateFullBackfill, time.Time{}, end)
	}
	return c.run(ctx, StateIncremental, wm, end)
}

// Backfill recomputes the trailing BackfillDays trading days ending at
// end, regardless of the watermark.
func (c *Controller) Backfill(ctx context.Context, end time.Time) (*RunResult, error) {
	return c.run(ctx, StateFullBackfill, time.Time{}, end)
}

func (c *Controller) run(ctx context.Context, mode State, wm, end time.Time) (*RunResult, error) {
	end = contracts.Day(end)
	res := &RunResult{Mode: mode, State: mode, To: end}

	maxWindowDays := c.maxWindowDays()

	var calFrom time.Time
	if mode == StateIncremental {
		calFrom = wm.AddDate(0, 0, -maxWindowDays)
	} else {
		// Wide enough to hold BackfillDays targets plus the widest
		// window before the earliest of them.
		calFrom = end.AddDate(0, 0, -(2*c.cfg.Breadth.BackfillDays + maxWindowDays))
	}

	calendar, err := c.provider.TradingDays(ctx, calFrom, end)
	if err != nil {
		res.State = StateFailed
		return res, fmt.Errorf("trading calendar %s..%s: %w", contracts.DayKey(calFrom), contracts.DayKey(end), err)
	}
	if len(calendar) == 0 {
		res.State = StateFailed
		return res, fmt.Errorf("trading calendar %s..%s: %w", contracts.DayKey(calFrom), contracts.DayKey(end), contracts.ErrNoCalendar)
	}

	targets := c.targetDays(mode, calendar, wm)
	if len(targets) == 0 {
		res.State = StateUpToDate
		c.logger.WithField("watermark", contracts.DayKey(wm)).Info("breadth already up to date")
		return res, nil
	}
	res.From = targets[0]
	res.To = targets[len(targets)-1]

	cache := NewBarCache(c.prices)
	inserted, err := c.ensureCoverage(ctx, cache, calendar, targets[0].AddDate(0, 0, -maxWindowDays), res.To)
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	res.BarsInserted = inserted

	highWater, _, err := c.watermark(ctx, contracts.KeyLastUpdate)
	if err != nil {
		res.State = StateFailed
		return res, err
	}

	for _, day := range targets {
		cs, err := cache.CrossSection(ctx, day)
		if err != nil {
			res.State = StateFailed
			return res, err
		}
		if len(cs) == 0 {
			// Provider published nothing for this trading day. Per-day
			// gaps are logged and skipped; only an empty calendar is
			// fatal. The watermark still moves so the gap is not
			// retried forever.
			c.logger.WithField("date", contracts.DayKey(day)).Warn("no bars for trading day, skipping breadth")
			res.DaysSkipped++
			if err := c.advanceWatermark(ctx, &highWater, day); err != nil {
				res.State = StateFailed
				return res, err
			}
			continue
		}

		if _, err := c.computer.ComputeDay(ctx, cache, calendar, day); err != nil {
			res.State = StateFailed
			return res, fmt.Errorf("breadth for %s..%s stopped at %s: %w",
				contracts.DayKey(res.From), contracts.DayKey(res.To), contracts.DayKey(day), err)
		}
		// Stat rows are durable before the watermark moves, so a crash
		// resumes from the first uncommitted day.
		if err := c.advanceWatermark(ctx, &highWater, day); err != nil {
			res.State = StateFailed
			return res, err
		}
		res.DaysProcessed++
	}

	if mode == StateFullBackfill {
		if err := c.status.Set(ctx, contracts.KeyLastFullUpdate, contracts.DayKey(res.To)); err != nil {
			res.State = StateFailed
			return res, fmt.Errorf("record full update: %w", err)
		}
	}

	pruned, err := c.prices.Prune(ctx, c.cfg.Breadth.RetainTradeDays)
	if err != nil {
		// Stats and watermark are already committed; stale bars only
		// cost disk until the next run prunes them.
		c.logger.WithError(err).Warn("retention prune failed")
	} else {
		res.RowsPruned = pruned
	}

	res.State = StateUpToDate
	c.logger.WithFields(map[string]interface{}{
		"mode":     string(mode),
		"days":     res.DaysProcessed,
		"skipped":  res.DaysSkipped,
		"from":     contracts.DayKey(res.From),
		"to":       contracts.DayKey(res.To),
		"inserted": res.BarsInserted,
		"pruned":   res.RowsPruned,
	}).Info("breadth run complete")

	return res, nil
}

// targetDays picks the trading days to compute. Incremental takes days
// strictly after the watermark; full backfill takes the trailing
// BackfillDays of the calendar.
func (c *Controller) targetDays(mode State, calendar []time.Time, wm time.Time) []time.Time {
	if mode == StateIncremental {
		var out []time.Time
		for _, d := range calendar {
			if contracts.Day(d).After(wm) {
				out = append(out, contracts.Day(d))
			}
		}
		return out
	}

	n := c.cfg.Breadth.BackfillDays
	if len(calendar) < n {
		n = len(calendar)
	}
	out := make([]time.Time, 0, n)
	for _, d := range calendar[len(calendar)-n:] {
		out = append(out, contracts.Day(d))
	}
	return out
}

// ensureCoverage fetches and stores any trading day in [from, to] the
// store is missing, seeding the run cache with whatever it loads.
func (c *Controller) ensureCoverage(ctx context.Context, cache *BarCache, calendar []time.Time, from, to time.Time) (int, error) {
	inserted := 0
	for _, d := range calendar {
		d = contracts.Day(d)
		if d.Before(from) || d.After(to) {
			continue
		}

		cs, err := cache.CrossSection(ctx, d)
		if err != nil {
			return inserted, err
		}
		if len(cs) > 0 {
			continue
		}

		bars, err := c.provider.DailyByDate(ctx, d)
		if err != nil {
			return inserted, fmt.Errorf("fetch bars for %s: %w", contracts.DayKey(d), err)
		}
		if len(bars) == 0 {
			c.logger.WithField("date", contracts.DayKey(d)).Warn("provider returned no bars for trading day")
			continue
		}

		n, err := c.prices.UpsertBars(ctx, bars)
		if err != nil {
			return inserted, fmt.Errorf("store bars for %s: %w", contracts.DayKey(d), err)
		}
		inserted += n
		cache.Put(d, bars)
	}
	return inserted, nil
}

// advanceWatermark writes day as last_update only when it is past the
// stored high water, keeping the watermark monotonically non-decreasing
// even when a backfill recomputes days already covered.
func (c *Controller) advanceWatermark(ctx context.Context, highWater *time.Time, day time.Time) error {
	if !day.After(*highWater) {
		return nil
	}
	if err := c.status.Set(ctx, contracts.KeyLastUpdate, contracts.DayKey(day)); err != nil {
		return fmt.Errorf("advance watermark to %s: %w", contracts.DayKey(day), err)
	}
	*highWater = day
	return nil
}

func (c *Controller) watermark(ctx context.Context, key string) (time.Time, bool, error) {
	v, ok, err := c.status.Get(ctx, key)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := time.Parse("20060102", v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s %q: %w", key, v, err)
	}
	return contracts.Day(t), true, nil
}

func (c *Controller) maxWindowDays() int {
	max := 0
	for _, w := range c.cfg.Breadth.WindowWeeks {
		if w > max {
			max = w
		}
	}
	return max * 7
}
