// Package jobs holds the scheduled work units: the daily close-of-day
// chain that refreshes breadth statistics and runs the screen.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/zhaoqi/breadth/internal/breadth"
	"github.com/zhaoqi/breadth/internal/contracts"
	"github.com/zhaoqi/breadth/internal/screen"
	"github.com/zhaoqi/breadth/pkg/logger"
)

// DailyJob runs after the market close: bring price coverage and
// breadth statistics up to today, then screen the refreshed universe.
// The controller prunes retention itself after a successful update.
type DailyJob struct {
	controller *breadth.Controller
	screener   *screen.Screener
	logger     *logger.Logger
	schedule   string
	now        func() time.Time
}

func NewDailyJob(controller *breadth.Controller, screener *screen.Screener, log *logger.Logger, schedule string) *DailyJob {
	if schedule == "" {
		// 17:30 Beijing close-of-day, weekdays.
		schedule = "0 30 17 * * 1-5"
	}
	return &DailyJob{
		controller: controller,
		screener:   screener,
		logger:     log,
		schedule:   schedule,
		now:        time.Now,
	}
}

func (j *DailyJob) Name() string { return "daily_breadth" }

func (j *DailyJob) Schedule() string { return j.schedule }

func (j *DailyJob) Run(ctx context.Context) error {
	end := contracts.Day(j.now())

	res, err := j.controller.Update(ctx, end)
	if err != nil {
		return fmt.Errorf("breadth update: %w", err)
	}
	if res.State == breadth.StateUpToDate && res.DaysProcessed == 0 {
		j.logger.Info("daily job: nothing to update")
		return nil
	}

	candidates, err := j.screener.Run(ctx, contracts.Day(res.To))
	if err != nil {
		return fmt.Errorf("screen after update: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"days_processed": res.DaysProcessed,
		"bars_inserted":  res.BarsInserted,
		"pruned":         res.RowsPruned,
		"candidates":     len(candidates),
	}).Info("daily job complete")

	return nil
}
