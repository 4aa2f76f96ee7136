package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhaoqi/breadth/internal/breadth"
	"github.com/zhaoqi/breadth/internal/contracts"
)

var updateEnd string

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Incrementally update breadth statistics",
	Long: `Computes new-high/new-low statistics for every trading day after the
last_update watermark, fetching any missing price bars first. With no
watermark yet it falls through to a full backfill.

Example:
  go run ./cmd/breadth update
  go run ./cmd/breadth update --end 20250411`,
	RunE: runUpdate,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute breadth over the full backfill range",
	Long: `Recomputes breadth statistics over the trailing backfill range,
ignoring the watermark. Existing rows are overwritten.

Example:
  go run ./cmd/breadth backfill
  go run ./cmd/breadth backfill --end 20250411`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(backfillCmd)

	updateCmd.Flags().StringVar(&updateEnd, "end", "", "last day to compute (YYYYMMDD, default today)")
	backfillCmd.Flags().StringVar(&updateEnd, "end", "", "last day to compute (YYYYMMDD, default today)")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return runBreadth(cmd.Context(), false)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	return runBreadth(cmd.Context(), true)
}

func runBreadth(ctx context.Context, full bool) error {
	end, err := endDate(updateEnd)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var res *breadth.RunResult
	if full {
		res, err = a.controller.Backfill(ctx, end)
	} else {
		res, err = a.controller.Update(ctx, end)
	}
	if err != nil {
		return err
	}

	if res.DaysProcessed == 0 {
		fmt.Println("Already up to date.")
		return nil
	}

	fmt.Printf("Mode:          %s\n", res.Mode)
	fmt.Printf("Range:         %s .. %s\n", contracts.DayKey(res.From), contracts.DayKey(res.To))
	fmt.Printf("Days computed: %d\n", res.DaysProcessed)
	fmt.Printf("Bars fetched:  %d\n", res.BarsInserted)
	fmt.Printf("Rows pruned:   %d\n", res.RowsPruned)
	return nil
}

func endDate(flag string) (time.Time, error) {
	if flag == "" {
		return contracts.Day(time.Now()), nil
	}
	t, err := time.Parse("20060102", flag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --end %q, want YYYYMMDD", flag)
	}
	return contracts.Day(t), nil
}
