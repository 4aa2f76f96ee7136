package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhaoqi/breadth/internal/contracts"
)

var screenDate string

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Run the quality-momentum screen",
	Long: `Screens the listed universe for instruments at a long-window high
with an intact uptrend, bounded volatility, a shallow rebound and no
recent spike. Results are printed, not persisted.

Example:
  go run ./cmd/breadth screen
  go run ./cmd/breadth screen --date 20250411`,
	RunE: runScreen,
}

func init() {
	rootCmd.AddCommand(screenCmd)
	screenCmd.Flags().StringVar(&screenDate, "date", "", "evaluation date (YYYYMMDD, default today)")
}

func runScreen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	date := contracts.Day(time.Now())
	if screenDate != "" {
		t, err := time.Parse("20060102", screenDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q, want YYYYMMDD", screenDate)
		}
		date = contracts.Day(t)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	candidates, err := a.screener.Run(ctx, date)
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		fmt.Printf("No candidates for %s.\n", contracts.DayKey(date))
		return nil
	}

	fmt.Printf("%d candidates for %s:\n\n", len(candidates), contracts.DayKey(date))
	fmt.Printf("%-12s %-10s %-12s %10s %12s %8s %8s\n",
		"CODE", "NAME", "INDUSTRY", "CLOSE", "MKT VALUE", "REBOUND", "RET10D")
	for _, c := range candidates {
		fmt.Printf("%-12s %-10s %-12s %10.2f %12.0f %7.1f%% %7.1f%%\n",
			c.Code, c.Name, c.Industry, c.LastClose, c.MarketValue,
			c.ReboundRatio*100, c.RecentReturn*100)
	}
	return nil
}
