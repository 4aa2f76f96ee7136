package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhaoqi/breadth/internal/contracts"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show update watermarks and store coverage",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, key := range []string{contracts.KeyLastUpdate, contracts.KeyLastFullUpdate} {
		v, ok, err := a.status.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if !ok {
			v = "(unset)"
		}
		fmt.Printf("%-18s %s\n", key+":", v)
	}

	latest, ok, err := a.prices.LatestDate(ctx)
	if err != nil {
		return fmt.Errorf("read latest bar date: %w", err)
	}
	if ok {
		fmt.Printf("%-18s %s\n", "latest bar:", contracts.DayKey(latest))
	} else {
		fmt.Printf("%-18s (empty store)\n", "latest bar:")
	}
	return nil
}
