package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhaoqi/breadth/internal/scheduler"
	"github.com/zhaoqi/breadth/internal/scheduler/jobs"
)

var scheduleCron string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the daily close-of-day job on a cron schedule",
	Long: `Registers the daily breadth job (coverage, breadth update, prune,
screen) and blocks until interrupted.

Example:
  go run ./cmd/breadth schedule
  go run ./cmd/breadth schedule --cron "0 0 18 * * 1-5"`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression with seconds (default weekdays 17:30)")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(a.log)
	daily := jobs.NewDailyJob(a.controller, a.screener, a.log, scheduleCron)
	if err := sched.AddJob(daily); err != nil {
		return fmt.Errorf("register daily job: %w", err)
	}

	sched.Start()
	defer sched.Stop()

	fmt.Printf("Scheduler running, job %q on %q. Ctrl+C to stop.\n", daily.Name(), daily.Schedule())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	return nil
}
