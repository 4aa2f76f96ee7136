package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhaoqi/breadth/internal/api"
	"github.com/zhaoqi/breadth/internal/api/handlers"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only HTTP API",
	Long: `Serves breadth statistics, screen results and update status.

Endpoints:
  GET /health
  GET /api/v1/breadth?start=YYYYMMDD&end=YYYYMMDD&window=52w
  GET /api/v1/screen?date=YYYYMMDD
  GET /api/v1/status

Example:
  go run ./cmd/breadth serve
  go run ./cmd/breadth serve --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != "" {
		a.cfg.Port = servePort
	}

	router := api.NewRouter(
		handlers.NewBreadthHandler(a.stats, a.log),
		handlers.NewScreenHandler(a.screener, a.log),
		handlers.NewStatusHandler(a.status, a.log),
		a.log,
	)
	server := api.New(a.cfg, a.log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.log.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
