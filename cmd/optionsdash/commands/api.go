package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/optionsdash/internal/api"
	"github.com/wonny/optionsdash/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server.

Endpoints:
  GET  /health                                   - Health check
  GET  /api/analysis/types                       - Supported analysis types
  GET  /api/analysis/{type}/{symbol}             - Analysis module (?mode=&date=)
  GET  /api/snapshots/{symbol}/dates             - Archived session dates
  GET  /api/snapshots/{symbol}/{date}            - One archived session
  GET  /api/snapshots/{symbol}/evolution         - Contract position evolution
  GET  /api/snapshots/{symbol}/patterns          - Recurring unusual activity
  GET  /api/snapshots/{symbol}/context           - Enriched historical context
  POST /api/snapshots/collect                    - Trigger snapshot collection

Example:
  go run ./cmd/optionsdash api
  go run ./cmd/optionsdash api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default from PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Options Dashboard API Server ===")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port":    a.cfg.Port,
		"env":     a.cfg.Env,
		"backend": a.cfg.Snapshot.Backend,
	}).Info("Initializing API server")

	analysisHandler := handlers.NewAnalysisHandler(a.adapter, a.log)
	snapshotHandler := handlers.NewSnapshotHandler(a.store, a.analyzer, a.collector, a.cfg.Collector.Symbols, a.log)

	router := api.NewRouter(analysisHandler, snapshotHandler, a.log)
	server := api.New(a.cfg, a.log, router)

	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	a.log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	a.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), server.ShutdownGrace())
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
