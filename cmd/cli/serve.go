// This file implements the serve command: it wires the registry, probe
// adapter, orchestrator, scheduler, and API server together and runs
// until interrupted.
package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asplund/netasset/internal/api"
	"github.com/asplund/netasset/internal/enrich"
	"github.com/asplund/netasset/internal/logging"
	"github.com/asplund/netasset/internal/metrics"
	"github.com/asplund/netasset/internal/probe"
	"github.com/asplund/netasset/internal/registry"
	"github.com/asplund/netasset/internal/scan"
	"github.com/asplund/netasset/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scanner API server",
	Long: `Start the netasset API server in the foreground.

The server connects to PostgreSQL, registers any configured discovery
schedules, and serves the REST API until interrupted.`,
	Example: `  netasset serve
  netasset serve --config /etc/netasset/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.Default().WithComponent("serve")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsRegistry metrics.MetricsRegistry
	if cfg.Metrics.Enabled {
		metricsRegistry = metrics.NewPrometheusRegistry()
	} else {
		metricsRegistry = metrics.NewRegistry()
	}

	store, err := registry.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = store.Close() }()

	adapter := probe.NewNmapAdapter()
	enricher := enrich.NewEngine(cfg.Enrichment)
	orchestrator := scan.New(cfg.Discovery, adapter, enricher, store, metricsRegistry)

	sched := scheduler.New(orchestrator)
	for _, sc := range cfg.Schedules {
		if err := sched.AddSchedule(sc); err != nil {
			return fmt.Errorf("failed to register schedule: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	server := api.New(cfg, store, orchestrator, metricsRegistry)

	logger.Info("Scanner starting", "address", server.Address())
	if err := server.Start(ctx); err != nil {
		return err
	}

	// Let in-flight scan jobs finish writing before the store closes.
	orchestrator.Wait()
	logger.Info("Scanner stopped")
	return nil
}
