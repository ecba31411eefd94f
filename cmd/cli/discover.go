// This file implements the discover command: a one-shot discovery
// sweep printed as a table, without touching the database.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/asplund/netasset/internal/device"
	"github.com/asplund/netasset/internal/enrich"
	"github.com/asplund/netasset/internal/metrics"
	"github.com/asplund/netasset/internal/probe"
	"github.com/asplund/netasset/internal/registry"
	"github.com/asplund/netasset/internal/scan"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover <network-range>",
	Short: "Run a one-shot discovery sweep",
	Long: `Sweep a network range for live hosts and print the discovered
devices. Results are held in memory only; use the server for a
persistent inventory.`,
	Example: `  netasset discover 192.168.1.0/24
  netasset discover 10.0.0.0/16 --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 10*time.Minute,
		"maximum time to wait for the sweep")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store := registry.NewMemoryStore()
	adapter := probe.NewNmapAdapter()
	enricher := enrich.NewEngine(cfg.Enrichment)
	orchestrator := scan.New(cfg.Discovery, adapter, enricher, store, metrics.NewRegistry())

	ctx := cmd.Context()

	scanRecord, err := orchestrator.SubmitDiscovery(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Sweeping %s...\n", scanRecord.NetworkRange)

	result, err := orchestrator.WaitForCompletion(ctx, scanRecord.ID, discoverTimeout)
	if err != nil {
		return fmt.Errorf("discovery did not finish: %w", err)
	}
	if result.Status == device.ScanStatusFailed {
		if result.Error != nil {
			return fmt.Errorf("discovery failed: %s", *result.Error)
		}
		return fmt.Errorf("discovery failed")
	}

	devices, err := store.ListDevices(ctx, registry.DeviceFilter{ScanID: &result.ID})
	if err != nil {
		return fmt.Errorf("failed to read results: %w", err)
	}

	renderDeviceTable(devices)
	fmt.Fprintf(os.Stderr, "\n%d device(s) found in %s\n", len(devices), result.NetworkRange)
	return nil
}

func renderDeviceTable(devices []device.Device) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("IP Address", "Hostname", "MAC Address", "Type", "Status")

	for i := range devices {
		d := &devices[i]

		mac := ""
		if d.MACAddress != nil {
			mac = *d.MACAddress
		}

		_ = table.Append([]string{d.IPAddress, d.HostnameOrUnknown(), mac, d.Type, d.Status})
	}

	_ = table.Render()
}
