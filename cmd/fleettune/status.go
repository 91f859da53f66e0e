package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleettune/fleettune/pkg/client"
	"github.com/fleettune/fleettune/pkg/output"
	"github.com/fleettune/fleettune/pkg/tune/config"
	"github.com/fleettune/fleettune/pkg/tune/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a one-shot snapshot of the tuning run and power budget",
	Long: `Show the current tuning run progress, workflow stage, and per-PSU
power budget, then exit.

When fleettuned is running, the snapshot comes from the daemon. Otherwise
the backend is polled directly once.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// runStatus fetches one snapshot and renders it.
func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	bootstrapLogging(cfg, true)

	snap, err := fetchSnapshot(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	if getJSON() {
		return output.RenderJSON(os.Stdout, snap)
	}
	return output.RenderPretty(os.Stdout, snap)
}

// fetchSnapshot gets one snapshot, preferring a running daemon.
func fetchSnapshot(ctx context.Context, cfg *config.Config) (types.Snapshot, error) {
	if daemonAvailable(cfg) {
		printVerbose("fetching snapshot from fleettuned at %s", daemonAddr(cfg))
		snap, err := client.New(daemonAddr(cfg)).Status(ctx)
		if err == nil {
			return snap, nil
		}
		printVerbose("daemon fetch failed, polling backend directly: %v", err)
	}

	p, cleanup := newLocalPoller(cfg, nil)
	defer cleanup()
	return p.Tick(ctx), nil
}
