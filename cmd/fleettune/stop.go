package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleettune/fleettune/pkg/provider"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the backend to stop the active tuning run",
	Long: `Ask the tuning backend to stop the active run.

Stopping is idempotent: if no run is active, the command still succeeds.`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

// runStop sends the stop request straight to the backend.
func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	bootstrapLogging(cfg, true)

	prov := provider.NewHTTPProvider(cfg.BackendURL, cfg.RequestTimeout)
	if err := prov.StopRun(cmd.Context()); err != nil {
		if errors.Is(err, provider.ErrUnavailable) {
			return fmt.Errorf("backend at %s is unreachable: %w", cfg.BackendURL, err)
		}
		return fmt.Errorf("stopping run: %w", err)
	}

	printInfo("Stop requested")
	return nil
}
