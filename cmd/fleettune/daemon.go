package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleettune/fleettune/pkg/client"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the fleettuned daemon",
	Long: `Manage the fleettuned daemon for continuous background monitoring.

The daemon polls the tuning backend on a fixed interval, keeps the derived
state warm, and streams updates to TUI clients over a local websocket.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the fleettuned daemon",
	Long:  `Start the fleettuned daemon in the background.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the fleettuned daemon",
	Long:  `Stop the fleettuned daemon gracefully.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the fleettuned daemon",
	Long:  `Stop and start the fleettuned daemon.`,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the fleettuned daemon.`,
	RunE:  runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

// daemonPaths builds the lifecycle paths from config.
func daemonPaths() (client.DaemonPaths, error) {
	cfg, err := loadConfig()
	if err != nil {
		return client.DaemonPaths{}, fmt.Errorf("loading config: %w", err)
	}
	return client.DaemonPaths{
		Addr: daemonAddr(cfg),
		PID:  pidPath(cfg),
	}, nil
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}

	printVerbose("starting daemon...")
	if err := client.StartDaemon(paths); err != nil {
		printVerbose("start failed: %v", err)
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}

	if !client.IsDaemonRunning(paths.PID) {
		return errors.New("daemon is not running")
	}

	printVerbose("stopping daemon (pid file: %s)", paths.PID)
	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}

	if client.IsDaemonRunning(paths.PID) {
		if err := client.StopDaemon(paths); err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}
	}
	if err := client.StartDaemon(paths); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	printInfo("Daemon restarted")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}

	if !client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon status: not running")
		return nil
	}

	c := client.New(paths.Addr)
	if !c.Healthy(cmd.Context()) {
		printInfo("Daemon status: running (but not responding)")
		return nil
	}

	snap, err := c.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}

	printInfo("Daemon status: running")
	printInfo("  Listen addr: %s", paths.Addr)
	if snap.Running {
		printInfo("  Tuning run: active (%s, %d%%)", snap.Mode, snap.Progress.Percent)
	} else {
		printInfo("  Tuning run: idle")
	}
	printInfo("  PSUs tracked: %d", len(snap.PSULoads))
	printInfo("  Pending warnings: %d", snap.PendingWarnings)
	return nil
}
