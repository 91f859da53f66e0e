package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fleettune/fleettune/pkg/client"
	"github.com/fleettune/fleettune/pkg/tune/state"
)

var psuCmd = &cobra.Command{
	Use:   "psu",
	Short: "Manage manual device-to-PSU assignments",
	Long: `Manage manual device-to-PSU assignment overrides.

Overrides take precedence over everything the backend reports: device power
supply hints and PSU membership lists. An override to an empty PSU id marks
the device as standalone (on its own supply, excluded from every budget).

Overrides persist across restarts. They are applied on the next poll tick.`,
}

var psuAssignCmd = &cobra.Command{
	Use:   "assign <device> <psu-id>",
	Short: "Pin a device to a power supply",
	Long: `Pin a device to the power supply with the given id.

Use an empty id ("") to mark the device standalone.`,
	Args: cobra.ExactArgs(2),
	RunE: runPSUAssign,
}

var psuUnassignCmd = &cobra.Command{
	Use:   "unassign <device>",
	Short: "Remove a device's manual PSU assignment",
	Long:  `Remove the manual override, restoring backend-reported assignment.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPSUUnassign,
}

var psuListCmd = &cobra.Command{
	Use:   "list",
	Short: "List manual PSU assignments",
	RunE:  runPSUList,
}

func init() {
	psuCmd.AddCommand(psuAssignCmd)
	psuCmd.AddCommand(psuUnassignCmd)
	psuCmd.AddCommand(psuListCmd)
	rootCmd.AddCommand(psuCmd)
}

// openStore opens the persisted state store for override edits. While
// fleettuned is running it holds the Badger lock, so edits go through a
// stopped daemon.
func openStore() (*state.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	bootstrapLogging(cfg, true)

	store, err := state.Open(statePath(cfg))
	if err != nil {
		if client.IsDaemonRunning(pidPath(cfg)) {
			return nil, fmt.Errorf("state store is locked by fleettuned; stop it first (fleettune daemon stop): %w", err)
		}
		return nil, fmt.Errorf("opening state store: %w", err)
	}
	return store, nil
}

// runPSUAssign records a manual device-to-PSU override.
func runPSUAssign(cmd *cobra.Command, args []string) error {
	device, psuID := args[0], args[1]

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.PutOverride(device, psuID); err != nil {
		return fmt.Errorf("saving override: %w", err)
	}

	if psuID == "" {
		printInfo("Marked %s standalone", device)
	} else {
		printInfo("Pinned %s to PSU %s", device, psuID)
	}
	return nil
}

// runPSUUnassign removes a manual override.
func runPSUUnassign(cmd *cobra.Command, args []string) error {
	device := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteOverride(device); err != nil {
		return fmt.Errorf("removing override: %w", err)
	}

	printInfo("Removed override for %s", device)
	return nil
}

// runPSUList prints the current overrides.
func runPSUList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	overrides, err := store.Overrides()
	if err != nil {
		return fmt.Errorf("reading overrides: %w", err)
	}
	if len(overrides) == 0 {
		printInfo("No manual assignments")
		return nil
	}

	devices := make([]string, 0, len(overrides))
	for device := range overrides {
		devices = append(devices, device)
	}
	sort.Strings(devices)

	for _, device := range devices {
		if psuID := overrides[device]; psuID == "" {
			printInfo("%s -> standalone", device)
		} else {
			printInfo("%s -> PSU %s", device, psuID)
		}
	}
	return nil
}
