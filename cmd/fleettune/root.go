package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fleettune/fleettune/pkg/tune/config"
	"github.com/fleettune/fleettune/pkg/tune/logging"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "fleettune",
		Short: "Monitor ASIC miner tuning runs and fleet power budgets",
		Long: `Fleettune watches a tuning backend while it sweeps voltage and frequency
points, reconciles the backend's progress reporting into a stable display,
and keeps an eye on per-PSU power budgets across the fleet.

By default, fleettune launches an interactive TUI that follows the active
run. Use --no-interactive or --json for one-shot output.

Examples:
  fleettune                         # Follow the active run with the TUI
  fleettune status                  # One-shot snapshot, pretty-printed
  fleettune status -j               # One-shot snapshot as JSON
  fleettune stop                    # Ask the backend to stop the run
  fleettune psu assign miner3 2     # Pin miner3 to PSU 2
  fleettune daemon start            # Start the fleettuned background monitor
  fleettune config show             # Show configuration`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/fleettune/config.yaml)")
	rootCmd.PersistentFlags().StringP("backend", "b", "", "tuning backend base URL")
	rootCmd.PersistentFlags().DurationP("interval", "i", 0, "poll interval (0=config default)")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "output JSON format")
	rootCmd.PersistentFlags().BoolP("no-daemon", "n", false, "bypass fleettuned, poll the backend directly")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	_ = viper.BindPFlag("backend_url", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("poll_interval", rootCmd.PersistentFlags().Lookup("interval"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("no_daemon", rootCmd.PersistentFlags().Lookup("no-daemon"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Set config name and type
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		// Add config paths in order of precedence
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			viper.AddConfigPath(filepath.Join(xdgConfigHome, "fleettune"))
		}

		homeDir, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(homeDir, ".config", "fleettune"))
		}
	}

	// Set environment variable prefix and enable auto env binding
	viper.SetEnvPrefix("FLEETTUNE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Set defaults from config package
	viper.SetDefault("backend_url", config.DefaultBackendURL)
	viper.SetDefault("poll_interval", config.DefaultPollInterval)
	viper.SetDefault("request_timeout", config.DefaultRequestTimeout)
	viper.SetDefault("alerts.chip_temp", config.DefaultChipTempAlert)
	viper.SetDefault("alerts.vr_temp", config.DefaultVRTempAlert)
	viper.SetDefault("daemon.listen_addr", config.DefaultListenAddr)

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()
}

// loadConfig loads the structured configuration, with changed persistent
// flags layered on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if v := viper.GetString("backend_url"); v != "" {
		cfg.BackendURL = v
	}
	if v := viper.GetDuration("poll_interval"); v > 0 {
		cfg.PollInterval = v
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.DefaultRequestTimeout
	}

	return cfg, nil
}

// bootstrapLogging configures file logging. Console echo stays off while
// a TUI may own the screen; verbose mode raises the file level instead.
func bootstrapLogging(cfg *config.Config, console bool) {
	level := cfg.Logging.Level
	if getVerbose() {
		level = "debug"
	}

	logCfg := logging.Config{
		Level:      level,
		Path:       cfg.Logging.Path,
		Components: cfg.Logging.Components,
	}
	if console && getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}

	if err := logging.Init(logCfg); err != nil {
		printError("Failed to initialize logging: %v", err)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// getJSON returns true if JSON output is requested.
func getJSON() bool {
	return viper.GetBool("json")
}

// getNoDaemon returns true if the daemon should be bypassed.
func getNoDaemon() bool {
	return viper.GetBool("no_daemon")
}

// pollInterval returns the effective poll interval.
func pollInterval(cfg *config.Config) time.Duration {
	if cfg.PollInterval > 0 {
		return cfg.PollInterval
	}
	return config.DefaultPollInterval
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
