package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fleettune/fleettune/pkg/tune/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage fleettune configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/fleettune/config.yaml (if set)
  2. ~/.config/fleettune/config.yaml

Environment variables can override config file settings using the FLEETTUNE_ prefix:
  FLEETTUNE_BACKEND_URL=http://10.0.0.5:8090
  FLEETTUNE_POLL_INTERVAL=5s
  FLEETTUNE_ALERTS_CHIP_TEMP=85`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		printError("Failed to load configuration: %v", err)
		// Show defaults anyway
		cfg = &config.Config{
			BackendURL:     config.DefaultBackendURL,
			PollInterval:   config.DefaultPollInterval,
			RequestTimeout: config.DefaultRequestTimeout,
		}
		cfg.Alerts.ChipTemp = config.DefaultChipTempAlert
		cfg.Alerts.VRTemp = config.DefaultVRTempAlert
		cfg.Daemon.ListenAddr = config.DefaultListenAddr
	}

	// Show config file being used
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Printf("Config file: %s\n\n", configFile)
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	// Display configuration
	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("backend_url:          %s\n", cfg.BackendURL)
	fmt.Printf("poll_interval:        %s\n", cfg.PollInterval)
	fmt.Printf("request_timeout:      %s\n", cfg.RequestTimeout)
	fmt.Printf("model_specs_path:     %s\n", cfg.ModelSpecsPath)
	fmt.Printf("alerts.chip_temp:     %.0f\n", cfg.Alerts.ChipTemp)
	fmt.Printf("alerts.vr_temp:       %.0f\n", cfg.Alerts.VRTemp)
	fmt.Printf("logging.level:        %s\n", cfg.Logging.Level)
	fmt.Printf("daemon.listen_addr:   %s\n", cfg.Daemon.ListenAddr)
	fmt.Printf("daemon.state_path:    %s\n", statePath(cfg))
	fmt.Printf("daemon.pid_path:      %s\n", pidPath(cfg))

	// Show any environment overrides
	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	envVars := []string{
		"FLEETTUNE_BACKEND_URL",
		"FLEETTUNE_POLL_INTERVAL",
		"FLEETTUNE_REQUEST_TIMEOUT",
		"FLEETTUNE_MODEL_SPECS_PATH",
		"FLEETTUNE_ALERTS_CHIP_TEMP",
		"FLEETTUNE_ALERTS_VR_TEMP",
		"FLEETTUNE_LOGGING_LEVEL",
		"FLEETTUNE_DAEMON_LISTEN_ADDR",
	}

	anyOverrides := false
	for _, name := range envVars {
		if val := os.Getenv(name); val != "" {
			fmt.Printf("%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Println("(none)")
	}

	return nil
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(cmd *cobra.Command, args []string) error {
	// Ensure config file exists
	if err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	configPath, err := config.ConfigFile()
	if err != nil {
		return fmt.Errorf("failed to get config file path: %w", err)
	}

	// Determine editor
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, err := config.ConfigFile()
	if err != nil {
		return fmt.Errorf("failed to get config file path: %w", err)
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'fleettune config edit' to modify it.")
		return nil
	}

	if err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	configPath, err := config.ConfigFile()
	if err != nil {
		return fmt.Errorf("failed to get config file path: %w", err)
	}

	fmt.Println(configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}
