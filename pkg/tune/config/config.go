package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Components map[string]string `mapstructure:"components"`
}

// AlertConfig configures the device health thresholds.
type AlertConfig struct {
	ChipTemp float64 `mapstructure:"chip_temp"`
	VRTemp   float64 `mapstructure:"vr_temp"`
}

// DaemonConfig configures the fleettuned monitoring daemon.
type DaemonConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	StatePath  string `mapstructure:"state_path"` // Badger state directory (auto-discovered if empty)
	PIDPath    string `mapstructure:"pid_path"`
}

// Config represents the application configuration.
type Config struct {
	BackendURL     string        `mapstructure:"backend_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ModelSpecsPath string        `mapstructure:"model_specs_path"`
	Alerts         AlertConfig   `mapstructure:"alerts"`
	Logging        LoggingConfig `mapstructure:"logging"`
	Daemon         DaemonConfig  `mapstructure:"daemon"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/fleettune/config.yaml
//   - $HOME/.config/fleettune/config.yaml
//
// Environment variables are prefixed with FLEETTUNE_
// (e.g., FLEETTUNE_BACKEND_URL).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "fleettune"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "fleettune"))

	v.SetEnvPrefix("FLEETTUNE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend_url", DefaultBackendURL)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("model_specs_path", "") // Empty means built-in table only

	v.SetDefault("alerts.chip_temp", DefaultChipTempAlert)
	v.SetDefault("alerts.vr_temp", DefaultVRTempAlert)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.components", map[string]string{
		"poller":   "info",
		"provider": "warn",
		"daemon":   "info",
		"tui":      "info",
	})

	v.SetDefault("daemon.listen_addr", DefaultListenAddr)
	v.SetDefault("daemon.state_path", "") // Empty means use default XDG path
	v.SetDefault("daemon.pid_path", "")   // Empty means use default XDG path

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.HasPrefix(cfg.ModelSpecsPath, "~") {
		cfg.ModelSpecsPath = filepath.Join(homeDir, cfg.ModelSpecsPath[1:])
	}

	return &cfg, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "fleettune"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "fleettune"), nil
}

// ConfigFile returns the config file path inside ConfigDir.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists.
// Returns nil if a config file already exists.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configPath, err := ConfigFile()
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil {
		// Config file exists, do nothing
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Fleettune Tuning Monitor Configuration

# Tuning backend base URL
backend_url: %s

# How often to poll the backend while a run is active
poll_interval: %s

# Per-request timeout for backend reads
request_timeout: %s

# Optional YAML file of model -> PSU spec hints (merged over built-ins)
model_specs_path: ""

# Device health alert thresholds (Celsius)
alerts:
  chip_temp: %.0f
  vr_temp: %.0f

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/fleettune/fleettune.log)
  path: ""
  # Per-component log levels
  components:
    poller: info
    provider: warn
    daemon: info
    tui: info

# Daemon configuration
daemon:
  # Address fleettuned listens on for status and websocket clients
  listen_addr: %s
  # Badger state directory (empty means use default: $XDG_DATA_HOME/fleettune/state.db)
  state_path: ""
  # PID file path (empty means use default: $XDG_DATA_HOME/fleettune/fleettuned.pid)
  pid_path: ""
`, DefaultBackendURL, DefaultPollInterval, DefaultRequestTimeout,
		DefaultChipTempAlert, DefaultVRTempAlert, DefaultListenAddr)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}

// DataDir returns $XDG_DATA_HOME/fleettune/ for the state database and pid
// files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "fleettune")
}

// StateDir returns $XDG_STATE_HOME/fleettune/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "fleettune")
}

// DefaultStatePath returns the default Badger state directory.
func DefaultStatePath() string {
	return filepath.Join(DataDir(), "state.db")
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "fleettuned.pid")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "fleettune.log")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}
