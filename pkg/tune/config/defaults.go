// Package config provides configuration management for the fleettune
// tuning monitor.
package config

import "time"

// Default configuration values for fleettune.
const (
	// DefaultBackendURL is the tuning backend base URL.
	DefaultBackendURL = "http://127.0.0.1:8090"

	// DefaultPollInterval is how often the monitor polls while a run is
	// active.
	DefaultPollInterval = 2 * time.Second

	// DefaultRequestTimeout bounds each provider request. Shorter than
	// the poll interval is deliberate so a stuck backend cannot pile up
	// in-flight requests.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultChipTempAlert is the chip temperature alert threshold in
	// Celsius.
	DefaultChipTempAlert = 90.0

	// DefaultVRTempAlert is the voltage-regulator temperature alert
	// threshold in Celsius.
	DefaultVRTempAlert = 100.0

	// DefaultListenAddr is where fleettuned serves status and the
	// websocket stream.
	DefaultListenAddr = "127.0.0.1:8091"
)
