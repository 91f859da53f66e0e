package main

import (
	"github.com/fleettune/fleettune/pkg/client"
	"github.com/fleettune/fleettune/pkg/daemon/broadcaster"
	"github.com/fleettune/fleettune/pkg/provider"
	"github.com/fleettune/fleettune/pkg/tune/config"
	"github.com/fleettune/fleettune/pkg/tune/poller"
	"github.com/fleettune/fleettune/pkg/tune/power"
	"github.com/fleettune/fleettune/pkg/tune/state"
)

// daemonAddr returns the fleettuned listen address from config.
func daemonAddr(cfg *config.Config) string {
	if cfg.Daemon.ListenAddr != "" {
		return client.ParseAddr(cfg.Daemon.ListenAddr)
	}
	return config.DefaultListenAddr
}

// pidPath returns the fleettuned PID file path from config.
func pidPath(cfg *config.Config) string {
	if cfg.Daemon.PIDPath != "" {
		return cfg.Daemon.PIDPath
	}
	return config.DefaultPIDPath()
}

// statePath returns the Badger state directory from config.
func statePath(cfg *config.Config) string {
	if cfg.Daemon.StatePath != "" {
		return cfg.Daemon.StatePath
	}
	return config.DefaultStatePath()
}

// daemonAvailable reports whether a running fleettuned should serve this
// invocation.
func daemonAvailable(cfg *config.Config) bool {
	if getNoDaemon() {
		return false
	}
	return client.IsDaemonRunning(pidPath(cfg))
}

// newLocalPoller builds a direct-to-backend poller for daemonless
// operation. The persisted state store is optional: when fleettuned holds
// the Badger lock the poller runs without persisted hints and dismissals.
// The returned cleanup closes the store.
func newLocalPoller(cfg *config.Config, bc *broadcaster.Broadcaster) (*poller.Poller, func()) {
	prov := provider.NewHTTPProvider(cfg.BackendURL, cfg.RequestTimeout)

	var ss poller.StateStore
	cleanup := func() {}
	store, err := state.Open(statePath(cfg))
	if err != nil {
		printVerbose("state store unavailable, running without persisted state: %v", err)
	} else {
		ss = store
		cleanup = func() { _ = store.Close() }
	}

	opts := poller.Options{
		Interval:       pollInterval(cfg),
		RequestTimeout: cfg.RequestTimeout,
		Thresholds:     thresholds(cfg),
	}
	return poller.New(prov, ss, bc, opts), cleanup
}

// thresholds maps alert configuration to health check thresholds.
func thresholds(cfg *config.Config) power.Thresholds {
	return power.Thresholds{
		ChipTempAlert: cfg.Alerts.ChipTemp,
		VRTempAlert:   cfg.Alerts.VRTemp,
	}
}
