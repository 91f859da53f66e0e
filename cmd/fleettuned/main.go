// Package main provides the entry point for fleettuned, the background
// monitor. It polls the tuning backend continuously and serves derived
// snapshots to fleettune clients over HTTP and a local websocket.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fleettune/fleettune/pkg/daemon"
	"github.com/fleettune/fleettune/pkg/daemon/broadcaster"
	"github.com/fleettune/fleettune/pkg/provider"
	"github.com/fleettune/fleettune/pkg/tune/config"
	"github.com/fleettune/fleettune/pkg/tune/logging"
	"github.com/fleettune/fleettune/pkg/tune/poller"
	"github.com/fleettune/fleettune/pkg/tune/power"
	"github.com/fleettune/fleettune/pkg/tune/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fleettuned: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		Components: cfg.Logging.Components,
	}); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer func() { _ = logging.Close() }()
	log := logging.Get("daemon")

	pidPath := cfg.Daemon.PIDPath
	if pidPath == "" {
		pidPath = config.DefaultPIDPath()
	}
	lc := daemon.NewLifecycle(pidPath)

	// Refuse to double-start
	if pid := lc.RunningPID(); pid != 0 {
		return fmt.Errorf("fleettuned is already running (pid %d)", pid)
	}

	if err := config.EnsureDataDir(); err != nil {
		lc.Fail(err)
		return err
	}

	statePath := cfg.Daemon.StatePath
	if statePath == "" {
		statePath = config.DefaultStatePath()
	}
	store, err := state.Open(statePath)
	if err != nil {
		err = fmt.Errorf("opening state store: %w", err)
		lc.Fail(err)
		return err
	}
	defer func() { _ = store.Close() }()

	if cfg.ModelSpecsPath != "" {
		if err := power.LoadModelSpecs(cfg.ModelSpecsPath); err != nil {
			log.Warn("model spec load failed", "path", cfg.ModelSpecsPath, "error", err)
		}
	}

	prov := provider.NewHTTPProvider(cfg.BackendURL, cfg.RequestTimeout)
	bc := broadcaster.New()
	defer bc.Close()

	p := poller.New(prov, store, bc, poller.Options{
		Interval:       cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		Thresholds: power.Thresholds{
			ChipTempAlert: cfg.Alerts.ChipTemp,
			VRTempAlert:   cfg.Alerts.VRTemp,
		},
	})

	addr := cfg.Daemon.ListenAddr
	if addr == "" {
		addr = config.DefaultListenAddr
	}
	srv := daemon.NewServer(p, bc, addr)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		err = fmt.Errorf("listening on %s: %w", addr, err)
		lc.Fail(err)
		return err
	}

	if err := lc.Claim(); err != nil {
		_ = ln.Close()
		lc.Fail(err)
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer lc.Release()

	if err := lc.Ready(); err != nil {
		log.Warn("boot file write failed", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go p.Run(ctx)
	go watchConfig(ctx, p, log)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown error", "error", err)
		}
	}()

	log.Info("fleettuned starting", "addr", addr, "backend", cfg.BackendURL)
	return srv.Serve(ln)
}

// watchConfig hot-reloads alert thresholds and model spec overrides when
// the config file changes. Structural settings (listen address, state
// path) still need a restart.
func watchConfig(ctx context.Context, p *poller.Poller, log *logging.Logger) {
	configPath, err := config.ConfigFile()
	if err != nil {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("config watch unavailable", "error", err)
		return
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file, which would drop a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		log.Warn("config watch failed", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != configPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := config.Load()
			if err != nil {
				log.Warn("config reload failed", "error", err)
				continue
			}
			p.SetThresholds(power.Thresholds{
				ChipTempAlert: cfg.Alerts.ChipTemp,
				VRTempAlert:   cfg.Alerts.VRTemp,
			})
			p.SetInterval(cfg.PollInterval)
			if cfg.ModelSpecsPath != "" {
				if err := power.LoadModelSpecs(cfg.ModelSpecsPath); err != nil {
					log.Warn("model spec reload failed", "error", err)
				}
			}
			log.Info("config reloaded",
				"chip_temp", cfg.Alerts.ChipTemp, "vr_temp", cfg.Alerts.VRTemp)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config watch error", "error", err)
		}
	}
}
