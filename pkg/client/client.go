// Package client provides a client for connecting to the fleettuned daemon.
// It wraps the HTTP and websocket endpoints with convenience methods and
// handles daemon lifecycle (start, stop, liveness).
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleettune/fleettune/pkg/daemon"
	"github.com/fleettune/fleettune/pkg/daemon/broadcaster"
	"github.com/fleettune/fleettune/pkg/tune/config"
	"github.com/fleettune/fleettune/pkg/tune/types"
)

// Client talks to a fleettuned daemon over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the daemon at addr (host:port).
func New(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Status fetches the latest derived snapshot.
func (c *Client) Status(ctx context.Context) (types.Snapshot, error) {
	var snap types.Snapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return snap, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return snap, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("daemon status: unexpected HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}

// Healthy reports whether the daemon answers its liveness probe.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusNoContent
}

// NextWarning promotes the daemon's next queued warning to the active slot
// and returns it. ok is false when nothing is queued.
func (c *Client) NextWarning(ctx context.Context) (types.WarningEvent, bool, error) {
	var ev types.WarningEvent

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/warnings/next", nil)
	if err != nil {
		return ev, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ev, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return ev, false, nil
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
			return ev, false, fmt.Errorf("decoding warning: %w", err)
		}
		return ev, true, nil
	default:
		return ev, false, fmt.Errorf("warnings/next: unexpected HTTP %d", resp.StatusCode)
	}
}

// DismissWarning dismisses the daemon's active warning. With forever the
// dismissal is persisted across sessions.
func (c *Client) DismissWarning(ctx context.Context, forever bool) error {
	u := c.baseURL + "/warnings/dismiss"
	if forever {
		u += "?forever=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("warnings/dismiss: unexpected HTTP %d", resp.StatusCode)
	}
	return nil
}

// Stream subscribes to the daemon's websocket and delivers messages until
// ctx is cancelled or the connection drops. The returned channel is closed
// on exit.
func (c *Client) Stream(ctx context.Context) (<-chan broadcaster.Message, error) {
	wsURL, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return nil, err
	}
	wsURL.Scheme = "ws"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing daemon websocket: %w", err)
	}

	msgs := make(chan broadcaster.Message, 16)

	// Close the connection when ctx ends so the read loop unblocks.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go func() {
		defer close(msgs)
		defer conn.Close()
		for {
			var msg broadcaster.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgs, nil
}

// DaemonPaths configures paths for daemon lifecycle operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // Path to fleettuned binary (auto-discovered if empty)
	Addr   string // Daemon listen address
	PID    string // PID file path
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Addr == "" {
		p.Addr = config.DefaultListenAddr
	}
	if p.PID == "" {
		p.PID = config.DefaultPIDPath()
	}
	return p
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	return daemon.NewLifecycle(pidPath).RunningPID() != 0
}

// StartDaemon starts fleettuned in the background.
// Idempotent: returns nil if the daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find fleettuned: %w", err)
	}

	lc := daemon.NewLifecycle(paths.PID)

	// Clean up a stale boot verdict before starting
	lc.ClearBoot()

	// Use exec.Command (not CommandContext) intentionally: daemon must outlive caller
	cmd := exec.Command(binary) //nolint:gosec // binary path is validated
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// Detach so daemon outlives caller
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	// Poll for liveness OR an explicit status file verdict
	c := New(paths.Addr)
	for range 50 {
		time.Sleep(100 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		healthy := c.Healthy(ctx)
		cancel()
		if healthy {
			return nil
		}

		if boot, ok := lc.Boot(); ok {
			switch boot.Phase {
			case daemon.BootReady:
				return nil
			case daemon.BootFailed:
				return fmt.Errorf("daemon failed to start: %s", boot.Error)
			}
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon stops the daemon via SIGTERM and waits for it to exit.
// Idempotent: returns nil if the daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	pid := daemon.NewLifecycle(paths.PID).RunningPID()
	if pid == 0 {
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signalling daemon: %w", err)
	}

	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if !daemon.PIDAlive(pid) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// RestartDaemon stops and starts the daemon.
func RestartDaemon(paths DaemonPaths) error {
	if err := StopDaemon(paths); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := StartDaemon(paths); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// resolveBinary finds the fleettuned binary path.
// Priority: configured path > same directory as executable > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), "fleettuned")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath("fleettuned"); err == nil {
		return path, nil
	}

	return "", errors.New("fleettuned not found")
}

// ParseAddr extracts host:port from a URL or bare address, for callers that
// accept either form in configuration.
func ParseAddr(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return s
}
