package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Boot phases recorded by fleettuned during startup.
const (
	BootReady  = "ready"
	BootFailed = "failed"
)

// BootState is the startup verdict fleettuned leaves next to its pid
// file, so a CLI waiting on `fleettune daemon start` can tell a slow
// boot apart from a failed one.
type BootState struct {
	Phase string `json:"phase"`
	PID   int    `json:"pid,omitempty"`
	Error string `json:"error,omitempty"`
}

// Lifecycle is the on-disk handshake between a fleettuned instance and
// the CLI: a pid file claims the instance, and a boot file reports
// whether startup reached the listen socket. Both live in the pid
// file's directory.
type Lifecycle struct {
	pidPath  string
	bootPath string
}

// NewLifecycle builds the handshake around a pid file path.
func NewLifecycle(pidPath string) *Lifecycle {
	return &Lifecycle{
		pidPath:  pidPath,
		bootPath: filepath.Join(filepath.Dir(pidPath), "fleettuned.boot"),
	}
}

// RunningPID returns the pid recorded in the pid file when that process
// is still alive, or 0 when no live instance holds the claim.
func (l *Lifecycle) RunningPID() int {
	pid, err := readPIDFile(l.pidPath)
	if err != nil || !PIDAlive(pid) {
		return 0
	}
	return pid
}

// Claim records the current process id, taking ownership of the
// instance. Callers should check RunningPID first.
func (l *Lifecycle) Claim() error {
	if err := os.MkdirAll(filepath.Dir(l.pidPath), 0o755); err != nil {
		return fmt.Errorf("creating pid directory: %w", err)
	}
	return os.WriteFile(l.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Ready records a successful boot.
func (l *Lifecycle) Ready() error {
	return l.writeBoot(BootState{Phase: BootReady, PID: os.Getpid()})
}

// Fail records a failed boot so a waiting CLI can report the cause.
// Best-effort: a broken data dir must not mask the original error.
func (l *Lifecycle) Fail(cause error) {
	_ = l.writeBoot(BootState{Phase: BootFailed, Error: cause.Error()})
}

// Boot returns the recorded boot verdict, if any.
func (l *Lifecycle) Boot() (BootState, bool) {
	data, err := os.ReadFile(l.bootPath)
	if err != nil {
		return BootState{}, false
	}
	var state BootState
	if err := json.Unmarshal(data, &state); err != nil {
		return BootState{}, false
	}
	return state, true
}

// ClearBoot drops a stale boot verdict before a fresh start.
func (l *Lifecycle) ClearBoot() {
	_ = os.Remove(l.bootPath)
}

// Release removes the pid claim and the boot verdict, ignoring files
// that are already gone.
func (l *Lifecycle) Release() {
	_ = os.Remove(l.pidPath)
	_ = os.Remove(l.bootPath)
}

func (l *Lifecycle) writeBoot(state BootState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(l.bootPath, data, 0o644)
}

// readPIDFile reads a pid file. Returns 0 when the file does not exist.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file %s: %w", path, err)
	}
	return pid, nil
}

// PIDAlive reports whether the process with the given pid exists.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}
