// Package poller drives the monitor's tick loop: each tick reads the
// tuning-status and fleet providers, derives the display snapshot (planned
// total, reconciled progress, classified stage, per-PSU load), runs the
// warning checks, and publishes the result.
//
// Everything derived is recomputed from scratch every tick and replaced
// whole, so a tick fed stale inputs produces the same snapshot it produced
// before. If a tick is still in flight when the next interval fires, the
// new tick is skipped; the loop never runs two ticks concurrently.
package poller

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleettune/fleettune/pkg/daemon/broadcaster"
	"github.com/fleettune/fleettune/pkg/provider"
	"github.com/fleettune/fleettune/pkg/tune/logging"
	"github.com/fleettune/fleettune/pkg/tune/plan"
	"github.com/fleettune/fleettune/pkg/tune/power"
	"github.com/fleettune/fleettune/pkg/tune/progress"
	"github.com/fleettune/fleettune/pkg/tune/stage"
	"github.com/fleettune/fleettune/pkg/tune/types"
)

// StateStore is the durable state the poller reads and writes: the stage
// hint, the dismissed warning set, and the manual PSU overrides.
type StateStore interface {
	stage.HintStore
	power.DismissStore
	Overrides() (power.Overrides, error)
}

// Options configures a Poller.
type Options struct {
	// Interval is the tick period. Zero uses 2 seconds.
	Interval time.Duration

	// RequestTimeout bounds the provider work of a single tick.
	// Zero uses the interval.
	RequestTimeout time.Duration

	// Thresholds configures the device health checks.
	Thresholds power.Thresholds
}

// Poller polls the providers and maintains the latest derived snapshot.
type Poller struct {
	provider   provider.Provider
	store      StateStore
	classifier *stage.Classifier
	alerter    *power.Alerter
	bc         *broadcaster.Broadcaster
	opts       Options
	log        *logging.Logger

	inFlight atomic.Bool

	mu         sync.RWMutex
	latest     types.Snapshot
	wasRunning bool
}

// New creates a Poller. bc may be nil when no fan-out is needed (one-shot
// status reads); store may be nil, disabling persisted hints and dismissals.
func New(p provider.Provider, store StateStore, bc *broadcaster.Broadcaster, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = opts.Interval
	}

	var hints stage.HintStore
	var dismissals power.DismissStore
	if store != nil {
		hints = store
		dismissals = store
	}

	return &Poller{
		provider:   p,
		store:      store,
		classifier: stage.NewClassifier(hints),
		alerter:    power.NewAlerter(dismissals),
		bc:         bc,
		opts:       opts,
		log:        logging.Get("poller"),
	}
}

// Alerter exposes the warning lifecycle service for the UI layer
// (Next/Dismiss/DismissForever).
func (p *Poller) Alerter() *power.Alerter {
	return p.alerter
}

// Latest returns the most recently derived snapshot.
func (p *Poller) Latest() types.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// SetThresholds replaces the health thresholds; the next tick uses them.
func (p *Poller) SetThresholds(th power.Thresholds) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.Thresholds = th
}

func (p *Poller) thresholds() power.Thresholds {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opts.Thresholds
}

// SetInterval replaces the tick period. A running loop picks it up after
// its current interval elapses. Non-positive values are ignored.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.Interval = d
}

func (p *Poller) interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opts.Interval
}

// Run ticks until ctx is cancelled. A tick that outlives the interval
// causes subsequent intervals to be skipped rather than piled up.
func (p *Poller) Run(ctx context.Context) {
	interval := p.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d := p.interval(); d != interval {
				interval = d
				ticker.Reset(interval)
			}
			if !p.inFlight.CompareAndSwap(false, true) {
				p.log.Debug("previous tick still in flight, skipping")
				continue
			}
			p.Tick(ctx)
			p.inFlight.Store(false)
		}
	}
}

// Tick performs one full poll cycle and returns the derived snapshot.
func (p *Poller) Tick(ctx context.Context) types.Snapshot {
	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	snap := types.Snapshot{}

	status, err := p.provider.TuningStatus(ctx)
	if err != nil {
		p.log.Warn("tuning status read failed", "error", err)
		// Degrade to "not running"; fleet monitoring continues below.
	}

	p.mu.Lock()
	stopped := p.wasRunning && !status.Running
	p.wasRunning = status.Running
	p.mu.Unlock()
	if stopped {
		// Run ended: re-arm warning conditions for the next run.
		p.alerter.Reset()
	}

	snap.Running = status.Running
	snap.Mode = status.Mode
	snap.Device = status.Device
	snap.Progress = p.deriveProgress(status)
	snap.Stage = p.classifier.Classify(status.Phase, status.Mode == types.ModeNanoTune)

	snap.PSULoads = p.deriveFleet(ctx)
	snap.PendingWarnings = p.alerter.Pending()

	p.mu.Lock()
	p.latest = snap
	p.mu.Unlock()

	if p.bc != nil {
		p.bc.PublishSnapshot(snap)
	}
	return snap
}

// deriveProgress runs the planner and reconciler on one status snapshot.
// A status with neither a sweep config nor a reported total has no test
// matrix at all; the planner is skipped so the reconciler falls back to the
// backend's own percentage.
func (p *Poller) deriveProgress(status types.RunStatus) types.Progress {
	var plannedBase int
	if status.Config != nil || status.ReportedTotal > 0 {
		var cfg types.SweepConfig
		if status.Config != nil {
			cfg = *status.Config
		}
		plannedBase = plan.Plan(cfg, status.ReportedTotal)
	}

	complete := strings.Contains(strings.ToLower(status.Phase), "complet")
	return progress.Reconcile(plannedBase, status.ReportedCompleted,
		status.ReportedProgressPct, status.Running, complete)
}

// deriveFleet reads devices and PSUs, resolves assignments, and runs the
// warning checks. Per-device failures mark that device offline only; a
// provider-wide failure logs and yields no PSU view this tick.
func (p *Poller) deriveFleet(ctx context.Context) []types.PSULoad {
	devices, err := p.provider.Devices(ctx)
	if err != nil {
		p.log.Warn("device list read failed", "error", err)
		return nil
	}

	th := p.thresholds()
	for i := range devices {
		tel, err := p.provider.DeviceStatus(ctx, devices[i].Name)
		if err != nil {
			p.log.Debug("device status read failed", "device", devices[i].Name, "error", err)
			devices[i].Online = false
			tel = types.Telemetry{}
		} else if tel.Power > 0 {
			devices[i].Power = tel.Power
		}
		p.raise(power.CheckDeviceHealth(devices[i], tel, th))
	}

	psus, err := p.provider.PSUs(ctx)
	if err != nil {
		p.log.Warn("psu list read failed", "error", err)
		return nil
	}

	overrides := power.Overrides{}
	if p.store != nil {
		if o, err := p.store.Overrides(); err == nil {
			overrides = o
		} else {
			p.log.Warn("override read failed", "error", err)
		}
	}

	loads := make([]types.PSULoad, 0, len(psus))
	for _, psu := range psus {
		assigned := power.ResolveAssignments(psu, devices, overrides)
		metrics := power.DeriveMetrics(psu, assigned)

		if ev := power.CheckLoad(psu, assigned); ev != nil {
			p.raise([]types.WarningEvent{*ev})
		}

		loads = append(loads, types.PSULoad{
			PSU:         psu,
			Assigned:    assigned,
			Wattage:     metrics.Wattage,
			Voltage:     metrics.Voltage,
			Amperage:    metrics.Amperage,
			Hint:        metrics.Hint,
			LoadPercent: power.LoadPercent(metrics.Wattage, assigned),
		})
	}
	return loads
}

// raise enqueues events through the alert service and publishes the ones
// that were actually accepted (not deduplicated or dismissed).
func (p *Poller) raise(events []types.WarningEvent) {
	for _, ev := range events {
		if p.alerter.Enqueue(ev) {
			p.log.Info("warning raised", "id", ev.ID, "level", ev.Level.String())
			if p.bc != nil {
				p.bc.PublishWarning(ev)
			}
		}
	}
}
