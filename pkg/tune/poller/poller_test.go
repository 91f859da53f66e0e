package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleettune/fleettune/pkg/daemon/broadcaster"
	"github.com/fleettune/fleettune/pkg/tune/power"
	"github.com/fleettune/fleettune/pkg/tune/types"
)

// fakeProvider is a scriptable in-memory provider.
type fakeProvider struct {
	status    types.RunStatus
	statusErr error

	devices    []types.Device
	devicesErr error

	telemetry map[string]types.Telemetry
	telErr    map[string]error

	psus    []types.PSU
	psusErr error

	stopped int
}

func (f *fakeProvider) TuningStatus(ctx context.Context) (types.RunStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeProvider) StopRun(ctx context.Context) error {
	f.stopped++
	return nil
}

func (f *fakeProvider) Devices(ctx context.Context) ([]types.Device, error) {
	return f.devices, f.devicesErr
}

func (f *fakeProvider) DeviceStatus(ctx context.Context, name string) (types.Telemetry, error) {
	if err, ok := f.telErr[name]; ok {
		return types.Telemetry{}, err
	}
	return f.telemetry[name], nil
}

func (f *fakeProvider) PSUs(ctx context.Context) ([]types.PSU, error) {
	return f.psus, f.psusErr
}

// memState is an in-memory StateStore.
type memState struct {
	hint      types.StageHint
	hintSet   bool
	dismissed map[string]bool
	overrides power.Overrides
}

func newMemState() *memState {
	return &memState{dismissed: make(map[string]bool), overrides: power.Overrides{}}
}

func (m *memState) StageHint() (types.StageHint, bool) { return m.hint, m.hintSet }

func (m *memState) PutStageHint(h types.StageHint) error {
	m.hint = h
	m.hintSet = true
	return nil
}

func (m *memState) Dismissed(id string) bool { return m.dismissed[id] }

func (m *memState) PutDismissed(id string) error {
	m.dismissed[id] = true
	return nil
}

func (m *memState) Overrides() (power.Overrides, error) { return m.overrides, nil }

func sweepConfig() *types.SweepConfig {
	return &types.SweepConfig{
		VoltageStart: 1100, VoltageStop: 1200, VoltageStep: 20,
		FrequencyStart: 400, FrequencyStop: 700, FrequencyStep: 25,
		CyclesPerTest: 1,
	}
}

func TestTickDerivesProgress(t *testing.T) {
	fp := &fakeProvider{
		status: types.RunStatus{
			Running:           true,
			Mode:              types.ModeBenchmark,
			Phase:             "Precision sweep",
			ReportedCompleted: 39,
			Config:            sweepConfig(),
		},
	}
	p := New(fp, newMemState(), nil, Options{})

	snap := p.Tick(context.Background())

	if !snap.Running {
		t.Error("Running = false")
	}
	if snap.Progress.Planned != 78 {
		t.Errorf("Planned = %d, want 78", snap.Progress.Planned)
	}
	if snap.Progress.Percent != 50 {
		t.Errorf("Percent = %d, want 50", snap.Progress.Percent)
	}
	if snap.Stage.ActiveLabel != "Full sweep" {
		t.Errorf("ActiveLabel = %q", snap.Stage.ActiveLabel)
	}
}

func TestTickCushionsOverrun(t *testing.T) {
	fp := &fakeProvider{
		status: types.RunStatus{
			Running:           true,
			Phase:             "Fine Tuning",
			ReportedCompleted: 80,
			Config:            sweepConfig(),
		},
	}
	p := New(fp, newMemState(), nil, Options{})

	snap := p.Tick(context.Background())

	if snap.Progress.Planned != 100 {
		t.Errorf("Planned = %d, want cushioned 100", snap.Progress.Planned)
	}
	if snap.Progress.Completed != 80 || snap.Progress.Percent != 80 {
		t.Errorf("Progress = %+v, want 80/100 at 80%%", snap.Progress)
	}
	if snap.Stage.ActiveIndex != 4 {
		t.Errorf("ActiveIndex = %d, want 4 for fine tuning", snap.Stage.ActiveIndex)
	}
}

func TestTickFallbackPercentWithoutMatrix(t *testing.T) {
	fp := &fakeProvider{
		status: types.RunStatus{
			Running:             true,
			Mode:                types.ModeNanoTune,
			ReportedProgressPct: 37.2,
		},
	}
	p := New(fp, newMemState(), nil, Options{})

	snap := p.Tick(context.Background())
	if snap.Progress.Planned != 0 {
		t.Errorf("Planned = %d, want 0 without sweep info", snap.Progress.Planned)
	}
	if snap.Progress.Percent != 37 {
		t.Errorf("Percent = %d, want backend fallback 37", snap.Progress.Percent)
	}
}

func TestTickStageHintSurvivesOmittedPhase(t *testing.T) {
	store := newMemState()
	fp := &fakeProvider{
		status: types.RunStatus{Running: true, Phase: "Generating profiles"},
	}
	p := New(fp, store, nil, Options{})

	p.Tick(context.Background())
	fp.status.Phase = ""
	snap := p.Tick(context.Background())

	if snap.Stage.ActiveIndex != 3 {
		t.Errorf("ActiveIndex = %d, want 3 from persisted hint", snap.Stage.ActiveIndex)
	}
}

func TestTickFleetView(t *testing.T) {
	fp := &fakeProvider{
		devices: []types.Device{
			{Name: "miner1", Online: true, PSUID: "1"},
			{Name: "miner2", Online: true, PSUID: "1"},
		},
		telemetry: map[string]types.Telemetry{
			"miner1": {Power: 28},
			"miner2": {Power: 28},
		},
		psus: []types.PSU{{ID: "1", Name: "Rack A", Wattage: 70}},
	}
	p := New(fp, newMemState(), nil, Options{})

	snap := p.Tick(context.Background())

	if len(snap.PSULoads) != 1 {
		t.Fatalf("PSULoads = %+v, want one entry", snap.PSULoads)
	}
	load := snap.PSULoads[0]
	if len(load.Assigned) != 2 {
		t.Errorf("Assigned = %d devices, want 2", len(load.Assigned))
	}
	if load.LoadPercent != 80 {
		t.Errorf("LoadPercent = %v, want 80", load.LoadPercent)
	}
	// 80% load lands in the danger band.
	if snap.PendingWarnings != 1 {
		t.Errorf("PendingWarnings = %d, want 1", snap.PendingWarnings)
	}
	ev, ok := p.Alerter().Next()
	if !ok || ev.Level != types.LevelDanger {
		t.Errorf("Next() = (%+v, %v), want danger event", ev, ok)
	}
}

func TestTickWarningDedupAcrossPolls(t *testing.T) {
	fp := &fakeProvider{
		devices:   []types.Device{{Name: "miner1", Online: true, PSUID: "1", Power: 60}},
		telemetry: map[string]types.Telemetry{"miner1": {Power: 60}},
		psus:      []types.PSU{{ID: "1", Wattage: 70}},
	}
	p := New(fp, newMemState(), nil, Options{})

	for i := 0; i < 5; i++ {
		p.Tick(context.Background())
	}

	if got := p.Alerter().Pending(); got != 1 {
		t.Errorf("Pending = %d after 5 identical polls, want 1", got)
	}
}

func TestTickPermanentDismissalHolds(t *testing.T) {
	store := newMemState()
	store.dismissed["1-load-danger"] = true

	fp := &fakeProvider{
		devices:   []types.Device{{Name: "miner1", Online: true, PSUID: "1", Power: 60}},
		telemetry: map[string]types.Telemetry{"miner1": {Power: 60}},
		psus:      []types.PSU{{ID: "1", Wattage: 70}},
	}
	p := New(fp, store, nil, Options{})

	for i := 0; i < 3; i++ {
		p.Tick(context.Background())
	}
	if got := p.Alerter().Pending(); got != 0 {
		t.Errorf("Pending = %d, want 0 for permanently dismissed id", got)
	}
}

func TestTickResetsAlertsWhenRunStops(t *testing.T) {
	fp := &fakeProvider{
		status:    types.RunStatus{Running: true, Config: sweepConfig()},
		devices:   []types.Device{{Name: "miner1", Online: true, PSUID: "1", Power: 60}},
		telemetry: map[string]types.Telemetry{"miner1": {Power: 60}},
		psus:      []types.PSU{{ID: "1", Wattage: 70}},
	}
	p := New(fp, newMemState(), nil, Options{})

	p.Tick(context.Background())
	if p.Alerter().Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", p.Alerter().Pending())
	}

	// Run stops: seen-set re-arms, and the same condition on the next
	// run enqueues again.
	fp.status.Running = false
	p.Tick(context.Background())

	fp.status.Running = true
	p.Tick(context.Background())
	if p.Alerter().Pending() != 1 {
		t.Errorf("Pending = %d after re-arm, want 1", p.Alerter().Pending())
	}
}

func TestTickDeviceFailureIsIsolated(t *testing.T) {
	fp := &fakeProvider{
		devices: []types.Device{
			{Name: "dead", Online: true, PSUID: "1"},
			{Name: "alive", Online: true, PSUID: "1"},
		},
		telErr:    map[string]error{"dead": errors.New("connection refused")},
		telemetry: map[string]types.Telemetry{"alive": {Power: 10}},
		psus:      []types.PSU{{ID: "1", Wattage: 1000}},
	}
	p := New(fp, newMemState(), nil, Options{})

	snap := p.Tick(context.Background())

	if len(snap.PSULoads) != 1 || len(snap.PSULoads[0].Assigned) != 2 {
		t.Fatalf("fleet view = %+v, one device failure must not blank it", snap.PSULoads)
	}
	// The dead device raised an offline danger warning.
	found := false
	for ev, ok := p.Alerter().Next(); ok; ev, ok = p.Alerter().Next() {
		if ev.ID == "dead-offline" && ev.Level == types.LevelDanger {
			found = true
		}
		p.Alerter().Dismiss()
	}
	if !found {
		t.Error("expected dead-offline danger warning")
	}
}

func TestTickProviderWideFailureDegrades(t *testing.T) {
	fp := &fakeProvider{
		statusErr:  errors.New("backend down"),
		devicesErr: errors.New("backend down"),
	}
	p := New(fp, newMemState(), nil, Options{})

	snap := p.Tick(context.Background())
	if snap.Running {
		t.Error("Running = true on failed status read")
	}
	if snap.PSULoads != nil {
		t.Errorf("PSULoads = %+v, want none", snap.PSULoads)
	}
}

func TestTickManualOverrideApplied(t *testing.T) {
	store := newMemState()
	store.overrides["miner1"] = "2"

	fp := &fakeProvider{
		devices:   []types.Device{{Name: "miner1", Online: true, PSUID: "1", Power: 10}},
		telemetry: map[string]types.Telemetry{"miner1": {Power: 10}},
		psus:      []types.PSU{{ID: "1", Wattage: 100}, {ID: "2", Wattage: 100}},
	}
	p := New(fp, store, nil, Options{})

	snap := p.Tick(context.Background())
	if len(snap.PSULoads[0].Assigned) != 0 {
		t.Errorf("PSU 1 assigned = %v, override should move the device away", snap.PSULoads[0].Assigned)
	}
	if len(snap.PSULoads[1].Assigned) != 1 {
		t.Errorf("PSU 2 assigned = %v, want the overridden device", snap.PSULoads[1].Assigned)
	}
}

func TestTickPublishesToBroadcaster(t *testing.T) {
	bc := broadcaster.New()
	defer bc.Close()
	sub := bc.Subscribe()

	fp := &fakeProvider{status: types.RunStatus{Running: true, Config: sweepConfig()}}
	p := New(fp, newMemState(), bc, Options{})

	p.Tick(context.Background())

	msg := <-sub.Messages
	if msg.Kind != broadcaster.KindSnapshot || msg.Snapshot == nil {
		t.Fatalf("message = %+v, want snapshot", msg)
	}
	if msg.Snapshot.Progress.Planned != 78 {
		t.Errorf("published Planned = %d, want 78", msg.Snapshot.Progress.Planned)
	}
}

func TestSetInterval(t *testing.T) {
	fp := &fakeProvider{}
	p := New(fp, nil, nil, Options{Interval: 2 * time.Second})

	p.SetInterval(5 * time.Second)
	if got := p.interval(); got != 5*time.Second {
		t.Errorf("interval = %v, want 5s", got)
	}

	// Non-positive values are ignored.
	p.SetInterval(0)
	if got := p.interval(); got != 5*time.Second {
		t.Errorf("interval after SetInterval(0) = %v, want 5s", got)
	}
}
