// Package types provides core data types for the fleettune tuning monitor.
// It includes structures for sweep configuration, run status snapshots,
// fleet devices and power supplies, and warning events, along with the
// numeric coercion rules that keep derived math safe on malformed input.
package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Mode identifies the kind of tuning run the backend is executing.
type Mode int

const (
	// ModeBenchmark is a full voltage/frequency sweep benchmark.
	ModeBenchmark Mode = iota
	// ModeAutoTune is the multi-stage automatic tuning workflow.
	ModeAutoTune
	// ModeNanoTune is the fine-grained refinement pass around a known
	// good operating point.
	ModeNanoTune
)

// Mode string constants as reported by the tuning backend.
const (
	modeBenchmark = "benchmark"
	modeAutoTune  = "auto_tune"
	modeNanoTune  = "nano_tune"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeBenchmark:
		return modeBenchmark
	case ModeAutoTune:
		return modeAutoTune
	case ModeNanoTune:
		return modeNanoTune
	default:
		return modeBenchmark
	}
}

// ErrInvalidMode is returned when a mode string could not be parsed.
var ErrInvalidMode = errors.New("invalid tuning mode")

// ParseMode parses a string into a Mode. Valid values are "benchmark",
// "auto_tune", and "nano_tune" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case modeBenchmark:
		return ModeBenchmark, nil
	case modeAutoTune, "autotune":
		return ModeAutoTune, nil
	case modeNanoTune, "nanotune":
		return ModeNanoTune, nil
	default:
		return ModeBenchmark, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// SweepConfig describes the discrete (voltage, frequency) test matrix for
// a sweep. Values arrive from the backend as untrusted numerics; call
// Normalize before doing arithmetic on them.
type SweepConfig struct {
	// VoltageStart is the first voltage test point in millivolts.
	VoltageStart float64 `json:"voltage_start"`

	// VoltageStop is the last voltage test point in millivolts.
	VoltageStop float64 `json:"voltage_stop"`

	// VoltageStep is the voltage increment between test points.
	VoltageStep float64 `json:"voltage_step"`

	// FrequencyStart is the first frequency test point in MHz.
	FrequencyStart float64 `json:"frequency_start"`

	// FrequencyStop is the last frequency test point in MHz.
	FrequencyStop float64 `json:"frequency_stop"`

	// FrequencyStep is the frequency increment between test points.
	FrequencyStep float64 `json:"frequency_step"`

	// CyclesPerTest is how many times each (voltage, frequency) point
	// is measured before moving on.
	CyclesPerTest int `json:"cycles_per_test"`
}

// Normalize returns a copy with malformed numerics coerced to safe values:
// non-finite or negative range bounds become 0, and step values are floored
// to 1 so the test matrix is always computable.
func (c SweepConfig) Normalize() SweepConfig {
	c.VoltageStart = safeNum(c.VoltageStart)
	c.VoltageStop = safeNum(c.VoltageStop)
	c.VoltageStep = safeStep(c.VoltageStep)
	c.FrequencyStart = safeNum(c.FrequencyStart)
	c.FrequencyStop = safeNum(c.FrequencyStop)
	c.FrequencyStep = safeStep(c.FrequencyStep)
	if c.CyclesPerTest < 1 {
		c.CyclesPerTest = 1
	}
	return c
}

// safeNum coerces non-finite or negative values to 0.
func safeNum(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// safeStep coerces a step to at least 1 so point counting never divides
// by zero.
func safeStep(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
		return 1
	}
	return v
}

// RunStatus is one poll's snapshot of the tuning backend. It is transient:
// nothing in it is persisted beyond the current display cycle except the
// stage hint derived from Phase.
type RunStatus struct {
	// Running reports whether a tuning run is active.
	Running bool `json:"running"`

	// Mode is the kind of run in progress.
	Mode Mode `json:"mode"`

	// Phase is the backend's free-text description of the current
	// workflow phase. May be empty; the stage classifier falls back to
	// the persisted hint.
	Phase string `json:"phase,omitempty"`

	// Device is the name of the device being tuned, if known.
	Device string `json:"device,omitempty"`

	// ReportedProgressPct is the backend's own progress percentage.
	// Only trusted when no test matrix is available.
	ReportedProgressPct float64 `json:"reported_progress_pct,omitempty"`

	// ReportedCompleted is the backend's count of finished test points.
	ReportedCompleted int `json:"reported_completed,omitempty"`

	// ReportedTotal is the backend's own declared total test points.
	// Sometimes more accurate than the config-derived count, sometimes
	// zero early in a run.
	ReportedTotal int `json:"reported_total,omitempty"`

	// Config is the sweep configuration for the current run, if any.
	Config *SweepConfig `json:"config,omitempty"`
}

// StageHint is the persisted last-known workflow stage. It is written when
// a run starts and whenever a recognizable phase arrives, and read whenever
// the backend omits a phase string. Stale values are harmless because it is
// only ever a fallback.
type StageHint struct {
	// StageLabel is the resolved label of the last classified stage.
	StageLabel string `json:"stage_label"`

	// NanoEnabled records whether the finishing refinement pass is
	// enabled for the current run.
	NanoEnabled bool `json:"nano_enabled"`
}

// Device is one fleet member as reported by the fleet provider. Name is
// the unique key; the assorted PSU fields are independent hints used by
// assignment resolution, none of them authoritative on its own.
type Device struct {
	// Name uniquely identifies the device within the fleet.
	Name string `json:"name"`

	// IP is the device's address.
	IP string `json:"ip,omitempty"`

	// Model is the hardware model identifier (e.g. "s19", "s21").
	Model string `json:"model,omitempty"`

	// Online reports whether the device answered its last status read.
	Online bool `json:"online"`

	// PSUID is the provider-declared power supply id, if set.
	PSUID string `json:"psu_id,omitempty"`

	// PSUName is the provider-declared power supply name, if set.
	PSUName string `json:"psu_name,omitempty"`

	// PSURef is a nested power supply reference used by some backend
	// versions instead of the flat fields.
	PSURef *PSURef `json:"psu,omitempty"`

	// StatusPSUID is a power supply id carried on the device's status
	// payload by older backends.
	StatusPSUID string `json:"status_psu_id,omitempty"`

	// Power is the device's reported draw in watts, if known.
	Power float64 `json:"power,omitempty"`
}

// PSURef is a nested power supply reference on a Device record.
type PSURef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Telemetry is one device's live status read.
type Telemetry struct {
	// Power is the current draw in watts.
	Power float64 `json:"power"`

	// ChipTemp is the hottest hashboard chip temperature in Celsius.
	ChipTemp float64 `json:"chip_temp"`

	// VRTemp is the hottest voltage-regulator temperature in Celsius.
	VRTemp float64 `json:"vr_temp"`

	// ASICErrors is the count of hardware errors since the last reset.
	ASICErrors int `json:"asic_errors"`

	// PoolFailover reports whether the device has failed over to a
	// backup pool.
	PoolFailover bool `json:"pool_failover"`
}

// PSU is one (possibly shared or virtual) power supply record. Electrical
// specs are optional metadata; missing values are derived where possible.
type PSU struct {
	// ID uniquely identifies the power supply.
	ID string `json:"id"`

	// Name is the user-visible power supply name.
	Name string `json:"name"`

	// Wattage is the rated capacity in watts, if entered.
	Wattage float64 `json:"wattage,omitempty"`

	// Voltage is the output voltage in volts, if entered.
	Voltage float64 `json:"voltage,omitempty"`

	// Amperage is the rated current in amps, if entered.
	Amperage float64 `json:"amperage,omitempty"`

	// Devices, AssignedDevices, and DeviceNames are backend-declared
	// membership lists. Different backend versions populate different
	// fields; assignment resolution checks all of them.
	Devices         []string `json:"devices,omitempty"`
	AssignedDevices []string `json:"assigned_devices,omitempty"`
	DeviceNames     []string `json:"device_names,omitempty"`
}

// MemberNames returns the first non-empty backend-declared membership list.
func (p PSU) MemberNames() []string {
	if len(p.Devices) > 0 {
		return p.Devices
	}
	if len(p.AssignedDevices) > 0 {
		return p.AssignedDevices
	}
	return p.DeviceNames
}

// WarnLevel is the severity of a warning event.
type WarnLevel int

const (
	// LevelWarning is an advisory that needs attention soon.
	LevelWarning WarnLevel = iota
	// LevelDanger is a condition that needs attention now.
	LevelDanger
)

// String returns the string representation of the level.
func (l WarnLevel) String() string {
	if l == LevelDanger {
		return "danger"
	}
	return "warning"
}

// WarningEvent is a user-facing warning raised by the power budget monitor.
// ID is a stable key of the form "<entity>-<condition>"; the alert service
// uses it for deduplication and permanent dismissal.
type WarningEvent struct {
	// ID is the stable dedup key, e.g. "psu1-overload" or "s19-miner3-temp".
	ID string `json:"id"`

	// Title is the short heading shown to the user.
	Title string `json:"title"`

	// Message is the full warning text.
	Message string `json:"message"`

	// Level is the severity.
	Level WarnLevel `json:"level"`
}

// Progress is the reconciled display triple for a tuning run.
type Progress struct {
	// Completed is the number of finished test points, clamped to Planned.
	Completed int `json:"completed"`

	// Planned is the display denominator, possibly cushioned above the
	// backend's declared total.
	Planned int `json:"planned"`

	// Percent is the display percentage in [0, 100].
	Percent int `json:"percent"`
}

// StageView is the classified workflow position for display.
type StageView struct {
	// ActiveIndex is the 1-based index of the active stage.
	ActiveIndex int `json:"active_index"`

	// ActiveLabel is the label of the active stage.
	ActiveLabel string `json:"active_label"`

	// CompletedLabels are the labels of all stages strictly before the
	// active one, in workflow order.
	CompletedLabels []string `json:"completed_labels,omitempty"`
}

// PSULoad is the per-PSU derived view published each tick.
type PSULoad struct {
	// PSU is the power supply this load was computed for.
	PSU PSU `json:"psu"`

	// Assigned are the devices resolved onto this power supply.
	Assigned []Device `json:"assigned"`

	// Wattage is the effective capacity used for the load computation
	// (declared, derived, or summed from device draw).
	Wattage float64 `json:"wattage"`

	// Voltage and Amperage are the known or derived electrical specs.
	// Zero means unknown.
	Voltage  float64 `json:"voltage,omitempty"`
	Amperage float64 `json:"amperage,omitempty"`

	// Hint is a non-authoritative spec suggestion from the model table
	// when both voltage and amperage are unknown.
	Hint string `json:"hint,omitempty"`

	// LoadPercent is the summed device draw as a percentage of Wattage.
	LoadPercent float64 `json:"load_percent"`
}

// Snapshot is the whole derived view published once per poll tick.
type Snapshot struct {
	// Running mirrors the backend's running flag.
	Running bool `json:"running"`

	// Mode is the active run mode, meaningful only while Running.
	Mode Mode `json:"mode"`

	// Device is the device under tune, if known.
	Device string `json:"device,omitempty"`

	// Progress is the reconciled progress triple.
	Progress Progress `json:"progress"`

	// Stage is the classified workflow position.
	Stage StageView `json:"stage"`

	// PSULoads is the per-PSU budget view.
	PSULoads []PSULoad `json:"psu_loads,omitempty"`

	// PendingWarnings is the number of queued, not-yet-shown warnings.
	PendingWarnings int `json:"pending_warnings"`
}
