package power

import (
	"fmt"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// Load thresholds. Non-overlapping bands so the level is unambiguous at
// every load value.
const (
	// LoadWarnPercent is where the advisory warning band starts.
	LoadWarnPercent = 70.0

	// LoadDangerPercent is where the danger band starts.
	LoadDangerPercent = 80.0
)

// Thresholds configures the per-device health checks.
type Thresholds struct {
	// ChipTempAlert is the chip temperature in Celsius at or above which
	// a warning is raised.
	ChipTempAlert float64

	// VRTempAlert is the voltage-regulator temperature in Celsius at or
	// above which a warning is raised.
	VRTempAlert float64
}

// CheckLoad evaluates a PSU's load against the hysteresis bands and returns
// a warning event, or nil below the warning band or when the capacity is
// unknown (wattage <= 0).
func CheckLoad(psu types.PSU, assigned []types.Device) *types.WarningEvent {
	m := DeriveMetrics(psu, assigned)
	if m.Wattage <= 0 {
		return nil
	}

	load := LoadPercent(m.Wattage, assigned)
	switch {
	case load >= LoadDangerPercent:
		return &types.WarningEvent{
			ID:    psu.ID + "-load-danger",
			Title: "PSU overloaded",
			Message: fmt.Sprintf("%s is at %.0f%% of its %.0fW capacity. Shed load or redistribute devices now.",
				psuLabel(psu), load, m.Wattage),
			Level: types.LevelDanger,
		}
	case load >= LoadWarnPercent:
		return &types.WarningEvent{
			ID:    psu.ID + "-load-warning",
			Title: "PSU load high",
			Message: fmt.Sprintf("%s is at %.0f%% of its %.0fW capacity. Consider redistributing devices.",
				psuLabel(psu), load, m.Wattage),
			Level: types.LevelWarning,
		}
	default:
		return nil
	}
}

// CheckDeviceHealth evaluates every per-device health condition against the
// device's latest telemetry. Checks are independent; all of them run every
// poll and each returns its own stable-id event.
func CheckDeviceHealth(dev types.Device, tel types.Telemetry, th Thresholds) []types.WarningEvent {
	var events []types.WarningEvent

	if th.ChipTempAlert > 0 && tel.ChipTemp >= th.ChipTempAlert {
		events = append(events, types.WarningEvent{
			ID:    dev.Name + "-chip-temp",
			Title: "Chip temperature high",
			Message: fmt.Sprintf("%s chip temperature is %.1f°C (alert at %.1f°C).",
				dev.Name, tel.ChipTemp, th.ChipTempAlert),
			Level: types.LevelWarning,
		})
	}

	if th.VRTempAlert > 0 && tel.VRTemp >= th.VRTempAlert {
		events = append(events, types.WarningEvent{
			ID:    dev.Name + "-vr-temp",
			Title: "Voltage regulator temperature high",
			Message: fmt.Sprintf("%s VR temperature is %.1f°C (alert at %.1f°C).",
				dev.Name, tel.VRTemp, th.VRTempAlert),
			Level: types.LevelWarning,
		})
	}

	if tel.ASICErrors > 0 {
		events = append(events, types.WarningEvent{
			ID:    dev.Name + "-asic-errors",
			Title: "ASIC errors detected",
			Message: fmt.Sprintf("%s reported %d ASIC errors since last reset.",
				dev.Name, tel.ASICErrors),
			Level: types.LevelWarning,
		})
	}

	if !dev.Online {
		events = append(events, types.WarningEvent{
			ID:      dev.Name + "-offline",
			Title:   "Device unreachable",
			Message: fmt.Sprintf("%s is not responding to status reads.", dev.Name),
			Level:   types.LevelDanger,
		})
	}

	if tel.PoolFailover {
		events = append(events, types.WarningEvent{
			ID:      dev.Name + "-pool-failover",
			Title:   "Pool failover active",
			Message: fmt.Sprintf("%s has failed over to its backup pool.", dev.Name),
			Level:   types.LevelWarning,
		})
	}

	return events
}

// psuLabel prefers the user-visible name, falling back to the id.
func psuLabel(psu types.PSU) string {
	if psu.Name != "" {
		return psu.Name
	}
	return "PSU " + psu.ID
}
