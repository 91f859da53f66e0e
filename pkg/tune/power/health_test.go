package power

import (
	"testing"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

func TestCheckLoad(t *testing.T) {
	psu := types.PSU{ID: "1", Name: "Rack A", Wattage: 70}

	tests := []struct {
		name      string
		draw      float64
		wantLevel types.WarnLevel
		wantNil   bool
	}{
		{name: "below warning band", draw: 48, wantNil: true},
		{name: "just under warning band", draw: 48.9, wantNil: true},
		{name: "warning band start", draw: 49, wantLevel: types.LevelWarning},
		{name: "inside warning band", draw: 52, wantLevel: types.LevelWarning},
		{name: "danger band start", draw: 56, wantLevel: types.LevelDanger},
		{name: "overloaded past capacity", draw: 90, wantLevel: types.LevelDanger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devices := []types.Device{{Name: "miner1", Power: tt.draw}}
			got := CheckLoad(psu, devices)

			if tt.wantNil {
				if got != nil {
					t.Fatalf("CheckLoad(%vW of 70W) = %+v, want nil", tt.draw, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("CheckLoad(%vW of 70W) = nil, want %v", tt.draw, tt.wantLevel)
			}
			if got.Level != tt.wantLevel {
				t.Errorf("Level = %v, want %v", got.Level, tt.wantLevel)
			}
			if got.ID == "" {
				t.Error("warning must carry a stable id")
			}
		})
	}
}

func TestCheckLoadUnknownCapacity(t *testing.T) {
	psu := types.PSU{ID: "1"}
	if got := CheckLoad(psu, nil); got != nil {
		t.Errorf("CheckLoad with no capacity = %+v, want nil", got)
	}
}

func TestCheckLoadStableIDsPerBand(t *testing.T) {
	psu := types.PSU{ID: "psu1", Wattage: 100}

	warn := CheckLoad(psu, []types.Device{{Name: "a", Power: 72}})
	danger := CheckLoad(psu, []types.Device{{Name: "a", Power: 85}})

	if warn == nil || danger == nil {
		t.Fatal("expected events in both bands")
	}
	if warn.ID == danger.ID {
		t.Errorf("warning and danger bands must have distinct ids, both %q", warn.ID)
	}
	again := CheckLoad(psu, []types.Device{{Name: "a", Power: 86}})
	if again.ID != danger.ID {
		t.Errorf("same band must reuse the id: %q vs %q", again.ID, danger.ID)
	}
}

func TestCheckDeviceHealth(t *testing.T) {
	th := Thresholds{ChipTempAlert: 90, VRTempAlert: 100}

	tests := []struct {
		name    string
		dev     types.Device
		tel     types.Telemetry
		wantIDs []string
	}{
		{
			name: "healthy device",
			dev:  types.Device{Name: "m1", Online: true},
			tel:  types.Telemetry{ChipTemp: 70, VRTemp: 80},
		},
		{
			name:    "chip temp at threshold",
			dev:     types.Device{Name: "m1", Online: true},
			tel:     types.Telemetry{ChipTemp: 90},
			wantIDs: []string{"m1-chip-temp"},
		},
		{
			name:    "vr temp over threshold",
			dev:     types.Device{Name: "m1", Online: true},
			tel:     types.Telemetry{VRTemp: 101},
			wantIDs: []string{"m1-vr-temp"},
		},
		{
			name:    "asic errors",
			dev:     types.Device{Name: "m1", Online: true},
			tel:     types.Telemetry{ASICErrors: 3},
			wantIDs: []string{"m1-asic-errors"},
		},
		{
			name:    "offline is danger",
			dev:     types.Device{Name: "m1"},
			wantIDs: []string{"m1-offline"},
		},
		{
			name:    "pool failover",
			dev:     types.Device{Name: "m1", Online: true},
			tel:     types.Telemetry{PoolFailover: true},
			wantIDs: []string{"m1-pool-failover"},
		},
		{
			name:    "all conditions fire independently",
			dev:     types.Device{Name: "m1"},
			tel:     types.Telemetry{ChipTemp: 95, VRTemp: 105, ASICErrors: 1, PoolFailover: true},
			wantIDs: []string{"m1-chip-temp", "m1-vr-temp", "m1-asic-errors", "m1-offline", "m1-pool-failover"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckDeviceHealth(tt.dev, tt.tel, th)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d events %v, want ids %v", len(got), got, tt.wantIDs)
			}
			for i, ev := range got {
				if ev.ID != tt.wantIDs[i] {
					t.Errorf("events[%d].ID = %q, want %q", i, ev.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestCheckDeviceHealthOfflineLevel(t *testing.T) {
	events := CheckDeviceHealth(types.Device{Name: "m1"}, types.Telemetry{}, Thresholds{})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Level != types.LevelDanger {
		t.Errorf("offline level = %v, want danger", events[0].Level)
	}
}

func TestCheckDeviceHealthDisabledThresholds(t *testing.T) {
	// Zero thresholds disable the temperature checks entirely.
	events := CheckDeviceHealth(
		types.Device{Name: "m1", Online: true},
		types.Telemetry{ChipTemp: 500, VRTemp: 500},
		Thresholds{},
	)
	if len(events) != 0 {
		t.Errorf("got %v, want none with disabled thresholds", events)
	}
}
