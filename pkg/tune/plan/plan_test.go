package plan

import (
	"math"
	"testing"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name          string
		cfg           types.SweepConfig
		reportedTotal int
		want          int
	}{
		{
			name: "standard sweep matrix",
			cfg: types.SweepConfig{
				VoltageStart: 1100, VoltageStop: 1200, VoltageStep: 20,
				FrequencyStart: 400, FrequencyStop: 700, FrequencyStep: 25,
				CyclesPerTest: 1,
			},
			want: 78, // 6 voltage points * 13 frequency points
		},
		{
			name: "reported total wins when larger",
			cfg: types.SweepConfig{
				VoltageStart: 1100, VoltageStop: 1200, VoltageStep: 20,
				FrequencyStart: 400, FrequencyStop: 700, FrequencyStep: 25,
				CyclesPerTest: 1,
			},
			reportedTotal: 100,
			want:          100,
		},
		{
			name: "config wins when larger than reported total",
			cfg: types.SweepConfig{
				VoltageStart: 1100, VoltageStop: 1200, VoltageStep: 20,
				FrequencyStart: 400, FrequencyStop: 700, FrequencyStep: 25,
				CyclesPerTest: 1,
			},
			reportedTotal: 50,
			want:          78,
		},
		{
			name: "cycles multiply the matrix",
			cfg: types.SweepConfig{
				VoltageStart: 1100, VoltageStop: 1200, VoltageStep: 20,
				FrequencyStart: 400, FrequencyStop: 700, FrequencyStep: 25,
				CyclesPerTest: 3,
			},
			want: 234,
		},
		{
			name: "degenerate ranges are one-point sweeps",
			cfg: types.SweepConfig{
				VoltageStart: 1200, VoltageStop: 1200, VoltageStep: 20,
				FrequencyStart: 700, FrequencyStop: 400, FrequencyStep: 25,
				CyclesPerTest: 1,
			},
			want: 1,
		},
		{name: "zero config never yields zero", cfg: types.SweepConfig{}, want: 1},
		{name: "negative reported total ignored", cfg: types.SweepConfig{}, reportedTotal: -5, want: 1},
		{
			name: "zero steps coerced instead of dividing by zero",
			cfg: types.SweepConfig{
				VoltageStart: 0, VoltageStop: 10, VoltageStep: 0,
				FrequencyStart: 0, FrequencyStop: 0, FrequencyStep: 0,
				CyclesPerTest: 1,
			},
			want: 11,
		},
		{
			name: "non-finite config degrades to safe defaults",
			cfg: types.SweepConfig{
				VoltageStart: math.NaN(), VoltageStop: math.Inf(1), VoltageStep: math.NaN(),
			},
			reportedTotal: 4,
			want:          4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plan(tt.cfg, tt.reportedTotal); got != tt.want {
				t.Errorf("Plan() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPlanNeverBelowOne(t *testing.T) {
	configs := []types.SweepConfig{
		{},
		{VoltageStart: -100, VoltageStop: -200, VoltageStep: -1},
		{CyclesPerTest: -10},
		{VoltageStart: math.Inf(1), FrequencyStop: math.Inf(-1)},
	}

	for _, cfg := range configs {
		for _, total := range []int{-100, -1, 0} {
			if got := Plan(cfg, total); got < 1 {
				t.Errorf("Plan(%+v, %d) = %d, want >= 1", cfg, total, got)
			}
		}
	}
}

func TestPlanMonotonicInReportedTotal(t *testing.T) {
	cfg := types.SweepConfig{
		VoltageStart: 1100, VoltageStop: 1200, VoltageStep: 20,
		FrequencyStart: 400, FrequencyStop: 700, FrequencyStep: 25,
		CyclesPerTest: 1,
	}

	prev := 0
	for total := 0; total <= 200; total += 10 {
		got := Plan(cfg, total)
		if got < prev {
			t.Fatalf("Plan not monotonic: Plan(cfg, %d) = %d < previous %d", total, got, prev)
		}
		prev = got
	}
}
