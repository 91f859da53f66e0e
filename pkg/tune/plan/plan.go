// Package plan computes the size of a sweep's discrete test matrix.
// The planned count is the display denominator for progress reconciliation;
// it combines the config-derived matrix size with the backend's own declared
// total, whichever promises more work.
package plan

import (
	"math"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// Plan returns the total number of discrete test points for a sweep.
//
// Each axis contributes floor((stop-start)/step)+1 points when the range is
// ascending, and exactly one point otherwise: a sweep with a fixed value is
// a valid 1-point sweep, not an empty one. The product is multiplied by the
// cycle count and then raised to the backend's reported total if that is
// larger. The backend total sometimes includes retries or adaptive narrowing
// the config cannot predict, and is sometimes zero early in a run; taking
// the maximum never under-promises.
//
// The result is always >= 1.
func Plan(cfg types.SweepConfig, reportedTotal int) int {
	cfg = cfg.Normalize()

	vCount := axisPoints(cfg.VoltageStart, cfg.VoltageStop, cfg.VoltageStep)
	fCount := axisPoints(cfg.FrequencyStart, cfg.FrequencyStop, cfg.FrequencyStep)

	cycles := cfg.CyclesPerTest
	if cycles < 1 {
		cycles = 1
	}

	planned := vCount * fCount * cycles
	if reportedTotal > planned {
		planned = reportedTotal
	}
	if planned < 1 {
		planned = 1
	}
	return planned
}

// axisPoints counts test points along one axis. A degenerate range
// (stop <= start) is a single fixed point.
func axisPoints(start, stop, step float64) int {
	if stop <= start {
		return 1
	}
	return int(math.Floor((stop-start)/step)) + 1
}
