// Package progress reconciles a planned test-point total with the backend's
// reported counters into a single display-safe progress triple.
//
// The tuning backend's counters are unreliable in both directions: the
// declared total can undercount (retries, adaptive narrowing push completed
// past it while the run is still active), and the completed count can
// briefly overshoot. A percentage that regresses or sits at 100% while work
// visibly continues erodes trust, so when the backend exceeds its own total
// mid-run the denominator is cushioned upward instead of clamping the
// numerator down.
package progress

import (
	"math"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// cushionFactor is the fraction of the planned base added to the denominator
// when the backend overruns its declared total mid-run.
const cushionFactor = 0.25

// Reconcile merges a planned total with the backend's reported counters.
//
// plannedBase is the planner's output for the current tick. When the run is
// active (running and not complete) and the reported completed count has
// reached or passed plannedBase, the denominator grows to
// completed + max(1, round(plannedBase*0.25)) so the bar keeps moving.
// Outside the cushioned path, completed is clamped to planned so the result
// never exceeds 100%.
//
// reportedPct is the backend's own percentage and is used only when no test
// matrix exists at all (planned <= 0), e.g. a mode without a discrete sweep.
//
// Reconcile is pure; it must be re-applied on every poll because plannedBase
// itself is recomputed each tick.
func Reconcile(plannedBase, reportedCompleted int, reportedPct float64, running, complete bool) types.Progress {
	completed := reportedCompleted
	if completed < 0 {
		completed = 0
	}

	planned := plannedBase
	if running && !complete && plannedBase > 0 && completed >= plannedBase {
		cushion := int(math.Round(float64(plannedBase) * cushionFactor))
		if cushion < 1 {
			cushion = 1
		}
		planned = completed + cushion
	}

	if completed > planned {
		completed = planned
	}

	var percent int
	if planned > 0 {
		percent = clampPct(math.Round(float64(completed) / float64(planned) * 100))
	} else {
		percent = clampPct(math.Round(reportedPct))
	}

	return types.Progress{Completed: completed, Planned: planned, Percent: percent}
}

// clampPct clamps a rounded percentage into [0, 100], treating non-finite
// input as 0.
func clampPct(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
