// Package stage classifies the tuning backend's free-text phase string into
// one of five fixed workflow stages. The phase string is chosen by the
// tuning engine and is not a stable enum, so classification is an ordered
// decision table of case-insensitive substring matchers rather than exact
// comparison. Adding a stage is a data change, not a control-flow change.
package stage

import (
	"strings"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// Stage is one entry of the workflow decision table.
type Stage struct {
	// Label is the user-visible stage name.
	Label string

	// Matchers are lower-case substrings; the stage matches when any of
	// them occurs in the effective phase string.
	Matchers []string
}

// Stages is the fixed, ordered five-stage workflow table. Classification
// picks the first stage in table order whose matcher set hits.
var Stages = []Stage{
	{Label: "Full sweep", Matchers: []string{"sweep", "benchmark", "precision"}},
	{Label: "Analyzing data", Matchers: []string{"analyze", "session", "analyzing"}},
	{Label: "Generating profiles", Matchers: []string{"profile", "generate"}},
	{Label: "Nano tuning profiles", Matchers: []string{"nano", "fine", "tune"}},
	{Label: "Finalizing", Matchers: []string{"apply", "final"}},
}

// HintStore persists the last recognized stage label so the workflow view
// survives reloads and polls where the backend omits phase data.
type HintStore interface {
	// StageHint returns the persisted hint, or false when none exists.
	StageHint() (types.StageHint, bool)

	// PutStageHint replaces the persisted hint.
	PutStageHint(types.StageHint) error
}

// Classify resolves a phase string to a workflow stage.
//
// The effective phase is phase when non-empty, otherwise hint, otherwise the
// first stage's label. Matching is case-insensitive substring search in
// table order; no match defaults to stage 1. Classification is total: every
// input, including garbage, yields exactly one stage.
func Classify(phase, hint string) types.StageView {
	effective := strings.TrimSpace(phase)
	if effective == "" {
		effective = strings.TrimSpace(hint)
	}
	if effective == "" {
		effective = Stages[0].Label
	}
	effective = strings.ToLower(effective)

	active := 0
	for i, s := range Stages {
		if matches(s, effective) {
			active = i
			break
		}
	}

	completed := make([]string, 0, active)
	for _, s := range Stages[:active] {
		completed = append(completed, s.Label)
	}

	return types.StageView{
		ActiveIndex:     active + 1,
		ActiveLabel:     Stages[active].Label,
		CompletedLabels: completed,
	}
}

// matches reports whether any of the stage's matchers occurs in the
// lower-cased phase string.
func matches(s Stage, phase string) bool {
	for _, m := range s.Matchers {
		if strings.Contains(phase, m) {
			return true
		}
	}
	return false
}

// Classifier couples Classify with hint persistence. Every poll that
// carries a non-empty phase writes the resolved label back through the
// store so a later poll that omits phase shows forward progress instead of
// resetting to stage 1.
type Classifier struct {
	store HintStore
}

// NewClassifier creates a Classifier backed by the given hint store.
func NewClassifier(store HintStore) *Classifier {
	return &Classifier{store: store}
}

// Classify resolves the phase using the persisted hint as fallback and
// writes the hint through on a recognizable phase. Store write failures are
// swallowed: the hint is an optional fallback, never required state.
func (c *Classifier) Classify(phase string, nanoEnabled bool) types.StageView {
	var hint string
	if c.store != nil {
		if h, ok := c.store.StageHint(); ok {
			hint = h.StageLabel
		}
	}

	view := Classify(phase, hint)

	if c.store != nil && strings.TrimSpace(phase) != "" {
		_ = c.store.PutStageHint(types.StageHint{
			StageLabel:  view.ActiveLabel,
			NanoEnabled: nanoEnabled,
		})
	}

	return view
}
