package stage

import (
	"testing"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		phase         string
		hint          string
		wantIndex     int
		wantLabel     string
		wantCompleted int
	}{
		{
			name:  "benchmark phase is stage one",
			phase: "Running benchmark", wantIndex: 1, wantLabel: "Full sweep",
		},
		{
			name:  "precision sweep is stage one",
			phase: "Precision sweep pass 2", wantIndex: 1, wantLabel: "Full sweep",
		},
		{
			name:  "analyzing is stage two",
			phase: "Analyzing session data", wantIndex: 2, wantLabel: "Analyzing data",
			wantCompleted: 1,
		},
		{
			name:  "profile generation is stage three",
			phase: "Generating 4 profiles: Quiet...", wantIndex: 3, wantLabel: "Generating profiles",
			wantCompleted: 2,
		},
		{
			name:  "fine tuning is stage four",
			phase: "Fine Tuning", wantIndex: 4, wantLabel: "Nano tuning profiles",
			wantCompleted: 3,
		},
		{
			name:  "applying is stage five",
			phase: "Applying best profile", wantIndex: 5, wantLabel: "Finalizing",
			wantCompleted: 4,
		},
		{
			name:  "first match in table order wins",
			phase: "auto tune sweep", wantIndex: 1, wantLabel: "Full sweep",
		},
		{
			name:  "case insensitive",
			phase: "NANO PASS 3", wantIndex: 4, wantLabel: "Nano tuning profiles",
			wantCompleted: 3,
		},
		{
			name:  "garbage defaults to stage one",
			phase: "!!@@##", wantIndex: 1, wantLabel: "Full sweep",
		},
		{
			name: "empty phase falls back to hint",
			hint: "Generating profiles", wantIndex: 3, wantLabel: "Generating profiles",
			wantCompleted: 2,
		},
		{
			name:  "whitespace phase falls back to hint",
			phase: "   ", hint: "Finalizing", wantIndex: 5, wantLabel: "Finalizing",
			wantCompleted: 4,
		},
		{
			name:      "no phase and no hint defaults to stage one",
			wantIndex: 1, wantLabel: "Full sweep",
		},
		{
			name:  "phase takes precedence over hint",
			phase: "apply", hint: "Full sweep", wantIndex: 5, wantLabel: "Finalizing",
			wantCompleted: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.phase, tt.hint)
			if got.ActiveIndex != tt.wantIndex {
				t.Errorf("ActiveIndex = %d, want %d", got.ActiveIndex, tt.wantIndex)
			}
			if got.ActiveLabel != tt.wantLabel {
				t.Errorf("ActiveLabel = %q, want %q", got.ActiveLabel, tt.wantLabel)
			}
			if len(got.CompletedLabels) != tt.wantCompleted {
				t.Errorf("CompletedLabels = %v, want %d entries", got.CompletedLabels, tt.wantCompleted)
			}
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	inputs := []string{"", " ", "zzz", "123", "\x00\x01", "sweepanalyzeprofile", "ApPlY"}
	for _, in := range inputs {
		got := Classify(in, "")
		if got.ActiveIndex < 1 || got.ActiveIndex > len(Stages) {
			t.Errorf("Classify(%q) index = %d, out of range", in, got.ActiveIndex)
		}
		if got.ActiveLabel == "" {
			t.Errorf("Classify(%q) returned empty label", in)
		}
	}
}

// memHints is an in-memory HintStore for classifier tests.
type memHints struct {
	hint types.StageHint
	set  bool
	puts int
}

func (m *memHints) StageHint() (types.StageHint, bool) { return m.hint, m.set }

func (m *memHints) PutStageHint(h types.StageHint) error {
	m.hint = h
	m.set = true
	m.puts++
	return nil
}

func TestClassifierWritesHintOnRecognizablePhase(t *testing.T) {
	store := &memHints{}
	c := NewClassifier(store)

	view := c.Classify("Analyzing session data", true)
	if view.ActiveLabel != "Analyzing data" {
		t.Fatalf("ActiveLabel = %q", view.ActiveLabel)
	}
	if !store.set {
		t.Fatal("expected hint write")
	}
	if store.hint.StageLabel != "Analyzing data" {
		t.Errorf("hint label = %q, want %q", store.hint.StageLabel, "Analyzing data")
	}
	if !store.hint.NanoEnabled {
		t.Error("hint should record nano enabled")
	}
}

func TestClassifierFallsBackToStoredHint(t *testing.T) {
	store := &memHints{hint: types.StageHint{StageLabel: "Generating profiles"}, set: true}
	c := NewClassifier(store)

	view := c.Classify("", false)
	if view.ActiveLabel != "Generating profiles" {
		t.Errorf("ActiveLabel = %q, want fallback to stored hint", view.ActiveLabel)
	}
	if store.puts != 0 {
		t.Errorf("empty phase should not overwrite hint, got %d writes", store.puts)
	}
}

func TestClassifierSurvivesNilStore(t *testing.T) {
	c := NewClassifier(nil)
	view := c.Classify("nano pass", false)
	if view.ActiveLabel != "Nano tuning profiles" {
		t.Errorf("ActiveLabel = %q", view.ActiveLabel)
	}
}

func TestClassifierForwardProgressAcrossOmittedPhase(t *testing.T) {
	store := &memHints{}
	c := NewClassifier(store)

	c.Classify("Generating profiles", false)
	// Backend omits phase on the next poll; the view must not reset to
	// stage one.
	view := c.Classify("", false)
	if view.ActiveIndex != 3 {
		t.Errorf("ActiveIndex = %d, want 3 after hint fallback", view.ActiveIndex)
	}
}
