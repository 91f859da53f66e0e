package state

import (
	"path/filepath"
	"testing"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStageHintRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, ok := s.StageHint(); ok {
		t.Fatal("expected no hint in fresh store")
	}

	want := types.StageHint{StageLabel: "Analyzing data", NanoEnabled: true}
	if err := s.PutStageHint(want); err != nil {
		t.Fatalf("PutStageHint failed: %v", err)
	}

	got, ok := s.StageHint()
	if !ok {
		t.Fatal("expected hint after write")
	}
	if got != want {
		t.Errorf("StageHint() = %+v, want %+v", got, want)
	}
}

func TestStageHintOverwrite(t *testing.T) {
	s := openTestStore(t)

	_ = s.PutStageHint(types.StageHint{StageLabel: "Full sweep"})
	_ = s.PutStageHint(types.StageHint{StageLabel: "Finalizing"})

	got, ok := s.StageHint()
	if !ok || got.StageLabel != "Finalizing" {
		t.Errorf("StageHint() = %+v, want Finalizing (last writer wins)", got)
	}
}

func TestDismissedSet(t *testing.T) {
	s := openTestStore(t)

	if s.Dismissed("psu1-load-danger") {
		t.Fatal("fresh store should have nothing dismissed")
	}

	if err := s.PutDismissed("psu1-load-danger"); err != nil {
		t.Fatalf("PutDismissed failed: %v", err)
	}
	if !s.Dismissed("psu1-load-danger") {
		t.Error("expected id to be dismissed after write")
	}
	if s.Dismissed("psu2-load-danger") {
		t.Error("unrelated id must not be dismissed")
	}

	ids, err := s.DismissedIDs()
	if err != nil {
		t.Fatalf("DismissedIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "psu1-load-danger" {
		t.Errorf("DismissedIDs() = %v", ids)
	}
}

func TestOverrides(t *testing.T) {
	s := openTestStore(t)

	overrides, err := s.Overrides()
	if err != nil {
		t.Fatalf("Overrides failed: %v", err)
	}
	if len(overrides) != 0 {
		t.Fatalf("fresh store overrides = %v, want empty", overrides)
	}

	if err := s.PutOverride("miner1", "3"); err != nil {
		t.Fatalf("PutOverride failed: %v", err)
	}
	if err := s.PutOverride("miner2", ""); err != nil {
		t.Fatalf("PutOverride standalone failed: %v", err)
	}

	overrides, err = s.Overrides()
	if err != nil {
		t.Fatal(err)
	}
	if overrides["miner1"] != "3" {
		t.Errorf("overrides[miner1] = %q, want %q", overrides["miner1"], "3")
	}
	if v, ok := overrides["miner2"]; !ok || v != "" {
		t.Errorf("overrides[miner2] = (%q, %v), want explicit standalone entry", v, ok)
	}

	if err := s.DeleteOverride("miner1"); err != nil {
		t.Fatalf("DeleteOverride failed: %v", err)
	}
	overrides, _ = s.Overrides()
	if _, ok := overrides["miner1"]; ok {
		t.Error("miner1 override should be gone")
	}
	if _, ok := overrides["miner2"]; !ok {
		t.Error("miner2 override should survive unrelated delete")
	}
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.PutDismissed("x")
	_ = s.PutStageHint(types.StageHint{StageLabel: "Generating profiles"})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if !s.Dismissed("x") {
		t.Error("dismissed set should survive reopen")
	}
	hint, ok := s.StageHint()
	if !ok || hint.StageLabel != "Generating profiles" {
		t.Errorf("StageHint() = (%+v, %v) after reopen", hint, ok)
	}
}
