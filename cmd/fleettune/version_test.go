package main

import "testing"

func TestBuildVersionPrefersLdflags(t *testing.T) {
	old := version
	version = "1.2.3"
	defer func() { version = old }()

	if got := buildVersion(); got != "1.2.3" {
		t.Errorf("buildVersion() = %q, want 1.2.3", got)
	}
}
