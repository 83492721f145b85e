package profile

import (
	"testing"

	"github.com/ppiankov/toolgate/internal/policy"
)

func TestNamesListsAllPresets(t *testing.T) {
	names := Names()
	want := []string{"readonly", "standard", "trusted"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestGetUnknownProfileFails(t *testing.T) {
	if _, err := Get("paranoid"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestEveryProfileAppliesAndCompiles(t *testing.T) {
	for _, name := range Names() {
		p, err := Get(name)
		if err != nil {
			t.Fatalf("%s: get: %v", name, err)
		}
		cfg := policy.DefaultConfig()
		if err := p.Apply(cfg); err != nil {
			t.Fatalf("%s: apply: %v", name, err)
		}
		if _, err := policy.Build(cfg, "sha256:test"); err != nil {
			t.Fatalf("%s: build: %v", name, err)
		}
	}
}

func TestReadonlyTightensLimits(t *testing.T) {
	p, err := Get("readonly")
	if err != nil {
		t.Fatal(err)
	}
	cfg := policy.DefaultConfig()
	if err := p.Apply(cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Limits.MaxReadBytes >= policy.DefaultConfig().Limits.MaxReadBytes {
		t.Fatal("readonly must shrink the read cap")
	}
	for _, cmd := range cfg.Commands.Allowed {
		if cmd == "echo" {
			t.Fatal("readonly must not include echo")
		}
	}
	for _, verb := range cfg.Git.Verbs {
		if verb == "pull" || verb == "fetch" {
			t.Fatalf("readonly must not include git %s", verb)
		}
	}
}

func TestApplyPreservesUnsetSections(t *testing.T) {
	p, err := Get("readonly")
	if err != nil {
		t.Fatal(err)
	}
	cfg := policy.DefaultConfig()
	cfg.Paths.Roots = []string{"/srv/sandbox"}
	if err := p.Apply(cfg); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Paths.Roots) != 1 || cfg.Paths.Roots[0] != "/srv/sandbox" {
		t.Fatalf("profile must not touch paths, got %v", cfg.Paths.Roots)
	}
}
