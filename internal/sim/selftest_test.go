package sim

import (
	"strings"
	"testing"

	"github.com/ppiankov/toolgate/internal/policy"
)

func defaultPolicy(t *testing.T) *policy.Policy {
	t.Helper()
	pol, err := policy.Build(policy.DefaultConfig(), "sha256:test")
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	return pol
}

func TestDefaultPolicyRejectsEveryProbe(t *testing.T) {
	report := Run(defaultPolicy(t))

	if !report.OK() {
		t.Fatalf("corpus leaked through the default policy:\n%s", report.Format())
	}
	if len(report.Outcomes) < 15 {
		t.Fatalf("corpus suspiciously small: %d probes", len(report.Outcomes))
	}
	for _, o := range report.Outcomes {
		if o.Kind == "" {
			t.Fatalf("probe %q rejected without a kind", o.Name)
		}
	}
}

func TestLoosenedPolicyFailsTheCorpus(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.SQL.Schemas = append(cfg.SQL.Schemas, "information_schema")
	pol, err := policy.Build(cfg, "sha256:test")
	if err != nil {
		t.Fatal(err)
	}

	report := Run(pol)
	if report.OK() {
		t.Fatal("expected the loosened policy to fail at least one probe")
	}
	if report.Failed != 1 {
		t.Fatalf("expected exactly 1 failure, got %d:\n%s", report.Failed, report.Format())
	}
}

func TestFormatNamesFailures(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.SQL.Schemas = append(cfg.SQL.Schemas, "information_schema")
	pol, err := policy.Build(cfg, "sha256:test")
	if err != nil {
		t.Fatal(err)
	}

	out := Run(pol).Format()
	if !strings.Contains(out, "FAIL") {
		t.Fatalf("expected FAIL line in:\n%s", out)
	}
	if !strings.Contains(out, "unknown schema") {
		t.Fatalf("expected failing probe name in:\n%s", out)
	}
}

func TestBoundaryProbeUsesConfiguredRoot(t *testing.T) {
	report := Run(defaultPolicy(t))

	found := false
	for _, o := range report.Outcomes {
		if o.Name == "root boundary sibling" {
			found = true
			if !o.Rejected {
				t.Fatalf("boundary probe accepted: %q", o.Payload)
			}
		}
	}
	if !found {
		t.Fatal("boundary probe missing from corpus")
	}
}
