package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/model"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must fall back to defaults: %v", err)
	}
	if len(cfg.Paths.Roots) == 0 {
		t.Error("default config has no path roots")
	}
	if len(cfg.Commands.Allowed) == 0 {
		t.Error("default config has no allowed commands")
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
paths:
  roots: [/srv/sandbox]
limits:
  max_rows: 50
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Paths.Roots) != 1 || cfg.Paths.Roots[0] != "/srv/sandbox" {
		t.Errorf("roots not overridden: %v", cfg.Paths.Roots)
	}
	if cfg.Limits.MaxRows != 50 {
		t.Errorf("max_rows not overridden: %d", cfg.Limits.MaxRows)
	}
	// Unspecified fields keep their defaults.
	if len(cfg.Commands.Allowed) == 0 {
		t.Error("unspecified commands section lost its defaults")
	}
	if cfg.Limits.DefaultTimeout != "30s" {
		t.Errorf("unspecified default_timeout lost its default: %q", cfg.Limits.DefaultTimeout)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("paths: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("invalid YAML must be an error, not silent defaults")
	}
}

func TestLoadConfigWithHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, hash1, err := LoadConfigWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash1, "sha256:") {
		t.Errorf("hash missing sha256: prefix: %q", hash1)
	}

	_, hash2, _ := LoadConfigWithHash(path)
	if hash1 != hash2 {
		t.Error("hash is not deterministic for identical bytes")
	}

	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, hash3, _ := LoadConfigWithHash(path)
	if hash3 == hash1 {
		t.Error("hash did not change after the file changed")
	}
}

func TestDefaultConfigYAMLParses(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(DefaultConfigYAML()), &cfg); err != nil {
		t.Fatalf("generated default YAML does not parse: %v", err)
	}
	if _, err := Build(&cfg, "sha256:test"); err != nil {
		t.Fatalf("generated default YAML does not compile: %v", err)
	}
}

func TestBuildCompilesPolicy(t *testing.T) {
	cfg := DefaultConfig()
	pol, err := Build(cfg, "sha256:abc")
	if err != nil {
		t.Fatal(err)
	}
	if pol.Hash != "sha256:abc" {
		t.Errorf("hash not carried: %q", pol.Hash)
	}
	if pol.Limits.DefaultTimeout != 30*time.Second {
		t.Errorf("default timeout: %v", pol.Limits.DefaultTimeout)
	}
	if pol.Limits.MaxTimeout != 120*time.Second {
		t.Errorf("max timeout: %v", pol.Limits.MaxTimeout)
	}
	if pol.Paths.Blocklist == nil {
		t.Error("blocklist not compiled")
	}
	if pol.CacheTTL != 24*time.Hour {
		t.Errorf("cache TTL: %v", pol.CacheTTL)
	}

	limit, ok := pol.RateLimits[model.OpExec]
	if !ok {
		t.Fatal("exec.run rate limit not compiled")
	}
	if limit.MaxRequests != 30 || limit.Window != time.Minute {
		t.Errorf("exec.run limit: %+v", limit)
	}
}

func TestBuildRejectsUnknownRateLimitOperation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimits = map[string]string{"exec.typo": "5/1m"}
	if _, err := Build(cfg, ""); err == nil {
		t.Error("a typo in a rate limit key must not silently create an unenforced limit")
	}
}

func TestBuildRejectsMalformedRateSpec(t *testing.T) {
	for _, spec := range []string{"", "30", "/1m", "x/1m", "30/", "30/fast", "-1/1m"} {
		cfg := DefaultConfig()
		cfg.RateLimits = map[string]string{"exec.run": spec}
		if _, err := Build(cfg, ""); err == nil {
			t.Errorf("spec %q must be rejected", spec)
		}
	}
}

func TestBuildRejectsDefaultTimeoutAboveMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.DefaultTimeout = "5m"
	cfg.Limits.MaxTimeout = "1m"
	if _, err := Build(cfg, ""); err == nil {
		t.Error("default timeout above the maximum must be a config error")
	}
}

func TestBuildCleansRoots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.Roots = []string{"/tmp/sandbox/", "", "/data//work"}
	pol, err := Build(cfg, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/tmp/sandbox", "/data/work"}
	if len(pol.Paths.Roots) != len(want) {
		t.Fatalf("roots: %v", pol.Paths.Roots)
	}
	for i, r := range want {
		if pol.Paths.Roots[i] != r {
			t.Errorf("root %d: got %q, want %q", i, pol.Paths.Roots[i], r)
		}
	}
}
