package policy

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/toolgate/internal/blocklist"
	"github.com/ppiankov/toolgate/internal/guard"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/ratelimit"
)

// FetchPolicy is the compiled egress rule set for web.fetch.
type FetchPolicy struct {
	Methods      []string
	AllowPrivate bool
	Blocklist    *blocklist.Blocklist
}

// Policy is the compiled, immutable form of a Config. All wildcard patterns
// are compiled and all durations parsed exactly once, at construction.
// Concurrent readers share a Policy without locking; a reload builds a fresh
// Policy and swaps the pointer.
type Policy struct {
	Paths      guard.PathPolicy
	Commands   guard.CommandPolicy
	GitVerbs   []string
	Ident      guard.IdentPolicy
	Limits     guard.Limits
	Fetch      FetchPolicy
	CacheTTL   time.Duration
	RateLimits map[model.Operation]ratelimit.Limit
	Hash       string
}

// Build compiles a Config into a Policy. Roots are lexically cleaned here;
// full canonicalization happens per request in the path validator.
func Build(cfg *Config, hash string) (*Policy, error) {
	bl, err := blocklist.Build(cfg.Blocklist)
	if err != nil {
		return nil, fmt.Errorf("compile blocklist: %w", err)
	}

	limits, err := buildLimits(cfg.Limits)
	if err != nil {
		return nil, err
	}

	rates, err := buildRateLimits(cfg.RateLimits)
	if err != nil {
		return nil, err
	}

	cacheTTL := time.Duration(0)
	if cfg.Cache.MaxTTL != "" {
		cacheTTL, err = time.ParseDuration(cfg.Cache.MaxTTL)
		if err != nil {
			return nil, fmt.Errorf("cache.max_ttl: %w", err)
		}
	}

	roots := make([]string, 0, len(cfg.Paths.Roots))
	for _, r := range cfg.Paths.Roots {
		if r == "" {
			continue
		}
		roots = append(roots, filepath.Clean(r))
	}

	return &Policy{
		Paths: guard.PathPolicy{
			Roots:     roots,
			Blocklist: bl,
		},
		Commands: guard.CommandPolicy{
			Allowed:   cfg.Commands.Allowed,
			Blocklist: bl,
		},
		GitVerbs: cfg.Git.Verbs,
		Ident: guard.IdentPolicy{
			MaxLen:           cfg.SQL.MaxIdentLen,
			ReservedPrefixes: cfg.SQL.ReservedPrefixes,
			Schemas:          cfg.SQL.Schemas,
		},
		Limits: limits,
		Fetch: FetchPolicy{
			Methods:      cfg.Fetch.Methods,
			AllowPrivate: cfg.Fetch.AllowPrivate,
			Blocklist:    bl,
		},
		CacheTTL:   cacheTTL,
		RateLimits: rates,
		Hash:       hash,
	}, nil
}

// Load reads the config at path (empty means the default location) and
// compiles it.
func Load(path string) (*Policy, error) {
	cfg, hash, err := LoadConfigWithHash(path)
	if err != nil {
		return nil, err
	}
	return Build(cfg, hash)
}

func buildLimits(lc LimitsConfig) (guard.Limits, error) {
	def, err := time.ParseDuration(orDefault(lc.DefaultTimeout, "30s"))
	if err != nil {
		return guard.Limits{}, fmt.Errorf("limits.default_timeout: %w", err)
	}
	max, err := time.ParseDuration(orDefault(lc.MaxTimeout, "120s"))
	if err != nil {
		return guard.Limits{}, fmt.Errorf("limits.max_timeout: %w", err)
	}
	if def > max {
		return guard.Limits{}, fmt.Errorf("limits: default_timeout %s exceeds max_timeout %s", def, max)
	}
	return guard.Limits{
		MaxReadBytes:   lc.MaxReadBytes,
		MaxOutputBytes: lc.MaxOutputBytes,
		MaxValueBytes:  lc.MaxValueBytes,
		MaxRows:        lc.MaxRows,
		MaxEntries:     lc.MaxEntries,
		DefaultTimeout: def,
		MaxTimeout:     max,
	}, nil
}

// buildRateLimits parses "<count>/<window>" entries keyed by operation name.
// Unknown operation names are a config error: a typo must not silently
// create an unenforced limit.
func buildRateLimits(raw map[string]string) (map[model.Operation]ratelimit.Limit, error) {
	out := make(map[model.Operation]ratelimit.Limit, len(raw))
	for name, spec := range raw {
		op, ok := model.ParseOperation(name)
		if !ok {
			return nil, fmt.Errorf("rate_limits: unknown operation %q", name)
		}
		limit, err := parseRate(spec)
		if err != nil {
			return nil, fmt.Errorf("rate_limits.%s: %w", name, err)
		}
		out[op] = limit
	}
	return out, nil
}

func parseRate(spec string) (ratelimit.Limit, error) {
	count, window, ok := strings.Cut(spec, "/")
	if !ok {
		return ratelimit.Limit{}, fmt.Errorf("want <count>/<window>, got %q", spec)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return ratelimit.Limit{}, fmt.Errorf("bad count in %q", spec)
	}
	d, err := time.ParseDuration(strings.TrimSpace(window))
	if err != nil || d <= 0 {
		return ratelimit.Limit{}, fmt.Errorf("bad window in %q", spec)
	}
	return ratelimit.Limit{MaxRequests: n, Window: d}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
