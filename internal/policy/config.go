// Package policy loads the gateway configuration from YAML and freezes it
// into an immutable Policy. The Policy is constructed once (per load or
// reload), never mutated, and shared lock-free by every request handler.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/alert"
	"github.com/ppiankov/toolgate/internal/blocklist"
)

// PathsConfig lists the directories the filesystem operations may touch.
type PathsConfig struct {
	Roots []string `yaml:"roots"`
}

// CommandsConfig lists the base commands exec may run.
type CommandsConfig struct {
	Allowed []string `yaml:"allowed"`
}

// GitConfig lists the git verbs git.run may invoke.
type GitConfig struct {
	Verbs []string `yaml:"verbs"`
}

// SQLConfig configures the SQLite-backed query service.
type SQLConfig struct {
	Path             string   `yaml:"path"`
	Schemas          []string `yaml:"schemas"`
	ReservedPrefixes []string `yaml:"reserved_prefixes"`
	MaxIdentLen      int      `yaml:"max_ident_len"`
}

// CacheConfig configures the Redis cache wrapper. An empty addr disables the
// cache operations.
type CacheConfig struct {
	Addr      string `yaml:"addr"`
	DB        int    `yaml:"db"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
	MaxTTL    string `yaml:"max_ttl"`
}

// SecretsConfig configures the encrypted secret store. An empty path disables
// the secret operations.
type SecretsConfig struct {
	Path    string `yaml:"path"`
	KeyFile string `yaml:"key_file"`
}

// FetchConfig configures the outbound HTTP egress gate.
type FetchConfig struct {
	Methods      []string `yaml:"methods"`
	AllowPrivate bool     `yaml:"allow_private"`
}

// LimitsConfig holds the resource caps. Durations are Go duration strings.
type LimitsConfig struct {
	MaxReadBytes   int64  `yaml:"max_read_bytes"`
	MaxOutputBytes int64  `yaml:"max_output_bytes"`
	MaxValueBytes  int64  `yaml:"max_value_bytes"`
	MaxRows        int    `yaml:"max_rows"`
	MaxEntries     int    `yaml:"max_entries"`
	DefaultTimeout string `yaml:"default_timeout"`
	MaxTimeout     string `yaml:"max_timeout"`
}

// ServerConfig configures the HTTP façade.
type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

// LogConfig configures daemon logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuditConfig configures the hash-chained decision log. An empty path
// disables auditing.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// RedactConfig configures output scrubbing. Audit details are always
// scrubbed; Outputs additionally scrubs exec and fetch output.
type RedactConfig struct {
	Outputs bool `yaml:"outputs"`
}

// Config is the serialized gateway configuration.
type Config struct {
	Paths      PathsConfig          `yaml:"paths"`
	Commands   CommandsConfig       `yaml:"commands"`
	Git        GitConfig            `yaml:"git"`
	SQL        SQLConfig            `yaml:"sql"`
	Cache      CacheConfig          `yaml:"cache"`
	Secrets    SecretsConfig        `yaml:"secrets"`
	Fetch      FetchConfig          `yaml:"fetch"`
	Limits     LimitsConfig         `yaml:"limits"`
	Blocklist  blocklist.Patterns   `yaml:"blocklist"`
	RateLimits map[string]string    `yaml:"rate_limits"`
	Alerts     []alert.Config       `yaml:"alerts"`
	Server     ServerConfig         `yaml:"server"`
	Log        LogConfig            `yaml:"log"`
	Audit      AuditConfig          `yaml:"audit"`
	Redact     RedactConfig         `yaml:"redact"`
}

// DefaultConfig returns the built-in configuration: a small sandbox under
// /tmp, a read-mostly command set, and conservative caps.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Roots: []string{"/tmp/toolgate"},
		},
		Commands: CommandsConfig{
			Allowed: []string{"echo", "ls", "cat", "head", "tail", "grep", "find", "wc", "date", "uname"},
		},
		Git: GitConfig{
			Verbs: []string{"status", "log", "diff", "show", "branch", "fetch", "pull"},
		},
		SQL: SQLConfig{
			Path:             "",
			Schemas:          []string{"main", "temp"},
			ReservedPrefixes: []string{"pg_", "sqlite_"},
			MaxIdentLen:      63,
		},
		Cache: CacheConfig{
			KeyPrefix: "toolgate",
			MaxTTL:    "24h",
		},
		Fetch: FetchConfig{
			Methods: []string{"GET", "HEAD"},
		},
		Limits: LimitsConfig{
			MaxReadBytes:   1 << 20,
			MaxOutputBytes: 1 << 20,
			MaxValueBytes:  256 << 10,
			MaxRows:        1000,
			MaxEntries:     1000,
			DefaultTimeout: "30s",
			MaxTimeout:     "120s",
		},
		RateLimits: map[string]string{
			"exec.run":  "30/1m",
			"web.fetch": "60/1m",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Redact: RedactConfig{
			Outputs: true,
		},
	}
}

// DefaultPath returns ~/.toolgate/config.yaml, or empty when the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".toolgate", "config.yaml")
}

// LoadConfig loads configuration from a YAML file. Empty path falls back to
// ~/.toolgate/config.yaml. Missing file returns defaults. Invalid YAML
// returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads configuration and returns the SHA-256 of the raw
// YAML bytes on disk. When no file exists (defaults used), the hash is the
// SHA-256 of empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) || path == "" {
			return DefaultConfig(), hashBytes(nil), nil
		}
		return nil, "", fmt.Errorf("read config: %w", err)
	}

	// Start with defaults; YAML overwrites only specified fields.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("parse config: %w", err)
	}

	return cfg, hashBytes(data), nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultConfigYAML returns a commented YAML string for `toolgate init`.
func DefaultConfigYAML() string {
	return `# toolgate configuration
# Generated by: toolgate init
#
# Every request is validated against this file before the wrapped capability
# is touched. Allow-lists are the primary control; the blocklist section adds
# deny patterns on top of the built-in ones (it can only add, never remove).

# Directories filesystem operations may touch. Paths are canonicalized
# (symlinks resolved) before the containment check, so a symlink pointing
# outside a root is rejected.
paths:
  roots:
    - /tmp/toolgate

# Base commands exec.run may start. Arguments are tokenized with shell-word
# rules and passed directly to process-exec; no shell is ever involved.
commands:
  allowed: [echo, ls, cat, head, tail, grep, find, wc, date, uname]

# Git verbs git.run may invoke inside an allowed root.
git:
  verbs: [status, log, diff, show, branch, fetch, pull]

# SQLite-backed query service. Leave path empty to disable sql.* operations.
sql:
  path: ""
  schemas: [main, temp]
  reserved_prefixes: [pg_, sqlite_]
  max_ident_len: 63

# Redis cache. Leave addr empty to disable cache.* operations.
cache:
  addr: ""
  db: 0
  key_prefix: toolgate
  max_ttl: 24h

# Encrypted secret store. Leave path empty to disable secret.* operations.
secrets:
  path: ""
  key_file: ""

# Outbound HTTP egress gate.
fetch:
  methods: [GET, HEAD]
  allow_private: false

# Resource caps. Callers may request smaller caps per call; requesting more
# than the maximum is an input error, never a silent clamp.
limits:
  max_read_bytes: 1048576
  max_output_bytes: 1048576
  max_value_bytes: 262144
  max_rows: 1000
  max_entries: 1000
  default_timeout: 30s
  max_timeout: 120s

# Extra deny patterns, merged over the built-in ones.
blocklist:
  paths: []
  commands: []
  urls: []

# Sliding-window rate limits per operation, as "<count>/<window>".
rate_limits:
  exec.run: 30/1m
  web.fetch: 60/1m

# HTTP façade. Set token to require "Authorization: Bearer <token>".
server:
  addr: 127.0.0.1:8787
  token: ""

log:
  level: info
  format: text

# Hash-chained decision log. Leave path empty to disable.
audit:
  path: ""

redact:
  outputs: true

# Webhooks fired on deny decisions.
# alerts:
#   - url: https://hooks.example.com/toolgate
#     format: generic
#     events: [deny]
alerts: []
`
}
