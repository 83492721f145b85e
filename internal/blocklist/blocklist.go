// Package blocklist rejects known-dangerous paths, command lines, and URLs
// before any allow-list is consulted. It is defense in depth: the allow-lists
// in the policy remain the primary control, the blocklist catches targets
// that should never be touched even when they land inside an allowed root.
package blocklist

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Patterns is the serialized form of a blocklist, by category.
type Patterns struct {
	Paths    []string `yaml:"paths"`
	Commands []string `yaml:"commands"`
	URLs     []string `yaml:"urls"`
}

// Blocklist holds compiled patterns. Immutable after construction; safe for
// concurrent use. A nil *Blocklist matches nothing.
type Blocklist struct {
	paths    []pathPattern
	commands []*regexp.Regexp
	urls     []*regexp.Regexp
}

// pathPattern is a path entry in matchable form. A pattern without wildcards
// matches the canonical path exactly. A wildcard pattern matches any path
// containing the pattern's trailing fixed portion, or its leading fixed
// portion when the pattern ends with a wildcard. `/home/*/.ssh` therefore
// rejects every path containing `/.ssh`, and `/proc/*` every path under
// `/proc/`. Deliberately overbroad: a blocklist fails closed.
type pathPattern struct {
	raw   string
	exact bool
	fixed string
}

// New compiles the given patterns into a Blocklist. `~/` prefixes in path
// patterns expand to the current user's home directory.
func New(p Patterns) (*Blocklist, error) {
	b := &Blocklist{}
	for _, raw := range p.Paths {
		pp, err := compilePathPattern(raw)
		if err != nil {
			return nil, err
		}
		b.paths = append(b.paths, pp)
	}
	for _, raw := range p.Commands {
		re, err := compileLinePattern(raw)
		if err != nil {
			return nil, fmt.Errorf("command pattern %q: %w", raw, err)
		}
		b.commands = append(b.commands, re)
	}
	for _, raw := range p.URLs {
		re, err := compileLinePattern(raw)
		if err != nil {
			return nil, fmt.Errorf("url pattern %q: %w", raw, err)
		}
		b.urls = append(b.urls, re)
	}
	return b, nil
}

// Build merges extra patterns over the builtin defaults. The defaults always
// apply; configuration can only add.
func Build(extra Patterns) (*Blocklist, error) {
	merged := DefaultPatterns()
	merged.Paths = append(merged.Paths, extra.Paths...)
	merged.Commands = append(merged.Commands, extra.Commands...)
	merged.URLs = append(merged.URLs, extra.URLs...)
	return New(merged)
}

// Default compiles the builtin patterns alone.
func Default() *Blocklist {
	b, err := New(DefaultPatterns())
	if err != nil {
		// The builtin patterns are constants; a compile failure is a bug.
		panic(fmt.Sprintf("blocklist: builtin patterns: %v", err))
	}
	return b
}

// Load reads a Patterns YAML file and merges it over the defaults.
// An empty path returns the defaults.
func Load(path string) (*Blocklist, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse blocklist: %w", err)
	}
	return Build(p)
}

// MatchPath reports whether a canonical absolute path is blocked.
func (b *Blocklist) MatchPath(path string) bool {
	if b == nil {
		return false
	}
	for _, pp := range b.paths {
		if pp.exact {
			if path == pp.raw {
				return true
			}
			continue
		}
		if pp.fixed != "" && strings.Contains(path, pp.fixed) {
			return true
		}
	}
	return false
}

// MatchCommand reports whether a raw command line is blocked.
func (b *Blocklist) MatchCommand(line string) bool {
	if b == nil {
		return false
	}
	for _, re := range b.commands {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// MatchURL reports whether a URL is blocked.
func (b *Blocklist) MatchURL(u string) bool {
	if b == nil {
		return false
	}
	for _, re := range b.urls {
		if re.MatchString(u) {
			return true
		}
	}
	return false
}

func compilePathPattern(raw string) (pathPattern, error) {
	expanded := expandHome(raw)
	if expanded == "" {
		return pathPattern{}, fmt.Errorf("empty path pattern")
	}
	if !strings.Contains(expanded, "*") {
		return pathPattern{raw: filepath.Clean(expanded), exact: true}, nil
	}
	fixed := expanded[strings.LastIndex(expanded, "*")+1:]
	if fixed == "" {
		fixed = expanded[:strings.Index(expanded, "*")]
	}
	if fixed == "" {
		return pathPattern{}, fmt.Errorf("path pattern %q has no fixed portion", raw)
	}
	return pathPattern{raw: expanded, fixed: fixed}, nil
}

// compileLinePattern turns a command/URL pattern into an unanchored regexp:
// a plain pattern matches as a substring, `**` crosses any characters,
// `*` stops at `/`.
func compileLinePattern(raw string) (*regexp.Regexp, error) {
	expr := regexp.QuoteMeta(raw)
	expr = strings.ReplaceAll(expr, `\*\*`, `.*`)
	expr = strings.ReplaceAll(expr, `\*`, `[^/]*`)
	return regexp.Compile(expr)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
