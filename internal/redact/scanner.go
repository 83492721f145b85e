// Package redact scrubs secret material from text the gateway is about to
// surface: command output, fetched bodies, audit details. Scrubbing is
// pattern-based and fail-open on structure (unrecognized text passes
// through), fail-closed on matches (a match is always replaced, never
// partially).
package redact

import (
	"fmt"
	"regexp"
)

// rule names one secret shape.
type rule struct {
	name string
	re   *regexp.Regexp
}

// Builtin secret patterns. Ordered roughly by specificity: the precise
// vendor shapes first, the generic key=value sweep last.
var rules = []rule{
	{"AWS_ACCESS_KEY", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"GITHUB_TOKEN", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"SLACK_TOKEN", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
	{"OPENAI_KEY", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`)},
	{"JWT", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`)},
	{"BEARER", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{16,}=*`)},
	{"PRIVATE_KEY", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	{"SECRET_KV", regexp.MustCompile(`(?i)\b(?:password|passwd|secret|token|api_key|apikey)[ \t]*[=:][ \t]*\S+`)},
}

// Scanner applies the builtin rules. The zero value is not usable; call
// NewScanner.
type Scanner struct {
	rules []rule
}

// NewScanner returns a Scanner with the builtin rules.
func NewScanner() *Scanner {
	return &Scanner{rules: rules}
}

// Scrub replaces every match with a [REDACTED:RULE] marker and returns the
// scrubbed text plus the number of replacements. A nil Scanner passes text
// through untouched.
func (s *Scanner) Scrub(text string) (string, int) {
	if s == nil {
		return text, 0
	}
	total := 0
	for _, r := range s.rules {
		text = r.re.ReplaceAllStringFunc(text, func(string) string {
			total++
			return fmt.Sprintf("[REDACTED:%s]", r.name)
		})
	}
	return text, total
}

// Found returns the names of the rules matching text, in rule order, without
// modifying anything.
func (s *Scanner) Found(text string) []string {
	if s == nil {
		return nil
	}
	var names []string
	for _, r := range s.rules {
		if r.re.MatchString(text) {
			names = append(names, r.name)
		}
	}
	return names
}
