// Package policydiff compares two configurations and classifies each change
// as loosening or tightening. Reviewing a policy change means reading this
// diff, not two YAML files side by side.
package policydiff

import (
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/toolgate/internal/policy"
)

// Direction classifies a change by its effect on the attack surface.
type Direction string

const (
	// Looser widens what the gateway permits.
	Looser Direction = "looser"
	// Stricter narrows it.
	Stricter Direction = "stricter"
	// Neutral changes neither, like a renamed webhook.
	Neutral Direction = "neutral"
)

// Change is one difference between two configurations.
type Change struct {
	Section   string
	Detail    string
	Direction Direction
}

// Diff compares old and new configurations section by section.
func Diff(oldCfg, newCfg *policy.Config) []Change {
	var changes []Change

	changes = append(changes, diffSet("paths.roots", oldCfg.Paths.Roots, newCfg.Paths.Roots, Looser, Stricter)...)
	changes = append(changes, diffSet("commands.allowed", oldCfg.Commands.Allowed, newCfg.Commands.Allowed, Looser, Stricter)...)
	changes = append(changes, diffSet("git.verbs", oldCfg.Git.Verbs, newCfg.Git.Verbs, Looser, Stricter)...)
	changes = append(changes, diffSet("sql.schemas", oldCfg.SQL.Schemas, newCfg.SQL.Schemas, Looser, Stricter)...)
	changes = append(changes, diffSet("fetch.methods", oldCfg.Fetch.Methods, newCfg.Fetch.Methods, Looser, Stricter)...)

	// Blocklist entries invert: adding one tightens.
	changes = append(changes, diffSet("blocklist.paths", oldCfg.Blocklist.Paths, newCfg.Blocklist.Paths, Stricter, Looser)...)
	changes = append(changes, diffSet("blocklist.commands", oldCfg.Blocklist.Commands, newCfg.Blocklist.Commands, Stricter, Looser)...)
	changes = append(changes, diffSet("blocklist.urls", oldCfg.Blocklist.URLs, newCfg.Blocklist.URLs, Stricter, Looser)...)

	if oldCfg.Fetch.AllowPrivate != newCfg.Fetch.AllowPrivate {
		dir := Stricter
		if newCfg.Fetch.AllowPrivate {
			dir = Looser
		}
		changes = append(changes, Change{"fetch.allow_private",
			fmt.Sprintf("%t -> %t", oldCfg.Fetch.AllowPrivate, newCfg.Fetch.AllowPrivate), dir})
	}

	changes = append(changes, diffLimits(oldCfg.Limits, newCfg.Limits)...)
	changes = append(changes, diffRates(oldCfg.RateLimits, newCfg.RateLimits)...)

	return changes
}

// diffSet reports added and removed members. added/removed name the
// direction an addition/removal moves the policy.
func diffSet(section string, oldSet, newSet []string, added, removed Direction) []Change {
	var changes []Change
	oldIdx := index(oldSet)
	newIdx := index(newSet)

	for _, v := range sorted(newSet) {
		if !oldIdx[v] {
			changes = append(changes, Change{section, "+ " + v, added})
		}
	}
	for _, v := range sorted(oldSet) {
		if !newIdx[v] {
			changes = append(changes, Change{section, "- " + v, removed})
		}
	}
	return changes
}

func diffLimits(o, n policy.LimitsConfig) []Change {
	var changes []Change
	num := func(field string, ov, nv int64) {
		if ov == nv {
			return
		}
		dir := Stricter
		if nv > ov || nv == 0 {
			dir = Looser
		}
		changes = append(changes, Change{"limits." + field, fmt.Sprintf("%d -> %d", ov, nv), dir})
	}
	num("max_read_bytes", o.MaxReadBytes, n.MaxReadBytes)
	num("max_output_bytes", o.MaxOutputBytes, n.MaxOutputBytes)
	num("max_value_bytes", o.MaxValueBytes, n.MaxValueBytes)
	num("max_rows", int64(o.MaxRows), int64(n.MaxRows))
	num("max_entries", int64(o.MaxEntries), int64(n.MaxEntries))

	dur := func(field, ov, nv string) {
		if ov == nv {
			return
		}
		dir := Neutral
		od, oerr := time.ParseDuration(ov)
		nd, nerr := time.ParseDuration(nv)
		if oerr == nil && nerr == nil {
			if nd > od {
				dir = Looser
			} else {
				dir = Stricter
			}
		}
		changes = append(changes, Change{"limits." + field, fmt.Sprintf("%s -> %s", ov, nv), dir})
	}
	dur("default_timeout", o.DefaultTimeout, n.DefaultTimeout)
	dur("max_timeout", o.MaxTimeout, n.MaxTimeout)
	return changes
}

func diffRates(oldRates, newRates map[string]string) []Change {
	var changes []Change
	for _, op := range sortedKeys(newRates) {
		ov, had := oldRates[op]
		nv := newRates[op]
		switch {
		case !had:
			changes = append(changes, Change{"rate_limits", fmt.Sprintf("+ %s: %s", op, nv), Stricter})
		case ov != nv:
			changes = append(changes, Change{"rate_limits", fmt.Sprintf("%s: %s -> %s", op, ov, nv), Neutral})
		}
	}
	for _, op := range sortedKeys(oldRates) {
		if _, still := newRates[op]; !still {
			changes = append(changes, Change{"rate_limits", fmt.Sprintf("- %s (no limit)", op), Looser})
		}
	}
	return changes
}

func index(set []string) map[string]bool {
	idx := make(map[string]bool, len(set))
	for _, v := range set {
		idx[v] = true
	}
	return idx
}

func sorted(set []string) []string {
	out := append([]string(nil), set...)
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
