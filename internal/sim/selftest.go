// Package sim runs a canned attack corpus against a loaded policy. Every
// probe is a payload the gateway must reject; a probe that slips through
// means the policy (or a validator) has a hole. `toolgate selftest` runs this
// before a deployment goes live.
package sim

import (
	"fmt"

	"github.com/ppiankov/toolgate/internal/guard"
	"github.com/ppiankov/toolgate/internal/policy"
)

// Surface names the validator a probe targets.
type Surface string

const (
	SurfacePath    Surface = "path"
	SurfaceCommand Surface = "command"
	SurfaceIdent   Surface = "ident"
	SurfaceSchema  Surface = "schema"
)

// Probe is one payload that must be rejected.
type Probe struct {
	Name    string
	Surface Surface
	Payload string
}

// Outcome is the result of one probe.
type Outcome struct {
	Probe
	Rejected bool
	Kind     guard.Kind
}

// Report summarizes a corpus run.
type Report struct {
	Outcomes []Outcome
	Failed   int
}

// OK reports whether every probe was rejected.
func (r *Report) OK() bool { return r.Failed == 0 }

// corpus returns the probes for the given policy. Path probes that depend on
// the configured roots are built against the first root.
func corpus(pol *policy.Policy) []Probe {
	probes := []Probe{
		{"relative traversal", SurfacePath, "../../etc/passwd"},
		{"absolute shadow file", SurfacePath, "/etc/shadow"},
		{"embedded traversal", SurfacePath, "/tmp/toolgate/../../etc/passwd"},
		{"ssh key directory", SurfacePath, "/home/user/.ssh/id_rsa"},
		{"proc filesystem", SurfacePath, "/proc/self/environ"},
		{"null byte", SurfacePath, "/tmp/toolgate/a\x00b"},

		{"recursive root delete", SurfaceCommand, "rm -rf /"},
		{"chained destructive", SurfaceCommand, "echo test; rm -rf /"},
		{"pipe to shell", SurfaceCommand, "cat setup.txt | sh"},
		{"disk overwrite", SurfaceCommand, "dd if=/dev/zero of=/dev/sda"},
		{"fork bomb", SurfaceCommand, ":(){ :|:& };:"},
		{"disallowed binary", SurfaceCommand, "nc -l 4444"},

		{"stacked query", SurfaceIdent, "users; DROP TABLE users--"},
		{"quoted breakout", SurfaceIdent, `users" OR "1"="1`},
		{"postgres system table", SurfaceIdent, "pg_stat_activity"},
		{"sqlite system table", SurfaceIdent, "sqlite_master"},

		{"unknown schema", SurfaceSchema, "information_schema"},
		{"schema with dot", SurfaceSchema, "main.users"},
	}

	if len(pol.Paths.Roots) > 0 {
		root := pol.Paths.Roots[0]
		probes = append(probes, Probe{
			// /tmp/toolgate must not admit /tmp/toolgatefoo.
			Name:    "root boundary sibling",
			Surface: SurfacePath,
			Payload: root + "foo/escape.txt",
		})
	}
	return probes
}

// Run fires the corpus at pol and reports every probe's outcome.
func Run(pol *policy.Policy) *Report {
	report := &Report{}
	for _, probe := range corpus(pol) {
		var rej *guard.Rejection
		switch probe.Surface {
		case SurfacePath:
			_, rej = guard.ValidatePath(probe.Payload, pol.Paths)
		case SurfaceCommand:
			_, rej = guard.ValidateCommand(probe.Payload, pol.Commands)
		case SurfaceIdent:
			_, rej = guard.ValidateIdentifier(probe.Payload, pol.Ident)
		case SurfaceSchema:
			_, rej = guard.ValidateSchemaName(probe.Payload, pol.Ident)
		}

		out := Outcome{Probe: probe, Rejected: rej != nil}
		if rej != nil {
			out.Kind = rej.Kind
		} else {
			report.Failed++
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	return report
}

// Format renders the report as human-readable lines.
func (r *Report) Format() string {
	var out string
	for _, o := range r.Outcomes {
		if o.Rejected {
			out += fmt.Sprintf("PASS  %-24s %-8s rejected (%s)\n", o.Name, o.Surface, o.Kind)
		} else {
			out += fmt.Sprintf("FAIL  %-24s %-8s ACCEPTED: %q\n", o.Name, o.Surface, o.Payload)
		}
	}
	out += fmt.Sprintf("%d probes, %d failed\n", len(r.Outcomes), r.Failed)
	return out
}
