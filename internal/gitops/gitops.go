// Package gitops is the guarded git capability. Only read-leaning verbs from
// the policy allow-list run, only against a repository inside the sandbox
// roots, and never through a shell. Arguments that would make git execute
// arbitrary programs are rejected regardless of verb.
package gitops

import (
	"context"
	"strings"

	"github.com/ppiankov/toolgate/internal/guard"
	"github.com/ppiankov/toolgate/internal/runner"
)

// Service runs policy-checked git commands. Rebuilt on reload.
type Service struct {
	Paths  guard.PathPolicy
	Verbs  []string
	Limits guard.Limits
}

// dangerousOptions are git flags that execute external programs or rewrite
// configuration: allowing any of them turns a read-only verb into arbitrary
// code execution. Matched against the option name before any "=value" part.
var dangerousOptions = []string{
	"-c",
	"--config",
	"--config-env",
	"--exec",
	"--exec-path",
	"--upload-pack",
	"--receive-pack",
	"--git-dir",
	"--work-tree",
	"-C",
	"-e",
	"--output",
	"-o",
	"--open-files-in-pager",
	"-O",
	"--ext-diff",
}

// Run executes one git verb in repo. The verb must be in the policy
// allow-list and repo must canonicalize inside the sandbox roots. Extra args
// pass through after the injection screen. timeoutSeconds zero means the
// policy default.
func (s Service) Run(ctx context.Context, repo, verb string, args []string, timeoutSeconds int) (*runner.Result, error) {
	canonical, rej := guard.ValidatePath(repo, s.Paths)
	if rej != nil {
		return nil, rej
	}
	if verb == "" {
		return nil, guard.Reject(guard.KindEmptyCommand, "git verb is empty")
	}
	if !allowedVerb(s.Verbs, verb) {
		return nil, guard.Reject(guard.KindCommandNotAllowed, "git verb %q is not in the allowed set", verb)
	}
	for _, a := range args {
		if rej := screenArg(a); rej != nil {
			return nil, rej
		}
	}
	timeout, rej := s.Limits.ClampTimeout(timeoutSeconds)
	if rej != nil {
		return nil, rej
	}

	argv := append([]string{"git", "-C", canonical, verb}, args...)
	return runner.Run(ctx, argv, nil, timeout, s.Limits.MaxOutputBytes)
}

// screenArg rejects arguments that smuggle a dangerous option. The name is
// compared before any "=value" suffix so "--upload-pack=/tmp/evil" is caught
// the same as the two-token form.
func screenArg(arg string) *guard.Rejection {
	if !strings.HasPrefix(arg, "-") {
		return nil
	}
	name, _, _ := strings.Cut(arg, "=")
	for _, opt := range dangerousOptions {
		if name == opt {
			return guard.Reject(guard.KindCommandNotAllowed, "git option %q is not permitted", name)
		}
		// Short options take their value attached: -O/tmp/pager.
		if len(opt) == 2 && strings.HasPrefix(arg, opt) {
			return guard.Reject(guard.KindCommandNotAllowed, "git option %q is not permitted", opt)
		}
	}
	return nil
}

func allowedVerb(verbs []string, verb string) bool {
	for _, v := range verbs {
		if v == verb {
			return true
		}
	}
	return false
}
