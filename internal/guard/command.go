package guard

import (
	shellwords "github.com/mattn/go-shellwords"

	"github.com/ppiankov/toolgate/internal/blocklist"
)

// CommandPolicy is the immutable command rule set: the base commands that may
// run and the blocklist consulted before the allow-list.
type CommandPolicy struct {
	Allowed   []string
	Blocklist *blocklist.Blocklist
}

// ValidateCommand tokenizes raw with shell-word rules and checks it against
// the policy. On success it returns the argv the caller must pass directly to
// process-exec, never through a shell, so metacharacters (`;`, `&&`, `|`,
// backticks, `$()`) inside tokens stay inert. Environment expansion and
// backtick substitution are disabled in the tokenizer itself: `$HOME` and
// backquoted text survive as literal argument bytes.
//
// Any rejection prevents execution entirely; there is no partial execution.
func ValidateCommand(raw string, pol CommandPolicy) ([]string, *Rejection) {
	argv, err := shellwords.Parse(raw)
	if err != nil {
		return nil, Reject(KindMalformedSyntax, "command cannot be tokenized: %v", err)
	}
	if len(argv) == 0 {
		return nil, Reject(KindEmptyCommand, "command is empty")
	}

	if pol.Blocklist.MatchCommand(raw) {
		return nil, Reject(KindBlocked, "command matches a blocked pattern")
	}

	base := argv[0]
	if !member(pol.Allowed, base) {
		return nil, Reject(KindCommandNotAllowed, "command %q is not in the allowed set", base)
	}

	return argv, nil
}

func member(set []string, s string) bool {
	for _, m := range set {
		if m == s {
			return true
		}
	}
	return false
}
