package guard

import (
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/ppiankov/toolgate/internal/blocklist"
)

// PathPolicy is the immutable path rule set: the roots a path may live under
// and the blocklist consulted before the root check.
type PathPolicy struct {
	Roots     []string
	Blocklist *blocklist.Blocklist
}

// ValidatePath canonicalizes raw and checks it against the policy.
// On success it returns the canonical absolute path; the caller must use that
// form, never the raw input. The only I/O is symlink resolution.
//
// Check order: empty, canonicalize, blocklist, literal "..", root
// containment. The blocklist runs before the allow-list; the literal ".."
// check runs on the original raw string even though canonicalization already
// resolved it, as an independent second line against encodings
// canonicalization might not fully neutralize.
func ValidatePath(raw string, pol PathPolicy) (string, *Rejection) {
	if raw == "" {
		return "", Reject(KindEmptyPath, "path is empty")
	}
	if strings.ContainsRune(raw, 0) {
		return "", Reject(KindMalformedSyntax, "path contains a null byte")
	}

	p := raw
	if !filepath.IsAbs(p) {
		// Relative input resolves against the filesystem root, never the
		// process working directory.
		p = "/" + p
	}
	canonical, err := canonicalize(p)
	if err != nil {
		return "", Reject(KindMalformedSyntax, "path cannot be canonicalized: %v", err)
	}

	if pol.Blocklist.MatchPath(canonical) {
		return "", Reject(KindBlocked, "path matches a blocked pattern")
	}

	if strings.Contains(raw, "..") {
		return "", Reject(KindTraversalDetected, "path contains a traversal sequence")
	}

	if _, ok := containingRoot(canonical, pol.Roots); !ok {
		return "", Reject(KindOutsideAllowedRoots, "path is outside the allowed roots")
	}

	return canonical, nil
}

// canonicalize resolves `.`/`..` segments and symlinks to an absolute,
// lexically normalized path. Symlinks are resolved component-wise against the
// real filesystem; components that do not exist yet stay literal, so targets
// about to be created still canonicalize. A symlink that points outside an
// allowed root is resolved here and caught by the root check afterwards.
func canonicalize(p string) (string, error) {
	cleaned := filepath.Clean(p)
	resolved, err := securejoin.SecureJoin("/", cleaned)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// containingRoot returns the allowed root containing p. Containment is
// directory-boundary-aware: p must equal a root or be a descendant across a
// separator. A plain prefix test is wrong: /tmpfoo is not inside /tmp.
func containingRoot(p string, roots []string) (string, bool) {
	for _, r := range roots {
		r = filepath.Clean(r)
		if p == r {
			return r, true
		}
		if r == "/" {
			return r, true
		}
		if strings.HasPrefix(p, r+string(filepath.Separator)) {
			return r, true
		}
	}
	return "", false
}
