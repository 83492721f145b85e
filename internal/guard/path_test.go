package guard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/toolgate/internal/blocklist"
)

// canonicalTemp returns a fresh temp dir with symlinks resolved, so it can be
// used verbatim as an allowed root.
func canonicalTemp(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestValidatePathEmpty(t *testing.T) {
	_, rej := ValidatePath("", PathPolicy{Roots: []string{"/tmp"}})
	if rej == nil || rej.Kind != KindEmptyPath {
		t.Errorf("expected EmptyPath, got %v", rej)
	}
}

func TestValidatePathNullByte(t *testing.T) {
	_, rej := ValidatePath("/tmp/a\x00b", PathPolicy{Roots: []string{"/tmp"}})
	if rej == nil || rej.Kind != KindMalformedSyntax {
		t.Errorf("expected MalformedSyntax, got %v", rej)
	}
}

func TestValidatePathAcceptsRootItself(t *testing.T) {
	root := canonicalTemp(t)
	got, rej := ValidatePath(root, PathPolicy{Roots: []string{root}})
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if got != root {
		t.Errorf("expected %q, got %q", root, got)
	}
}

func TestValidatePathAcceptsDescendant(t *testing.T) {
	root := canonicalTemp(t)
	file := filepath.Join(root, "sub", "file.txt")
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, rej := ValidatePath(file, PathPolicy{Roots: []string{root}})
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if got != file {
		t.Errorf("expected %q, got %q", file, got)
	}
}

func TestValidatePathAcceptsNotYetCreatedTarget(t *testing.T) {
	root := canonicalTemp(t)
	target := filepath.Join(root, "new", "out.txt")

	got, rej := ValidatePath(target, PathPolicy{Roots: []string{root}})
	if rej != nil {
		t.Fatalf("a write target that does not exist yet must validate: %v", rej)
	}
	if got != target {
		t.Errorf("expected %q, got %q", target, got)
	}
}

func TestValidatePathRelativeResolvesAgainstRoot(t *testing.T) {
	root := canonicalTemp(t)
	rel := strings.TrimPrefix(filepath.Join(root, "f.txt"), "/")

	got, rej := ValidatePath(rel, PathPolicy{Roots: []string{root}})
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if got != filepath.Join(root, "f.txt") {
		t.Errorf("relative input should resolve against /: got %q", got)
	}
}

// Root matching is directory-boundary-aware, not a string prefix test.
func TestValidatePathBoundaryNotPrefix(t *testing.T) {
	root := canonicalTemp(t)
	probe := root + "foo"

	_, rej := ValidatePath(probe, PathPolicy{Roots: []string{root}})
	if rej == nil || rej.Kind != KindOutsideAllowedRoots {
		t.Errorf("%q must not match root %q: got %v", probe, root, rej)
	}
}

func TestValidatePathTraversalEscape(t *testing.T) {
	pol := PathPolicy{Roots: []string{"/tmp", "/data"}}
	_, rej := ValidatePath("../../etc/passwd", pol)
	if rej == nil {
		t.Fatal("traversal payload must be rejected")
	}
	if rej.Kind != KindTraversalDetected && rej.Kind != KindOutsideAllowedRoots {
		t.Errorf("expected TraversalDetected or OutsideAllowedRoots, got %s", rej.Kind)
	}
}

// Literal ".." is rejected even when the canonical form stays inside a root.
func TestValidatePathLiteralDotDotInsideRoot(t *testing.T) {
	root := canonicalTemp(t)
	raw := filepath.Join(root, "a", "..", "b")

	_, rej := ValidatePath(raw, PathPolicy{Roots: []string{root}})
	if rej == nil || rej.Kind != KindTraversalDetected {
		t.Errorf("expected TraversalDetected for %q, got %v", raw, rej)
	}
}

// The blocklist is consulted before the allow-list and rejects paths that are
// nominally inside an allowed root.
func TestValidatePathBlockedInsideRoot(t *testing.T) {
	root := canonicalTemp(t)
	bl, err := blocklist.New(blocklist.Patterns{Paths: []string{"*/.env"}})
	if err != nil {
		t.Fatal(err)
	}

	_, rej := ValidatePath(filepath.Join(root, ".env"), PathPolicy{Roots: []string{root}, Blocklist: bl})
	if rej == nil || rej.Kind != KindBlocked {
		t.Errorf("expected Blocked, got %v", rej)
	}
}

func TestValidatePathBlockedWinsOverOutsideRoots(t *testing.T) {
	bl := blocklist.Default()
	_, rej := ValidatePath("/etc/shadow", PathPolicy{Roots: []string{"/tmp"}, Blocklist: bl})
	if rej == nil || rej.Kind != KindBlocked {
		t.Errorf("blocklist check runs before the root check: got %v", rej)
	}
}

// A symlink inside a root that resolves outside it must be rejected:
// canonicalization follows the link before the root check runs.
func TestValidatePathSymlinkEscape(t *testing.T) {
	root := canonicalTemp(t)
	outside := canonicalTemp(t)
	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, rej := ValidatePath(link, PathPolicy{Roots: []string{root}})
	if rej == nil || rej.Kind != KindOutsideAllowedRoots {
		t.Errorf("symlink escaping the root must be rejected: got %v", rej)
	}

	_, rej = ValidatePath(filepath.Join(link, "f.txt"), PathPolicy{Roots: []string{root}})
	if rej == nil || rej.Kind != KindOutsideAllowedRoots {
		t.Errorf("path under an escaping symlink must be rejected: got %v", rej)
	}
}

func TestValidatePathSymlinkInsideRootAccepted(t *testing.T) {
	root := canonicalTemp(t)
	real := filepath.Join(root, "real")
	if err := os.Mkdir(real, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "ln")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, rej := ValidatePath(link, PathPolicy{Roots: []string{root}})
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if got != real {
		t.Errorf("expected symlink resolved to %q, got %q", real, got)
	}
}

func TestValidatePathIdempotent(t *testing.T) {
	root := canonicalTemp(t)
	pol := PathPolicy{Roots: []string{root}, Blocklist: blocklist.Default()}

	for _, raw := range []string{filepath.Join(root, "f"), "../../etc/passwd", "", root + "foo"} {
		got1, rej1 := ValidatePath(raw, pol)
		got2, rej2 := ValidatePath(raw, pol)
		if got1 != got2 {
			t.Errorf("%q: values differ across calls: %q vs %q", raw, got1, got2)
		}
		if (rej1 == nil) != (rej2 == nil) {
			t.Errorf("%q: outcome differs across calls", raw)
			continue
		}
		if rej1 != nil && rej1.Kind != rej2.Kind {
			t.Errorf("%q: kinds differ across calls: %s vs %s", raw, rej1.Kind, rej2.Kind)
		}
	}
}

func TestContainingRoot(t *testing.T) {
	roots := []string{"/tmp", "/data/work"}
	cases := []struct {
		path string
		want bool
	}{
		{"/tmp", true},
		{"/tmp/x", true},
		{"/tmp/x/y", true},
		{"/tmpfoo", false},
		{"/data/work", true},
		{"/data/workspace", false},
		{"/data", false},
		{"/", false},
	}
	for _, c := range cases {
		if _, got := containingRoot(c.path, roots); got != c.want {
			t.Errorf("containingRoot(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func BenchmarkValidatePath(b *testing.B) {
	pol := PathPolicy{Roots: []string{"/tmp"}, Blocklist: blocklist.Default()}
	for i := 0; i < b.N; i++ {
		ValidatePath("/tmp/work/data/file.txt", pol)
	}
}
