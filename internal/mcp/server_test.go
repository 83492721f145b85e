package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/toolgate/internal/secrets"
)

func newTestServer(t *testing.T, extraYAML string) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "sandbox")
	os.MkdirAll(root, 0o755)

	keyFile := filepath.Join(dir, "secret.key")
	if err := secrets.WriteKeyFile(keyFile); err != nil {
		t.Fatalf("key file: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`
paths:
  roots: [%s]
sql:
  path: %s
secrets:
  path: %s
  key_file: %s
%s`, root, filepath.Join(dir, "data.db"), filepath.Join(dir, "secrets.db"), keyFile, extraYAML)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	srv, err := New(Config{ConfigPath: cfgPath}, log)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, root
}

func TestFSReadWriteRoundtrip(t *testing.T) {
	srv, root := newTestServer(t, "")
	ctx := context.Background()

	result, wout, err := srv.fsWrite(ctx, nil, FSWriteInput{
		Path:    filepath.Join(root, "notes.txt"),
		Content: "hello",
	})
	if err != nil {
		t.Fatalf("fs_write: %v", err)
	}
	if result != nil {
		t.Fatalf("fs_write refused: %+v", wout.Refusal)
	}
	if wout.BytesWritten != 5 {
		t.Fatalf("bytes_written = %d, want 5", wout.BytesWritten)
	}

	result, rout, err := srv.fsRead(ctx, nil, FSReadInput{Path: filepath.Join(root, "notes.txt")})
	if err != nil {
		t.Fatalf("fs_read: %v", err)
	}
	if result != nil {
		t.Fatalf("fs_read refused: %+v", rout.Refusal)
	}
	if rout.Content != "hello" {
		t.Fatalf("content = %q, want hello", rout.Content)
	}
}

func TestFSReadTraversalIsErrorResult(t *testing.T) {
	srv, root := newTestServer(t, "")

	result, out, err := srv.fsRead(context.Background(), nil, FSReadInput{
		Path: root + "/../escape.txt",
	})
	if err != nil {
		t.Fatalf("policy refusal must not be a protocol error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result")
	}
	if !out.Blocked {
		t.Fatal("output must carry blocked=true")
	}
	if out.Kind != "TraversalDetected" {
		t.Fatalf("kind = %q, want TraversalDetected", out.Kind)
	}
	if out.Class != "PolicyViolation" {
		t.Fatalf("class = %q, want PolicyViolation", out.Class)
	}
}

func TestFSReadMissingFileIsNotFound(t *testing.T) {
	srv, root := newTestServer(t, "")

	result, out, err := srv.fsRead(context.Background(), nil, FSReadInput{
		Path: filepath.Join(root, "absent.txt"),
	})
	if err != nil {
		t.Fatalf("missing file must not be a protocol error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result")
	}
	if out.Kind != "NotFound" {
		t.Fatalf("kind = %q, want NotFound", out.Kind)
	}
}

func TestExecMetacharactersAreInert(t *testing.T) {
	srv, _ := newTestServer(t, "")

	result, out, err := srv.execRun(context.Background(), nil, ExecInput{
		Command: `echo "one; two && three"`,
	})
	if err != nil {
		t.Fatalf("exec_run: %v", err)
	}
	if result != nil {
		t.Fatalf("exec refused: %+v", out.Refusal)
	}
	if out.Stdout != "one; two && three\n" {
		t.Fatalf("stdout = %q", out.Stdout)
	}
	if out.ExitCode != 0 {
		t.Fatalf("exit code = %d", out.ExitCode)
	}
}

func TestExecBlockedCommand(t *testing.T) {
	srv, _ := newTestServer(t, "")

	result, out, err := srv.execRun(context.Background(), nil, ExecInput{Command: "rm -rf /"})
	if err != nil {
		t.Fatalf("refusal must not be a protocol error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result")
	}
	if out.Kind != "Blocked" {
		t.Fatalf("kind = %q, want Blocked", out.Kind)
	}
}

func TestSQLSelectRefusesReservedTable(t *testing.T) {
	srv, _ := newTestServer(t, "")

	result, out, err := srv.sqlSelect(context.Background(), nil, SQLSelectInput{Table: "pg_shadow"})
	if err != nil {
		t.Fatalf("refusal must not be a protocol error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result")
	}
	if out.Kind != "SystemReserved" {
		t.Fatalf("kind = %q, want SystemReserved", out.Kind)
	}
}

func TestSecretRoundtrip(t *testing.T) {
	srv, _ := newTestServer(t, "")
	ctx := context.Background()

	if result, out, err := srv.secretSet(ctx, nil, SecretSetInput{Name: "api_token", Value: "s3cret"}); err != nil || result != nil {
		t.Fatalf("secret_set: err=%v refusal=%+v", err, out.Refusal)
	}

	result, out, err := srv.secretGet(ctx, nil, SecretGetInput{Name: "api_token"})
	if err != nil || result != nil {
		t.Fatalf("secret_get: err=%v refusal=%+v", err, out.Refusal)
	}
	if out.Value != "s3cret" {
		t.Fatalf("value = %q", out.Value)
	}
}

func TestCacheDisabledBackend(t *testing.T) {
	srv, _ := newTestServer(t, "")

	result, out, err := srv.cacheGet(context.Background(), nil, CacheGetInput{Key: "k"})
	if err != nil {
		t.Fatalf("disabled backend must not be a protocol error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result")
	}
	if out.Kind != "UpstreamFailure" {
		t.Fatalf("kind = %q, want UpstreamFailure", out.Kind)
	}
}

func TestRateLimitRefusal(t *testing.T) {
	srv, root := newTestServer(t, "rate_limits:\n  fs.stat: 1/1m\n")
	ctx := context.Background()
	in := FSStatInput{Path: root}

	if result, out, err := srv.fsStat(ctx, nil, in); err != nil || result != nil {
		t.Fatalf("first call: err=%v refusal=%+v", err, out.Refusal)
	}

	result, out, err := srv.fsStat(ctx, nil, in)
	if err != nil {
		t.Fatalf("rate limit must not be a protocol error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result")
	}
	if out.Kind != "RateLimited" {
		t.Fatalf("kind = %q, want RateLimited", out.Kind)
	}
	if out.Cap <= 0 {
		t.Fatalf("cap = %d, want retry hint", out.Cap)
	}
}
