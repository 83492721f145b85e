// Package runner executes validated argv sequences directly, never through a
// shell. The argv it receives has already passed the command validator, so
// metacharacters inside tokens are inert bytes by construction. The runner's
// own contract is the resource side: a hard timeout that kills the child, and
// deterministic truncation of captured output.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"al.essio.dev/pkg/shellescape"
)

// Result captures one subprocess execution.
type Result struct {
	Argv            []string `json:"argv"`
	Stdout          string   `json:"stdout"`
	Stderr          string   `json:"stderr"`
	ExitCode        int      `json:"exit_code"`
	Killed          bool     `json:"killed"`
	StdoutTruncated bool     `json:"stdout_truncated"`
	StderrTruncated bool     `json:"stderr_truncated"`
	DurationMS      int64    `json:"duration_ms"`
}

// Render returns the argv as a copy-pasteable shell line for logs and audit
// records. Rendering is display-only; execution never goes through a shell.
func (r *Result) Render() string {
	return shellescape.QuoteCommand(r.Argv)
}

// Run executes argv with the given timeout and per-stream output cap.
// The timeout is a hard upper bound: on expiry the child is killed and the
// result reports Killed=true, a distinct outcome from a non-zero exit code.
// A non-zero exit is not a Go error; err is reserved for failures to run at
// all (binary missing, permission denied).
func Run(ctx context.Context, argv []string, stdin io.Reader, timeout time.Duration, maxOutputBytes int64) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("runner: empty argv")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout := newCappedBuffer(maxOutputBytes)
	stderr := newCappedBuffer(maxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	res := &Result{
		Argv:            argv,
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		DurationMS:      elapsed.Milliseconds(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.Killed = true
		res.ExitCode = -1
		return res, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				res.ExitCode = status.ExitStatus()
			} else {
				res.ExitCode = exitErr.ExitCode()
			}
			return res, nil
		}
		return nil, fmt.Errorf("runner: %s: %w", argv[0], runErr)
	}

	return res, nil
}

// cappedBuffer keeps at most cap bytes and counts the rest as dropped.
// Writes never fail: a child producing more output than the cap runs to
// completion, only the capture is truncated.
type cappedBuffer struct {
	cap       int64
	buf       []byte
	truncated bool
}

func newCappedBuffer(cap int64) *cappedBuffer {
	return &cappedBuffer{cap: cap}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.cap <= 0 {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}
	room := b.cap - int64(len(b.buf))
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string  { return string(b.buf) }
func (b *cappedBuffer) Truncated() bool { return b.truncated }
