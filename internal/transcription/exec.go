package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

const (
	stderrTailBytes = 4096
	oomExitCode     = 137
)

// processError carries the classified outcome of a failed subprocess.
type processError struct {
	name    string
	failure *ProcessFailure
	cause   error
}

func (e *processError) Error() string {
	return fmt.Sprintf("%s: %v", e.name, e.cause)
}

func (e *processError) Unwrap() error {
	return e.cause
}

type command struct {
	path   string
	args   []string
	env    []string
	stdin  io.Reader
	stdout io.Writer
}

// run executes cmd and classifies any failure. Only the tail of stderr is kept.
func run(ctx context.Context, c command) error {
	stderr := newTailBuffer(stderrTailBytes)
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	if len(c.env) > 0 {
		cmd.Env = c.env
	}
	cmd.Stdin = c.stdin
	cmd.Stdout = c.stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	return classify(ctx, c.path, err, stderr.String())
}

func classify(ctx context.Context, name string, err error, stderr string) *processError {
	failure := &ProcessFailure{ExitCode: -1, Stderr: strings.TrimSpace(stderr)}
	if ctx.Err() != nil {
		failure.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		failure.ExitCode = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			failure.Signal = ws.Signal().String()
			failure.Killed = ws.Signal() == syscall.SIGKILL
		}
		if failure.ExitCode == oomExitCode {
			failure.Killed = true
		}
		// a deadline kill is reported as a timeout, not as resource exhaustion
		if failure.TimedOut {
			failure.Killed = false
		}
		return &processError{name: name, failure: failure, cause: fmt.Errorf("process exited abnormally: %w", err)}
	}
	if ctx.Err() != nil {
		return &processError{name: name, failure: failure, cause: ctx.Err()}
	}
	return &processError{name: name, failure: failure, cause: fmt.Errorf("start process: %w", err)}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
