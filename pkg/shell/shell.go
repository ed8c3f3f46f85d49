package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Result holds the captured output of a finished command
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError is returned for a command that ran and exited non-zero
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with code %d", e.Cmd, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Cmd, e.Code, msg)
}

// Runner runs external commands: exit 0 is success, anything else is an *ExitError
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
	// Start launches a process detached from this one and does not wait for it
	Start(name string, args ...string) error
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	// Timeout bounds each Run call when non-zero
	Timeout time.Duration
}

func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Tracef("exec: %s %s", name, strings.Join(args, " "))
	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("%s timed out: %w", name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, &ExitError{Cmd: name, Code: result.ExitCode, Stderr: result.Stderr}
	}
	if err != nil {
		return result, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return result, nil
}

func (r *ExecRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	setDetached(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	log.Debugf("Started %s (pid %d)", name, cmd.Process.Pid)

	// Release the process so the OS can fully detach it
	if err := cmd.Process.Release(); err != nil {
		log.Warnf("failed to release process %s: %v", name, err)
	}
	return nil
}

// Output is a convenience for commands whose trimmed stdout is all that matters
func Output(ctx context.Context, r Runner, name string, args ...string) (string, error) {
	res, err := r.Run(ctx, name, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}
