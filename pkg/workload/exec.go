package workload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds every command the agent runs
const DefaultTimeout = 180 * time.Second

// CommandError is returned when a command exits non-zero or times out
type CommandError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

func (e *CommandError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("command %q timed out", e.Command)
	}
	msg := fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg = fmt.Sprintf("%s: %s", msg, truncate(s, 200))
	}
	return msg
}

// Options tune a single command execution
type Options struct {
	Env        map[string]string
	WorkingDir string
	Timeout    time.Duration
}

// Executor runs shell commands on the host
type Executor interface {
	Exec(ctx context.Context, command string, opts Options) (string, error)
}

// ShellExecutor runs commands through /bin/sh -c
type ShellExecutor struct {
	// Timeout applies when Options.Timeout is zero
	Timeout time.Duration
}

// NewShellExecutor creates a ShellExecutor with the given default timeout
func NewShellExecutor(timeout time.Duration) *ShellExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ShellExecutor{Timeout: timeout}
}

// Exec runs command and returns its stdout. The timeout is always enforced;
// a command that outlives it is killed and reported as a CommandError.
func (s *ShellExecutor) Exec(ctx context.Context, command string, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
	cmd.Dir = opts.WorkingDir
	cmd.WaitDelay = time.Second
	if len(opts.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range opts.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	cmdErr := &CommandError{
		Command:  command,
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		cmdErr.TimedOut = true
		return "", cmdErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cmdErr.ExitCode = exitErr.ExitCode()
		return "", cmdErr
	}

	return "", fmt.Errorf("failed to run %q: %w", command, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
