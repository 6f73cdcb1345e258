package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/workload"
)

// ExecChecker runs a liveness command; exit code 0 means alive
type ExecChecker struct {
	Command string
	Timeout time.Duration
	exec    workload.Executor
}

// NewExecChecker creates an exec liveness checker
func NewExecChecker(exec workload.Executor, command string) *ExecChecker {
	return &ExecChecker{
		Command: command,
		Timeout: 10 * time.Second,
		exec:    exec,
	}
}

func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if strings.TrimSpace(e.Command) == "" {
		return result("liveness", start, false, "no command specified")
	}

	out, err := e.exec.Exec(ctx, e.Command, workload.Options{Timeout: e.Timeout})
	if err != nil {
		return result("liveness", start, false, fmt.Sprintf("liveness command failed: %v", err))
	}

	msg := fmt.Sprintf("command %q succeeded", e.Command)
	if out = strings.TrimSpace(out); out != "" {
		if len(out) > 100 {
			out = out[:100] + "..."
		}
		msg = fmt.Sprintf("%s: %s", msg, out)
	}
	return result("liveness", start, true, msg)
}

func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}
