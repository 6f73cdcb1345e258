package health

import (
	"context"
	"time"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/rs/zerolog"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeMemory CheckType = "memory"
	CheckTypeSysctl CheckType = "sysctl"
	CheckTypeHTTP   CheckType = "http"
	CheckTypeTCP    CheckType = "tcp"
	CheckTypeExec   CheckType = "exec"
)

// Result represents the outcome of a health check
type Result struct {
	Name      string        `json:"name"`
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts,omitempty"`
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Report is the outcome of one diagnostics run
type Report struct {
	Verdict types.HealthVerdict
	Results []Result
}

// Failed returns the results of the checks that did not pass
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Healthy {
			failed = append(failed, res)
		}
	}
	return failed
}

// Probe runs a fixed battery of local checks
type Probe struct {
	checks []Checker
	logger zerolog.Logger
}

// NewProbe creates a probe over the given checks
func NewProbe(checks ...Checker) *Probe {
	return &Probe{
		checks: checks,
		logger: log.WithComponent("health"),
	}
}

// Diagnostics runs every check independently and returns DEGRADED if any
// failed. Results are never cached.
func (p *Probe) Diagnostics(ctx context.Context) Report {
	report := Report{Verdict: types.HealthHealthy}

	for _, c := range p.checks {
		res := c.Check(ctx)
		if res.Name == "" {
			res.Name = string(c.Type())
		}
		report.Results = append(report.Results, res)

		outcome := "pass"
		if !res.Healthy {
			outcome = "fail"
			report.Verdict = types.HealthDegraded
			p.logger.Warn().
				Str("check", res.Name).
				Int("attempts", res.Attempts).
				Msg(res.Message)
		}
		metrics.HealthChecksTotal.WithLabelValues(res.Name, outcome).Inc()
	}

	return report
}

// Healthy is shorthand for Diagnostics(ctx).Verdict == HealthHealthy
func (p *Probe) Healthy(ctx context.Context) bool {
	return p.Diagnostics(ctx).Verdict == types.HealthHealthy
}

func result(name string, start time.Time, healthy bool, msg string) Result {
	return Result{
		Name:      name,
		Healthy:   healthy,
		Message:   msg,
		CheckedAt: start,
		Duration:  time.Since(start),
		Attempts:  1,
	}
}
