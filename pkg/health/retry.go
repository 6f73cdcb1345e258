package health

import (
	"context"
	"time"
)

// Retry re-runs a checker whose condition may be transiently unavailable,
// such as a liveness probe right after a restart. It waits a fixed interval
// between attempts and reports failure only after the last one.
type Retry struct {
	Checker  Checker
	Attempts int
	Wait     time.Duration
}

// NewRetry wraps c with fixed-backoff retry
func NewRetry(c Checker, attempts int, wait time.Duration) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	return &Retry{Checker: c, Attempts: attempts, Wait: wait}
}

func (r *Retry) Check(ctx context.Context) Result {
	var res Result
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		res = r.Checker.Check(ctx)
		res.Attempts = attempt
		if res.Healthy {
			return res
		}
		if attempt == r.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			res.Message = res.Message + " (cancelled)"
			return res
		case <-time.After(r.Wait):
		}
	}
	return res
}

func (r *Retry) Type() CheckType {
	return r.Checker.Type()
}
