/*
Package health runs the local diagnostic battery that gates every mutating
operation of the agent.

# Architecture

	┌──────────────────────── PROBE ─────────────────────────┐
	│                                                          │
	│   Diagnostics(ctx)                                       │
	│        │                                                 │
	│        ├──► MemoryChecker   /proc/meminfo, MemAvailable  │
	│        ├──► SysctlChecker   vm.swappiness <= max         │
	│        ├──► SysctlChecker   vm.max_map_count >= min      │
	│        └──► Retry ──► liveness (exec | tcp | http)       │
	│                 5 attempts, 1s apart                     │
	│                                                          │
	│   any failure ──► DEGRADED, otherwise HEALTHY            │
	└──────────────────────────────────────────────────────────┘

Each check runs independently; a failing check does not short-circuit the
others, so the report always lists every failure. Results are never cached:
each call to Diagnostics reads procfs and probes the workload again.

# Checkers

All checkers implement Checker:

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

MemoryChecker:
  - Fails when the memory report cannot be read
  - With MinAvailable > 0, also fails when MemAvailable is lower

SysctlChecker:
  - Reads /proc/sys/<key with dots as slashes>
  - NewSysctlMax for upper bounds, NewSysctlMin for lower bounds

Liveness (ExecChecker, TCPChecker, HTTPChecker):
  - Selected from a single configured string by ParseLiveness
  - Wrapped in Retry because the workload may be briefly unavailable right
    after a restart

# Retry

Retry uses a fixed wait between attempts, not exponential backoff. The
number of attempts and the wait come from configuration:

	live := health.NewRetry(health.NewTCPChecker("127.0.0.1:6379"), 5, time.Second)

# Usage

	probe := health.NewBattery(health.DefaultBatteryConfig(), executor)
	report := probe.Diagnostics(ctx)
	if report.Verdict == types.HealthDegraded {
		for _, r := range report.Failed() {
			logger.Warn().Str("check", r.Name).Msg(r.Message)
		}
	}

# Metrics

	shepherd_health_checks_total{check, result}
*/
package health
