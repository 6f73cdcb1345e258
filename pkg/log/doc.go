/*
Package log provides structured logging for Shepherd using zerolog.

The log package wraps zerolog with a process-wide logger, component-specific
child loggers, and a level mapping used to report operator status changes at
the severity attached to each status.

# Architecture

	┌──────────────────── LOGGING SYSTEM ─────────────────────┐
	│                                                          │
	│  log.Init(Config)        global zerolog.Logger           │
	│        │                                                 │
	│        ▼                                                 │
	│  WithComponent("restart")  ──► component=restart         │
	│  WithNodeID("shepherd/0")  ──► node_id=shepherd/0        │
	│  WithEvent(l, kind, id)    ──► event=start event_id=...  │
	│        │                                                 │
	│        ▼                                                 │
	│  JSON (production) or console (human) output             │
	└──────────────────────────────────────────────────────────┘

# Log Levels

Debug:
  - Expected waits: peer channel not formed, event deferred, lock not granted

Info:
  - Convergence actions: config written, lock granted, restart performed

Warn:
  - Degraded health verdicts

Error:
  - Invalid configuration, failed config writes, failed script executions

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component Loggers:

	logger := log.WithComponent("reconciler")
	logger.Info().Str("path", path).Msg("Setup script written")

Event-scoped Loggers:

	evLog := log.WithEvent(logger, "config-changed", ev.ID)
	evLog.Debug().Msg("Deferring event, cluster not ready")

Status Severity:

	log.At(&logger, log.Level(status.Level())).Msg(status.Message)

The global Logger is safe for concurrent use. Init is expected to run once,
before any component logger is derived.
*/
package log
