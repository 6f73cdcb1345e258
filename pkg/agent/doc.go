/*
Package agent implements the per-node reconciliation state machine and the
runtime that drives it.

# Phases

	             install                 start (ready, healthy)
	  INIT ─────────────────► WAITING_FOR_CLUSTER ──────────► CONFIGURING
	                                                               │ apply + start
	                                                               ▼
	                        ┌──────────── lock granted ─────── ACTIVE
	                        ▼                                      ▲
	                   RESTARTING ─────── restarted, released ─────┘

	  any phase ──► FAILED(reason)   sticky until install or config-changed

Every handler re-derives what to do from the store, the filesystem and the
probe, so it is safe to run again after a re-delivery or a crash. A handler
that cannot make progress returns events.ErrDeferred and the queue hands the
event back later:

  - not ready (no peer channel yet) or degraded health: start,
    config-changed and peer-changed are deferred without touching the
    filesystem or the phase
  - restart lock requested but not granted: the node stays ACTIVE, reports
    status restarting and waits
  - config-changed before the workload first started

# Restarts

Only a new setup script requires a restart; environment changes are merged
into the environment file in place. A restart always runs under the fleet
restart lock: the node publishes a request, the leader grants one node at a
time, the granted node restarts and releases. The leader arbitrates at the
start of every event it handles.

An operator rolling restart (leader only, healthy only) publishes a new
generation in the fleet scope. Every node that has not acknowledged the
generation requests the lock and restarts once.

A restart that is owed stays marked in the local scope until one succeeds,
so a failed restart is requested again on the next config-changed event.

# Failures

	config-invalid       the declared configuration cannot be parsed
	config-write-failed  the script or environment file could not be written
	command-error        start or restart exited non-zero or timed out

Failures set the node status and are never retried automatically.

# Runtime

Runtime wires the state machine to the local store, the peer replicator, the
event queue, the desired-config file watcher, an update-status ticker and the
operator API, and supervises them with an errgroup.
*/
package agent
