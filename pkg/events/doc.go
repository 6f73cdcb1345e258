/*
Package events delivers lifecycle events to the agent with defer and
re-delivery semantics.

# Event kinds

	install            first materialization of the configuration
	start              start the workload
	config-changed     the declared configuration changed
	update-status      periodic tick, re-checks drift and health
	remove             node is leaving the fleet
	peer-changed       another node's scope changed in the shared store
	restart-requested  operator asked for a rolling restart
	lock-acquired      the restart lock may have been granted

Events come from the host runtime (POST /events/{kind}), from timers, from
the replication layer and from the desired-config file watcher.

# Delivery

	 producers ──► Enqueue ──► incoming (buffered) ──┐
	                                                  ▼
	                         ┌──────── Run (single consumer) ────────┐
	                         │ 1. Redeliver every deferred event      │
	                         │ 2. Dispatch the new event              │
	                         │ 3. on retry tick: Redeliver            │
	                         └───────────────┬────────────────────────┘
	                                         │ handler returns
	                      ┌──────────────────┼──────────────────┐
	                      ▼                  ▼                  ▼
	                   nil: handled    ErrDeferred: held    error: failed

Only one event is handled at a time. A handler that cannot make progress
(node not ready, unhealthy, lock not granted) returns ErrDeferred; the event
is parked and handed back later. Deferred events are coalesced per kind:
handlers re-derive everything from current state, so a second deferred
config-changed carries no information the first did not. Failed events are
not retried automatically; the next external event retries the work.

# Notices

Every delivery publishes a Notice (event, outcome, error, duration) on the
Broker. The API keeps the most recent notices for operators.

# Metrics

	shepherd_events_total{kind, outcome}
	shepherd_event_duration_seconds{kind}
	shepherd_deferred_events
*/
package events
