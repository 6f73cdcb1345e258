/*
Package metrics provides Prometheus metrics and process health for the
shepherd agent.

All metrics are package-level variables registered with the default
Prometheus registry at init, and exposed by Handler on GET /metrics.

# Metrics Catalog

Event loop:

	shepherd_events_total{kind, outcome}      deliveries by outcome (handled, deferred, failed)
	shepherd_event_duration_seconds{kind}     handler latency
	shepherd_deferred_events                  events parked for re-delivery

State machine and configuration:

	shepherd_phase{phase}                     1 for the current phase
	shepherd_config_drift                     1 while desired and applied differ
	shepherd_config_writes_total{target}      script / environment writes

Restart coordination:

	shepherd_restarts_total{result}           workload restarts (ok, error)
	shepherd_lock_grants_total                grants issued as leader
	shepherd_lock_revocations_total           expired grants revoked as leader
	shepherd_lock_state{state}                1 for the local lock view

Cluster and replication:

	shepherd_cluster_nodes                    nodes visible, including this one
	shepherd_cluster_ready                    1 once the peer channel formed
	shepherd_is_leader                        1 on the lock arbiter
	shepherd_replication_pushes_total{result}
	shepherd_replication_received_total{outcome}

Health:

	shepherd_health_checks_total{check, result}

# Usage

	timer := metrics.NewTimer()
	err := handle(ctx, e)
	timer.ObserveDurationVec(metrics.EventDuration, string(e.Kind))
	metrics.EventsTotal.WithLabelValues(string(e.Kind), "handled").Inc()

Membership, readiness and the lock view are derived on read and never
cached, so a Collector samples them from the node report on a ticker.

# Process Health

UpdateComponent records the state of an agent subsystem (storage,
replication, events, api). HealthHandler and ReadyHandler serve them on
/livez and /ready; readiness waits for storage and the event loop. This is
about the agent process, not the node's diagnostic battery, which is served
by the API on /health.

# Alerting

	# a node stuck waiting for the restart lock
	shepherd_lock_state{state="requested"} == 1 for 30m

	# a grant that was never released
	increase(shepherd_lock_revocations_total[1h]) > 0

	# failing handlers
	rate(shepherd_events_total{outcome="failed"}[5m]) > 0
*/
package metrics
