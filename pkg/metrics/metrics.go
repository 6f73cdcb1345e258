package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event loop metrics
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_events_total",
			Help: "Total number of lifecycle events processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	EventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shepherd_event_duration_seconds",
			Help:    "Time spent handling one lifecycle event in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	DeferredEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shepherd_deferred_events",
			Help: "Number of events currently waiting for re-delivery",
		},
	)

	// State machine metrics
	Phase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shepherd_phase",
			Help: "Current reconciliation phase (1 for the active phase, 0 otherwise)",
		},
		[]string{"phase"},
	)

	// Configuration metrics
	ConfigDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shepherd_config_drift",
			Help: "Whether desired and applied configuration differ (1 = drift)",
		},
	)

	ConfigWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_config_writes_total",
			Help: "Total number of configuration files written by target",
		},
		[]string{"target"},
	)

	// Restart coordination metrics
	RestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_restarts_total",
			Help: "Total number of workload restarts by result",
		},
		[]string{"result"},
	)

	LockGrantsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shepherd_lock_grants_total",
			Help: "Total number of restart lock grants issued by this node as leader",
		},
	)

	LockRevocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shepherd_lock_revocations_total",
			Help: "Total number of expired restart grants revoked by this node as leader",
		},
	)

	// Cluster metrics
	ClusterNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shepherd_cluster_nodes",
			Help: "Number of nodes visible in the shared store, including this node",
		},
	)

	ClusterReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shepherd_cluster_ready",
			Help: "Whether the peer channel has formed (1 = ready)",
		},
	)

	IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shepherd_is_leader",
			Help: "Whether this node is the designated lock arbiter (1 = leader)",
		},
	)

	LockState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shepherd_lock_state",
			Help: "Local view of the restart lock (1 for the current state, 0 otherwise)",
		},
		[]string{"state"},
	)

	// Health metrics
	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_health_checks_total",
			Help: "Total number of local health checks by check and result",
		},
		[]string{"check", "result"},
	)

	// Replication metrics
	ReplicationPushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_replication_pushes_total",
			Help: "Total number of scope snapshots pushed to peers by result",
		},
		[]string{"result"},
	)

	ReplicationReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_replication_received_total",
			Help: "Total number of scope snapshots received from peers by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(EventDuration)
	prometheus.MustRegister(DeferredEvents)
	prometheus.MustRegister(Phase)
	prometheus.MustRegister(ConfigDrift)
	prometheus.MustRegister(ConfigWritesTotal)
	prometheus.MustRegister(RestartsTotal)
	prometheus.MustRegister(LockGrantsTotal)
	prometheus.MustRegister(LockRevocationsTotal)
	prometheus.MustRegister(ClusterNodes)
	prometheus.MustRegister(ClusterReady)
	prometheus.MustRegister(IsLeader)
	prometheus.MustRegister(LockState)
	prometheus.MustRegister(HealthChecksTotal)
	prometheus.MustRegister(ReplicationPushesTotal)
	prometheus.MustRegister(ReplicationReceivedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// BoolGauge converts a flag into a gauge value
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
