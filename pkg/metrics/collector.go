package metrics

import (
	"time"

	"github.com/cuemby/shepherd/pkg/types"
)

// ReportSource provides the node report sampled by the Collector
type ReportSource interface {
	Report() types.NodeReport
}

var lockStates = []types.LockState{
	types.LockUnheld,
	types.LockRequested,
	types.LockGranted,
	types.LockReleased,
}

// Collector samples state that is derived on read (membership, readiness,
// lock view) so the gauges stay fresh between events
type Collector struct {
	source   ReportSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source ReportSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	r := c.source.Report()

	ClusterNodes.Set(float64(len(r.Nodes)))
	ClusterReady.Set(BoolGauge(r.Readiness == types.ReadinessReady))
	IsLeader.Set(BoolGauge(r.Leader))

	for _, st := range lockStates {
		LockState.WithLabelValues(string(st)).Set(BoolGauge(r.Lock == st))
	}
}
