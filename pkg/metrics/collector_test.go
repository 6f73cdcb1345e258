package metrics

import (
	"testing"
	"time"

	"github.com/cuemby/shepherd/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type staticReport types.NodeReport

func (s staticReport) Report() types.NodeReport { return types.NodeReport(s) }

func TestCollector_Collect(t *testing.T) {
	c := NewCollector(staticReport{
		Leader:    true,
		Readiness: types.ReadinessReady,
		Lock:      types.LockRequested,
		Nodes:     []types.Node{{Name: "db/0"}, {Name: "db/1"}},
	}, time.Hour)

	c.collect()

	assert.Equal(t, 2.0, testutil.ToFloat64(ClusterNodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(ClusterReady))
	assert.Equal(t, 1.0, testutil.ToFloat64(IsLeader))
	assert.Equal(t, 1.0, testutil.ToFloat64(LockState.WithLabelValues("requested")))
	assert.Equal(t, 0.0, testutil.ToFloat64(LockState.WithLabelValues("granted")))
}

func TestCollector_StartStop(t *testing.T) {
	c := NewCollector(staticReport{Readiness: types.ReadinessNotReady}, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	assert.Equal(t, 0.0, testutil.ToFloat64(ClusterReady))
}
