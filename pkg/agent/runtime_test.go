package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/shepherd/pkg/config"
	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const desiredV1 = `setup-script: |
  #!/bin/sh
  echo v1
environment-variables: MODE=test
`

const desiredV2 = `setup-script: |
  #!/bin/sh
  echo v2
environment-variables: MODE=test
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	procSys := filepath.Join(root, "sys")
	require.NoError(t, os.MkdirAll(filepath.Join(procSys, "vm"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(procSys, "vm", "swappiness"), []byte("1\n"), 0644))
	meminfo := filepath.Join(root, "meminfo")
	require.NoError(t, os.WriteFile(meminfo, []byte("MemTotal: 8000000 kB\nMemAvailable: 4000000 kB\n"), 0644))

	desired := filepath.Join(root, "desired", "desired.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(desired), 0755))
	require.NoError(t, os.WriteFile(desired, []byte(desiredV1), 0644))

	cfg := &config.Config{
		Node:    config.NodeConfig{Name: "db/0", Leader: true, DataDir: filepath.Join(root, "data")},
		Cluster: config.ClusterConfig{Addressing: "address", BindAddr: "127.0.0.1:0", AdvertiseIP: "127.0.0.1", SyncInterval: 50 * time.Millisecond},
		Storage: config.StorageConfig{Backend: "memory"},
		Workload: config.WorkloadConfig{
			ScriptPath:      filepath.Join(root, "user-install-script"),
			EnvironmentPath: filepath.Join(root, "environment"),
			CommandTimeout:  10 * time.Second,
		},
		Desired: config.DesiredConfig{Path: desired, Watch: true},
		Health: config.HealthConfig{
			MeminfoPath:      meminfo,
			ProcSys:          procSys,
			MaxSwappiness:    1,
			LivenessAttempts: 1,
			LivenessWait:     10 * time.Millisecond,
		},
		Events: config.EventsConfig{UpdateStatusInterval: time.Hour, RetryInterval: 50 * time.Millisecond},
		API:    config.APIConfig{Addr: "127.0.0.1:0"},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRuntime_SingleNodeLifecycle(t *testing.T) {
	cfg := testConfig(t)
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	require.Eventually(t, func() bool {
		return rt.Agent().Phase() == types.PhaseActive
	}, 10*time.Second, 20*time.Millisecond)

	script, err := os.ReadFile(cfg.Workload.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(script), "echo v1")

	env, err := os.ReadFile(cfg.Workload.EnvironmentPath)
	require.NoError(t, err)
	assert.Equal(t, "MODE=test", string(env))

	report := rt.Report()
	assert.Equal(t, types.ReadinessReady, report.Readiness)
	require.Len(t, report.Nodes, 1)
	assert.NotEmpty(t, report.Nodes[0].Host)

	// the file watcher turns an edit into a restart under the lock
	require.NoError(t, os.WriteFile(cfg.Desired.Path, []byte(desiredV2), 0644))
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(cfg.Workload.ScriptPath)
		return err == nil && string(data) == "#!/bin/sh\necho v2\n" &&
			rt.Report().Lock == types.LockReleased
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, types.StatusActive, rt.Agent().Status().Code)

	require.Eventually(t, func() bool {
		for _, n := range rt.Notices() {
			if n.Event.Kind == events.KindConfigChanged && n.Outcome == events.OutcomeHandled {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestIdentity(t *testing.T) {
	kv := identity("10.1.2.3")
	assert.Equal(t, "10.1.2.3", kv["ip"])
	assert.Equal(t, "10.1.2.3", kv["address"])
}

func TestNewRuntime_MissingPeerCertificates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cluster.TLSDir = t.TempDir()

	_, err := NewRuntime(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peer TLS")
}
