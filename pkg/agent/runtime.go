package agent

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cuemby/shepherd/pkg/api"
	"github.com/cuemby/shepherd/pkg/cluster"
	"github.com/cuemby/shepherd/pkg/config"
	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/health"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/peerstate"
	"github.com/cuemby/shepherd/pkg/reconciler"
	"github.com/cuemby/shepherd/pkg/replication"
	"github.com/cuemby/shepherd/pkg/restart"
	"github.com/cuemby/shepherd/pkg/security"
	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/cuemby/shepherd/pkg/workload"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// noticeHistory is how many delivery notices the API can list
const noticeHistory = 100

// Runtime wires one agent to its store, peers, event sources and API
type Runtime struct {
	cfg *config.Config

	store      storage.Store
	state      *peerstate.State
	replicator *replication.Replicator
	coord      *restart.Coordinator
	probe      *health.Probe
	queue      *events.Queue
	broker     *events.Broker
	agent      *Agent

	noticesMu sync.RWMutex
	notices   []events.Notice

	logger zerolog.Logger
}

// NewRuntime builds every component from cfg
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	store, err := storage.Open(cfg.Storage.Backend, cfg.Node.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	metrics.UpdateComponent(metrics.ComponentStorage, true, cfg.Storage.Backend)

	leader := peerstate.StaticLeader(cfg.Node.Leader)
	state := peerstate.New(store, cfg.Node.Name, cfg.App(), leader)
	view := cluster.NewView(state, types.Addressing(cfg.Cluster.Addressing))
	coord := restart.NewCoordinator(state, cfg.Restart.GrantTimeout)

	exec := workload.NewShellExecutor(cfg.Workload.CommandTimeout)
	probe := health.NewBattery(health.BatteryConfig{
		MeminfoPath:    cfg.Health.MeminfoPath,
		MinAvailable:   cfg.Health.MinAvailableMB * 1024 * 1024,
		ProcSys:        cfg.Health.ProcSys,
		MaxSwappiness:  cfg.Health.MaxSwappiness,
		MinMaxMapCount: cfg.Health.MinMaxMapCount,
		Liveness:       cfg.Health.Liveness,
		RetryAttempt:   cfg.Health.LivenessAttempts,
		RetryWait:      cfg.Health.LivenessWait,
	}, exec)

	rec := reconciler.NewReconciler(
		reconciler.NewFileSource(cfg.Desired.Path),
		cfg.Workload.ScriptPath,
		cfg.Workload.EnvironmentPath,
	)
	driver := workload.NewDriver(exec, rec.ScriptPath(), cfg.Workload.StartCommand, cfg.Workload.RestartCommand)

	broker := events.NewBroker()
	queue := events.NewQueue(cfg.Events.RetryInterval, broker)

	r := &Runtime{
		cfg:    cfg,
		store:  store,
		state:  state,
		coord:  coord,
		probe:  probe,
		queue:  queue,
		broker: broker,
		logger: log.WithComponent("runtime"),
	}

	var peerTLS *security.PeerCredentials
	if cfg.Cluster.TLSDir != "" {
		peerTLS, err = security.LoadPeerCredentials(cfg.Cluster.TLSDir)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to load peer TLS: %w", err)
		}
		if security.CertNeedsRotation(peerTLS.Leaf) {
			r.logger.Warn().
				Time("expires", peerTLS.Leaf.NotAfter).
				Msg("Peer certificate expires soon, issue a new one")
		}
	}

	r.replicator = replication.New(replication.Config{
		Local:    cfg.Node.Name,
		Fleet:    cfg.App(),
		Identity: identity(cfg.Cluster.AdvertiseIP),
		Peers:    cfg.Cluster.Peers,
		Interval: cfg.Cluster.SyncInterval,
		PeerTTL:  cfg.Cluster.PeerTTL,
		Leader:   leader,
		OnChange: r.onStoreChange,
		TLS:      peerTLS,
	}, store)

	r.agent = New(state, view, probe, rec, coord, driver)
	r.agent.Deferred = queue.Deferred
	r.agent.OnRemove = r.replicator.Leave

	return r, nil
}

// Agent returns the state machine driven by the runtime
func (r *Runtime) Agent() *Agent { return r.agent }

// Run starts every loop and blocks until ctx is cancelled or one fails
func (r *Runtime) Run(ctx context.Context) error {
	defer func() {
		if err := r.store.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	r.broker.Start()
	defer r.broker.Stop()
	notices := r.broker.Subscribe()

	collector := metrics.NewCollector(r, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		metrics.UpdateComponent(metrics.ComponentReplication, true, "listening")
		return r.replicator.ListenAndServe(ctx, r.cfg.Cluster.BindAddr)
	})
	g.Go(func() error { return r.replicator.Run(ctx) })

	g.Go(func() error {
		metrics.UpdateComponent(metrics.ComponentEvents, true, "running")
		return r.queue.Run(ctx, r.agent.Handle)
	})
	g.Go(func() error {
		r.recordNotices(ctx, notices)
		return nil
	})
	g.Go(func() error {
		r.tick(ctx)
		return nil
	})

	if r.cfg.Desired.Watch {
		g.Go(func() error {
			err := WatchFile(ctx, r.cfg.Desired.Path, func() {
				r.Submit(events.New(events.KindConfigChanged, map[string]string{"source": "watch"}))
			})
			if err != nil {
				// polling through update-status still converges
				r.logger.Warn().Err(err).Msg("Desired configuration watch disabled")
			}
			return nil
		})
	}

	g.Go(func() error {
		metrics.UpdateComponent(metrics.ComponentAPI, true, r.cfg.API.Addr)
		return api.NewServer(r).ListenAndServe(ctx, r.cfg.API.Addr)
	})

	r.Submit(events.New(events.KindInstall, nil))
	r.Submit(events.New(events.KindStart, nil))

	r.logger.Info().
		Str("node", r.cfg.Node.Name).
		Bool("leader", r.cfg.Node.Leader).
		Int("peers", len(r.cfg.Cluster.Peers)).
		Msg("Agent started")

	err := g.Wait()
	metrics.UpdateComponent(metrics.ComponentEvents, false, "stopped")
	return err
}

// Submit queues an event for the state machine
func (r *Runtime) Submit(e *events.Event) {
	r.queue.Enqueue(e)
}

// Report implements api.Backend
func (r *Runtime) Report() types.NodeReport {
	return r.agent.Report()
}

// IsLeader implements api.Backend
func (r *Runtime) IsLeader() bool {
	return r.agent.IsLeader()
}

// Diagnostics implements api.Backend
func (r *Runtime) Diagnostics(ctx context.Context) health.Report {
	return r.probe.Diagnostics(ctx)
}

// Notices returns the most recent delivery notices, newest last
func (r *Runtime) Notices() []events.Notice {
	r.noticesMu.RLock()
	defer r.noticesMu.RUnlock()
	return append([]events.Notice(nil), r.notices...)
}

// onStoreChange turns replicated changes into events. A fleet change
// naming this node as grant holder is delivered as lock-acquired.
func (r *Runtime) onStoreChange(scope string) {
	if scope == r.state.Fleet() && r.coord.Holder() == r.state.Local() {
		r.Submit(events.New(events.KindLockAcquired, nil))
		return
	}
	r.Submit(events.New(events.KindPeerChanged, map[string]string{"scope": scope}))
}

func (r *Runtime) recordNotices(ctx context.Context, sub events.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub:
			if !ok {
				return
			}
			r.noticesMu.Lock()
			r.notices = append(r.notices, *n)
			if len(r.notices) > noticeHistory {
				r.notices = r.notices[len(r.notices)-noticeHistory:]
			}
			r.noticesMu.Unlock()
		}
	}
}

func (r *Runtime) tick(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Events.UpdateStatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Submit(events.New(events.KindUpdateStatus, nil))
		}
	}
}

// identity is what the node publishes into its own scope on join
func identity(advertise string) map[string]string {
	kv := map[string]string{}
	if host, err := os.Hostname(); err == nil {
		kv["hostname"] = host
	}
	ip := advertise
	if ip == "" {
		ip = firstIPv4()
	}
	if ip != "" {
		kv["ip"] = ip
		kv["address"] = ip
	}
	return kv
}

func firstIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
