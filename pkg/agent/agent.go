package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cuemby/shepherd/pkg/cluster"
	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/health"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/peerstate"
	"github.com/cuemby/shepherd/pkg/reconciler"
	"github.com/cuemby/shepherd/pkg/restart"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNotLeader is returned for operator actions only the leader accepts
var ErrNotLeader = errors.New("rolling restart is only accepted on the leader")

// Prober runs the local diagnostic battery
type Prober interface {
	Diagnostics(ctx context.Context) health.Report
}

// Workload starts and restarts the managed workload
type Workload interface {
	Start(ctx context.Context) error
	Restart(ctx context.Context) error
}

// Agent is the per-node reconciliation state machine. Handle must be called
// from a single goroutine; status reads are safe from any goroutine.
type Agent struct {
	state      *peerstate.State
	view       *cluster.View
	probe      Prober
	reconciler *reconciler.Reconciler
	coord      *restart.Coordinator
	workload   Workload

	// OnRemove runs when the node leaves the fleet
	OnRemove func(ctx context.Context)

	// Deferred reports the kinds waiting for re-delivery
	Deferred func() []events.Kind

	mu        sync.RWMutex
	phase     types.Phase
	status    types.Status
	installed bool
	started   bool

	logger zerolog.Logger
}

// New creates an agent in the init phase
func New(state *peerstate.State, view *cluster.View, probe Prober, rec *reconciler.Reconciler, coord *restart.Coordinator, wl Workload) *Agent {
	a := &Agent{
		state:      state,
		view:       view,
		probe:      probe,
		reconciler: rec,
		coord:      coord,
		workload:   wl,
		logger:     log.WithNodeID(state.Local()),
	}
	a.setPhase(types.PhaseInit)
	a.status = types.Status{Code: types.StatusProvisioning, Message: "waiting for install"}
	return a
}

// Phase returns the current state machine phase
func (a *Agent) Phase() types.Phase {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.phase
}

// Status returns the current operator-facing status
func (a *Agent) Status() types.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// IsLeader reports whether this node arbitrates the restart lock
func (a *Agent) IsLeader() bool {
	return a.state.IsLeader()
}

// Report builds the operator view of this node
func (a *Agent) Report() types.NodeReport {
	a.mu.RLock()
	phase, status := a.phase, a.status
	a.mu.RUnlock()

	r := types.NodeReport{
		Node:      a.state.Local(),
		Leader:    a.state.IsLeader(),
		Phase:     phase,
		Status:    status,
		Readiness: a.view.Readiness(),
		Lock:      a.coord.Status(),
		Holder:    a.coord.Holder(),
		Nodes:     a.view.Nodes(),
	}
	if a.Deferred != nil {
		for _, k := range a.Deferred() {
			r.Deferred = append(r.Deferred, string(k))
		}
	}
	return r
}

// Handle processes one lifecycle event. It returns events.ErrDeferred when
// the event must be re-delivered later.
func (a *Agent) Handle(ctx context.Context, e *events.Event) error {
	a.arbitrate()

	switch e.Kind {
	case events.KindInstall:
		return a.onInstall(ctx)
	case events.KindStart:
		return a.onStart(ctx)
	case events.KindConfigChanged:
		return a.onConfigChanged(ctx)
	case events.KindPeerChanged:
		return a.onPeerChanged(ctx)
	case events.KindUpdateStatus:
		return a.onUpdateStatus(ctx)
	case events.KindLockAcquired:
		return a.onLockAcquired(ctx)
	case events.KindRestartRequested:
		return a.onRestartRequested(ctx)
	case events.KindRemove:
		return a.onRemove(ctx)
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

func (a *Agent) onInstall(ctx context.Context) error {
	if a.isStarted() && a.Phase() != types.PhaseFailed {
		return a.converge(ctx)
	}
	return a.install()
}

// install materializes the initial configuration
func (a *Agent) install() error {
	if _, err := a.reconciler.Apply(); err != nil {
		return a.fail(err)
	}

	a.mu.Lock()
	a.installed = true
	a.mu.Unlock()

	a.setPhase(types.PhaseWaitingForCluster)
	if a.view.Ready() {
		a.setStatus(types.Status{Code: types.StatusProvisioning, Message: "configuration installed"})
	} else {
		a.setStatus(types.Status{Code: types.StatusWaitingForPeers, Message: "waiting for peers"})
	}
	return nil
}

func (a *Agent) onStart(ctx context.Context) error {
	switch a.Phase() {
	case types.PhaseInit, types.PhaseFailed:
		return events.ErrDeferred
	case types.PhaseActive, types.PhaseRestarting:
		return nil
	}
	if err := a.gate(ctx); err != nil {
		return err
	}

	a.setPhase(types.PhaseConfiguring)
	a.setStatus(types.Status{Code: types.StatusProvisioning, Message: "configuring workload"})

	if _, err := a.reconciler.Apply(); err != nil {
		return a.fail(err)
	}
	if err := a.workload.Start(ctx); err != nil {
		return a.fail(err)
	}

	// a fresh start runs the current script and covers any rolling restart
	// already in progress
	if err := a.coord.ClearRestartPending(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to clear pending restart")
	}
	if gen := a.coord.PendingGeneration(); gen != "" {
		if err := a.coord.AckGeneration(gen); err != nil {
			a.logger.Warn().Err(err).Str("generation", gen).Msg("Failed to acknowledge rolling restart")
		}
	}

	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	a.active()
	return nil
}

func (a *Agent) onConfigChanged(ctx context.Context) error {
	if err := a.gate(ctx); err != nil {
		return err
	}
	if a.Phase() == types.PhaseFailed {
		a.recover()
	}
	if !a.isInstalled() {
		if err := a.install(); err != nil {
			return err
		}
	}
	if !a.isStarted() {
		a.logger.Debug().Msg("Configuration changed before the workload started, deferring")
		return events.ErrDeferred
	}
	return a.converge(ctx)
}

func (a *Agent) onPeerChanged(ctx context.Context) error {
	if a.Phase() == types.PhaseFailed {
		return nil
	}
	if err := a.gate(ctx); err != nil {
		return err
	}
	if !a.isStarted() {
		return nil
	}
	return a.converge(ctx)
}

func (a *Agent) onUpdateStatus(ctx context.Context) error {
	if a.Phase() == types.PhaseFailed || !a.isStarted() {
		return nil
	}
	if !a.view.Ready() {
		a.setStatus(types.Status{Code: types.StatusWaitingForPeers, Message: "waiting for peers"})
		return nil
	}
	if report := a.probe.Diagnostics(ctx); report.Verdict != types.HealthHealthy {
		a.setStatus(degraded(report))
		return nil
	}
	return a.converge(ctx)
}

func (a *Agent) onLockAcquired(ctx context.Context) error {
	if a.Phase() == types.PhaseFailed {
		return nil
	}
	if !a.view.Ready() {
		return events.ErrDeferred
	}
	switch a.coord.Status() {
	case types.LockRequested, types.LockGranted:
		return a.tryRestart(ctx)
	}
	return nil
}

func (a *Agent) onRestartRequested(ctx context.Context) error {
	if !a.state.IsLeader() {
		return ErrNotLeader
	}
	if !a.view.Ready() {
		return events.ErrDeferred
	}
	if report := a.probe.Diagnostics(ctx); report.Verdict != types.HealthHealthy {
		return fmt.Errorf("refusing rolling restart: %s", degraded(report).Message)
	}

	if _, err := a.coord.StartGeneration(); err != nil {
		return err
	}
	if !a.isStarted() || a.Phase() == types.PhaseFailed {
		return nil
	}
	return a.converge(ctx)
}

func (a *Agent) onRemove(ctx context.Context) error {
	switch a.coord.Status() {
	case types.LockRequested, types.LockGranted:
		if err := a.coord.Release(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to release restart lock on removal")
		}
	}
	if a.OnRemove != nil {
		a.OnRemove(ctx)
	}

	a.mu.Lock()
	a.started = false
	a.mu.Unlock()
	a.setStatus(types.Status{Code: types.StatusProvisioning, Message: "node removed"})
	return nil
}

// converge applies drift and restarts under the fleet lock when needed
func (a *Agent) converge(ctx context.Context) error {
	res, err := a.reconciler.Apply()
	if err != nil {
		return a.fail(err)
	}

	if res.RestartRequired() {
		if err := a.coord.MarkRestartPending(); err != nil {
			return err
		}
	}
	if a.coord.RestartPending() || a.coord.PendingGeneration() != "" {
		if err := a.coord.Request(); err != nil {
			return err
		}
	}

	switch a.coord.Status() {
	case types.LockRequested, types.LockGranted:
		return a.tryRestart(ctx)
	}
	a.active()
	return nil
}

// tryRestart restarts the workload if the local node holds the grant and
// defers otherwise
func (a *Agent) tryRestart(ctx context.Context) error {
	a.arbitrate()
	gen := a.coord.PendingGeneration()

	st, err := a.coord.RunWithLock(ctx, func(ctx context.Context) error {
		a.setPhase(types.PhaseRestarting)
		a.setStatus(types.Status{Code: types.StatusRestarting, Message: "restarting workload"})
		return a.workload.Restart(ctx)
	})

	switch st {
	case types.LockGranted:
		if err != nil {
			return a.fail(err)
		}
		if err := a.coord.ClearRestartPending(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to clear pending restart")
		}
		if gen != "" {
			if err := a.coord.AckGeneration(gen); err != nil {
				a.logger.Warn().Err(err).Str("generation", gen).Msg("Failed to acknowledge rolling restart")
			}
		}
		a.arbitrate()
		a.active()
		return nil
	case types.LockRequested:
		a.setStatus(types.Status{Code: types.StatusRestarting, Message: "waiting for restart lock"})
		a.logger.Debug().Str("holder", a.coord.Holder()).Msg("Restart lock not granted yet")
		return events.ErrDeferred
	}
	a.active()
	return nil
}

// gate defers the event while the node is not ready or not healthy
func (a *Agent) gate(ctx context.Context) error {
	failed := a.Phase() == types.PhaseFailed

	if !a.view.Ready() {
		if !failed {
			a.setStatus(types.Status{Code: types.StatusWaitingForPeers, Message: "waiting for peers"})
		}
		return events.ErrDeferred
	}
	if report := a.probe.Diagnostics(ctx); report.Verdict != types.HealthHealthy {
		if !failed {
			a.setStatus(degraded(report))
		}
		return events.ErrDeferred
	}
	return nil
}

// arbitrate lets the leader evaluate outstanding restart requests
func (a *Agent) arbitrate() {
	leader := a.state.IsLeader()
	metrics.IsLeader.Set(metrics.BoolGauge(leader))
	if !leader || !a.view.Ready() {
		return
	}
	if _, err := a.coord.Arbitrate(); err != nil {
		a.logger.Warn().Err(err).Msg("Restart lock arbitration failed")
	}
}

// recover leaves the failed phase after a new configuration arrives
func (a *Agent) recover() {
	switch {
	case a.isStarted():
		a.setPhase(types.PhaseActive)
	case a.isInstalled():
		a.setPhase(types.PhaseWaitingForCluster)
	default:
		a.setPhase(types.PhaseInit)
	}
	a.logger.Info().Msg("New configuration received, leaving failed state")
}

func (a *Agent) active() {
	a.setPhase(types.PhaseActive)
	a.setStatus(types.Status{Code: types.StatusActive, Message: "workload running"})
}

// fail moves to the failed phase and returns err for the event outcome
func (a *Agent) fail(err error) error {
	reason := reasonOf(err)
	a.setPhase(types.PhaseFailed)
	a.setStatus(types.Status{Code: types.StatusFailed, Reason: reason, Message: err.Error()})
	return err
}

// reasonOf maps an error to its failure code. Anything that is not a
// configuration error came from running a workload command.
func reasonOf(err error) types.FailureReason {
	switch {
	case errors.Is(err, reconciler.ErrConfigInvalid):
		return types.ReasonConfigInvalid
	case errors.Is(err, reconciler.ErrConfigWriteFailed):
		return types.ReasonConfigWriteFailed
	default:
		return types.ReasonCommandError
	}
}

func degraded(report health.Report) types.Status {
	var names []string
	for _, res := range report.Failed() {
		names = append(names, res.Name)
	}
	return types.Status{
		Code:    types.StatusDegraded,
		Message: "failed checks: " + strings.Join(names, ", "),
	}
}

func (a *Agent) setPhase(p types.Phase) {
	a.mu.Lock()
	prev := a.phase
	a.phase = p
	a.mu.Unlock()

	if prev != p {
		if prev != "" {
			metrics.Phase.WithLabelValues(string(prev)).Set(0)
		}
		metrics.Phase.WithLabelValues(string(p)).Set(1)
		a.logger.Debug().Str("from", string(prev)).Str("to", string(p)).Msg("Phase changed")
	}
}

// setStatus records the operator status, logging it when it changes
func (a *Agent) setStatus(s types.Status) {
	a.mu.Lock()
	prev := a.status
	a.status = s
	a.mu.Unlock()

	if prev != s {
		log.At(&a.logger, log.Level(s.Level())).
			Str("status", s.String()).
			Msg(s.Message)
	}
}

func (a *Agent) isStarted() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

func (a *Agent) isInstalled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.installed
}
