package restart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/peerstate"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Keys in a node's own scope
const (
	KeyLock            = "restart-lock"
	KeySeq             = "restart-seq"
	KeyGenerationAcked = "restart-generation-acked"
	KeyRestartPending  = "restart-pending"
	lockValueRequested = "requested"
	lockValueReleased  = "released"
)

// Keys in the fleet scope, written by the leader only
const (
	KeyGranted    = "restart-granted"
	KeyGrantedSeq = "restart-granted-seq"
	KeyGrantedAt  = "restart-granted-at"
	KeyGeneration = "rolling-restart-generation"
	KeyQueue      = "restart-queue"
)

// Coordinator implements the fleet-wide restart lock on top of the shared
// store:
//
//  1. a node publishes restart-lock=requested with a sequence number
//  2. the leader queues requests in the order it observes them and grants
//     the head of the queue by naming it in the fleet scope, never while
//     another grant is active
//  3. the granted node restarts, then publishes restart-lock=released
//  4. the leader sees the release, clears the grant and moves on
//
// A node only ever acts on a grant naming itself with the sequence of its
// current request, so re-delivered or stale grants never cause a second
// restart.
type Coordinator struct {
	state *peerstate.State

	// GrantTimeout revokes a grant that was not released in time; 0 disables
	GrantTimeout time.Duration

	now    func() time.Time
	logger zerolog.Logger
}

// NewCoordinator creates a coordinator for the local node
func NewCoordinator(state *peerstate.State, grantTimeout time.Duration) *Coordinator {
	return &Coordinator{
		state:        state,
		GrantTimeout: grantTimeout,
		now:          time.Now,
		logger:       log.WithComponent("restart"),
	}
}

// Request publishes a restart request for the local node. Requesting again
// while a request is outstanding keeps the original sequence.
func (c *Coordinator) Request() error {
	own := c.state.Read(c.state.Local())
	if own[KeyLock] == lockValueRequested && own[KeySeq] != "" {
		return nil
	}

	seq := strconv.FormatInt(c.now().UnixNano(), 10)
	if err := c.state.WriteLocal(map[string]string{
		KeyLock: lockValueRequested,
		KeySeq:  seq,
	}); err != nil {
		return fmt.Errorf("failed to request restart lock: %w", err)
	}

	c.logger.Debug().Str("seq", seq).Msg("Restart lock requested")
	return nil
}

// Release publishes the end of the local node's restart
func (c *Coordinator) Release() error {
	if err := c.state.WriteLocal(map[string]string{
		KeyLock: lockValueReleased,
		KeySeq:  "",
	}); err != nil {
		return fmt.Errorf("failed to release restart lock: %w", err)
	}
	c.logger.Debug().Msg("Restart lock released")
	return nil
}

// Status is the local node's view of the lock
func (c *Coordinator) Status() types.LockState {
	own := c.state.Read(c.state.Local())

	switch own[KeyLock] {
	case lockValueRequested:
		fleet := c.state.ReadFleet()
		if fleet[KeyGranted] == c.state.Local() && own[KeySeq] != "" && fleet[KeyGrantedSeq] == own[KeySeq] {
			return types.LockGranted
		}
		return types.LockRequested
	case lockValueReleased:
		return types.LockReleased
	default:
		return types.LockUnheld
	}
}

// Holder returns the node named by the current grant, if any
func (c *Coordinator) Holder() string {
	return c.state.ReadFleet()[KeyGranted]
}

// Arbitrate evaluates outstanding requests. It is a no-op on non-leaders.
// It returns the node holding the grant after evaluation, or "".
func (c *Coordinator) Arbitrate() (string, error) {
	if !c.state.IsLeader() || !c.state.Available() {
		return "", nil
	}

	fleet := c.state.ReadFleet()
	queue := c.queue(fleet)

	update := map[string]string{}
	if holder := fleet[KeyGranted]; holder != "" {
		active, expired := c.grantActive(holder, fleet)
		if active {
			return holder, c.saveQueue(fleet, queue)
		}
		if expired {
			// a revoked holder goes to the back of the queue
			queue = moveToBack(queue, holder)
		}
		update[KeyGranted] = ""
		update[KeyGrantedSeq] = ""
		update[KeyGrantedAt] = ""
		c.logger.Debug().Str("holder", holder).Msg("Restart grant cleared")
	}

	if len(update) == 0 && len(queue) == 0 {
		return "", c.saveQueue(fleet, queue)
	}

	var next request
	if len(queue) > 0 {
		next = queue[0]
		update[KeyGranted] = next.node
		update[KeyGrantedSeq] = next.seq
		update[KeyGrantedAt] = c.now().UTC().Format(time.RFC3339Nano)
	}
	update[KeyQueue] = encodeQueue(queue)

	if err := c.state.WriteFleet(update); err != nil {
		return "", fmt.Errorf("failed to grant restart lock: %w", err)
	}
	if next.node == "" {
		return "", nil
	}

	metrics.LockGrantsTotal.Inc()
	c.logger.Info().Str("node", next.node).Str("seq", next.seq).Msg("Restart lock granted")
	return next.node, nil
}

// grantActive reports whether the holder still waits on or runs under the
// grant it was given, and whether an otherwise active grant expired
func (c *Coordinator) grantActive(holder string, fleet map[string]string) (active, expired bool) {
	kv := c.state.Read(holder)
	if kv[KeyLock] != lockValueRequested || kv[KeySeq] != fleet[KeyGrantedSeq] {
		return false, false
	}

	if c.GrantTimeout <= 0 {
		return true, false
	}
	at, err := time.Parse(time.RFC3339Nano, fleet[KeyGrantedAt])
	if err != nil || c.now().Sub(at) <= c.GrantTimeout {
		return true, false
	}

	metrics.LockRevocationsTotal.Inc()
	c.logger.Warn().
		Str("holder", holder).
		Dur("timeout", c.GrantTimeout).
		Msg("Restart grant expired without release, revoking")
	return false, true
}

// request is one outstanding restart request
type request struct {
	node string
	seq  string
}

// queue returns the outstanding requests in the order the leader first
// observed them. Entries whose request was released or replaced drop out;
// requests seen for the first time are appended by sequence, then name.
// Sequences come from the requesters' clocks, so they only order requests
// first observed in the same pass.
func (c *Coordinator) queue(fleet map[string]string) []request {
	pending := c.pending()

	var queue []request
	queued := make(map[string]bool, len(pending))
	for _, r := range decodeQueue(fleet[KeyQueue]) {
		if seq, ok := pending[r.node]; ok && seq == r.seq && !queued[r.node] {
			queue = append(queue, r)
			queued[r.node] = true
		}
	}

	var fresh []request
	for node, seq := range pending {
		if !queued[node] {
			fresh = append(fresh, request{node: node, seq: seq})
		}
	}
	sort.Slice(fresh, func(i, j int) bool {
		a, _ := strconv.ParseInt(fresh[i].seq, 10, 64)
		b, _ := strconv.ParseInt(fresh[j].seq, 10, 64)
		if a != b {
			return a < b
		}
		return fresh[i].node < fresh[j].node
	})
	return append(queue, fresh...)
}

// pending maps every node with an outstanding request to its sequence
func (c *Coordinator) pending() map[string]string {
	out := make(map[string]string)
	for _, unit := range c.state.Units() {
		kv := c.state.Read(unit)
		if kv[KeyLock] != lockValueRequested {
			continue
		}
		if _, err := strconv.ParseInt(kv[KeySeq], 10, 64); err != nil {
			c.logger.Warn().Str("node", unit).Str("seq", kv[KeySeq]).Msg("Ignoring request with invalid sequence")
			continue
		}
		out[unit] = kv[KeySeq]
	}
	return out
}

func (c *Coordinator) saveQueue(fleet map[string]string, queue []request) error {
	encoded := encodeQueue(queue)
	if fleet[KeyQueue] == encoded {
		return nil
	}
	if err := c.state.WriteFleet(map[string]string{KeyQueue: encoded}); err != nil {
		return fmt.Errorf("failed to record restart queue: %w", err)
	}
	return nil
}

func moveToBack(queue []request, node string) []request {
	for i, r := range queue {
		if r.node == node {
			out := append(append([]request{}, queue[:i]...), queue[i+1:]...)
			return append(out, r)
		}
	}
	return queue
}

// encodeQueue renders "node@seq" entries joined by commas
func encodeQueue(queue []request) string {
	parts := make([]string, len(queue))
	for i, r := range queue {
		parts[i] = r.node + "@" + r.seq
	}
	return strings.Join(parts, ",")
}

func decodeQueue(s string) []request {
	if s == "" {
		return nil
	}
	var out []request
	for _, part := range strings.Split(s, ",") {
		if node, seq, ok := strings.Cut(part, "@"); ok && node != "" {
			out = append(out, request{node: node, seq: seq})
		}
	}
	return out
}

// RunWithLock runs fn when the local node holds the grant and releases the
// lock afterwards, even when fn fails. It returns the lock state observed
// before running; fn only ran when that state is LockGranted.
func (c *Coordinator) RunWithLock(ctx context.Context, fn func(ctx context.Context) error) (types.LockState, error) {
	st := c.Status()
	if st != types.LockGranted {
		return st, nil
	}

	runErr := fn(ctx)
	if err := c.Release(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to release restart lock; the leader may need manual recovery")
		return st, errors.Join(runErr, err)
	}
	return st, runErr
}

// MarkRestartPending records that the workload must restart to pick up a
// change already written to disk. The marker survives a failed restart.
func (c *Coordinator) MarkRestartPending() error {
	if err := c.state.WriteLocal(map[string]string{KeyRestartPending: "true"}); err != nil {
		return fmt.Errorf("failed to mark restart pending: %w", err)
	}
	return nil
}

// ClearRestartPending records that the workload runs the current script
func (c *Coordinator) ClearRestartPending() error {
	if err := c.state.WriteLocal(map[string]string{KeyRestartPending: ""}); err != nil {
		return fmt.Errorf("failed to clear restart pending: %w", err)
	}
	return nil
}

// RestartPending reports whether a restart is still owed
func (c *Coordinator) RestartPending() bool {
	return c.state.Read(c.state.Local())[KeyRestartPending] == "true"
}

// StartGeneration begins a fleet-wide rolling restart. Leader only.
func (c *Coordinator) StartGeneration() (string, error) {
	gen := uuid.New().String()
	if err := c.state.WriteFleet(map[string]string{KeyGeneration: gen}); err != nil {
		return "", fmt.Errorf("failed to start rolling restart: %w", err)
	}
	c.logger.Info().Str("generation", gen).Msg("Rolling restart started")
	return gen, nil
}

// PendingGeneration returns the rolling restart generation the local node
// has not yet completed, or ""
func (c *Coordinator) PendingGeneration() string {
	gen := c.state.ReadFleet()[KeyGeneration]
	if gen == "" {
		return ""
	}
	if c.state.Read(c.state.Local())[KeyGenerationAcked] == gen {
		return ""
	}
	return gen
}

// AckGeneration records that the local node restarted for gen
func (c *Coordinator) AckGeneration(gen string) error {
	if err := c.state.WriteLocal(map[string]string{KeyGenerationAcked: gen}); err != nil {
		return fmt.Errorf("failed to acknowledge rolling restart: %w", err)
	}
	return nil
}
