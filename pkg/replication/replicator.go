package replication

import (
	"context"
	"fmt"
	"maps"
	"net"
	"sync"
	"time"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/peerstate"
	"github.com/cuemby/shepherd/pkg/security"
	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Config configures a Replicator
type Config struct {
	// Local is the node's own scope name
	Local string

	// Fleet is the fleet scope name
	Fleet string

	// Identity is published into the local scope when the channel forms
	// (hostname, ip, address)
	Identity map[string]string

	// Peers are the gRPC addresses of the other nodes
	Peers []string

	// Interval between snapshot pushes
	Interval time.Duration

	// PeerTTL forgets scopes not refreshed within the window; 0 keeps them
	PeerTTL time.Duration

	// Leader reports whether this node may publish the fleet scope
	Leader peerstate.Leadership

	// OnChange is called after a received snapshot changed the local replica
	OnChange func(scope string)

	// TLS secures the peer channel; nil runs it in plaintext
	TLS *security.PeerCredentials
}

// Replicator keeps the local store in sync with the fleet by pushing the
// node's own scope (and the fleet scope when leader) to every peer and
// applying the snapshots peers push back.
type Replicator struct {
	cfg    Config
	store  storage.Store
	logger zerolog.Logger

	mu       sync.Mutex
	formed   bool
	lastRev  map[string]int64
	lastSeen map[string]time.Time
	conns    map[string]*grpc.ClientConn
	now      func() time.Time
}

// New creates a Replicator over the local store
func New(cfg Config, store storage.Store) *Replicator {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Leader == nil {
		cfg.Leader = peerstate.StaticLeader(false)
	}
	return &Replicator{
		cfg:      cfg,
		store:    store,
		logger:   log.WithComponent("replication"),
		lastRev:  make(map[string]int64),
		lastSeen: make(map[string]time.Time),
		conns:    make(map[string]*grpc.ClientConn),
		now:      time.Now,
	}
}

// Formed reports whether the local node has joined the peer channel
func (r *Replicator) Formed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.formed
}

// form publishes the node identity, creating the local scope. A node with
// no peers configured forms a single-node cluster on its own.
func (r *Replicator) form() {
	r.mu.Lock()
	if r.formed {
		r.mu.Unlock()
		return
	}
	r.formed = true
	r.mu.Unlock()

	identity := r.cfg.Identity
	if identity == nil {
		identity = map[string]string{}
	}
	if err := r.store.Put(r.cfg.Local, identity); err != nil {
		r.logger.Error().Err(err).Msg("Failed to publish node identity")
		r.mu.Lock()
		r.formed = false
		r.mu.Unlock()
		return
	}

	r.logger.Info().
		Str("scope", r.cfg.Local).
		Int("peers", len(r.cfg.Peers)).
		Msg("Joined peer channel")

	if r.cfg.OnChange != nil {
		r.cfg.OnChange(r.cfg.Local)
	}
}

// Serve registers the PeerSync service on srv
func (r *Replicator) Serve(srv grpc.ServiceRegistrar) {
	RegisterPeerSyncServer(srv, &syncServer{r: r})
}

// ListenAndServe runs a gRPC server on addr until ctx is cancelled
func (r *Replicator) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	var opts []grpc.ServerOption
	if r.cfg.TLS != nil {
		opts = append(opts, grpc.Creds(r.cfg.TLS.Server))
	}
	srv := grpc.NewServer(opts...)
	r.Serve(srv)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	r.logger.Info().
		Str("addr", lis.Addr().String()).
		Bool("tls", r.cfg.TLS != nil).
		Msg("Peer sync listening")
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("peer sync server failed: %w", err)
	}
	return nil
}

// Run pushes snapshots every interval until ctx is cancelled
func (r *Replicator) Run(ctx context.Context) error {
	if len(r.cfg.Peers) == 0 {
		r.form()
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	defer r.closeConns()

	r.SyncOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.SyncOnce(ctx)
			r.expire()
		}
	}
}

// SyncOnce pushes one round of snapshots to every peer
func (r *Replicator) SyncOnce(ctx context.Context) {
	snaps, err := r.outgoing()
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to build snapshots")
		return
	}

	for _, peer := range r.cfg.Peers {
		ok := true
		for _, snap := range snaps {
			if err := r.pushTo(ctx, peer, snap); err != nil {
				ok = false
				metrics.ReplicationPushesTotal.WithLabelValues("error").Inc()
				r.logger.Debug().Err(err).Str("peer", peer).Str("scope", snap.Scope).Msg("Push failed")
				break
			}
			metrics.ReplicationPushesTotal.WithLabelValues("ok").Inc()
		}
		if ok {
			r.form()
		}
	}
}

// Leave tells every peer to forget the local scope
func (r *Replicator) Leave(ctx context.Context) {
	snap := Snapshot{Scope: r.cfg.Local, Rev: r.now().UnixNano(), Leave: true}
	for _, peer := range r.cfg.Peers {
		if err := r.pushTo(ctx, peer, snap); err != nil {
			r.logger.Warn().Err(err).Str("peer", peer).Msg("Failed to announce departure")
		}
	}
}

func (r *Replicator) outgoing() ([]Snapshot, error) {
	rev := r.now().UnixNano()

	own := r.cfg.Identity
	if r.Formed() {
		kv, err := r.store.Get(r.cfg.Local)
		if err != nil {
			return nil, fmt.Errorf("failed to read local scope: %w", err)
		}
		own = kv
	}
	snaps := []Snapshot{{Scope: r.cfg.Local, Rev: rev, KV: own}}

	if r.cfg.Leader.IsLeader() && r.Formed() {
		kv, err := r.store.Get(r.cfg.Fleet)
		if err != nil {
			return nil, fmt.Errorf("failed to read fleet scope: %w", err)
		}
		snaps = append(snaps, Snapshot{Scope: r.cfg.Fleet, Rev: rev, KV: kv})
	}
	return snaps, nil
}

func (r *Replicator) pushTo(ctx context.Context, peer string, snap Snapshot) error {
	conn, err := r.conn(peer)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Interval)
	defer cancel()
	return push(ctx, conn, snap)
}

func (r *Replicator) conn(peer string) (*grpc.ClientConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[peer]; ok {
		return c, nil
	}
	creds := insecure.NewCredentials()
	if r.cfg.TLS != nil {
		creds = r.cfg.TLS.Client
	}
	c, err := grpc.NewClient(peer, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to dial peer %s: %w", peer, err)
	}
	r.conns[peer] = c
	return c, nil
}

func (r *Replicator) closeConns() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for peer, c := range r.conns {
		_ = c.Close()
		delete(r.conns, peer)
	}
}

// Apply merges one received snapshot into the local replica. Snapshots
// older than the last applied revision for their scope are dropped.
func (r *Replicator) Apply(snap Snapshot) error {
	if snap.Scope == r.cfg.Local {
		metrics.ReplicationReceivedTotal.WithLabelValues("own-scope").Inc()
		return nil
	}
	if snap.Scope == r.cfg.Fleet && r.cfg.Leader.IsLeader() {
		metrics.ReplicationReceivedTotal.WithLabelValues("fleet-ignored").Inc()
		return nil
	}

	r.mu.Lock()
	if snap.Rev <= r.lastRev[snap.Scope] {
		r.mu.Unlock()
		metrics.ReplicationReceivedTotal.WithLabelValues("stale").Inc()
		return nil
	}
	r.lastRev[snap.Scope] = snap.Rev
	r.lastSeen[snap.Scope] = r.now()
	r.mu.Unlock()

	if snap.Leave {
		if err := r.store.DropScope(snap.Scope); err != nil {
			return fmt.Errorf("failed to drop scope %s: %w", snap.Scope, err)
		}
		r.mu.Lock()
		delete(r.lastSeen, snap.Scope)
		r.mu.Unlock()
		metrics.ReplicationReceivedTotal.WithLabelValues("left").Inc()
		r.logger.Info().Str("scope", snap.Scope).Msg("Peer left")
		r.changed(snap.Scope)
		return nil
	}

	current, err := r.store.Get(snap.Scope)
	if err != nil {
		return fmt.Errorf("failed to read scope %s: %w", snap.Scope, err)
	}
	scopes, err := r.store.Scopes()
	if err != nil {
		return fmt.Errorf("failed to list scopes: %w", err)
	}
	known := false
	for _, s := range scopes {
		if s == snap.Scope {
			known = true
			break
		}
	}
	if known && maps.Equal(current, snap.KV) {
		metrics.ReplicationReceivedTotal.WithLabelValues("unchanged").Inc()
		return nil
	}

	if err := r.store.Replace(snap.Scope, snap.KV); err != nil {
		return fmt.Errorf("failed to apply snapshot for %s: %w", snap.Scope, err)
	}
	metrics.ReplicationReceivedTotal.WithLabelValues("applied").Inc()
	r.logger.Debug().Str("scope", snap.Scope).Int("keys", len(snap.KV)).Msg("Applied peer snapshot")

	r.form()
	r.changed(snap.Scope)
	return nil
}

func (r *Replicator) changed(scope string) {
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(scope)
	}
}

// expire drops scopes whose owner stopped pushing
func (r *Replicator) expire() {
	if r.cfg.PeerTTL <= 0 {
		return
	}

	cutoff := r.now().Add(-r.cfg.PeerTTL)
	var gone []string

	r.mu.Lock()
	for scope, seen := range r.lastSeen {
		if seen.Before(cutoff) {
			gone = append(gone, scope)
			delete(r.lastSeen, scope)
		}
	}
	r.mu.Unlock()

	for _, scope := range gone {
		if err := r.store.DropScope(scope); err != nil {
			r.logger.Warn().Err(err).Str("scope", scope).Msg("Failed to drop expired scope")
			continue
		}
		r.logger.Info().Str("scope", scope).Dur("ttl", r.cfg.PeerTTL).Msg("Peer expired")
		r.changed(scope)
	}
}

type syncServer struct {
	r *Replicator
}

func (s *syncServer) Push(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	snap, err := decodeSnapshot(in)
	if err != nil {
		metrics.ReplicationReceivedTotal.WithLabelValues("invalid").Inc()
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.r.Apply(snap); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &emptypb.Empty{}, nil
}
