package peerstate

import (
	"errors"
	"fmt"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrForeignScope is returned when a node writes a scope it does not own
	ErrForeignScope = errors.New("cannot write another node's scope")

	// ErrNotLeader is returned when a non-leader writes the fleet scope
	ErrNotLeader = errors.New("only the leader may write the fleet scope")
)

// Leadership reports whether the local node is the designated lock arbiter.
// It is supplied by the surrounding orchestration layer; Shepherd never
// elects a leader itself.
type Leadership interface {
	IsLeader() bool
}

// StaticLeader is a fixed leadership flag
type StaticLeader bool

// IsLeader returns the flag value
func (s StaticLeader) IsLeader() bool { return bool(s) }

// State is the typed facade over the local replica of the shared store.
//
// Each node owns exactly one unit scope, named after the node. The fleet
// scope, named after the application, carries fleet-wide attributes and is
// writable only by the leader. Until the peer channel has formed (no scope
// exists at all) every read returns empty and writes are dropped.
type State struct {
	store  storage.Store
	local  string
	fleet  string
	leader Leadership
	logger zerolog.Logger
}

// New creates a State for the local node
func New(store storage.Store, local, fleet string, leader Leadership) *State {
	if leader == nil {
		leader = StaticLeader(false)
	}
	return &State{
		store:  store,
		local:  local,
		fleet:  fleet,
		leader: leader,
		logger: log.WithComponent("peerstate"),
	}
}

// Local returns the name of the local node's scope
func (s *State) Local() string { return s.local }

// Fleet returns the name of the fleet scope
func (s *State) Fleet() string { return s.fleet }

// IsLeader reports the externally supplied leadership flag
func (s *State) IsLeader() bool { return s.leader.IsLeader() }

// Available reports whether the peer channel exists. An unavailable store is
// an expected pre-formation condition, not an error.
func (s *State) Available() bool {
	scopes, err := s.store.Scopes()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list scopes, treating store as unavailable")
		return false
	}
	return len(scopes) > 0
}

// Units lists every node scope currently visible, excluding the fleet scope
func (s *State) Units() []string {
	scopes, err := s.store.Scopes()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list scopes")
		return nil
	}

	units := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		if scope != s.fleet {
			units = append(units, scope)
		}
	}
	return units
}

// Read returns whatever the scope's owner most recently published
func (s *State) Read(scope string) map[string]string {
	if !s.Available() {
		return map[string]string{}
	}

	kv, err := s.store.Get(scope)
	if err != nil {
		s.logger.Warn().Err(err).Str("scope", scope).Msg("Failed to read scope")
		return map[string]string{}
	}
	return kv
}

// ReadFleet returns the fleet scope
func (s *State) ReadFleet() map[string]string {
	return s.Read(s.fleet)
}

// Write merges kv into the caller's own scope. Writing before the peer
// channel exists is a no-op.
func (s *State) Write(scope string, kv map[string]string) error {
	if scope != s.local {
		return fmt.Errorf("%w: %s", ErrForeignScope, scope)
	}
	return s.put(scope, kv)
}

// WriteLocal merges kv into the local node's scope
func (s *State) WriteLocal(kv map[string]string) error {
	return s.Write(s.local, kv)
}

// WriteFleet merges kv into the fleet scope; leader only
func (s *State) WriteFleet(kv map[string]string) error {
	if !s.leader.IsLeader() {
		return ErrNotLeader
	}
	return s.put(s.fleet, kv)
}

func (s *State) put(scope string, kv map[string]string) error {
	if !s.Available() {
		s.logger.Debug().Str("scope", scope).Msg("Peer channel not formed, dropping write")
		return nil
	}
	if err := s.store.Put(scope, kv); err != nil {
		return fmt.Errorf("failed to write scope %s: %w", scope, err)
	}
	return nil
}
