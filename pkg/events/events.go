package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of a lifecycle event delivered to the agent
type Kind string

const (
	KindInstall          Kind = "install"
	KindStart            Kind = "start"
	KindConfigChanged    Kind = "config-changed"
	KindUpdateStatus     Kind = "update-status"
	KindRemove           Kind = "remove"
	KindPeerChanged      Kind = "peer-changed"
	KindRestartRequested Kind = "restart-requested"
	KindLockAcquired     Kind = "lock-acquired"
)

// Kinds lists every kind the agent handles
var Kinds = []Kind{
	KindInstall,
	KindStart,
	KindConfigChanged,
	KindUpdateStatus,
	KindRemove,
	KindPeerChanged,
	KindRestartRequested,
	KindLockAcquired,
}

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// ErrDeferred is returned by a handler that wants the event re-delivered
// later instead of being considered done
var ErrDeferred = errors.New("event deferred")

// Event represents one lifecycle event delivery
type Event struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Attempts counts deliveries, including deferred ones
	Attempts int `json:"attempts"`
}

// New creates an event with a fresh id
func New(kind Kind, metadata map[string]string) *Event {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// Outcome of handling one delivery
type Outcome string

const (
	OutcomeHandled  Outcome = "handled"
	OutcomeDeferred Outcome = "deferred"
	OutcomeFailed   Outcome = "failed"
)

// Notice is published after every delivery
type Notice struct {
	Event    Event         `json:"event"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}
