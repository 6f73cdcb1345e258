package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Node represents one member of the fleet as seen through the shared store.
// Nodes are derived on every read and never cached across events.
type Node struct {
	Name    string `json:"name"` // "<app>/<ordinal>", e.g. "shepherd/2"
	Ordinal int    `json:"ordinal"`
	Host    string `json:"host,omitempty"`
	Local   bool   `json:"local,omitempty"`
}

// App returns the application part of the node name
func (n Node) App() string {
	app, _, _ := strings.Cut(n.Name, "/")
	return app
}

// ParseNodeName splits a "<app>/<ordinal>" node name
func ParseNodeName(name string) (app string, ordinal int, err error) {
	app, idx, ok := strings.Cut(name, "/")
	if !ok || app == "" || idx == "" {
		return "", 0, fmt.Errorf("invalid node name %q: expected <app>/<ordinal>", name)
	}

	ordinal, err = strconv.Atoi(idx)
	if err != nil || ordinal < 0 {
		return "", 0, fmt.Errorf("invalid node ordinal in %q", name)
	}

	return app, ordinal, nil
}

// SortNodes orders nodes by ordinal, then name
func SortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Ordinal != nodes[j].Ordinal {
			return nodes[i].Ordinal < nodes[j].Ordinal
		}
		return nodes[i].Name < nodes[j].Name
	})
}

// Readiness reports whether the peer channel has formed
type Readiness string

const (
	ReadinessNotReady Readiness = "not-ready"
	ReadinessReady    Readiness = "ready"
)

// HealthVerdict is the outcome of the local diagnostic battery
type HealthVerdict string

const (
	HealthHealthy  HealthVerdict = "healthy"
	HealthDegraded HealthVerdict = "degraded"
)

// Addressing selects how node hosts are resolved
type Addressing string

const (
	// AddressingAddress reads hostname/ip/address keys from the node's scope
	AddressingAddress Addressing = "address"
	// AddressingName derives a deterministic DNS name from the node ordinal
	AddressingName Addressing = "name"
)

// LockState is the local node's view of the fleet restart lock
type LockState string

const (
	LockUnheld    LockState = "unheld"
	LockRequested LockState = "requested"
	LockGranted   LockState = "granted"
	LockReleased  LockState = "released"
)

// DesiredConfig is the user-declared payload for one reconciliation pass.
type DesiredConfig struct {
	// SetupScript is the script body; empty means absent
	SetupScript string

	// Environment holds the parsed KEY=VALUE assignments, nil when the
	// declared string was empty.
	Environment map[string]string
}

// HasEnvironment reports whether the desired config declares any variables
func (d DesiredConfig) HasEnvironment() bool {
	return len(d.Environment) > 0
}

// AppliedConfig is what is currently materialized on the local filesystem
type AppliedConfig struct {
	SetupScript  string
	ScriptExists bool
	Environment  map[string]string
}
