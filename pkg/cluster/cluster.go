package cluster

import (
	"fmt"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/peerstate"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/rs/zerolog"
)

// Keys consulted, in priority order, for address-based host lookup
var hostKeys = []string{"hostname", "ip", "address"}

// View derives membership from the shared store. Nothing is cached: every
// call reads the store again.
type View struct {
	state      *peerstate.State
	addressing types.Addressing
	logger     zerolog.Logger
}

// NewView creates a membership view
func NewView(state *peerstate.State, addressing types.Addressing) *View {
	if addressing == "" {
		addressing = types.AddressingAddress
	}
	return &View{
		state:      state,
		addressing: addressing,
		logger:     log.WithComponent("cluster"),
	}
}

// Readiness is NOT_READY until any scope exists in the store
func (v *View) Readiness() types.Readiness {
	if !v.state.Available() {
		return types.ReadinessNotReady
	}
	return types.ReadinessReady
}

// Ready is shorthand for Readiness() == ReadinessReady
func (v *View) Ready() bool {
	return v.Readiness() == types.ReadinessReady
}

// Nodes returns the local node plus every peer visible in the store,
// ordered by ordinal
func (v *View) Nodes() []types.Node {
	local := v.state.Local()
	names := map[string]struct{}{local: {}}
	for _, unit := range v.state.Units() {
		names[unit] = struct{}{}
	}

	nodes := make([]types.Node, 0, len(names))
	for name := range names {
		_, ordinal, err := types.ParseNodeName(name)
		if err != nil {
			v.logger.Warn().Err(err).Str("scope", name).Msg("Ignoring scope with unexpected name")
			continue
		}
		node := types.Node{
			Name:    name,
			Ordinal: ordinal,
			Local:   name == local,
		}
		node.Host, _ = v.HostOf(node)
		nodes = append(nodes, node)
	}

	types.SortNodes(nodes)
	metrics.ClusterNodes.Set(float64(len(nodes)))
	return nodes
}

// Names returns the node names from Nodes
func (v *View) Names() []string {
	nodes := v.Nodes()
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}

// HostOf resolves the network host of a node. Name-based addressing never
// touches the store and works before the node joins.
func (v *View) HostOf(node types.Node) (string, error) {
	if v.addressing == types.AddressingName {
		app, ordinal, err := types.ParseNodeName(node.Name)
		if err != nil {
			return "", err
		}
		return DNSName(app, ordinal), nil
	}

	kv := v.state.Read(node.Name)
	for _, key := range hostKeys {
		if h := kv[key]; h != "" {
			return h, nil
		}
	}
	return "", fmt.Errorf("no address published for %s", node.Name)
}

// DNSName is the deterministic name of a node under name-based addressing
func DNSName(app string, ordinal int) string {
	return fmt.Sprintf("%s-%d.%s-endpoints", app, ordinal, app)
}
