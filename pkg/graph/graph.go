// Package graph is the in-memory model of one canvas board.
//
// The Graph is the single source of truth for nodes and edges. Every mutation
// goes through its methods, which enforce the structural invariants (unique
// ids, known port types, compatible and single-occupancy connections, no
// dangling edges) and then notify listeners once the lock is released.
package graph

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/bert-systems/canvas/internal/logging"
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/porttype"
)

// Listener receives every change after the graph lock is released.
// Listeners may be called concurrently and must not block.
type Listener func(domain.GraphChange)

// Option configures a Graph.
type Option func(*Graph)

// WithListener registers a change listener.
func WithListener(l Listener) Option {
	return func(g *Graph) {
		g.listeners = append(g.listeners, l)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

type portKey struct {
	nodeID string
	portID string
}

// Graph holds the nodes and edges of a board.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[string]*domain.Node
	edges    map[string]domain.Edge
	incoming map[portKey]string // target input -> edge id
	revision uint64

	listeners []Listener
	logger    *slog.Logger
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:    make(map[string]*domain.Node),
		edges:    make(map[string]domain.Edge),
		incoming: make(map[portKey]string),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddListener registers a listener after construction.
func (g *Graph) AddListener(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, l)
}

// AddNode inserts a node. The node must have a unique id, known port types and
// unique port ids. An empty status is normalized to idle.
func (g *Graph) AddNode(node domain.Node) error {
	if err := checkNode(node); err != nil {
		return err
	}
	n := node.Clone()
	if n.Status == "" {
		n.Status = domain.StatusIdle
	}

	g.mu.Lock()
	if _, exists := g.nodes[n.ID]; exists {
		g.mu.Unlock()
		return fmt.Errorf("%w: %q", domain.ErrDuplicateNode, n.ID)
	}
	g.nodes[n.ID] = &n
	after := n.Clone()
	changes := []domain.GraphChange{{Kind: domain.ChangeNodeAdded, NodeID: n.ID, After: &after}}
	listeners := g.commit(changes)
	g.mu.Unlock()

	g.logger.Debug("node added", "node_id", n.ID, "node_type", n.Type)
	g.emit(listeners, changes)
	return nil
}

func checkNode(n domain.Node) error {
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", domain.ErrInvalidNode)
	}
	seen := make(map[string]bool, len(n.Inputs)+len(n.Outputs))
	check := func(p domain.Port, dir domain.Direction) error {
		if p.ID == "" {
			return fmt.Errorf("%w: node %q has a port with an empty id", domain.ErrInvalidNode, n.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: node %q has duplicate port %q", domain.ErrInvalidNode, n.ID, p.ID)
		}
		seen[p.ID] = true
		if p.Direction != "" && p.Direction != dir {
			return fmt.Errorf("%w: port %q of node %q listed as %s but declared %s", domain.ErrInvalidNode, p.ID, n.ID, dir, p.Direction)
		}
		if !porttype.Known(p.Type) {
			return fmt.Errorf("%w: port %q of node %q has type %q", domain.ErrUnknownPortType, p.ID, n.ID, p.Type)
		}
		return nil
	}
	for _, p := range n.Inputs {
		if err := check(p, domain.DirectionInput); err != nil {
			return err
		}
	}
	for _, p := range n.Outputs {
		if err := check(p, domain.DirectionOutput); err != nil {
			return err
		}
	}
	return nil
}

// RemoveNode deletes a node and every edge touching it.
// It returns the removed node and the cascaded edges.
func (g *Graph) RemoveNode(id string) (domain.Node, []domain.Edge, error) {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return domain.Node{}, nil, fmt.Errorf("%w: %q", domain.ErrNodeNotFound, id)
	}

	var removed []domain.Edge
	for _, eid := range slices.Sorted(maps.Keys(g.edges)) {
		e := g.edges[eid]
		if e.Touches(id) {
			g.deleteEdge(e)
			removed = append(removed, e)
		}
	}
	delete(g.nodes, id)

	changes := make([]domain.GraphChange, 0, len(removed)+1)
	for i := range removed {
		e := removed[i]
		changes = append(changes, domain.GraphChange{Kind: domain.ChangeEdgeRemoved, EdgeID: e.ID, Edge: &e})
	}
	before := n.Clone()
	changes = append(changes, domain.GraphChange{Kind: domain.ChangeNodeRemoved, NodeID: id, Before: &before})
	listeners := g.commit(changes)
	g.mu.Unlock()

	g.logger.Debug("node removed", "node_id", id, "edges_removed", len(removed))
	g.emit(listeners, changes)
	return before.Clone(), removed, nil
}

// AddEdge connects an output port to an input port. A rejected edge never
// mutates the graph. Checks run in order: endpoints, type compatibility, occupancy.
func (g *Graph) AddEdge(e domain.Edge) error {
	if e.ID == "" {
		return &domain.ConnectionError{Edge: e, Reason: "empty edge id", Err: domain.ErrUnknownEndpoint}
	}

	g.mu.Lock()
	if _, exists := g.edges[e.ID]; exists {
		g.mu.Unlock()
		return fmt.Errorf("%w: %q", domain.ErrDuplicateEdge, e.ID)
	}
	src, dst, err := g.endpoints(e)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if !porttype.IsCompatible(src.Type, dst.Type) {
		g.mu.Unlock()
		return &domain.ConnectionError{
			Edge:   e,
			Reason: fmt.Sprintf("%s is not compatible with %s", src.Type, dst.Type),
			Err:    domain.ErrIncompatiblePorts,
		}
	}
	if occupant, taken := g.incoming[portKey{e.TargetNodeID, e.TargetPortID}]; taken {
		g.mu.Unlock()
		return &domain.ConnectionError{
			Edge:   e,
			Reason: fmt.Sprintf("already fed by edge %s", occupant),
			Err:    domain.ErrPortOccupied,
		}
	}

	g.edges[e.ID] = e
	g.incoming[portKey{e.TargetNodeID, e.TargetPortID}] = e.ID
	changes := []domain.GraphChange{{Kind: domain.ChangeEdgeAdded, EdgeID: e.ID, Edge: &e}}
	listeners := g.commit(changes)
	g.mu.Unlock()

	g.logger.Debug("edge added", "edge_id", e.ID, "source", e.SourceNodeID, "target", e.TargetNodeID)
	g.emit(listeners, changes)
	return nil
}

// endpoints resolves the source output and target input of an edge. Caller holds the lock.
func (g *Graph) endpoints(e domain.Edge) (domain.Port, domain.Port, error) {
	unknown := func(reason string) error {
		return &domain.ConnectionError{Edge: e, Reason: reason, Err: domain.ErrUnknownEndpoint}
	}
	srcNode, ok := g.nodes[e.SourceNodeID]
	if !ok {
		return domain.Port{}, domain.Port{}, unknown("source node does not exist")
	}
	dstNode, ok := g.nodes[e.TargetNodeID]
	if !ok {
		return domain.Port{}, domain.Port{}, unknown("target node does not exist")
	}
	src, ok := srcNode.OutputPort(e.SourcePortID)
	if !ok {
		return domain.Port{}, domain.Port{}, unknown("source output port does not exist")
	}
	dst, ok := dstNode.InputPort(e.TargetPortID)
	if !ok {
		return domain.Port{}, domain.Port{}, unknown("target input port does not exist")
	}
	return src, dst, nil
}

// RemoveEdge deletes an edge.
func (g *Graph) RemoveEdge(id string) (domain.Edge, error) {
	g.mu.Lock()
	e, ok := g.edges[id]
	if !ok {
		g.mu.Unlock()
		return domain.Edge{}, fmt.Errorf("%w: %q", domain.ErrEdgeNotFound, id)
	}
	g.deleteEdge(e)
	changes := []domain.GraphChange{{Kind: domain.ChangeEdgeRemoved, EdgeID: id, Edge: &e}}
	listeners := g.commit(changes)
	g.mu.Unlock()

	g.logger.Debug("edge removed", "edge_id", id)
	g.emit(listeners, changes)
	return e, nil
}

func (g *Graph) deleteEdge(e domain.Edge) {
	delete(g.edges, e.ID)
	key := portKey{e.TargetNodeID, e.TargetPortID}
	if g.incoming[key] == e.ID {
		delete(g.incoming, key)
	}
}

// UpdateNode merges a user patch into a node.
func (g *Graph) UpdateNode(id string, patch domain.NodePatch) (domain.Node, error) {
	return g.mutateNode(id, patch.Apply)
}

// UpdateNodeParameters merges parameter keys into a node.
func (g *Graph) UpdateNodeParameters(id string, params map[string]any) (domain.Node, error) {
	return g.UpdateNode(id, domain.NodePatch{Parameters: params})
}

// UpdateNodeStatus merges an execution status patch into a node.
func (g *Graph) UpdateNodeStatus(id string, patch domain.StatusPatch) (domain.Node, error) {
	return g.mutateNode(id, patch.Apply)
}

// UpdateNodeStatusIf applies the patch only if the node's current status is want.
// It reports whether the patch was applied.
func (g *Graph) UpdateNodeStatusIf(id string, want domain.NodeStatus, patch domain.StatusPatch) (domain.Node, bool, error) {
	applied := false
	n, err := g.mutateNodeIf(id, func(n *domain.Node) bool {
		if n.Status != want {
			return false
		}
		patch.Apply(n)
		applied = true
		return true
	})
	return n, applied, err
}

// SetUnsynced toggles the pending-sync flag of a node.
func (g *Graph) SetUnsynced(id string, unsynced bool) error {
	_, err := g.mutateNodeIf(id, func(n *domain.Node) bool {
		if n.Unsynced == unsynced {
			return false
		}
		n.Unsynced = unsynced
		return true
	})
	return err
}

func (g *Graph) mutateNode(id string, apply func(*domain.Node)) (domain.Node, error) {
	return g.mutateNodeIf(id, func(n *domain.Node) bool {
		apply(n)
		return true
	})
}

// mutateNodeIf runs fn on the stored node under the lock; fn reports whether it changed anything.
func (g *Graph) mutateNodeIf(id string, fn func(*domain.Node) bool) (domain.Node, error) {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return domain.Node{}, fmt.Errorf("%w: %q", domain.ErrNodeNotFound, id)
	}
	before := n.Clone()
	if !fn(n) {
		g.mu.Unlock()
		return before, nil
	}
	after := n.Clone()
	changes := []domain.GraphChange{{Kind: domain.ChangeNodeUpdated, NodeID: id, Before: &before, After: &after}}
	listeners := g.commit(changes)
	g.mu.Unlock()

	g.emit(listeners, changes)
	return after.Clone(), nil
}

// GetNode returns a copy of a node.
func (g *Graph) GetNode(id string) (domain.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return domain.Node{}, false
	}
	return n.Clone(), true
}

// GetEdge returns an edge by id.
func (g *Graph) GetEdge(id string) (domain.Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	return e, ok
}

// ListEdgesFor returns the edges entering (input) or leaving (output) a node,
// ordered by id. An empty direction returns both.
func (g *Graph) ListEdgesFor(nodeID string, dir domain.Direction) []domain.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgesFor(nodeID, dir)
}

func (g *Graph) edgesFor(nodeID string, dir domain.Direction) []domain.Edge {
	var out []domain.Edge
	for _, e := range g.edges {
		switch dir {
		case domain.DirectionInput:
			if e.TargetNodeID == nodeID {
				out = append(out, e)
			}
		case domain.DirectionOutput:
			if e.SourceNodeID == nodeID {
				out = append(out, e)
			}
		default:
			if e.Touches(nodeID) {
				out = append(out, e)
			}
		}
	}
	slices.SortFunc(out, func(a, b domain.Edge) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ResolveInputs collects, per input port, the cached outputs of the upstream
// port feeding it. Assets without a port id are attributed to every output.
func (g *Graph) ResolveInputs(nodeID string) (map[string][]domain.AssetRef, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrNodeNotFound, nodeID)
	}
	inputs := make(map[string][]domain.AssetRef)
	for _, e := range g.edgesFor(nodeID, domain.DirectionInput) {
		src, ok := g.nodes[e.SourceNodeID]
		if !ok {
			continue
		}
		for _, a := range src.CachedOutput {
			if a.PortID == "" || a.PortID == e.SourcePortID {
				inputs[e.TargetPortID] = append(inputs[e.TargetPortID], a)
			}
		}
	}
	return inputs, nil
}

// Snapshot returns a copy of the whole graph with nodes and edges ordered by id.
func (g *Graph) Snapshot() domain.GraphSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	snap := domain.GraphSnapshot{
		Revision: g.revision,
		Nodes:    make([]domain.Node, 0, len(g.nodes)),
		Edges:    make([]domain.Edge, 0, len(g.edges)),
	}
	for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
		snap.Nodes = append(snap.Nodes, g.nodes[id].Clone())
	}
	for _, id := range slices.Sorted(maps.Keys(g.edges)) {
		snap.Edges = append(snap.Edges, g.edges[id])
	}
	return snap
}

// Revision is incremented on every mutation.
func (g *Graph) Revision() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.revision
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// commit bumps the revision and stamps the changes. Caller holds the lock.
func (g *Graph) commit(changes []domain.GraphChange) []Listener {
	g.revision++
	for i := range changes {
		changes[i].Revision = g.revision
	}
	return slices.Clone(g.listeners)
}

func (g *Graph) emit(listeners []Listener, changes []domain.GraphChange) {
	for _, ch := range changes {
		for _, l := range listeners {
			l(ch)
		}
	}
}
