package graph

import (
	"sync"
	"testing"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id string, inputs []domain.Port, outputs []domain.Port) domain.Node {
	return domain.Node{ID: id, Type: "test", Label: id, Inputs: inputs, Outputs: outputs}
}

func input(id string, t domain.PortType, required bool) domain.Port {
	return domain.Port{ID: id, Name: id, Direction: domain.DirectionInput, Type: t, Required: required}
}

func output(id string, t domain.PortType) domain.Port {
	return domain.Port{ID: id, Name: id, Direction: domain.DirectionOutput, Type: t}
}

func edge(id, src, srcPort, dst, dstPort string) domain.Edge {
	return domain.Edge{ID: id, SourceNodeID: src, SourcePortID: srcPort, TargetNodeID: dst, TargetPortID: dstPort}
}

// storyPair builds A(story out) and B(story in, required).
func storyPair(t *testing.T, opts ...Option) *Graph {
	t.Helper()
	g := New(opts...)
	require.NoError(t, g.AddNode(node("A", nil, []domain.Port{output("story", domain.PortStory), output("notes", domain.PortText)})))
	require.NoError(t, g.AddNode(node("B", []domain.Port{input("story", domain.PortStory, true), input("ref", domain.PortImage, false)}, nil)))
	return g
}

func TestAddNode(t *testing.T) {
	g := New()

	require.NoError(t, g.AddNode(node("A", nil, nil)))
	n, ok := g.GetNode("A")
	require.True(t, ok)
	assert.Equal(t, domain.StatusIdle, n.Status)

	assert.ErrorIs(t, g.AddNode(node("A", nil, nil)), domain.ErrDuplicateNode)
	assert.ErrorIs(t, g.AddNode(node("", nil, nil)), domain.ErrInvalidNode)
	assert.ErrorIs(t, g.AddNode(node("X", nil, []domain.Port{output("o", "hologram")})), domain.ErrUnknownPortType)
	assert.ErrorIs(t, g.AddNode(node("Y", []domain.Port{input("p", domain.PortText, false)}, []domain.Port{output("p", domain.PortText)})), domain.ErrInvalidNode)
	assert.Equal(t, 1, g.Len())
}

func TestAddEdge(t *testing.T) {
	g := storyPair(t)

	require.NoError(t, g.AddEdge(edge("e1", "A", "story", "B", "story")))
	assert.Equal(t, []domain.Edge{edge("e1", "A", "story", "B", "story")}, g.ListEdgesFor("B", domain.DirectionInput))
	assert.Empty(t, g.ListEdgesFor("B", domain.DirectionOutput))
	assert.Len(t, g.ListEdgesFor("A", ""), 1)
}

func TestAddEdgeRejections(t *testing.T) {
	tests := []struct {
		name string
		edge domain.Edge
		want error
	}{
		{"missing source node", edge("x", "Z", "story", "B", "story"), domain.ErrUnknownEndpoint},
		{"missing target port", edge("x", "A", "story", "B", "nope"), domain.ErrUnknownEndpoint},
		{"input used as source", edge("x", "B", "story", "B", "story"), domain.ErrUnknownEndpoint},
		{"text into image", edge("x", "A", "notes", "B", "ref"), domain.ErrIncompatiblePorts},
		{"occupied", edge("x", "A", "story", "B", "story"), domain.ErrPortOccupied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := storyPair(t)
			require.NoError(t, g.AddEdge(edge("e1", "A", "story", "B", "story")))
			before := g.Snapshot()

			err := g.AddEdge(tt.edge)
			require.ErrorIs(t, err, tt.want)

			var connErr *domain.ConnectionError
			require.ErrorAs(t, err, &connErr)
			assert.Equal(t, tt.edge, connErr.Edge)
			assert.Equal(t, before, g.Snapshot(), "rejected edge must not mutate the graph")
		})
	}
}

func TestAddEdgeUnknownEndpointWinsOverIncompatible(t *testing.T) {
	g := storyPair(t)
	err := g.AddEdge(edge("x", "A", "notes", "Z", "ref"))
	assert.ErrorIs(t, err, domain.ErrUnknownEndpoint)
}

func TestAnyPortConnects(t *testing.T) {
	g := storyPair(t)
	require.NoError(t, g.AddNode(node("R", []domain.Port{input("in", domain.PortAny, true)}, []domain.Port{output("out", domain.PortAny)})))

	require.NoError(t, g.AddEdge(edge("e1", "A", "notes", "R", "in")))
	require.NoError(t, g.AddEdge(edge("e2", "R", "out", "B", "ref")))
}

func TestRemoveNodeCascades(t *testing.T) {
	var mu sync.Mutex
	var kinds []domain.ChangeKind
	g := storyPair(t, WithListener(func(ch domain.GraphChange) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, ch.Kind)
	}))
	require.NoError(t, g.AddEdge(edge("e1", "A", "story", "B", "story")))

	removed, edges, err := g.RemoveNode("A")
	require.NoError(t, err)
	assert.Equal(t, "A", removed.ID)
	assert.Len(t, edges, 1)
	assert.Empty(t, g.Snapshot().Edges)

	mu.Lock()
	assert.Equal(t, []domain.ChangeKind{
		domain.ChangeNodeAdded, domain.ChangeNodeAdded, domain.ChangeEdgeAdded,
		domain.ChangeEdgeRemoved, domain.ChangeNodeRemoved,
	}, kinds)
	mu.Unlock()

	// the freed input can be reconnected
	require.NoError(t, g.AddNode(node("C", nil, []domain.Port{output("story", domain.PortStory)})))
	require.NoError(t, g.AddEdge(edge("e2", "C", "story", "B", "story")))

	_, _, err = g.RemoveNode("A")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestRemoveEdge(t *testing.T) {
	g := storyPair(t)
	require.NoError(t, g.AddEdge(edge("e1", "A", "story", "B", "story")))

	_, err := g.RemoveEdge("e1")
	require.NoError(t, err)
	_, err = g.RemoveEdge("e1")
	assert.ErrorIs(t, err, domain.ErrEdgeNotFound)

	require.NoError(t, g.AddEdge(edge("e1", "A", "story", "B", "story")), "port is free again")
}

func TestUpdateNodeStatusIf(t *testing.T) {
	g := storyPair(t)

	_, applied, err := g.UpdateNodeStatusIf("A", domain.StatusRunning, domain.StatusPatch{Status: domain.StatusCompleted})
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = g.UpdateNodeStatus("A", domain.StatusPatch{Status: domain.StatusRunning, Progress: domain.IntPtr(0)})
	require.NoError(t, err)

	n, applied, err := g.UpdateNodeStatusIf("A", domain.StatusRunning, domain.StatusPatch{Progress: domain.IntPtr(30)})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 30, *n.Progress)

	_, _, err = g.UpdateNodeStatusIf("missing", domain.StatusRunning, domain.StatusPatch{})
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestUpdateNodeAndRevision(t *testing.T) {
	g := storyPair(t)
	rev := g.Revision()

	n, err := g.UpdateNode("A", domain.NodePatch{Label: domain.StringPtr("Genesis"), IsLocked: domain.BoolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, "Genesis", n.Label)
	assert.True(t, n.IsLocked)
	assert.Equal(t, rev+1, g.Revision())

	_, err = g.UpdateNodeParameters("A", map[string]any{"genre": "noir"})
	require.NoError(t, err)
	got, _ := g.GetNode("A")
	assert.Equal(t, "noir", got.Parameters["genre"])

	// GetNode hands out copies
	got.Parameters["genre"] = "mutated"
	again, _ := g.GetNode("A")
	assert.Equal(t, "noir", again.Parameters["genre"])

	require.NoError(t, g.SetUnsynced("A", true))
	rev = g.Revision()
	require.NoError(t, g.SetUnsynced("A", true))
	assert.Equal(t, rev, g.Revision(), "no-op flag change does not bump the revision")
}

func TestResolveInputs(t *testing.T) {
	g := storyPair(t)
	require.NoError(t, g.AddEdge(edge("e1", "A", "story", "B", "story")))
	_, err := g.UpdateNodeStatus("A", domain.StatusPatch{
		Status: domain.StatusCompleted,
		CachedOutput: []domain.AssetRef{
			{ID: "s1", PortID: "story", Kind: domain.PortStory},
			{ID: "n1", PortID: "notes", Kind: domain.PortText},
		},
	})
	require.NoError(t, err)

	inputs, err := g.ResolveInputs("B")
	require.NoError(t, err)
	assert.Equal(t, map[string][]domain.AssetRef{
		"story": {{ID: "s1", PortID: "story", Kind: domain.PortStory}},
	}, inputs)

	_, err = g.ResolveInputs("Z")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestSnapshotIsOrdered(t *testing.T) {
	g := New()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, g.AddNode(node(id, nil, nil)))
	}
	snap := g.Snapshot()
	require.Len(t, snap.Nodes, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{snap.Nodes[0].ID, snap.Nodes[1].ID, snap.Nodes[2].ID})
	assert.Equal(t, g.Revision(), snap.Revision)
}

func TestListenerMayReadGraph(t *testing.T) {
	var g *Graph
	seen := 0
	g = New(WithListener(func(ch domain.GraphChange) {
		seen = g.Len()
	}))
	require.NoError(t, g.AddNode(node("A", nil, nil)))
	assert.Equal(t, 1, seen)
}
