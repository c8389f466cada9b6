package validation

import (
	"testing"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/graph"
	"github.com/bert-systems/canvas/pkg/nodetype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, g *graph.Graph, id, nodeType string) {
	t.Helper()
	n, err := nodetype.Default().Build(nodetype.Spec{Type: nodeType, ID: id})
	require.NoError(t, err)
	require.NoError(t, g.AddNode(n))
}

func connect(t *testing.T, g *graph.Graph, id, src, srcPort, dst, dstPort string) {
	t.Helper()
	require.NoError(t, g.AddEdge(domain.Edge{ID: id, SourceNodeID: src, SourcePortID: srcPort, TargetNodeID: dst, TargetPortID: dstPort}))
}

func TestRequiredInputSatisfiedByConnection(t *testing.T) {
	g := graph.New()
	build(t, g, "A", nodetype.StoryGenesis)
	build(t, g, "B", nodetype.StoryRefiner)

	res := Validate(g.Snapshot())
	assert.False(t, res.Valid)
	assert.True(t, res.HasCode(domain.CodeMissingRequiredInput, "B"))

	connect(t, g, "e1", "A", "story", "B", "story")

	res = Validate(g.Snapshot())
	assert.True(t, res.Valid)
	assert.False(t, res.HasCode(domain.CodeMissingRequiredInput, "B"))
	assert.Empty(t, res.Issues)
}

func TestCorruptedSnapshot(t *testing.T) {
	snap := domain.GraphSnapshot{
		Nodes: []domain.Node{
			{ID: "a", Outputs: []domain.Port{{ID: "o", Direction: domain.DirectionOutput, Type: domain.PortText}}},
			{ID: "b", Inputs: []domain.Port{{ID: "i", Direction: domain.DirectionInput, Type: domain.PortImage}}},
			{ID: "c", Inputs: []domain.Port{{ID: "x", Direction: domain.DirectionInput, Type: "hologram"}}},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "a", SourcePortID: "o", TargetNodeID: "b", TargetPortID: "i"},
			{ID: "e2", SourceNodeID: "ghost", SourcePortID: "o", TargetNodeID: "b", TargetPortID: "i"},
		},
	}

	res := Validate(snap)
	require.False(t, res.Valid)
	codes := make([]domain.IssueCode, 0, len(res.Issues))
	for _, is := range res.Issues {
		codes = append(codes, is.Code)
	}
	assert.Equal(t, []domain.IssueCode{
		domain.CodeIncompatiblePorts,
		domain.CodeUnknownEndpoint,
		domain.CodeUnknownPortType,
	}, codes)
	assert.Equal(t, "e1", res.Issues[0].EdgeID)
	assert.Equal(t, "e2", res.Issues[1].EdgeID)
}

func TestLockedWhileRunningIsWarning(t *testing.T) {
	g := graph.New()
	build(t, g, "A", nodetype.TextPrompt)
	_, err := g.UpdateNode("A", domain.NodePatch{IsLocked: domain.BoolPtr(true)})
	require.NoError(t, err)
	_, err = g.UpdateNodeStatus("A", domain.StatusPatch{Status: domain.StatusRunning})
	require.NoError(t, err)

	res := Validate(g.Snapshot())
	assert.True(t, res.Valid, "warnings do not invalidate the graph")
	require.Len(t, res.Warnings(), 1)
	assert.Equal(t, domain.CodeLockedWhileRunning, res.Warnings()[0].Code)
}

func TestCycleDetection(t *testing.T) {
	g := graph.New()
	build(t, g, "a", nodetype.Reroute)
	build(t, g, "b", nodetype.Reroute)
	build(t, g, "c", nodetype.TextPrompt)
	connect(t, g, "e1", "a", "out", "b", "in")
	connect(t, g, "e2", "b", "out", "a", "in")

	res := Validate(g.Snapshot(), WithCatalog(nodetype.Default()))
	require.True(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, domain.CodeCyclicGraph, res.Issues[0].Code)
	assert.Equal(t, "a", res.Issues[0].NodeID)

	res = Validate(g.Snapshot(), WithoutCycleCheck())
	assert.Empty(t, res.Issues)
}

func TestCycleOfTolerantTypesIsNotFlagged(t *testing.T) {
	g := graph.New()
	build(t, g, "seed", nodetype.StoryGenesis)
	build(t, g, "r1", nodetype.StoryRefiner)
	build(t, g, "r2", nodetype.StoryRefiner)
	connect(t, g, "e1", "r1", "refinedStory", "r2", "story")
	connect(t, g, "e2", "r2", "notes", "r1", "feedback")
	connect(t, g, "e3", "seed", "story", "r1", "story")

	// r1.story is fed by e3; the loop is r1 -> r2 -> r1
	withCatalog := Validate(g.Snapshot(), WithCatalog(nodetype.Default()))
	assert.False(t, withCatalog.HasCode(domain.CodeCyclicGraph, ""))

	withoutCatalog := Validate(g.Snapshot())
	assert.True(t, withoutCatalog.HasCode(domain.CodeCyclicGraph, "r1"))
}

func TestSelfLoop(t *testing.T) {
	g := graph.New()
	build(t, g, "r", nodetype.Reroute)
	connect(t, g, "e1", "r", "out", "r", "in")

	res := Validate(g.Snapshot())
	assert.True(t, res.HasCode(domain.CodeCyclicGraph, "r"))
}

func TestDeterminism(t *testing.T) {
	g := graph.New()
	for _, id := range []string{"z", "m", "a", "q"} {
		build(t, g, id, nodetype.GarmentDesigner)
	}
	snap := g.Snapshot()
	first := Validate(snap)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Validate(g.Snapshot()))
	}

	// reversed input order yields the same report
	reversed := snap
	reversed.Nodes = nil
	for i := len(snap.Nodes) - 1; i >= 0; i-- {
		reversed.Nodes = append(reversed.Nodes, snap.Nodes[i])
	}
	assert.Equal(t, first, Validate(reversed))
	assert.Equal(t, "a", first.Issues[0].NodeID)
}
