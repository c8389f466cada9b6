package graph

import (
	"testing"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestTopologicalOrder(t *testing.T) {
	snap := domain.GraphSnapshot{
		Nodes: []domain.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		Edges: []domain.Edge{
			edge("e1", "c", "o", "a", "i"),
			edge("e2", "a", "o", "b", "i"),
			edge("e3", "d", "o", "b", "j"),
		},
	}
	assert.Equal(t, []string{"c", "a", "d", "b"}, TopologicalOrder(snap))
}

func TestTopologicalOrderBreaksCycles(t *testing.T) {
	snap := domain.GraphSnapshot{
		Nodes: []domain.Node{{ID: "x"}, {ID: "y"}, {ID: "z"}},
		Edges: []domain.Edge{
			edge("e1", "x", "o", "y", "i"),
			edge("e2", "y", "o", "x", "i"),
			edge("e3", "y", "o", "z", "i"),
		},
	}
	assert.Equal(t, []string{"x", "y", "z"}, TopologicalOrder(snap))
}
