// Package board reads YAML seed files describing nodes and edges, used by the
// CLI to populate a session for development and demos.
package board

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/nodetype"
)

// Board is the content of a seed file.
type Board struct {
	Name  string        `yaml:"name"`
	Nodes []Node        `yaml:"nodes"`
	Edges []domain.Edge `yaml:"edges"`
}

// Node is a template instantiation plus the UI state it starts with.
type Node struct {
	nodetype.Spec `yaml:",inline"`
	Locked        bool `yaml:"locked,omitempty"`
	Expanded      bool `yaml:"expanded,omitempty"`
}

// Target is what a board is applied to.
type Target interface {
	CreateNode(ctx context.Context, spec nodetype.Spec) (domain.Node, error)
	MutateNode(ctx context.Context, id string, patch domain.NodePatch) (domain.Node, error)
	Connect(ctx context.Context, e domain.Edge) (domain.Edge, error)
}

// Parse decodes a seed document.
func Parse(data []byte) (*Board, error) {
	var b Board
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse board: %w", err)
	}
	seen := make(map[string]bool, len(b.Nodes))
	for i, n := range b.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("parse board: node %d has no id", i)
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("parse board: duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	for i := range b.Edges {
		if b.Edges[i].ID == "" {
			e := b.Edges[i]
			b.Edges[i].ID = fmt.Sprintf("%s.%s->%s.%s", e.SourceNodeID, e.SourcePortID, e.TargetNodeID, e.TargetPortID)
		}
	}
	return &b, nil
}

// Load reads and parses a seed file.
func Load(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read board: %w", err)
	}
	return Parse(data)
}

// Apply creates every node, then every edge. Lock flags are applied last so
// that parameters of locked nodes still load. It stops at the first error.
func (b *Board) Apply(ctx context.Context, t Target) error {
	for _, n := range b.Nodes {
		if _, err := t.CreateNode(ctx, n.Spec); err != nil {
			return fmt.Errorf("node %q: %w", n.ID, err)
		}
	}
	for _, e := range b.Edges {
		if _, err := t.Connect(ctx, e); err != nil {
			return fmt.Errorf("edge %q: %w", e.ID, err)
		}
	}
	for _, n := range b.Nodes {
		if !n.Locked && !n.Expanded {
			continue
		}
		patch := domain.NodePatch{}
		if n.Locked {
			patch.IsLocked = domain.BoolPtr(true)
		}
		if n.Expanded {
			patch.IsExpanded = domain.BoolPtr(true)
		}
		if _, err := t.MutateNode(ctx, n.ID, patch); err != nil {
			return fmt.Errorf("node %q: %w", n.ID, err)
		}
	}
	return nil
}
