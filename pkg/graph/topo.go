package graph

import (
	"slices"

	"github.com/bert-systems/canvas/pkg/domain"
)

// TopologicalOrder returns node ids so that every node comes after the nodes
// feeding it. Ties are broken by id; when only cycles remain, the smallest
// remaining id is emitted next.
func TopologicalOrder(snap domain.GraphSnapshot) []string {
	indegree := make(map[string]int, len(snap.Nodes))
	downstream := make(map[string][]string, len(snap.Nodes))
	for _, n := range snap.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range snap.Edges {
		if _, ok := indegree[e.SourceNodeID]; !ok {
			continue
		}
		if _, ok := indegree[e.TargetNodeID]; !ok {
			continue
		}
		indegree[e.TargetNodeID]++
		downstream[e.SourceNodeID] = append(downstream[e.SourceNodeID], e.TargetNodeID)
	}

	remaining := make([]string, 0, len(indegree))
	for id := range indegree {
		remaining = append(remaining, id)
	}
	slices.Sort(remaining)

	order := make([]string, 0, len(remaining))
	done := make(map[string]bool, len(remaining))
	for len(order) < len(remaining) {
		next := ""
		for _, id := range remaining {
			if !done[id] && indegree[id] == 0 {
				next = id
				break
			}
		}
		if next == "" {
			for _, id := range remaining {
				if !done[id] {
					next = id
					break
				}
			}
		}
		done[next] = true
		order = append(order, next)
		for _, d := range downstream[next] {
			indegree[d]--
		}
	}
	return order
}
