package validation

import (
	"slices"
	"strings"

	"github.com/bert-systems/canvas/pkg/domain"
)

// cycles returns the strongly connected components that contain a cycle
// (more than one node, or a single node with a self-loop). Members of each
// component are sorted, and components are ordered by their first member.
func cycles(nodes []domain.Node, edges []domain.Edge, byID map[string]domain.Node) [][]string {
	adjacency := make(map[string][]string, len(nodes))
	selfLoop := make(map[string]bool)
	for _, e := range edges {
		if _, ok := byID[e.SourceNodeID]; !ok {
			continue
		}
		if _, ok := byID[e.TargetNodeID]; !ok {
			continue
		}
		if e.SourceNodeID == e.TargetNodeID {
			selfLoop[e.SourceNodeID] = true
		}
		adjacency[e.SourceNodeID] = append(adjacency[e.SourceNodeID], e.TargetNodeID)
	}
	for id := range adjacency {
		slices.Sort(adjacency[id])
	}

	// Tarjan's algorithm.
	var (
		index   = 0
		indices = make(map[string]int, len(nodes))
		lowlink = make(map[string]int, len(nodes))
		onStack = make(map[string]bool, len(nodes))
		stack   []string
		out     [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var scc []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if len(scc) > 1 || selfLoop[v] {
			slices.Sort(scc)
			out = append(out, scc)
		}
	}

	for _, n := range nodes {
		if _, visited := indices[n.ID]; !visited {
			strongConnect(n.ID)
		}
	}

	slices.SortFunc(out, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return out
}
