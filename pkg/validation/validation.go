// Package validation reports structural problems of a canvas graph.
//
// Validate is a pure function of a graph snapshot: it runs a fixed, ordered set
// of checks, accumulates every issue it finds and visits nodes and edges in id
// order, so an unchanged graph always yields an identical result.
package validation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/porttype"
)

// Catalog answers which node types may legitimately sit on a cycle.
type Catalog interface {
	CycleTolerant(nodeType string) bool
}

type config struct {
	catalog     Catalog
	checkCycles bool
}

// Option configures a validation run.
type Option func(*config)

// WithCatalog exempts cycles made only of cycle-tolerant node types.
func WithCatalog(c Catalog) Option {
	return func(cfg *config) {
		cfg.catalog = c
	}
}

// WithoutCycleCheck disables cycle detection.
func WithoutCycleCheck() Option {
	return func(cfg *config) {
		cfg.checkCycles = false
	}
}

// Validate walks a snapshot and returns its validation report.
func Validate(snap domain.GraphSnapshot, opts ...Option) domain.GraphValidationResult {
	cfg := config{checkCycles: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	nodes := slices.Clone(snap.Nodes)
	slices.SortFunc(nodes, func(a, b domain.Node) int { return strings.Compare(a.ID, b.ID) })
	edges := slices.Clone(snap.Edges)
	slices.SortFunc(edges, func(a, b domain.Edge) int { return strings.Compare(a.ID, b.ID) })

	byID := make(map[string]domain.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var issues []domain.ValidationIssue
	issues = append(issues, checkRequiredInputs(nodes, edges, byID)...)
	issues = append(issues, checkEdges(edges, byID)...)
	issues = append(issues, checkPortTypes(nodes)...)
	issues = append(issues, checkLocked(nodes)...)
	if cfg.checkCycles {
		issues = append(issues, checkCycles(nodes, edges, byID, cfg.catalog)...)
	}
	return domain.NewValidationResult(issues)
}

func checkRequiredInputs(nodes []domain.Node, edges []domain.Edge, byID map[string]domain.Node) []domain.ValidationIssue {
	fed := make(map[[2]string]bool)
	for _, e := range edges {
		if _, ok := byID[e.SourceNodeID]; !ok {
			continue
		}
		fed[[2]string{e.TargetNodeID, e.TargetPortID}] = true
	}

	var issues []domain.ValidationIssue
	for _, n := range nodes {
		for _, p := range n.Inputs {
			if !p.Required || fed[[2]string{n.ID, p.ID}] {
				continue
			}
			issues = append(issues, domain.ValidationIssue{
				Severity: domain.SeverityError,
				Code:     domain.CodeMissingRequiredInput,
				NodeID:   n.ID,
				Message:  fmt.Sprintf("%s: required input %q is not connected", label(n), p.Name),
			})
		}
	}
	return issues
}

func checkEdges(edges []domain.Edge, byID map[string]domain.Node) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	for _, e := range edges {
		unknown := func(msg string) {
			issues = append(issues, domain.ValidationIssue{
				Severity: domain.SeverityError,
				Code:     domain.CodeUnknownEndpoint,
				EdgeID:   e.ID,
				Message:  fmt.Sprintf("edge %s: %s", e.ID, msg),
			})
		}
		src, ok := byID[e.SourceNodeID]
		if !ok {
			unknown(fmt.Sprintf("source node %q does not exist", e.SourceNodeID))
			continue
		}
		dst, ok := byID[e.TargetNodeID]
		if !ok {
			unknown(fmt.Sprintf("target node %q does not exist", e.TargetNodeID))
			continue
		}
		sp, ok := src.OutputPort(e.SourcePortID)
		if !ok {
			unknown(fmt.Sprintf("source port %q does not exist on %s", e.SourcePortID, label(src)))
			continue
		}
		tp, ok := dst.InputPort(e.TargetPortID)
		if !ok {
			unknown(fmt.Sprintf("target port %q does not exist on %s", e.TargetPortID, label(dst)))
			continue
		}
		if !porttype.IsCompatible(sp.Type, tp.Type) {
			issues = append(issues, domain.ValidationIssue{
				Severity: domain.SeverityError,
				Code:     domain.CodeIncompatiblePorts,
				EdgeID:   e.ID,
				NodeID:   dst.ID,
				Message:  fmt.Sprintf("edge %s: %s output cannot feed %s input", e.ID, sp.Type, tp.Type),
			})
		}
	}
	return issues
}

func checkPortTypes(nodes []domain.Node) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	for _, n := range nodes {
		for _, p := range slices.Concat(n.Inputs, n.Outputs) {
			if porttype.Known(p.Type) {
				continue
			}
			issues = append(issues, domain.ValidationIssue{
				Severity: domain.SeverityError,
				Code:     domain.CodeUnknownPortType,
				NodeID:   n.ID,
				Message:  fmt.Sprintf("%s: port %q has unknown type %q", label(n), p.ID, p.Type),
			})
		}
	}
	return issues
}

func checkLocked(nodes []domain.Node) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	for _, n := range nodes {
		if n.IsLocked && n.Status == domain.StatusRunning {
			issues = append(issues, domain.ValidationIssue{
				Severity: domain.SeverityWarning,
				Code:     domain.CodeLockedWhileRunning,
				NodeID:   n.ID,
				Message:  fmt.Sprintf("%s is locked while an execution is still running", label(n)),
			})
		}
	}
	return issues
}

func checkCycles(nodes []domain.Node, edges []domain.Edge, byID map[string]domain.Node, catalog Catalog) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	for _, scc := range cycles(nodes, edges, byID) {
		if catalog != nil && allTolerant(scc, byID, catalog) {
			continue
		}
		names := make([]string, len(scc))
		for i, id := range scc {
			names[i] = label(byID[id])
		}
		issues = append(issues, domain.ValidationIssue{
			Severity: domain.SeverityWarning,
			Code:     domain.CodeCyclicGraph,
			NodeID:   scc[0],
			Message:  "cycle detected: " + strings.Join(names, " -> "),
		})
	}
	return issues
}

func allTolerant(scc []string, byID map[string]domain.Node, catalog Catalog) bool {
	for _, id := range scc {
		if !catalog.CycleTolerant(byID[id].Type) {
			return false
		}
	}
	return true
}

func label(n domain.Node) string {
	if n.Label == "" || n.Label == n.ID {
		return fmt.Sprintf("node %q", n.ID)
	}
	return fmt.Sprintf("%s (%s)", n.Label, n.ID)
}
