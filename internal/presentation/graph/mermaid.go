package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/porttype"
)

// Overlay controls the dynamic decorations of the diagram.
type Overlay struct {
	// Status colours nodes by execution status.
	Status bool
	// Issues marks nodes that have validation issues.
	Issues *domain.GraphValidationResult
}

// GenerateMermaid produces a Mermaid flowchart from a board snapshot.
// Shapes follow the node role:
// - Source (no inputs): ([Stadium])
// - Sink (no outputs): [[Subroutine]]
// - Reroute (any to any): ((Circle))
// - Default: [Rectangle]
// Edges are labelled with their port types and coloured like the source port.
func GenerateMermaid(snap domain.GraphSnapshot, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, n := range snap.Nodes {
		opener, closer := "[", "]"
		switch {
		case isReroute(n):
			opener, closer = "((", "))"
		case len(n.Inputs) == 0:
			opener, closer = "([", "])"
		case len(n.Outputs) == 0:
			opener, closer = "[[", "]]"
		}
		label := escape(n.Label)
		if label == "" {
			label = escape(n.ID)
		}
		if n.IsLocked {
			label = "🔒 " + label
		}
		fmt.Fprintf(&sb, "    %s%s\"%s<br/><small>%s</small>\"%s\n", sanitizeMermaidID(n.ID), opener, label, n.Type, closer)
	}

	for i, e := range snap.Edges {
		src, _ := snap.Node(e.SourceNodeID)
		portType := domain.PortType("?")
		if p, ok := src.OutputPort(e.SourcePortID); ok {
			portType = p.Type
		}
		fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", sanitizeMermaidID(e.SourceNodeID), portType, sanitizeMermaidID(e.TargetNodeID))
		fmt.Fprintf(&sb, "    linkStyle %d stroke:%s;\n", i, porttype.ColorOf(portType))
	}

	if overlay == nil {
		return sb.String()
	}

	sb.WriteString("\n    %% Overlay Styles\n")
	if overlay.Status {
		sb.WriteString("    classDef running fill:#fff8e1,stroke:#f59e0b,stroke-width:3px,color:#000;\n")
		sb.WriteString("    classDef completed fill:#e8f5e9,stroke:#16a34a,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef error fill:#ffebee,stroke:#dc2626,stroke-width:3px,color:#000;\n")
		for _, n := range snap.Nodes {
			switch n.Status {
			case domain.StatusRunning, domain.StatusCompleted, domain.StatusError:
				fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(n.ID), n.Status)
			}
		}
	}
	if overlay.Issues != nil {
		sb.WriteString("    classDef invalid stroke:#dc2626,stroke-dasharray:5 5;\n")
		var flagged []string
		for _, is := range overlay.Issues.Issues {
			if is.NodeID != "" && is.Severity == domain.SeverityError {
				flagged = append(flagged, sanitizeMermaidID(is.NodeID))
			}
		}
		slices.Sort(flagged)
		for _, id := range slices.Compact(flagged) {
			fmt.Fprintf(&sb, "    class %s invalid;\n", id)
		}
	}
	return sb.String()
}

func isReroute(n domain.Node) bool {
	return len(n.Inputs) == 1 && len(n.Outputs) == 1 &&
		n.Inputs[0].Type == domain.PortAny && n.Outputs[0].Type == domain.PortAny
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
