package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/nodetype"
	"github.com/bert-systems/canvas/pkg/porttype"
)

// ValidationReport formats a validation result as markdown.
func ValidationReport(name string, res domain.GraphValidationResult) string {
	var sb strings.Builder
	title := "Board"
	if name != "" {
		title = name
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	if res.Valid && len(res.Issues) == 0 {
		sb.WriteString("Board is valid, no issues found.\n")
		return sb.String()
	}
	if res.Valid {
		fmt.Fprintf(&sb, "Board is valid with %d warning(s).\n\n", len(res.Warnings()))
	} else {
		fmt.Fprintf(&sb, "Board is **invalid**: %d error(s), %d warning(s).\n\n", len(res.Errors()), len(res.Warnings()))
	}
	sb.WriteString("| Severity | Code | Node | Edge | Message |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, is := range res.Issues {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			is.Severity, is.Code, dash(is.NodeID), dash(is.EdgeID), strings.ReplaceAll(is.Message, "|", "\\|"))
	}
	return sb.String()
}

// NodeTypesReport lists the templates with their ports as markdown.
func NodeTypesReport(templates []nodetype.Template) string {
	var sb strings.Builder
	sb.WriteString("# Node types\n\n")
	for _, t := range templates {
		fmt.Fprintf(&sb, "## %s `%s`\n\n%s\n\n", t.Label, t.Type, t.Description)
		if t.CycleTolerant {
			sb.WriteString("_May be wired in a feedback loop._\n\n")
		}
		sb.WriteString("| Direction | Port | Type | Required |\n|---|---|---|---|\n")
		for _, p := range t.Inputs {
			fmt.Fprintf(&sb, "| in | %s | %s | %s |\n", p.ID, p.Type, yesNo(p.Required))
		}
		for _, p := range t.Outputs {
			fmt.Fprintf(&sb, "| out | %s | %s | |\n", p.ID, p.Type)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// PortLegend renders one coloured swatch per port type, for terminals.
func PortLegend(profile termenv.Profile) string {
	var sb strings.Builder
	for _, info := range porttype.All() {
		swatch := termenv.String("  ").Background(profile.Color(info.Color))
		fmt.Fprintf(&sb, "%s %-11s %s\n", swatch, info.Type, info.Color)
	}
	return sb.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
