package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the canvas banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	p := termenv.NewOutput(w).Profile
	lines := []struct{ text, color string }{
		{`   ___                          `, "#818cf8"},
		{`  / __\__ _ _ ____   ____ _ ___ `, "#a78bfa"},
		{` / /  / _' | '_ \ \ / / _' / __|`, "#c084fc"},
		{`/ /__| (_| | | | \ V / (_| \__ \`, "#e879f9"},
		{`\____/\__,_|_| |_|\_/ \__,_|___/`, "#f472b6"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintf(w, "%s\n\n", termenv.String("  v"+strings.TrimSpace(version)).Faint())
}
