package canvas

import (
	_ "embed"
)

// Version is the release version of the canvas engine.
//
//go:embed VERSION
var Version string
