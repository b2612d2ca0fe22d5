package grass

// GrassBuilderOption is a functional option for configuring a Grass object via New.
type GrassBuilderOption func(*grass)

// WithLabel sets the label used for the command list and every buffer of the object.
//
// Parameters:
//   - label: the debug label, "grass" by default
//
// Returns:
//   - GrassBuilderOption: a function that applies the label
func WithLabel(label string) GrassBuilderOption {
	return func(g *grass) {
		if label != "" {
			g.label = label
		}
	}
}

// WithFlags sets the render hints forwarded to the draws.
func WithFlags(flags Flags) GrassBuilderOption {
	return func(g *grass) {
		g.flags = flags
	}
}

// WithDebugCounts enables the informational instance count readback behind DebugCounts.
func WithDebugCounts(enabled bool) GrassBuilderOption {
	return func(g *grass) {
		g.debugCounts = enabled
	}
}
