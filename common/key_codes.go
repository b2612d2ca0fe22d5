package common

// Virtual key codes for cross-platform input handling.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyW     = 87  // W key (ASCII)
	KeyA     = 65  // A key (ASCII)
	KeyS     = 83  // S key (ASCII)
	KeyD     = 68  // D key (ASCII)
	KeyQ     = 81  // Q key (ASCII)
	KeyE     = 69  // E key (ASCII)
	KeyC     = 67  // C key (ASCII)
	KeyG     = 71  // G key (ASCII)
	KeyH     = 72  // H key (ASCII)
	KeySpace = 32  // Spacebar (ASCII)
	KeyEsc   = 256 // Escape key (GLFW)
)

// Grass demo bindings.
const (
	// KeyToggleGrass disables or re-enables the grass render object, releasing its buffers.
	KeyToggleGrass = KeyG

	// KeyToggleHierarchy switches between chunk-only and chunk+sub-chunk culling.
	KeyToggleHierarchy = KeyH

	// KeyLogCounts logs the latest (one frame latent) per-LOD blade counts.
	KeyLogCounts = KeyC

	// KeyPause freezes blade animation time.
	KeyPause = KeySpace
)
