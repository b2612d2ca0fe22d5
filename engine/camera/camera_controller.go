package camera

// CameraController owns the camera's positional state. It orbits a target point over a
// Z-up world and pans that target across the ground plane, which is how the grass
// examples fly over a field.
type CameraController interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - [3]float32: world-space camera position
	Position() [3]float32

	// Target returns the look-at point.
	//
	// Returns:
	//   - [3]float32: world-space target position
	Target() [3]float32

	// SetTarget moves the look-at point, keeping the orbit angles and radius.
	//
	// Parameters:
	//   - target: world-space coordinates
	SetTarget(target [3]float32)

	// Orbit rotates the camera around the target. Elevation is clamped to the bounds.
	//
	// Parameters:
	//   - dAzimuth: change of the horizontal angle in radians
	//   - dElevation: change of the vertical angle in radians
	Orbit(dAzimuth, dElevation float32)

	// Drag orbits by a mouse movement scaled by the mouse sensitivity.
	//
	// Parameters:
	//   - dx, dy: cursor movement in pixels
	Drag(dx, dy float32)

	// Zoom changes the orbit radius. Positive delta moves closer; the radius is clamped
	// to the bounds.
	//
	// Parameters:
	//   - delta: zoom amount scaled by the zoom speed
	Zoom(delta float32)

	// Pan moves the target and the camera across the ground plane relative to the view
	// direction.
	//
	// Parameters:
	//   - forward: movement along the horizontal view direction
	//   - right: movement along the horizontal right axis
	Pan(forward, right float32)

	// Radius returns the current orbit radius.
	Radius() float32

	// Azimuth returns the horizontal angle around Z, 0 along +X.
	Azimuth() float32

	// Elevation returns the angle above the ground plane.
	Elevation() float32

	// OrbitSpeed returns the keyboard orbit step in radians.
	OrbitSpeed() float32

	// PanSpeed returns the pan multiplier.
	PanSpeed() float32
}
