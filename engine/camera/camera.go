package camera

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// clipDepthCorrection maps OpenGL clip depth [-w, w] to the WebGPU range [0, w].
var clipDepthCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

type cameraImpl struct {
	mu sync.Mutex

	up mgl32.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	view           mgl32.Mat4
	projection     mgl32.Mat4
	viewProjection mgl32.Mat4

	controller CameraController
}

// Camera holds perspective settings and computes the view and projection matrices from
// an attached CameraController. The world is Z-up: terrain lies in the XY plane and
// heights grow along Z.
type Camera interface {
	// Fov returns the vertical field of view in radians.
	//
	// Returns:
	//   - float32: field of view in radians
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// Position returns the world position of the attached controller, or the origin
	// without one.
	//
	// Returns:
	//   - [3]float32: the camera position
	Position() [3]float32

	// ViewMatrix returns the current view matrix (column-major).
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the current projection matrix (column-major) with WebGPU
	// clip depth.
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns projection × view (column-major). Frustum planes
	// extracted from it bound what the camera sees.
	//
	// Returns:
	//   - [16]float32: the combined matrix
	ViewProjectionMatrix() [16]float32

	// Controller returns the attached CameraController, or nil.
	Controller() CameraController

	// Update recomputes the matrices from the controller. It does nothing without one.
	Update()

	// SetAspect sets the aspect ratio and recomputes the matrices.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// SetController attaches a CameraController.
	//
	// Parameters:
	//   - ctrl: the controller to attach
	SetController(ctrl CameraController)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a Camera with default perspective settings sized for grass fields:
// a far plane of 20000 world units.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		up:             mgl32.Vec3{0, 0, 1},
		fov:            mgl32.DegToRad(60),
		aspect:         16.0 / 9.0,
		near:           1,
		far:            20000,
		view:           mgl32.Ident4(),
		projection:     mgl32.Ident4(),
		viewProjection: mgl32.Ident4(),
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return [3]float32{}
	}
	return c.controller.Position()
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjection
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect > 0 {
		c.aspect = aspect
	}
	c.updateMatrices()
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.updateMatrices()
}

// updateMatrices recomputes view, projection and their product. The projection is kept
// current even without a controller. Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	c.projection = clipDepthCorrection.Mul4(mgl32.Perspective(c.fov, c.aspect, c.near, c.far))
	if c.controller != nil {
		eye, target := c.controller.Position(), c.controller.Target()
		c.view = mgl32.LookAtV(mgl32.Vec3(eye), mgl32.Vec3(target), c.up)
	}
	c.viewProjection = c.projection.Mul4(c.view)
}
