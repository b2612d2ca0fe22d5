package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// cameraControllerImpl is the single implementation of CameraController. Position is
// always derived from the target and the spherical coordinates.
type cameraControllerImpl struct {
	mu sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3

	// Spherical coordinates of the position relative to the target
	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	orbitSpeed       float32
	mouseSensitivity float32
	zoomSpeed        float32
	panSpeed         float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates a controller with defaults suited to a grass field a few
// thousand units wide.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		radius:    600,
		elevation: math32.Pi / 8,

		minRadius:    10,
		maxRadius:    8000,
		minElevation: 0.02,
		maxElevation: math32.Pi/2 - 0.05,

		orbitSpeed:       0.03,
		mouseSensitivity: 0.005,
		zoomSpeed:        40,
		panSpeed:         10,
	}
	for _, option := range options {
		option(cc)
	}
	cc.radius = common.Clamp(cc.radius, cc.minRadius, cc.maxRadius)
	cc.elevation = common.Clamp(cc.elevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
	return cc
}

// updatePosition recomputes the position from the spherical coordinates. Caller must hold
// the mutex.
func (cc *cameraControllerImpl) updatePosition() {
	sinE, cosE := math32.Sincos(cc.elevation)
	sinA, cosA := math32.Sincos(cc.azimuth)
	cc.position = cc.target.Add(mgl32.Vec3{cosE * cosA, cosE * sinA, sinE}.Mul(cc.radius))
}

// groundAxes returns the horizontal forward and right unit vectors of the view. Caller
// must hold the mutex.
func (cc *cameraControllerImpl) groundAxes() (forward, right mgl32.Vec3) {
	sinA, cosA := math32.Sincos(cc.azimuth)
	forward = mgl32.Vec3{-cosA, -sinA, 0}
	right = forward.Cross(mgl32.Vec3{0, 0, 1})
	return forward, right
}

func (cc *cameraControllerImpl) Position() [3]float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *cameraControllerImpl) Target() [3]float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target
}

func (cc *cameraControllerImpl) SetTarget(target [3]float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = target
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Orbit(dAzimuth, dElevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth = math32.Mod(cc.azimuth+dAzimuth, 2*math32.Pi)
	cc.elevation = common.Clamp(cc.elevation+dElevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Drag(dx, dy float32) {
	cc.mu.Lock()
	s := cc.mouseSensitivity
	cc.mu.Unlock()
	cc.Orbit(-dx*s, dy*s)
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = common.Clamp(cc.radius-delta*cc.zoomSpeed, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Pan(forward, right float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	f, r := cc.groundAxes()
	offset := f.Mul(forward * cc.panSpeed).Add(r.Mul(right * cc.panSpeed))
	cc.target = cc.target.Add(offset)
	cc.position = cc.position.Add(offset)
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *cameraControllerImpl) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *cameraControllerImpl) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}

func (cc *cameraControllerImpl) OrbitSpeed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.orbitSpeed
}

func (cc *cameraControllerImpl) PanSpeed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.panSpeed
}
