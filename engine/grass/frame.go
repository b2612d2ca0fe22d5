package grass

import "github.com/Carmen-Shannon/oxy-grass/common"

// FrameContext carries the per-frame camera and time the grass pipeline consumes.
type FrameContext struct {
	// Frustum holds the camera planes without any culling bias.
	Frustum common.Frustum

	CameraPosition [3]float32

	// ViewProjection is the column-major clip transform used by the draw stage.
	ViewProjection [16]float32

	// Time is the elapsed time in seconds, used for wind sway.
	Time float32
}

// NewFrameContext builds a FrameContext from a view-projection matrix, extracting the
// frustum planes from it.
//
// Parameters:
//   - viewProj: the column-major projection × view matrix
//   - cameraPosition: the camera world position
//   - time: the elapsed time in seconds
//
// Returns:
//   - FrameContext: the frame context
func NewFrameContext(viewProj [16]float32, cameraPosition [3]float32, time float32) FrameContext {
	return FrameContext{
		Frustum:        common.ExtractFrustumFromMatrix(viewProj[:]),
		CameraPosition: cameraPosition,
		ViewProjection: viewProj,
		Time:           time,
	}
}

// apply writes the per-frame fields into the uniform block. The bias is applied here so
// the kernels receive culling planes ready to use.
func (f FrameContext) apply(g *globals, bias float32) {
	g.Planes = f.Frustum.Shrink(bias).Planes
	g.CameraPosition = f.CameraPosition
	g.ViewProj = f.ViewProjection
	g.Time = f.Time
}
