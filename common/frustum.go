package common

import (
	"math"
)

// DefaultFrustumBias is the distance in world units applied to every frustum plane before
// culling so that cells straddling the view boundary are kept and do not pop in and out.
const DefaultFrustumBias float32 = 50

// Plane represents a half-space in 3D space. A point p lies inside the half-space when
// dot(Normal, p) - Distance >= 0.
type Plane struct {
	Normal   [3]float32
	Distance float32
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that the inside half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// AABB is an axis-aligned bounding box in world space.
type AABB struct {
	Min [3]float32
	Max [3]float32
}

// Contains reports whether other lies entirely within b (touching faces count as inside).
//
// Parameters:
//   - other: the box to test
//
// Returns:
//   - bool: true if every corner of other is inside b
func (b AABB) Contains(other AABB) bool {
	for i := range 3 {
		if other.Min[i] < b.Min[i] || other.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// ExtractFrustumFromMatrix extracts frustum planes from a view-projection matrix.
// The matrix should be the combined Projection * View matrix.
// Uses the Gribb/Hartmann method for plane extraction. The extracted rows describe
// ax + by + cz + d >= 0, which is stored as Normal = (a, b, c) and Distance = -d.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: 16 float32 values representing the view-projection matrix (column-major)
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustumFromMatrix(viewProj []float32) Frustum {
	var f Frustum

	// M[row][col] lives at viewProj[col*4+row]
	row := func(r int) [4]float32 {
		return [4]float32{viewProj[r], viewProj[4+r], viewProj[8+r], viewProj[12+r]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	set := func(index int, sign float32, r [4]float32) {
		p := &f.Planes[index]
		p.Normal[0] = r3[0] + sign*r[0]
		p.Normal[1] = r3[1] + sign*r[1]
		p.Normal[2] = r3[2] + sign*r[2]
		p.Distance = -(r3[3] + sign*r[3])
	}

	set(FrustumLeft, 1, r0)
	set(FrustumRight, -1, r0)
	set(FrustumBottom, 1, r1)
	set(FrustumTop, -1, r1)
	// WebGPU clip space keeps z in [0, w], so the near plane is row2 alone.
	f.Planes[FrustumNear] = Plane{Normal: [3]float32{r2[0], r2[1], r2[2]}, Distance: -r2[3]}
	set(FrustumFar, -1, r2)

	for i := range f.Planes {
		f.normalizePlane(i)
	}

	return f
}

// FrustumFromPlanes builds a Frustum from six planes in any order.
//
// Parameters:
//   - planes: the six half-space planes
//
// Returns:
//   - Frustum: the frustum holding the planes as given
func FrustumFromPlanes(planes [6]Plane) Frustum {
	return Frustum{Planes: planes}
}

// Shrink returns a copy of the frustum with bias subtracted from every plane distance.
// This matches the culling bias used for grass cells: a positive bias moves each plane
// outward by bias world units along its normal.
//
// Parameters:
//   - bias: the amount subtracted from every plane distance
//
// Returns:
//   - Frustum: the biased frustum
func (f Frustum) Shrink(bias float32) Frustum {
	out := f
	for i := range out.Planes {
		out.Planes[i].Distance = f.Planes[i].Distance - bias
	}
	return out
}

// IntersectsAABB reports whether box is at least partially inside the frustum using the
// positive-vertex test. For each plane the box corner furthest along the plane normal is
// chosen (a component >= 0 picks Max, otherwise Min). The box is rejected as soon as that
// corner is outside any plane.
//
// Parameters:
//   - box: the axis-aligned box to test
//   - f: the frustum to test against
//
// Returns:
//   - bool: true if the box is visible
func IntersectsAABB(box AABB, f Frustum) bool {
	for _, p := range f.Planes {
		var corner [3]float32
		for i := range 3 {
			if p.Normal[i] >= 0 {
				corner[i] = box.Max[i]
			} else {
				corner[i] = box.Min[i]
			}
		}
		if PlaneDot(p, corner)-p.Distance < 0 {
			return false
		}
	}
	return true
}

// PlaneDot returns dot(p.Normal, v). Each product and sum is rounded to float32 so
// the result matches the WGSL kernels step for step.
//
// Parameters:
//   - p: the plane whose normal is used
//   - v: the point
//
// Returns:
//   - float32: the dot product
func PlaneDot(p Plane, v [3]float32) float32 {
	x := float32(p.Normal[0] * v[0])
	y := float32(p.Normal[1] * v[1])
	z := float32(p.Normal[2] * v[2])
	return float32(float32(x+y) + z)
}

// normalizePlane normalizes a frustum plane so that the normal has unit length.
func (f *Frustum) normalizePlane(index int) {
	p := &f.Planes[index]
	length := float32(math.Sqrt(float64(
		p.Normal[0]*p.Normal[0] +
			p.Normal[1]*p.Normal[1] +
			p.Normal[2]*p.Normal[2],
	)))

	if length > 0 {
		invLen := 1.0 / length
		p.Normal[0] *= invLen
		p.Normal[1] *= invLen
		p.Normal[2] *= invLen
		p.Distance *= invLen
	}
}
