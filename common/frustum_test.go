package common

import (
	"math/rand"
	"testing"
)

// boxFrustum returns a frustum whose inside region is the axis-aligned box [min, max].
func boxFrustum(min, max [3]float32) Frustum {
	return FrustumFromPlanes([6]Plane{
		{Normal: [3]float32{1, 0, 0}, Distance: min[0]},
		{Normal: [3]float32{-1, 0, 0}, Distance: -max[0]},
		{Normal: [3]float32{0, 1, 0}, Distance: min[1]},
		{Normal: [3]float32{0, -1, 0}, Distance: -max[1]},
		{Normal: [3]float32{0, 0, 1}, Distance: min[2]},
		{Normal: [3]float32{0, 0, -1}, Distance: -max[2]},
	})
}

func TestIntersectsAABB(t *testing.T) {
	f := boxFrustum([3]float32{0, 0, 0}, [3]float32{100, 100, 100})

	tests := []struct {
		name string
		box  AABB
		want bool
	}{
		{"strictly inside", AABB{Min: [3]float32{10, 10, 10}, Max: [3]float32{20, 20, 20}}, true},
		{"straddles left plane", AABB{Min: [3]float32{-5, 10, 10}, Max: [3]float32{5, 20, 20}}, true},
		{"touches far face", AABB{Min: [3]float32{100, 10, 10}, Max: [3]float32{110, 20, 20}}, true},
		{"entirely behind left plane", AABB{Min: [3]float32{-20, 10, 10}, Max: [3]float32{-10, 20, 20}}, false},
		{"entirely above top", AABB{Min: [3]float32{10, 10, 101}, Max: [3]float32{20, 20, 150}}, false},
		{"encloses frustum", AABB{Min: [3]float32{-500, -500, -500}, Max: [3]float32{500, 500, 500}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IntersectsAABB(tt.box, f); got != tt.want {
				t.Errorf("IntersectsAABB() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntersectsAABBPlaneOrderInvariant(t *testing.T) {
	f := boxFrustum([3]float32{-30, -40, 0}, [3]float32{60, 70, 25})
	r := rand.New(rand.NewSource(7))

	boxes := make([]AABB, 200)
	for i := range boxes {
		var b AABB
		for a := range 3 {
			lo := r.Float32()*200 - 100
			b.Min[a] = lo
			b.Max[a] = lo + r.Float32()*40
		}
		boxes[i] = b
	}

	for trial := 0; trial < 20; trial++ {
		perm := r.Perm(6)
		var shuffled Frustum
		for i, p := range perm {
			shuffled.Planes[i] = f.Planes[p]
		}
		for i, b := range boxes {
			if IntersectsAABB(b, f) != IntersectsAABB(b, shuffled) {
				t.Fatalf("box %d: result changed under plane permutation %v", i, perm)
			}
		}
	}
}

func TestShrinkKeepsBoundaryBoxes(t *testing.T) {
	f := boxFrustum([3]float32{0, 0, 0}, [3]float32{100, 100, 100})
	outside := AABB{Min: [3]float32{-40, 10, 10}, Max: [3]float32{-30, 20, 20}}

	if IntersectsAABB(outside, f) {
		t.Fatal("box left of the frustum should be culled without bias")
	}
	if !IntersectsAABB(outside, f.Shrink(DefaultFrustumBias)) {
		t.Fatal("box within the bias distance should be kept")
	}
	if f.Planes[0].Distance != 0 {
		t.Fatal("Shrink must not modify the receiver")
	}
}

func TestExtractFrustumFromMatrixOrthographic(t *testing.T) {
	// Column-major orthographic projection mapping x,y in [-10, 10] and z in [0, 100]
	// (looking down +z) to clip space with depth in [0, 1].
	m := []float32{
		0.1, 0, 0, 0,
		0, 0.1, 0, 0,
		0, 0, 0.01, 0,
		0, 0, 0, 1,
	}
	f := ExtractFrustumFromMatrix(m)

	inside := AABB{Min: [3]float32{-1, -1, 10}, Max: [3]float32{1, 1, 20}}
	if !IntersectsAABB(inside, f) {
		t.Error("box in front of the camera should be visible")
	}
	behind := AABB{Min: [3]float32{-1, -1, -20}, Max: [3]float32{1, 1, -10}}
	if IntersectsAABB(behind, f) {
		t.Error("box behind the near plane should be culled")
	}
	beyond := AABB{Min: [3]float32{-1, -1, 120}, Max: [3]float32{1, 1, 130}}
	if IntersectsAABB(beyond, f) {
		t.Error("box past the far plane should be culled")
	}
	side := AABB{Min: [3]float32{15, -1, 10}, Max: [3]float32{16, 1, 20}}
	if IntersectsAABB(side, f) {
		t.Error("box right of the frustum should be culled")
	}
}

func TestAABBContains(t *testing.T) {
	outer := AABB{Min: [3]float32{0, 0, 0}, Max: [3]float32{10, 10, 10}}
	if !outer.Contains(outer) {
		t.Error("a box contains itself")
	}
	if outer.Contains(AABB{Min: [3]float32{-1, 0, 0}, Max: [3]float32{5, 5, 5}}) {
		t.Error("box poking out of Min should not be contained")
	}
}
