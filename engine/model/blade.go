package model

import "fmt"

// NewBladeMesh builds a unit grass blade: a tapered strip in the XZ plane, width 1 at the
// root, height 1, with its tip at (0, 0, 1). The blade is split into segments quads along
// its height and the last segment closes to a single tip vertex. Renderers scale it by the
// blade radius and height per instance.
//
// Parameters:
//   - segments: the number of height segments, clamped to at least 1
//
// Returns:
//   - *MeshData: the blade geometry with 2*segments+1 vertices and 6*segments-3 indices
func NewBladeMesh(segments int) *MeshData {
	segments = max(segments, 1)

	data := &MeshData{Name: fmt.Sprintf("grass_blade_%d", segments)}
	normal := [3]float32{0, 1, 0}
	for i := 0; i < segments; i++ {
		t := float32(i) / float32(segments)
		half := 0.5 * (1 - t)
		data.Vertices = append(data.Vertices,
			GPUVertex{Position: [3]float32{-half, 0, t}, Normal: normal, TexCoord: [2]float32{0, t}},
			GPUVertex{Position: [3]float32{half, 0, t}, Normal: normal, TexCoord: [2]float32{1, t}},
		)
	}
	tip := uint32(len(data.Vertices))
	data.Vertices = append(data.Vertices, GPUVertex{Position: [3]float32{0, 0, 1}, Normal: normal, TexCoord: [2]float32{0.5, 1}})

	for i := 0; i < segments-1; i++ {
		l0, r0 := uint32(2*i), uint32(2*i+1)
		l1, r1 := l0+2, r0+2
		data.Indices = append(data.Indices, l0, r0, r1, l0, r1, l1)
	}
	last := uint32(2 * (segments - 1))
	data.Indices = append(data.Indices, last, last+1, tip)

	data.BoundingMin, data.BoundingMax = ComputeBounds(data.Vertices)
	return data
}
