package model

// MeshData is the CPU-side geometry of a mesh before upload.
type MeshData struct {
	// Name is the mesh identifier.
	Name string

	// Vertices are the mesh vertices.
	Vertices []GPUVertex

	// Indices are the triangle list indices.
	Indices []uint32

	// BoundingMin is the minimum corner of the axis-aligned bounding box.
	BoundingMin [3]float32

	// BoundingMax is the maximum corner of the axis-aligned bounding box.
	BoundingMax [3]float32
}

// VertexBytes returns the vertices serialized for upload.
func (d *MeshData) VertexBytes() []byte {
	if len(d.Vertices) == 0 {
		return nil
	}
	out := make([]byte, 0, len(d.Vertices)*d.Vertices[0].Size())
	for i := range d.Vertices {
		out = append(out, d.Vertices[i].Marshal()...)
	}
	return out
}

// IndexBytes returns the indices serialized as little-endian uint32 values.
func (d *MeshData) IndexBytes() []byte {
	out := make([]byte, 4*len(d.Indices))
	for i, idx := range d.Indices {
		out[i*4] = byte(idx)
		out[i*4+1] = byte(idx >> 8)
		out[i*4+2] = byte(idx >> 16)
		out[i*4+3] = byte(idx >> 24)
	}
	return out
}

// Validate reports whether the mesh can be drawn: it must have vertices, a non-empty
// triangle list and no index past the vertex count.
func (d *MeshData) Validate() error {
	if len(d.Vertices) == 0 {
		return ErrEmptyMesh
	}
	if len(d.Indices) == 0 || len(d.Indices)%3 != 0 {
		return ErrInvalidIndices
	}
	for _, idx := range d.Indices {
		if int(idx) >= len(d.Vertices) {
			return ErrInvalidIndices
		}
	}
	return nil
}
