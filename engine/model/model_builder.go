package model

// MeshBuilderOption is a functional option for configuring a Mesh via NewMesh.
type MeshBuilderOption func(*mesh)

// WithName is an option builder that sets the name of the Mesh. It also labels the GPU buffers.
//
// Parameters:
//   - name: the mesh identifier
//
// Returns:
//   - MeshBuilderOption: a function that applies the name option to a mesh
func WithName(name string) MeshBuilderOption {
	return func(m *mesh) {
		m.name = name
	}
}

// WithMeshData is an option builder that sets the geometry to upload. Bounds are recomputed
// from the vertices.
//
// Parameters:
//   - data: the mesh data
//
// Returns:
//   - MeshBuilderOption: a function that applies the mesh data option to a mesh
func WithMeshData(data *MeshData) MeshBuilderOption {
	return func(m *mesh) {
		if data == nil {
			return
		}
		data.BoundingMin, data.BoundingMax = ComputeBounds(data.Vertices)
		m.data = data
	}
}
