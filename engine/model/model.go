package model

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-grass/engine/renderer"
)

var (
	// ErrEmptyMesh is returned when a mesh has no vertices.
	ErrEmptyMesh = errors.New("model: mesh has no vertices")

	// ErrInvalidIndices is returned when a mesh index list is empty, not a triangle list, or out of range.
	ErrInvalidIndices = errors.New("model: mesh indices are not a valid triangle list")
)

// mesh is the implementation of the Mesh interface.
type mesh struct {
	name         string
	data         *MeshData
	vertexBuffer renderer.Buffer
	indexBuffer  renderer.Buffer
	indexCount   uint32
}

// Mesh defines the interface for a mesh uploaded to a Renderer. It satisfies renderer.Mesh
// so it can be drawn directly, and keeps its CPU-side MeshData for bounds and re-upload.
type Mesh interface {
	renderer.Mesh

	// Data retrieves the CPU-side geometry the mesh was created from.
	//
	// Returns:
	//   - *MeshData: the mesh data
	Data() *MeshData

	// Release frees the vertex and index buffers. Releasing twice is a no-op.
	Release()
}

var _ Mesh = &mesh{}

// NewMesh validates the configured MeshData and uploads it to r.
//
// Parameters:
//   - r: the renderer that owns the buffers
//   - options: a variadic list of MeshBuilderOption functions to configure the Mesh
//
// Returns:
//   - Mesh: the uploaded mesh
//   - error: an error if the data is invalid or the upload fails
func NewMesh(r renderer.Renderer, options ...MeshBuilderOption) (Mesh, error) {
	m := &mesh{data: &MeshData{}}
	for _, opt := range options {
		opt(m)
	}
	if m.name == "" {
		m.name = m.data.Name
	}
	if err := m.data.Validate(); err != nil {
		return nil, fmt.Errorf("mesh %q: %w", m.name, err)
	}

	vertexData := m.data.VertexBytes()
	indexData := m.data.IndexBytes()

	vb, err := r.CreateBuffer(m.name+" Vertices", uint64(len(vertexData)), renderer.BufferUsageVertex)
	if err != nil {
		return nil, err
	}
	ib, err := r.CreateBuffer(m.name+" Indices", uint64(len(indexData)), renderer.BufferUsageIndex)
	if err != nil {
		vb.Release()
		return nil, err
	}
	if err := r.WriteBuffer(vb, 0, vertexData); err != nil {
		vb.Release()
		ib.Release()
		return nil, err
	}
	if err := r.WriteBuffer(ib, 0, indexData); err != nil {
		vb.Release()
		ib.Release()
		return nil, err
	}

	m.vertexBuffer = vb
	m.indexBuffer = ib
	m.indexCount = uint32(len(m.data.Indices))
	return m, nil
}

func (m *mesh) Label() string {
	return m.name
}

func (m *mesh) VertexBuffer() renderer.Buffer {
	return m.vertexBuffer
}

func (m *mesh) IndexBuffer() renderer.Buffer {
	return m.indexBuffer
}

func (m *mesh) IndexCount() uint32 {
	return m.indexCount
}

func (m *mesh) Data() *MeshData {
	return m.data
}

func (m *mesh) Release() {
	if m.vertexBuffer != nil {
		m.vertexBuffer.Release()
	}
	if m.indexBuffer != nil {
		m.indexBuffer.Release()
	}
}
