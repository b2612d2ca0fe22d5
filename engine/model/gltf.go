package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// ErrNoGeometry is returned when a glTF document contains no triangle primitives.
var ErrNoGeometry = errors.New("model: glTF document has no triangle geometry")

// LoadGLTF opens a .gltf or .glb file and merges every triangle primitive of every mesh into
// one MeshData. Node transforms are ignored; blade assets are authored at the origin with +Z up.
// Primitives without NORMAL get +Y normals, and non-indexed primitives are indexed sequentially.
//
// Parameters:
//   - path: the file path to the glTF or GLB file
//
// Returns:
//   - *MeshData: the merged geometry
//   - error: an error if the file cannot be read or holds no triangles
func LoadGLTF(path string) (*MeshData, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gltf open %q: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	data := &MeshData{Name: name}
	for mi, gm := range doc.Meshes {
		for pi, prim := range gm.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				continue
			}
			if err := appendPrimitive(doc, prim, data); err != nil {
				return nil, fmt.Errorf("gltf %q mesh %d primitive %d: %w", path, mi, pi, err)
			}
		}
	}
	if len(data.Indices) == 0 {
		return nil, ErrNoGeometry
	}

	data.BoundingMin, data.BoundingMax = ComputeBounds(data.Vertices)
	return data, nil
}

// appendPrimitive reads one primitive's attributes and indices into data.
func appendPrimitive(doc *gltf.Document, prim *gltf.Primitive, data *MeshData) error {
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return errors.New("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	var (
		normals [][3]float32
		uvs     [][2]float32
	)
	if idx, ok := prim.Attributes["NORMAL"]; ok {
		if normals, err = modeler.ReadNormal(doc, doc.Accessors[idx], nil); err != nil {
			return fmt.Errorf("normals: %w", err)
		}
	}
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if uvs, err = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil); err != nil {
			return fmt.Errorf("uvs: %w", err)
		}
	}

	base := uint32(len(data.Vertices))
	for i, p := range positions {
		v := GPUVertex{Position: p, Normal: [3]float32{0, 1, 0}}
		if i < len(normals) {
			v.Normal = normals[i]
		}
		if i < len(uvs) {
			v.TexCoord = uvs[i]
		}
		data.Vertices = append(data.Vertices, v)
	}

	if prim.Indices == nil {
		for i := range positions {
			data.Indices = append(data.Indices, base+uint32(i))
		}
		return nil
	}
	indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
	if err != nil {
		return fmt.Errorf("indices: %w", err)
	}
	for _, idx := range indices {
		data.Indices = append(data.Indices, base+idx)
	}
	return nil
}
