package grass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-grass/common"
)

// Chunk is one cell of the coarse grid. Index is row × WorldChunksPerRow + column.
type Chunk struct {
	Center  [2]float32
	Size    float32
	Index   int32
	Visible bool

	// MinHeight and MaxHeight bound the terrain at the four footprint corners.
	MinHeight float32
	MaxHeight float32
}

// Bounds returns the world-space box of the chunk.
func (c Chunk) Bounds() common.AABB {
	half := c.Size / 2
	return common.AABB{
		Min: [3]float32{c.Center[0] - half, c.Center[1] - half, c.MinHeight},
		Max: [3]float32{c.Center[0] + half, c.Center[1] + half, c.MaxHeight},
	}
}

// SubChunk is one cell of the fine grid nested in a chunk.
type SubChunk struct {
	Min              [2]float32
	Max              [2]float32
	ParentChunkIndex int32
	Visible          bool

	MinHeight float32
	MaxHeight float32
}

// Bounds returns the world-space box of the sub-chunk.
func (s SubChunk) Bounds() common.AABB {
	return common.AABB{
		Min: [3]float32{s.Min[0], s.Min[1], s.MinHeight},
		Max: [3]float32{s.Max[0], s.Max[1], s.MaxHeight},
	}
}

// Partition is the static two-level grid over the terrain. Sub-chunks are stored chunk by
// chunk: the sub-chunks of chunk i occupy [i × SubChunksPerRow², (i+1) × SubChunksPerRow²).
type Partition struct {
	ChunksPerRow    int
	SubChunksPerRow int
	Chunks          []Chunk
	SubChunks       []SubChunk
}

// BuildPartition computes the chunk and sub-chunk grid for the settings' terrain.
//
// Parameters:
//   - s: the settings; the terrain and both row counts must be set
//
// Returns:
//   - *Partition: the partition with every cell marked not visible
//   - error: a configuration error for a missing terrain or a zero row count
func BuildPartition(s Settings) (*Partition, error) {
	if s.Terrain == nil {
		return nil, ErrMissingTerrain
	}
	if err := s.Terrain.Validate(); err != nil {
		return nil, err
	}
	if s.WorldChunksPerRow <= 0 || s.SubChunksPerRow <= 0 {
		return nil, fmt.Errorf("%w: %d chunks, %d sub-chunks per row", ErrInvalidDimensions, s.WorldChunksPerRow, s.SubChunksPerRow)
	}

	t := s.Terrain
	n, m := s.WorldChunksPerRow, s.SubChunksPerRow
	size := t.Size / float32(n)
	p := &Partition{
		ChunksPerRow:    n,
		SubChunksPerRow: m,
		Chunks:          make([]Chunk, 0, n*n),
		SubChunks:       make([]SubChunk, 0, n*n*m*m),
	}

	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			c := Chunk{
				Center: [2]float32{
					float32(t.Origin[0] + float32((float32(col)+0.5)*size)),
					float32(t.Origin[1] + float32((float32(row)+0.5)*size)),
				},
				Size:  size,
				Index: int32(len(p.Chunks)),
			}
			b := c.Bounds()
			c.MinHeight, c.MaxHeight = cornerHeights(t, [2]float32{b.Min[0], b.Min[1]}, [2]float32{b.Max[0], b.Max[1]})
			p.Chunks = append(p.Chunks, c)
			p.subdivide(t, c)
		}
	}
	return p, nil
}

// subdivide appends the sub-chunks of c. Sub-chunk edges are derived from the chunk's own
// bounds and clamped to them, so every sub-chunk lies inside its parent.
func (p *Partition) subdivide(t *Terrain, c Chunk) {
	b := c.Bounds()
	m := p.SubChunksPerRow
	step := c.Size / float32(m)
	edge := func(axis, i int) float32 {
		if i == m {
			return b.Max[axis]
		}
		return min(float32(b.Min[axis]+float32(float32(i)*step)), b.Max[axis])
	}
	for row := 0; row < m; row++ {
		for col := 0; col < m; col++ {
			sc := SubChunk{
				Min:              [2]float32{edge(0, col), edge(1, row)},
				Max:              [2]float32{edge(0, col+1), edge(1, row+1)},
				ParentChunkIndex: c.Index,
			}
			sc.MinHeight, sc.MaxHeight = cornerHeights(t, sc.Min, sc.Max)
			p.SubChunks = append(p.SubChunks, sc)
		}
	}
}

// cornerHeights samples the terrain at the four corners of a footprint.
func cornerHeights(t *Terrain, lo, hi [2]float32) (float32, float32) {
	h := [4]float32{
		t.SampleHeight(lo[0], lo[1]),
		t.SampleHeight(hi[0], lo[1]),
		t.SampleHeight(lo[0], hi[1]),
		t.SampleHeight(hi[0], hi[1]),
	}
	return min(h[0], h[1], h[2], h[3]), max(h[0], h[1], h[2], h[3])
}

// SubChunksOf returns the sub-chunks of a chunk. The slice aliases the partition.
//
// Parameters:
//   - chunk: the chunk index
//
// Returns:
//   - []SubChunk: the sub-chunks, or nil for an index out of range
func (p *Partition) SubChunksOf(chunk int) []SubChunk {
	per := p.SubChunksPerRow * p.SubChunksPerRow
	if chunk < 0 || chunk >= len(p.Chunks) {
		return nil
	}
	return p.SubChunks[chunk*per : (chunk+1)*per]
}

// ChunkAt returns the index of the chunk whose footprint contains a world XY position.
//
// Parameters:
//   - x: world X
//   - y: world Y
//
// Returns:
//   - int: the chunk index
//   - bool: false if the position is outside the terrain
func (p *Partition) ChunkAt(x, y float32) (int, bool) {
	for i, c := range p.Chunks {
		b := c.Bounds()
		if x >= b.Min[0] && x < b.Max[0] && y >= b.Min[1] && y < b.Max[1] {
			return i, true
		}
	}
	return 0, false
}

// UpdateVisibility runs the visibility test on the CPU and stores the result in the
// Visible fields. It applies the same rules as the visibility kernel: chunks at or past
// usable are never visible, and a sub-chunk is visible only inside a visible chunk. With
// HierarchyChunks every sub-chunk inherits its chunk's flag.
//
// Parameters:
//   - f: the frustum with the culling bias already applied
//   - usable: the number of chunks that may be visible
//   - h: the culling depth
//
// Returns:
//   - int: the number of visible chunks
func (p *Partition) UpdateVisibility(f common.Frustum, usable int, h Hierarchy) int {
	visible := 0
	for i := range p.Chunks {
		c := &p.Chunks[i]
		c.Visible = i < usable && common.IntersectsAABB(c.Bounds(), f)
		if c.Visible {
			visible++
		}
	}
	for i := range p.SubChunks {
		sc := &p.SubChunks[i]
		sc.Visible = p.Chunks[sc.ParentChunkIndex].Visible
		if sc.Visible && h == HierarchySubChunks {
			sc.Visible = common.IntersectsAABB(sc.Bounds(), f)
		}
	}
	return visible
}
