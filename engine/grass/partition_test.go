package grass

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-grass/common"
)

func TestBuildPartitionContainment(t *testing.T) {
	tests := []struct {
		name   string
		origin [3]float32
		size   float32
		chunks int
		subs   int
	}{
		{"scenario", [3]float32{0, 0, 0}, 4000, 4, 2},
		{"offset origin", [3]float32{-1234.5, 77.25, 10}, 3000, 3, 3},
		{"uneven float steps", [3]float32{0.1, 0.2, 0}, 1000, 7, 5},
		{"single cell", [3]float32{0, 0, 0}, 10, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terrain := rampTerrain(tt.origin, tt.size)
			p, err := BuildPartition(Settings{Terrain: terrain, WorldChunksPerRow: tt.chunks, SubChunksPerRow: tt.subs})
			if err != nil {
				t.Fatalf("BuildPartition() error = %v", err)
			}
			if len(p.Chunks) != tt.chunks*tt.chunks || len(p.SubChunks) != tt.chunks*tt.chunks*tt.subs*tt.subs {
				t.Fatalf("got %d chunks / %d sub-chunks", len(p.Chunks), len(p.SubChunks))
			}
			for i, sc := range p.SubChunks {
				parent := p.Chunks[sc.ParentChunkIndex]
				pb, sb := parent.Bounds(), sc.Bounds()
				// Heights are sampled at different corners, so only the footprint is nested.
				pb.Min[2], pb.Max[2] = sb.Min[2], sb.Max[2]
				if !pb.Contains(sb) {
					t.Fatalf("sub-chunk %d %v escapes chunk %d %v", i, sb, sc.ParentChunkIndex, parent.Bounds())
				}
				if int(sc.ParentChunkIndex) != i/(tt.subs*tt.subs) {
					t.Fatalf("sub-chunk %d parent = %d", i, sc.ParentChunkIndex)
				}
			}
			for i, c := range p.Chunks {
				if int(c.Index) != i || c.Visible {
					t.Fatalf("chunk %d = %+v", i, c)
				}
			}
		})
	}
}

func TestBuildPartitionGeometry(t *testing.T) {
	p, err := BuildPartition(Settings{Terrain: FlatTerrain([3]float32{100, 200, 5}, 4000), WorldChunksPerRow: 4, SubChunksPerRow: 2})
	if err != nil {
		t.Fatal(err)
	}
	c := p.Chunks[6] // row 1, column 2
	if c.Center != [2]float32{2600, 1700} || c.Size != 1000 {
		t.Errorf("chunk 6 = %+v", c)
	}
	if c.MinHeight != 5 || c.MaxHeight != 5 {
		t.Errorf("chunk 6 heights = %v..%v, want 5", c.MinHeight, c.MaxHeight)
	}
	subs := p.SubChunksOf(6)
	if len(subs) != 4 {
		t.Fatalf("SubChunksOf(6) = %d sub-chunks", len(subs))
	}
	if subs[3].Min != [2]float32{2600, 1700} || subs[3].Max != [2]float32{3100, 2200} {
		t.Errorf("last sub-chunk = %v..%v", subs[3].Min, subs[3].Max)
	}
	if p.SubChunksOf(16) != nil || p.SubChunksOf(-1) != nil {
		t.Error("SubChunksOf out of range should be nil")
	}

	if i, ok := p.ChunkAt(2600, 1700); !ok || i != 6 {
		t.Errorf("ChunkAt(2600, 1700) = %d, %v", i, ok)
	}
	if _, ok := p.ChunkAt(99, 200); ok {
		t.Error("ChunkAt outside the terrain reported a chunk")
	}
}

func TestBuildPartitionHeightBounds(t *testing.T) {
	terrain := rampTerrain([3]float32{0, 0, 0}, 400)
	p, err := BuildPartition(Settings{Terrain: terrain, WorldChunksPerRow: 2, SubChunksPerRow: 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range p.Chunks {
		b := c.Bounds()
		want := max(
			terrain.SampleHeight(b.Min[0], b.Min[1]), terrain.SampleHeight(b.Max[0], b.Min[1]),
			terrain.SampleHeight(b.Min[0], b.Max[1]), terrain.SampleHeight(b.Max[0], b.Max[1]),
		)
		if c.MaxHeight != want {
			t.Errorf("chunk %d MaxHeight = %v, want %v", c.Index, c.MaxHeight, want)
		}
		if c.MinHeight > c.MaxHeight {
			t.Errorf("chunk %d MinHeight %v > MaxHeight %v", c.Index, c.MinHeight, c.MaxHeight)
		}
	}
}

func TestBuildPartitionErrors(t *testing.T) {
	flat := FlatTerrain([3]float32{}, 100)
	tests := []struct {
		name string
		s    Settings
		want error
	}{
		{"no terrain", Settings{WorldChunksPerRow: 2, SubChunksPerRow: 2}, ErrMissingTerrain},
		{"zero chunks", Settings{Terrain: flat, SubChunksPerRow: 2}, ErrInvalidDimensions},
		{"zero sub-chunks", Settings{Terrain: flat, WorldChunksPerRow: 2}, ErrInvalidDimensions},
		{"bad terrain", Settings{Terrain: &Terrain{Size: 0, Width: 1, Height: 1, Heights: []float32{0}}, WorldChunksPerRow: 1, SubChunksPerRow: 1}, ErrInvalidTerrain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildPartition(tt.s); !errors.Is(err, tt.want) {
				t.Errorf("BuildPartition() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUpdateVisibility(t *testing.T) {
	p, err := BuildPartition(Settings{Terrain: FlatTerrain([3]float32{}, 4000), WorldChunksPerRow: 4, SubChunksPerRow: 2})
	if err != nil {
		t.Fatal(err)
	}
	// x, y in [10, 490]: the left half of chunk 0.
	f := boxFrustum([3]float32{10, 10, -100}, [3]float32{490, 490, 100})

	if n := p.UpdateVisibility(f, 16, HierarchySubChunks); n != 1 {
		t.Fatalf("visible chunks = %d, want 1", n)
	}
	want := []bool{true, false, false, false}
	for i, sc := range p.SubChunksOf(0) {
		if sc.Visible != want[i] {
			t.Errorf("sub-chunk %d visible = %v, want %v", i, sc.Visible, want[i])
		}
	}

	p.UpdateVisibility(f, 16, HierarchyChunks)
	for i, sc := range p.SubChunksOf(0) {
		if !sc.Visible {
			t.Errorf("chunk-only hierarchy: sub-chunk %d not visible", i)
		}
	}

	if n := p.UpdateVisibility(f, 0, HierarchySubChunks); n != 0 {
		t.Errorf("visible chunks with no usable chunks = %d", n)
	}
}

// rampTerrain returns a 16x16 terrain whose height rises along X and Y.
func rampTerrain(origin [3]float32, size float32) *Terrain {
	const res = 16
	heights := make([]float32, res*res)
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			heights[y*res+x] = float32(x+2*y) / (3 * res)
		}
	}
	return &Terrain{Origin: origin, Size: size, HeightScale: 100, Width: res, Height: res, Heights: heights}
}

// boxFrustum returns the six planes bounding an axis-aligned box.
func boxFrustum(lo, hi [3]float32) common.Frustum {
	return common.FrustumFromPlanes([6]common.Plane{
		{Normal: [3]float32{1, 0, 0}, Distance: lo[0]},
		{Normal: [3]float32{-1, 0, 0}, Distance: -hi[0]},
		{Normal: [3]float32{0, 1, 0}, Distance: lo[1]},
		{Normal: [3]float32{0, -1, 0}, Distance: -hi[1]},
		{Normal: [3]float32{0, 0, 1}, Distance: lo[2]},
		{Normal: [3]float32{0, 0, -1}, Distance: -hi[2]},
	})
}
