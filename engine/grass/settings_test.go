package grass

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer"
)

// stubMesh satisfies renderer.Mesh for settings checks that never touch buffers.
type stubMesh struct{}

func (stubMesh) Label() string                 { return "stub" }
func (stubMesh) VertexBuffer() renderer.Buffer { return nil }
func (stubMesh) IndexBuffer() renderer.Buffer  { return nil }
func (stubMesh) IndexCount() uint32            { return 3 }

func validSettings(opts ...SettingsBuilderOption) Settings {
	base := []SettingsBuilderOption{
		WithMeshes(stubMesh{}, stubMesh{}),
		WithTerrain(FlatTerrain([3]float32{}, 4000)),
		WithPartition(4, 2, 400),
	}
	return NewSettings(append(base, opts...)...)
}

func TestNewSettingsDefaults(t *testing.T) {
	s := validSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if s.FrustumBias != common.DefaultFrustumBias || s.Hierarchy != HierarchySubChunks || s.Stage != renderer.StageAfterOpaque {
		t.Errorf("defaults = %+v", s)
	}
	if s.TotalBlades() != 1600 || s.BladesPerChunk() != 100 || s.BladesPerSubChunk() != 25 {
		t.Errorf("budget = %d total, %d per chunk, %d per sub-chunk", s.TotalBlades(), s.BladesPerChunk(), s.BladesPerSubChunk())
	}
	if s.ChunkCount() != 16 || s.SubChunkCount() != 64 || s.UsableChunks() != 16 {
		t.Errorf("cells = %d chunks, %d sub-chunks, %d usable", s.ChunkCount(), s.SubChunkCount(), s.UsableChunks())
	}
	if got := validSettings(WithMaxUsableChunks(5)).UsableChunks(); got != 5 {
		t.Errorf("UsableChunks() = %d, want 5", got)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name string
		s    Settings
		want error
	}{
		{"missing meshes", validSettings(WithMeshes(nil, stubMesh{})), ErrMissingMesh},
		{"missing terrain", validSettings(WithTerrain(nil)), ErrMissingTerrain},
		{"invalid terrain", validSettings(WithTerrain(&Terrain{Size: 10})), ErrInvalidTerrain},
		{"zero chunks", validSettings(WithPartition(0, 2, 400)), ErrInvalidDimensions},
		{"negative sub-chunks", validSettings(WithPartition(4, -1, 400)), ErrInvalidDimensions},
		{"zero grass", validSettings(WithPartition(4, 2, 0)), ErrInvalidDimensions},
		{"too many usable chunks", validSettings(WithMaxUsableChunks(17)), ErrInvalidDimensions},
		{"negative usable chunks", validSettings(WithMaxUsableChunks(-1)), ErrInvalidDimensions},
		{"budget not divisible by rows", validSettings(WithPartition(4, 2, 402)), ErrIndivisibleBudget},
		{"chunk budget not divisible by sub-chunks", validSettings(WithPartition(4, 3, 400)), ErrIndivisibleBudget},
		{"clump strength", validSettings(WithClumping(1.5, 10)), ErrInvalidParameter},
		{"clump size", validSettings(WithClumping(0.5, -1)), ErrInvalidParameter},
		{"lod distance", validSettings(WithLODDistance(-1)), ErrInvalidParameter},
		{"blade size", validSettings(WithBladeSize(0, 10)), ErrInvalidParameter},
		{"hierarchy", validSettings(WithHierarchy(Hierarchy(7))), ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseHierarchy(t *testing.T) {
	for _, h := range []Hierarchy{HierarchyChunks, HierarchySubChunks} {
		got, err := ParseHierarchy(h.String())
		if err != nil || got != h {
			t.Errorf("ParseHierarchy(%q) = %v, %v", h.String(), got, err)
		}
	}
	if _, err := ParseHierarchy("leaves"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("ParseHierarchy(leaves) error = %v", err)
	}
}

const testConfigYAML = `
terrain:
  origin: [0, 0, 0]
  size: 4000
partition:
  world_chunks_per_row: 4
  sub_chunks_per_row: 2
  grass_count_per_chunk: 400
clumping:
  strength: 0
lod:
  distance: 800
  high:
    segments: 4
culling:
  frustum_bias: 0
  hierarchy: chunks
seed: 9
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grass.yaml")
	if err := os.WriteFile(path, []byte(testConfigYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.LOD.Low.Segments != 1 || cfg.LOD.High.Segments != 4 || cfg.Blade.Height != DefaultBladeHeight {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	s, err := cfg.Settings(stubMesh{}, stubMesh{})
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if s.ClumpStrength != 0 || s.FrustumBias != 0 || s.Hierarchy != HierarchyChunks || s.Seed != 9 || s.LODDistance != 800 {
		t.Errorf("settings = %+v", s)
	}
	if s.Terrain.Width != 1 || s.Terrain.Size != 4000 {
		t.Errorf("terrain = %+v", s.Terrain)
	}
}

func TestLoadConfigClumpSize(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want float32
	}{
		{"unset", "", DefaultClumpSize},
		{"explicit zero", "clumping:\n  size: 0\n", 0},
		{"explicit", "clumping:\n  size: 12.5\n", 12.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "grass.yaml")
			doc := "terrain:\n  size: 4000\npartition:\n  world_chunks_per_row: 4\n  grass_count_per_chunk: 400\n" + tt.yaml
			if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			s, err := cfg.Settings(stubMesh{}, stubMesh{})
			if err != nil {
				t.Fatalf("Settings() error = %v", err)
			}
			if s.ClumpSize != tt.want {
				t.Errorf("ClumpSize = %v, want %v", s.ClumpSize, tt.want)
			}
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "terrain: [1, 2"},
		{"no partition", "terrain:\n  size: 10\n"},
		{"no terrain size", "partition:\n  world_chunks_per_row: 2\n  grass_count_per_chunk: 8\n"},
		{"bad hierarchy", "terrain:\n  size: 10\npartition:\n  world_chunks_per_row: 2\n  grass_count_per_chunk: 8\nculling:\n  hierarchy: blades\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "grass.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("LoadConfig() error = nil")
			}
		})
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig(missing) error = nil")
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "examples", "assets", "grass_field.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	s, err := cfg.Settings(stubMesh{}, stubMesh{})
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if s.TotalBlades() != 16384*16 || s.UsableChunks() != 64 || s.Hierarchy != HierarchySubChunks {
		t.Errorf("settings = %+v", s)
	}
}
