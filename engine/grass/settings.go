package grass

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer"
)

var (
	// ErrInvalidDimensions is returned when a partition dimension or blade budget is zero,
	// negative, or out of range.
	ErrInvalidDimensions = errors.New("grass: invalid partition dimensions")

	// ErrMissingMesh is returned when either LOD mesh is not set.
	ErrMissingMesh = errors.New("grass: missing LOD mesh")

	// ErrMissingTerrain is returned when no terrain is set.
	ErrMissingTerrain = errors.New("grass: missing terrain")

	// ErrIndivisibleBudget is returned when the blade budget cannot be split evenly across
	// chunks and sub-chunks.
	ErrIndivisibleBudget = errors.New("grass: blade budget does not divide evenly")

	// ErrInvalidParameter is returned for out of range clumping, LOD or blade parameters.
	ErrInvalidParameter = errors.New("grass: invalid parameter")
)

// Hierarchy selects how deep the visibility stage culls before blade generation.
type Hierarchy int

const (
	// HierarchyChunks culls whole chunks only.
	HierarchyChunks Hierarchy = iota

	// HierarchySubChunks culls chunks, then the sub-chunks of visible chunks.
	HierarchySubChunks
)

func (h Hierarchy) String() string {
	switch h {
	case HierarchyChunks:
		return "chunks"
	case HierarchySubChunks:
		return "sub_chunks"
	default:
		return fmt.Sprintf("hierarchy(%d)", int(h))
	}
}

// ParseHierarchy parses the names produced by Hierarchy.String.
//
// Parameters:
//   - s: "chunks" or "sub_chunks"; empty selects HierarchySubChunks
//
// Returns:
//   - Hierarchy: the parsed value
//   - error: ErrInvalidParameter for an unknown name
func ParseHierarchy(s string) (Hierarchy, error) {
	switch s {
	case "chunks":
		return HierarchyChunks, nil
	case "sub_chunks", "":
		return HierarchySubChunks, nil
	default:
		return 0, fmt.Errorf("%w: unknown hierarchy %q", ErrInvalidParameter, s)
	}
}

// Settings is the configuration snapshot a Grass object is built from. New copies it, so
// later changes to the caller's value have no effect.
//
// The blade budget is GrassCountPerChunk × WorldChunksPerRow blades in total, spread evenly
// over the WorldChunksPerRow² chunks and, inside each chunk, over its SubChunksPerRow²
// sub-chunks. Both divisions must be exact.
type Settings struct {
	HighLOD renderer.Mesh // drawn for blades closer than LODDistance
	LowLOD  renderer.Mesh // drawn for the remaining blades
	Terrain *Terrain

	WorldChunksPerRow  int
	SubChunksPerRow    int
	MaxUsableChunks    int // chunks with a higher index are never visible; 0 means all
	GrassCountPerChunk int

	ClumpStrength float32 // 0 keeps the jittered position, 1 moves fully to the clump
	ClumpSize     float32 // longest pull toward the clump in world units

	LODDistance float32
	FrustumBias float32
	Seed        uint32
	Hierarchy   Hierarchy

	BladeRadius float32
	BladeHeight float32

	Stage      renderer.Stage
	StageOrder int
}

// Default values applied by NewSettings before any option.
const (
	DefaultSubChunksPerRow = 2
	DefaultClumpStrength   = 0.5
	DefaultClumpSize       = 40
	DefaultLODDistance     = 1500
	DefaultBladeRadius     = 1.5
	DefaultBladeHeight     = 24
)

// ChunkCount returns WorldChunksPerRow².
func (s Settings) ChunkCount() int {
	return s.WorldChunksPerRow * s.WorldChunksPerRow
}

// SubChunkCount returns the number of sub-chunks over all chunks.
func (s Settings) SubChunkCount() int {
	return s.ChunkCount() * s.SubChunksPerRow * s.SubChunksPerRow
}

// TotalBlades returns the theoretical maximum number of blades per frame.
func (s Settings) TotalBlades() int {
	return s.GrassCountPerChunk * s.WorldChunksPerRow
}

// BladesPerChunk returns the number of blade slots owned by one chunk.
func (s Settings) BladesPerChunk() int {
	if s.ChunkCount() == 0 {
		return 0
	}
	return s.TotalBlades() / s.ChunkCount()
}

// BladesPerSubChunk returns the number of blade slots owned by one sub-chunk.
func (s Settings) BladesPerSubChunk() int {
	per := s.SubChunksPerRow * s.SubChunksPerRow
	if per == 0 {
		return 0
	}
	return s.BladesPerChunk() / per
}

// UsableChunks returns MaxUsableChunks, or every chunk when it is zero.
func (s Settings) UsableChunks() int {
	return common.Coalesce(s.MaxUsableChunks, s.ChunkCount())
}

// Validate checks the settings and returns the first configuration error wrapped around
// one of the package sentinel errors.
//
// Returns:
//   - error: nil if the settings can be used to build a Grass object
func (s Settings) Validate() error {
	if s.HighLOD == nil || s.LowLOD == nil {
		return ErrMissingMesh
	}
	if s.Terrain == nil {
		return ErrMissingTerrain
	}
	if err := s.Terrain.Validate(); err != nil {
		return err
	}

	if s.WorldChunksPerRow <= 0 {
		return fmt.Errorf("%w: world chunks per row %d", ErrInvalidDimensions, s.WorldChunksPerRow)
	}
	if s.SubChunksPerRow <= 0 {
		return fmt.Errorf("%w: sub-chunks per row %d", ErrInvalidDimensions, s.SubChunksPerRow)
	}
	if s.GrassCountPerChunk <= 0 {
		return fmt.Errorf("%w: grass count per chunk %d", ErrInvalidDimensions, s.GrassCountPerChunk)
	}
	if s.MaxUsableChunks < 0 || s.MaxUsableChunks > s.ChunkCount() {
		return fmt.Errorf("%w: max usable chunks %d outside [0, %d]", ErrInvalidDimensions, s.MaxUsableChunks, s.ChunkCount())
	}
	if uint64(s.TotalBlades()) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d blades overflow a 32-bit index", ErrInvalidDimensions, s.TotalBlades())
	}

	if s.GrassCountPerChunk%s.WorldChunksPerRow != 0 {
		return fmt.Errorf("%w: grass count per chunk %d is not a multiple of %d chunks per row",
			ErrIndivisibleBudget, s.GrassCountPerChunk, s.WorldChunksPerRow)
	}
	if sub := s.SubChunksPerRow * s.SubChunksPerRow; s.BladesPerChunk()%sub != 0 {
		return fmt.Errorf("%w: %d blades per chunk cannot be split over %d sub-chunks",
			ErrIndivisibleBudget, s.BladesPerChunk(), sub)
	}

	switch {
	case s.ClumpStrength < 0 || s.ClumpStrength > 1:
		return fmt.Errorf("%w: clump strength %v outside [0, 1]", ErrInvalidParameter, s.ClumpStrength)
	case s.ClumpSize < 0:
		return fmt.Errorf("%w: clump size %v", ErrInvalidParameter, s.ClumpSize)
	case s.LODDistance < 0:
		return fmt.Errorf("%w: LOD distance %v", ErrInvalidParameter, s.LODDistance)
	case s.BladeRadius <= 0 || s.BladeHeight <= 0:
		return fmt.Errorf("%w: blade size %v x %v", ErrInvalidParameter, s.BladeRadius, s.BladeHeight)
	case s.Hierarchy != HierarchyChunks && s.Hierarchy != HierarchySubChunks:
		return fmt.Errorf("%w: %s", ErrInvalidParameter, s.Hierarchy)
	}
	return nil
}
