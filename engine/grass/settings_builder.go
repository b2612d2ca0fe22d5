package grass

import (
	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer"
)

// SettingsBuilderOption is a functional option for configuring Settings via NewSettings.
type SettingsBuilderOption func(*Settings)

// NewSettings creates Settings with the package defaults and applies opts in order.
// The result still has to pass Validate; meshes, terrain and the partition size have no
// defaults.
//
// Parameters:
//   - opts: a variadic list of SettingsBuilderOption functions
//
// Returns:
//   - Settings: the configured settings
func NewSettings(opts ...SettingsBuilderOption) Settings {
	s := Settings{
		SubChunksPerRow: DefaultSubChunksPerRow,
		ClumpStrength:   DefaultClumpStrength,
		ClumpSize:       DefaultClumpSize,
		LODDistance:     DefaultLODDistance,
		FrustumBias:     common.DefaultFrustumBias,
		Hierarchy:       HierarchySubChunks,
		BladeRadius:     DefaultBladeRadius,
		BladeHeight:     DefaultBladeHeight,
		Stage:           renderer.StageAfterOpaque,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithMeshes sets the high and low detail blade meshes.
//
// Parameters:
//   - high: the mesh drawn near the camera
//   - low: the mesh drawn far from the camera
//
// Returns:
//   - SettingsBuilderOption: a function that applies the meshes
func WithMeshes(high, low renderer.Mesh) SettingsBuilderOption {
	return func(s *Settings) {
		s.HighLOD = high
		s.LowLOD = low
	}
}

// WithTerrain sets the terrain the grass grows on.
//
// Parameters:
//   - t: the terrain
//
// Returns:
//   - SettingsBuilderOption: a function that applies the terrain
func WithTerrain(t *Terrain) SettingsBuilderOption {
	return func(s *Settings) {
		s.Terrain = t
	}
}

// WithPartition sets the partition geometry and blade budget.
//
// Parameters:
//   - worldChunksPerRow: chunks along each terrain edge
//   - subChunksPerRow: sub-chunks along each chunk edge
//   - grassCountPerChunk: the blade budget multiplier, see Settings
//
// Returns:
//   - SettingsBuilderOption: a function that applies the partition
func WithPartition(worldChunksPerRow, subChunksPerRow, grassCountPerChunk int) SettingsBuilderOption {
	return func(s *Settings) {
		s.WorldChunksPerRow = worldChunksPerRow
		s.SubChunksPerRow = subChunksPerRow
		s.GrassCountPerChunk = grassCountPerChunk
	}
}

// WithMaxUsableChunks limits culling to the first n chunks.
func WithMaxUsableChunks(n int) SettingsBuilderOption {
	return func(s *Settings) {
		s.MaxUsableChunks = n
	}
}

// WithClumping sets how strongly and within which radius blades gather into clumps.
//
// Parameters:
//   - strength: the blend toward the clump, in [0, 1]
//   - size: the clump radius in world units
//
// Returns:
//   - SettingsBuilderOption: a function that applies the clumping parameters
func WithClumping(strength, size float32) SettingsBuilderOption {
	return func(s *Settings) {
		s.ClumpStrength = strength
		s.ClumpSize = size
	}
}

// WithLODDistance sets the camera distance at which blades switch to the low detail mesh.
func WithLODDistance(d float32) SettingsBuilderOption {
	return func(s *Settings) {
		s.LODDistance = d
	}
}

// WithFrustumBias sets the distance subtracted from every frustum plane before culling.
func WithFrustumBias(bias float32) SettingsBuilderOption {
	return func(s *Settings) {
		s.FrustumBias = bias
	}
}

// WithSeed sets the seed mixed into every blade hash.
func WithSeed(seed uint32) SettingsBuilderOption {
	return func(s *Settings) {
		s.Seed = seed
	}
}

// WithHierarchy selects chunk-only or chunk plus sub-chunk culling.
func WithHierarchy(h Hierarchy) SettingsBuilderOption {
	return func(s *Settings) {
		s.Hierarchy = h
	}
}

// WithBladeSize sets the blade radius and height used for blade culling and mesh scaling.
//
// Parameters:
//   - radius: half the blade width at the root
//   - height: the blade height
//
// Returns:
//   - SettingsBuilderOption: a function that applies the blade size
func WithBladeSize(radius, height float32) SettingsBuilderOption {
	return func(s *Settings) {
		s.BladeRadius = radius
		s.BladeHeight = height
	}
}

// WithStage sets the render stage and order the grass command list is submitted at.
//
// Parameters:
//   - stage: the render stage
//   - order: the order within the stage
//
// Returns:
//   - SettingsBuilderOption: a function that applies the stage
func WithStage(stage renderer.Stage, order int) SettingsBuilderOption {
	return func(s *Settings) {
		s.Stage = stage
		s.StageOrder = order
	}
}
