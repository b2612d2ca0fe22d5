package grass

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/model"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer"
	"gopkg.in/yaml.v3"
)

// Config is the YAML form of Settings. Meshes and the terrain are referenced by file; a
// mesh without a glTF path is generated procedurally and a terrain without a heightmap is
// flat.
type Config struct {
	Terrain   TerrainConfig   `yaml:"terrain"`
	Partition PartitionConfig `yaml:"partition"`
	Clumping  ClumpingConfig  `yaml:"clumping"`
	LOD       LODConfig       `yaml:"lod"`
	Blade     BladeConfig     `yaml:"blade"`
	Culling   CullingConfig   `yaml:"culling"`
	Seed      uint32          `yaml:"seed"`

	// dir resolves relative paths; it is the directory of the loaded file.
	dir string
}

type TerrainConfig struct {
	Heightmap   string     `yaml:"heightmap"`
	Origin      [3]float32 `yaml:"origin"`
	Size        float32    `yaml:"size"`
	HeightScale float32    `yaml:"height_scale"`
}

type PartitionConfig struct {
	WorldChunksPerRow  int `yaml:"world_chunks_per_row"`
	SubChunksPerRow    int `yaml:"sub_chunks_per_row"`
	MaxUsableChunks    int `yaml:"max_usable_chunks"`
	GrassCountPerChunk int `yaml:"grass_count_per_chunk"`
}

type ClumpingConfig struct {
	Strength *float32 `yaml:"strength"`
	Size     *float32 `yaml:"size"`
}

type LODConfig struct {
	Distance float32    `yaml:"distance"`
	High     MeshConfig `yaml:"high"`
	Low      MeshConfig `yaml:"low"`
}

type MeshConfig struct {
	GLTF     string `yaml:"gltf,omitempty"`
	Segments int    `yaml:"segments,omitempty"`
}

type BladeConfig struct {
	Radius float32 `yaml:"radius"`
	Height float32 `yaml:"height"`
}

type CullingConfig struct {
	FrustumBias *float32 `yaml:"frustum_bias"`
	Hierarchy   string   `yaml:"hierarchy"`
}

// LoadConfig reads and validates a YAML grass configuration.
//
// Parameters:
//   - path: the YAML file
//
// Returns:
//   - *Config: the configuration with defaults applied
//   - error: a read, parse or validation error
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.dir = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills in defaults and checks the values that do not need the meshes or the
// heightmap. Settings.Validate runs the remaining checks.
func (c *Config) Validate() error {
	if c.Partition.SubChunksPerRow == 0 {
		c.Partition.SubChunksPerRow = DefaultSubChunksPerRow
	}
	if c.Partition.WorldChunksPerRow <= 0 || c.Partition.SubChunksPerRow < 0 || c.Partition.GrassCountPerChunk <= 0 {
		return fmt.Errorf("%w: partition %+v", ErrInvalidDimensions, c.Partition)
	}
	if !(c.Terrain.Size > 0) {
		return fmt.Errorf("%w: terrain.size must be positive", ErrInvalidTerrain)
	}
	if _, err := ParseHierarchy(c.Culling.Hierarchy); err != nil {
		return err
	}

	if c.Clumping.Size == nil {
		size := float32(DefaultClumpSize)
		c.Clumping.Size = &size
	}
	c.LOD.Distance = common.Coalesce(c.LOD.Distance, DefaultLODDistance)
	c.Blade.Radius = common.Coalesce(c.Blade.Radius, DefaultBladeRadius)
	c.Blade.Height = common.Coalesce(c.Blade.Height, DefaultBladeHeight)
	c.LOD.High.Segments = common.Coalesce(c.LOD.High.Segments, 5)
	c.LOD.Low.Segments = common.Coalesce(c.LOD.Low.Segments, 1)
	return nil
}

// LoadMeshes uploads the high and low detail blade meshes to r.
//
// Parameters:
//   - r: the renderer that owns the mesh buffers
//
// Returns:
//   - model.Mesh: the high detail mesh
//   - model.Mesh: the low detail mesh
//   - error: an error if a glTF file cannot be loaded or uploaded
func (c *Config) LoadMeshes(r renderer.Renderer) (model.Mesh, model.Mesh, error) {
	high, err := c.loadMesh(r, "grass_high", c.LOD.High)
	if err != nil {
		return nil, nil, err
	}
	low, err := c.loadMesh(r, "grass_low", c.LOD.Low)
	if err != nil {
		high.Release()
		return nil, nil, err
	}
	return high, low, nil
}

func (c *Config) loadMesh(r renderer.Renderer, name string, mc MeshConfig) (model.Mesh, error) {
	data := model.NewBladeMesh(mc.Segments)
	if mc.GLTF != "" {
		var err error
		if data, err = model.LoadGLTF(c.resolve(mc.GLTF)); err != nil {
			return nil, err
		}
	}
	return model.NewMesh(r, model.WithName(name), model.WithMeshData(data))
}

// Settings converts the configuration into Settings, loading the heightmap if one is set.
//
// Parameters:
//   - high: the high detail mesh
//   - low: the low detail mesh
//
// Returns:
//   - Settings: the settings, validated
//   - error: a heightmap or validation error
func (c *Config) Settings(high, low renderer.Mesh) (Settings, error) {
	terrain := FlatTerrain(c.Terrain.Origin, c.Terrain.Size)
	if c.Terrain.Heightmap != "" {
		var err error
		terrain, err = LoadHeightmap(c.resolve(c.Terrain.Heightmap), c.Terrain.Origin, c.Terrain.Size, c.Terrain.HeightScale)
		if err != nil {
			return Settings{}, err
		}
	}
	hierarchy, err := ParseHierarchy(c.Culling.Hierarchy)
	if err != nil {
		return Settings{}, err
	}

	opts := []SettingsBuilderOption{
		WithMeshes(high, low),
		WithTerrain(terrain),
		WithPartition(c.Partition.WorldChunksPerRow, c.Partition.SubChunksPerRow, c.Partition.GrassCountPerChunk),
		WithMaxUsableChunks(c.Partition.MaxUsableChunks),
		WithLODDistance(c.LOD.Distance),
		WithBladeSize(c.Blade.Radius, c.Blade.Height),
		WithHierarchy(hierarchy),
		WithSeed(c.Seed),
	}
	strength, size := float32(DefaultClumpStrength), float32(DefaultClumpSize)
	if c.Clumping.Strength != nil {
		strength = *c.Clumping.Strength
	}
	if c.Clumping.Size != nil {
		size = *c.Clumping.Size
	}
	opts = append(opts, WithClumping(strength, size))
	if c.Culling.FrustumBias != nil {
		opts = append(opts, WithFrustumBias(*c.Culling.FrustumBias))
	}

	s := NewSettings(opts...)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}
