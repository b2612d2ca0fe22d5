package grass

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/model"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/shader"
)

// BladeInstanceSource is the WGSL definition of BladeInstance, registered as blade_instance.
//
//go:embed assets/blade_instance.wgsl
var BladeInstanceSource string

// GrassCellSource is the WGSL definition of one partition cell, registered as grass_cell.
//
//go:embed assets/grass_cell.wgsl
var GrassCellSource string

// GrassGlobalsSource is the WGSL definition of the per-frame uniform block, registered as
// grass_globals.
//
//go:embed assets/grass_globals.wgsl
var GrassGlobalsSource string

// Sizes of the GPU records in bytes.
const (
	BladeInstanceSize = 48
	CellRecordSize    = 32
	GlobalsSize       = 272
	IndirectArgsSize  = 20
)

// newPreProcessor returns a pre-processor with every grass struct registered.
func newPreProcessor() shader.PreProcessor {
	return shader.NewPreProcessor(
		shader.WithStruct("blade_instance", BladeInstanceSource, "BladeInstance"),
		shader.WithStruct("grass_cell", GrassCellSource, "GrassCell"),
		shader.WithStruct("grass_globals", GrassGlobalsSource, "GrassGlobals"),
		shader.WithStruct("vertex_input", model.GPUVertexSource, "VertexInput"),
	)
}

// BladeInstance is one generated blade as stored in the LOD streams.
// Matches the WGSL BladeInstance struct layout exactly (see BladeInstanceSource).
// Size: 48 bytes.
type BladeInstance struct {
	Position           [3]float32 // offset  0: world position of the blade root
	Normal             [3]float32 // offset 16: terrain normal at the root
	Rotation           float32    // offset 28: yaw in radians
	Stiffness          float32    // offset 32: in [0.4, 1]
	BendAmount         float32    // offset 36: rest bend in [0, 1 - stiffness]
	BladeHash          float32    // offset 40: per-blade random in [0, 1)
	DistanceFromCamera float32    // offset 44
}

// Marshal serializes the BladeInstance into its 48-byte GPU layout.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload.
func (b *BladeInstance) Marshal() []byte {
	buf := make([]byte, BladeInstanceSize)
	putVec3(buf[0:], b.Position)
	putVec3(buf[16:], b.Normal)
	putF32(buf[28:], b.Rotation)
	putF32(buf[32:], b.Stiffness)
	putF32(buf[36:], b.BendAmount)
	putF32(buf[40:], b.BladeHash)
	putF32(buf[44:], b.DistanceFromCamera)
	return buf
}

// UnmarshalBladeInstance decodes one 48-byte record.
//
// Parameters:
//   - buf: at least BladeInstanceSize bytes
//
// Returns:
//   - BladeInstance: the decoded blade
func UnmarshalBladeInstance(buf []byte) BladeInstance {
	return BladeInstance{
		Position:           getVec3(buf[0:]),
		Normal:             getVec3(buf[16:]),
		Rotation:           getF32(buf[28:]),
		Stiffness:          getF32(buf[32:]),
		BendAmount:         getF32(buf[36:]),
		BladeHash:          getF32(buf[40:]),
		DistanceFromCamera: getF32(buf[44:]),
	}
}

// cellRecord is the GPU form of a chunk or sub-chunk.
// Matches the WGSL GrassCell struct. Size: 32 bytes.
type cellRecord struct {
	Min    [3]float32 // offset  0
	Parent int32      // offset 12: parent chunk for sub-chunks, -1 for chunks
	Max    [3]float32 // offset 16
	Index  uint32     // offset 28
}

func (c *cellRecord) marshalTo(buf []byte) {
	putVec3(buf[0:], c.Min)
	binary.LittleEndian.PutUint32(buf[12:], uint32(c.Parent))
	putVec3(buf[16:], c.Max)
	binary.LittleEndian.PutUint32(buf[28:], c.Index)
}

func unmarshalCell(buf []byte) cellRecord {
	return cellRecord{
		Min:    getVec3(buf[0:]),
		Parent: int32(binary.LittleEndian.Uint32(buf[12:])),
		Max:    getVec3(buf[16:]),
		Index:  binary.LittleEndian.Uint32(buf[28:]),
	}
}

// chunkRecords encodes the chunks of a partition.
func chunkRecords(p *Partition) []byte {
	buf := make([]byte, CellRecordSize*len(p.Chunks))
	for i, c := range p.Chunks {
		b := c.Bounds()
		r := cellRecord{Min: b.Min, Parent: -1, Max: b.Max, Index: uint32(c.Index)}
		r.marshalTo(buf[i*CellRecordSize:])
	}
	return buf
}

// subChunkRecords encodes the sub-chunks of a partition.
func subChunkRecords(p *Partition) []byte {
	buf := make([]byte, CellRecordSize*len(p.SubChunks))
	for i, sc := range p.SubChunks {
		b := sc.Bounds()
		r := cellRecord{Min: b.Min, Parent: sc.ParentChunkIndex, Max: b.Max, Index: uint32(i)}
		r.marshalTo(buf[i*CellRecordSize:])
	}
	return buf
}

// IndirectArgs is the DrawIndexedIndirect argument record. Only InstanceCount is written
// after creation, by the GPU.
type IndirectArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

// Marshal serializes the record into its 20-byte GPU layout.
//
// Returns:
//   - []byte: 20-byte buffer ready for GPU upload.
func (a *IndirectArgs) Marshal() []byte {
	buf := make([]byte, IndirectArgsSize)
	binary.LittleEndian.PutUint32(buf[0:], a.IndexCount)
	binary.LittleEndian.PutUint32(buf[4:], a.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:], a.FirstIndex)
	binary.LittleEndian.PutUint32(buf[12:], uint32(a.VertexOffset))
	binary.LittleEndian.PutUint32(buf[16:], a.FirstInstance)
	return buf
}

// globals is the per-frame uniform block shared by every grass shader.
// Matches the WGSL GrassGlobals struct layout exactly (see GrassGlobalsSource).
// Size: 272 bytes.
type globals struct {
	Planes         [6]common.Plane // offset   0: xyz normal, w distance, bias applied
	CameraPosition [3]float32      // offset  96
	Time           float32         // offset 108
	TerrainOrigin  [3]float32      // offset 112
	TerrainSize    float32         // offset 124
	HeightScale    float32         // offset 128
	HeightmapW     uint32          // offset 132
	HeightmapH     uint32          // offset 136
	LODDistance    float32         // offset 140

	ChunksPerRow      uint32 // offset 144
	SubChunksPerRow   uint32 // offset 148
	ChunkCount        uint32 // offset 152
	SubChunkCount     uint32 // offset 156
	MaxUsableChunks   uint32 // offset 160
	BladesPerChunk    uint32 // offset 164
	BladesPerSubChunk uint32 // offset 168
	Hierarchy         uint32 // offset 172

	ClumpStrength   float32 // offset 176
	ClumpSize       float32 // offset 180
	Seed            uint32  // offset 184
	BladeRadius     float32 // offset 188
	BladeHeight     float32 // offset 192
	TotalBlades     uint32  // offset 196
	VisibilityWidth uint32  // offset 200: invocations per row of the visibility grid
	GenerateWidth   uint32  // offset 204: invocations per row of the generation grid

	ViewProj [16]float32 // offset 208: column major
}

// newGlobals fills the static part of the uniform block from settings.
func newGlobals(s Settings) globals {
	t := s.Terrain
	return globals{
		TerrainOrigin:     t.Origin,
		TerrainSize:       t.Size,
		HeightScale:       t.HeightScale,
		HeightmapW:        uint32(t.Width),
		HeightmapH:        uint32(t.Height),
		LODDistance:       s.LODDistance,
		ChunksPerRow:      uint32(s.WorldChunksPerRow),
		SubChunksPerRow:   uint32(s.SubChunksPerRow),
		ChunkCount:        uint32(s.ChunkCount()),
		SubChunkCount:     uint32(s.SubChunkCount()),
		MaxUsableChunks:   uint32(s.UsableChunks()),
		BladesPerChunk:    uint32(s.BladesPerChunk()),
		BladesPerSubChunk: uint32(s.BladesPerSubChunk()),
		Hierarchy:         uint32(s.Hierarchy),
		ClumpStrength:     s.ClumpStrength,
		ClumpSize:         s.ClumpSize,
		Seed:              s.Seed,
		BladeRadius:       s.BladeRadius,
		BladeHeight:       s.BladeHeight,
		TotalBlades:       uint32(s.TotalBlades()),
	}
}

// Marshal serializes the block into its 272-byte GPU layout.
func (g *globals) Marshal() []byte {
	buf := make([]byte, GlobalsSize)
	for i, p := range g.Planes {
		putVec3(buf[i*16:], p.Normal)
		putF32(buf[i*16+12:], p.Distance)
	}
	putVec3(buf[96:], g.CameraPosition)
	putF32(buf[108:], g.Time)
	putVec3(buf[112:], g.TerrainOrigin)
	putF32(buf[124:], g.TerrainSize)
	putF32(buf[128:], g.HeightScale)
	putU32s(buf[132:], g.HeightmapW, g.HeightmapH)
	putF32(buf[140:], g.LODDistance)
	putU32s(buf[144:], g.ChunksPerRow, g.SubChunksPerRow, g.ChunkCount, g.SubChunkCount,
		g.MaxUsableChunks, g.BladesPerChunk, g.BladesPerSubChunk, g.Hierarchy)
	putF32(buf[176:], g.ClumpStrength)
	putF32(buf[180:], g.ClumpSize)
	putU32s(buf[184:], g.Seed)
	putF32(buf[188:], g.BladeRadius)
	putF32(buf[192:], g.BladeHeight)
	putU32s(buf[196:], g.TotalBlades, g.VisibilityWidth, g.GenerateWidth)
	for i, v := range g.ViewProj {
		putF32(buf[208+i*4:], v)
	}
	return buf
}

// unmarshalGlobals decodes the block as the host kernels see it.
func unmarshalGlobals(buf []byte) globals {
	var g globals
	for i := range g.Planes {
		g.Planes[i] = common.Plane{Normal: getVec3(buf[i*16:]), Distance: getF32(buf[i*16+12:])}
	}
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(buf[off:]) }
	g.CameraPosition = getVec3(buf[96:])
	g.Time = getF32(buf[108:])
	g.TerrainOrigin = getVec3(buf[112:])
	g.TerrainSize = getF32(buf[124:])
	g.HeightScale = getF32(buf[128:])
	g.HeightmapW, g.HeightmapH = u32(132), u32(136)
	g.LODDistance = getF32(buf[140:])
	g.ChunksPerRow, g.SubChunksPerRow = u32(144), u32(148)
	g.ChunkCount, g.SubChunkCount = u32(152), u32(156)
	g.MaxUsableChunks = u32(160)
	g.BladesPerChunk, g.BladesPerSubChunk = u32(164), u32(168)
	g.Hierarchy = u32(172)
	g.ClumpStrength = getF32(buf[176:])
	g.ClumpSize = getF32(buf[180:])
	g.Seed = u32(184)
	g.BladeRadius = getF32(buf[188:])
	g.BladeHeight = getF32(buf[192:])
	g.TotalBlades = u32(196)
	g.VisibilityWidth, g.GenerateWidth = u32(200), u32(204)
	for i := range g.ViewProj {
		g.ViewProj[i] = getF32(buf[208+i*4:])
	}
	return g
}

// frustum returns the planes of the block as a Frustum.
func (g *globals) frustum() common.Frustum {
	return common.FrustumFromPlanes(g.Planes)
}

func putF32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func putVec3(buf []byte, v [3]float32) {
	putF32(buf[0:], v[0])
	putF32(buf[4:], v[1])
	putF32(buf[8:], v[2])
}

func putU32s(buf []byte, vs ...uint32) {
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
}

func getF32(buf []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf))
}

func getVec3(buf []byte) [3]float32 {
	return [3]float32{getF32(buf[0:]), getF32(buf[4:]), getF32(buf[8:])}
}
