package grass

import (
	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/chewxy/math32"
)

// Lod names the stream a blade is appended to.
type Lod int

const (
	LodHigh Lod = iota
	LodLow
)

func (l Lod) String() string {
	if l == LodHigh {
		return "high"
	}
	return "low"
}

// bladeGenerator is the CPU mirror of cs_generate. It places blades exactly like the
// kernel so the software backend and the debug paths agree with the GPU.
type bladeGenerator struct {
	g       globals
	frustum common.Frustum
	terrain *Terrain
	cells   []cellRecord
}

func newBladeGenerator(g globals, terrain *Terrain, cells []cellRecord) *bladeGenerator {
	return &bladeGenerator{g: g, frustum: g.frustum(), terrain: terrain, cells: cells}
}

// generate builds the blade for one slot. visible reports the flag of a cell, chunks
// first, then sub-chunks. ok is false when the slot contributes nothing this frame.
func (bg *bladeGenerator) generate(blade uint32, visible func(cell uint32) bool) (BladeInstance, Lod, bool) {
	g := &bg.g
	if blade >= g.TotalBlades || g.BladesPerChunk == 0 || g.BladesPerSubChunk == 0 {
		return BladeInstance{}, 0, false
	}
	chunk := blade / g.BladesPerChunk
	inChunk := blade % g.BladesPerChunk
	if chunk >= g.MaxUsableChunks || !visible(chunk) {
		return BladeInstance{}, 0, false
	}
	sub := chunk*g.SubChunksPerRow*g.SubChunksPerRow + inChunk/g.BladesPerSubChunk
	if g.Hierarchy == uint32(HierarchySubChunks) && !visible(g.ChunkCount+sub) {
		return BladeInstance{}, 0, false
	}
	if int(sub) >= len(bg.cells) {
		return BladeInstance{}, 0, false
	}

	cell := bg.cells[sub]
	lo := [2]float32{cell.Min[0], cell.Min[1]}
	extent := [2]float32{cell.Max[0] - lo[0], cell.Max[1] - lo[1]}

	h0 := pcgHash(blade ^ g.Seed)
	h1 := pcgHash(h0)
	h2 := pcgHash(h1)
	h3 := pcgHash(h2)
	h4 := pcgHash(h3)
	jitter := [2]float32{
		float32(lo[0] + float32(extent[0]*unitFloat(h0))),
		float32(lo[1] + float32(extent[1]*unitFloat(h1))),
	}

	clump := clumpCenter(sub, inChunk%g.BladesPerSubChunk, g.Seed, lo, extent)
	pull := [2]float32{
		float32((clump[0] - jitter[0]) * g.ClumpStrength),
		float32((clump[1] - jitter[1]) * g.ClumpStrength),
	}
	if d := distance2(pull, [2]float32{}); d > g.ClumpSize {
		k := g.ClumpSize / d
		pull = [2]float32{float32(pull[0] * k), float32(pull[1] * k)}
	}
	x := float32(jitter[0] + pull[0])
	y := float32(jitter[1] + pull[1])

	pos := [3]float32{x, y, bg.terrain.SampleHeight(x, y)}
	r := g.BladeRadius
	box := common.AABB{
		Min: [3]float32{pos[0] - r, pos[1] - r, pos[2]},
		Max: [3]float32{pos[0] + r, pos[1] + r, pos[2] + g.BladeHeight},
	}
	if !common.IntersectsAABB(box, bg.frustum) {
		return BladeInstance{}, 0, false
	}

	stiffness := 0.4 + 0.6*unitFloat(h3)
	b := BladeInstance{
		Position:           pos,
		Normal:             bg.terrain.SurfaceNormal(x, y),
		Rotation:           unitFloat(h2) * 2 * math32.Pi,
		Stiffness:          stiffness,
		BendAmount:         unitFloat(h4) * (1 - stiffness),
		BladeHash:          unitFloat(h0),
		DistanceFromCamera: distance3(pos, g.CameraPosition),
	}
	if b.DistanceFromCamera < g.LODDistance {
		return b, LodHigh, true
	}
	return b, LodLow, true
}

// clumpCenter places the clump shared by every 16 consecutive blades of a sub-chunk.
func clumpCenter(sub, local, seed uint32, lo, extent [2]float32) [2]float32 {
	h := pcgHash(pcgHash(sub^seed) ^ (local >> 4))
	return [2]float32{
		float32(lo[0] + float32(extent[0]*unitFloat(h))),
		float32(lo[1] + float32(extent[1]*unitFloat(pcgHash(h)))),
	}
}

func distance2(a, b [2]float32) float32 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return math32.Sqrt(dx*dx + dy*dy)
}

func distance3(a, b [3]float32) float32 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math32.Sqrt(dx*dx + dy*dy + dz*dz)
}
