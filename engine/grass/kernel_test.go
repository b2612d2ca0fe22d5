package grass

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

func TestShadersCompileToSPIRV(t *testing.T) {
	shaders, err := Shaders()
	if err != nil {
		t.Fatalf("Shaders() error = %v", err)
	}
	wantEntries := []string{"cs_visibility", "cs_generate", "vs_grass", "fs_grass"}
	if len(shaders) != len(wantEntries) {
		t.Fatalf("Shaders() returned %d shaders, want %d", len(shaders), len(wantEntries))
	}
	for i, s := range shaders {
		if s.EntryPoint() != wantEntries[i] {
			t.Errorf("shader %d entry point = %q, want %q", i, s.EntryPoint(), wantEntries[i])
		}
	}

	for _, s := range shaders {
		t.Run(s.Key(), func(t *testing.T) {
			spirv, err := shader.CompileSPIRV(s)
			if err != nil {
				// The WGSL front end does not cover every construct the drivers accept.
				t.Skipf("SPIR-V compilation unavailable: %v", err)
			}
			if len(spirv)%4 != 0 {
				t.Errorf("SPIR-V length %d is not word aligned", len(spirv))
			}
			if magic := binary.LittleEndian.Uint32(spirv); magic != shader.SPIRVMagic {
				t.Errorf("magic = %#x", magic)
			}
		})
	}
}

func TestComputeShaderLayout(t *testing.T) {
	shaders, err := Shaders()
	if err != nil {
		t.Fatalf("Shaders() error = %v", err)
	}
	visibility, generate := shaders[0], shaders[1]
	for _, s := range []shader.Shader{visibility, generate} {
		if s.WorkgroupSize() != [3]uint32{workgroupSize, 1, 1} {
			t.Errorf("%s workgroup size = %v", s.Key(), s.WorkgroupSize())
		}
	}

	tests := []struct {
		group, binding int
		want           string
	}{
		{0, 3, "heights"},
		{0, generateBindingHigh, "high_lod"},
		{0, generateBindingHigh + 1, "high_lod_count"},
		{0, generateBindingLow, "low_lod"},
		{0, generateBindingLow + 1, "low_lod_count"},
	}
	for _, tt := range tests {
		if got := generate.BindGroupVarName(tt.group, tt.binding); got != tt.want {
			t.Errorf("generate binding %d/%d = %q, want %q", tt.group, tt.binding, got, tt.want)
		}
	}
	if len(generate.CounterBindings()) != 2 {
		t.Errorf("generate counter bindings = %v", generate.CounterBindings())
	}
}

func TestPCGHash(t *testing.T) {
	tests := []struct {
		in, want uint32
	}{
		{0, 129708002},
		{1, 2831084092},
		{42, 1223963391},
	}
	for _, tt := range tests {
		if got := pcgHash(tt.in); got != tt.want {
			t.Errorf("pcgHash(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestUnitFloat(t *testing.T) {
	if got := unitFloat(0); got != 0 {
		t.Errorf("unitFloat(0) = %v", got)
	}
	if got, want := unitFloat(math.MaxUint32), float32(16777215)/16777216; got != want || got >= 1 {
		t.Errorf("unitFloat(max) = %v, want %v", got, want)
	}
	if got := unitFloat(0xff); got != 0 {
		t.Errorf("unitFloat ignores the low byte, got %v", got)
	}
}

func TestDispatchGroups(t *testing.T) {
	tests := []struct {
		n          uint32
		wantGroups [3]uint32
		wantWidth  uint32
	}{
		{0, [3]uint32{1, 1, 1}, 64},
		{64, [3]uint32{1, 1, 1}, 64},
		{65, [3]uint32{2, 1, 1}, 128},
		{1600, [3]uint32{25, 1, 1}, 1600},
		{65535 * 64, [3]uint32{65535, 1, 1}, 65535 * 64},
		{65535*64 + 1, [3]uint32{65535, 2, 1}, 65535 * 64},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			groups, width := dispatchGroups(tt.n)
			if groups != tt.wantGroups || width != tt.wantWidth {
				t.Fatalf("dispatchGroups(%d) = %v, %d; want %v, %d", tt.n, groups, width, tt.wantGroups, tt.wantWidth)
			}
			if covered := uint64(groups[0]) * uint64(groups[1]) * workgroupSize; covered < uint64(tt.n) {
				t.Errorf("grid covers %d invocations, need %d", covered, tt.n)
			}
		})
	}
}

func TestGlobalsLayout(t *testing.T) {
	g := newGlobals(validSettings(WithSeed(77), WithHierarchy(HierarchyChunks), WithLODDistance(900)))
	g.CameraPosition = [3]float32{1, 2, 3}
	g.ViewProj[0], g.ViewProj[15] = 4, 5
	g.GenerateWidth = 1600

	buf := g.Marshal()
	if len(buf) != GlobalsSize {
		t.Fatalf("len = %d, want %d", len(buf), GlobalsSize)
	}
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(buf[off:]) }
	f32 := func(off int) float32 { return math.Float32frombits(u32(off)) }

	if f32(96) != 1 || f32(104) != 3 {
		t.Errorf("camera position at 96 = %v %v", f32(96), f32(104))
	}
	if f32(124) != 4000 {
		t.Errorf("terrain size at 124 = %v", f32(124))
	}
	if f32(140) != 900 {
		t.Errorf("lod distance at 140 = %v", f32(140))
	}
	if u32(152) != 16 || u32(156) != 64 {
		t.Errorf("cell counts at 152 = %d %d", u32(152), u32(156))
	}
	if u32(164) != 100 || u32(168) != 25 {
		t.Errorf("blade budgets at 164 = %d %d", u32(164), u32(168))
	}
	if u32(172) != uint32(HierarchyChunks) || u32(184) != 77 || u32(196) != 1600 || u32(204) != 1600 {
		t.Errorf("hierarchy %d seed %d total %d width %d", u32(172), u32(184), u32(196), u32(204))
	}
	if f32(208) != 4 || f32(268) != 5 {
		t.Errorf("view projection at 208 = %v .. %v", f32(208), f32(268))
	}

	if back := unmarshalGlobals(buf); back != g {
		t.Errorf("unmarshalGlobals(Marshal()) = %+v, want %+v", back, g)
	}
}

func TestBladeInstanceLayout(t *testing.T) {
	b := BladeInstance{
		Position:           [3]float32{1, 2, 3},
		Normal:             [3]float32{0, 0, 1},
		Rotation:           0.5,
		Stiffness:          0.75,
		BendAmount:         0.125,
		BladeHash:          0.25,
		DistanceFromCamera: 10,
	}
	buf := b.Marshal()
	if len(buf) != BladeInstanceSize {
		t.Fatalf("len = %d", len(buf))
	}
	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	if f32(8) != 3 || f32(24) != 1 || f32(28) != 0.5 || f32(44) != 10 {
		t.Errorf("layout mismatch: z %v normal.z %v rotation %v distance %v", f32(8), f32(24), f32(28), f32(44))
	}
	if back := UnmarshalBladeInstance(buf); back != b {
		t.Errorf("UnmarshalBladeInstance() = %+v, want %+v", back, b)
	}
}

type fakeResources map[[2]int][]byte

func (f fakeResources) Bytes(group, binding int) []byte {
	return f[[2]int{group, binding}]
}

func TestHostKernelsRejectMissingBindings(t *testing.T) {
	g := newGlobals(validSettings())
	full := fakeResources{
		{0, 0}: g.Marshal(),
		{0, 1}: make([]byte, 16),
		{0, 2}: make([]byte, 16),
		{0, 3}: make([]byte, 16),
	}
	if _, err := visibilityHostKernel(fakeResources{}); !errors.Is(err, ErrUnboundResource) {
		t.Errorf("visibility with no bindings: %v", err)
	}
	if _, err := visibilityHostKernel(full); !errors.Is(err, ErrUnboundResource) {
		t.Errorf("visibility with short buffers: %v", err)
	}
	if _, err := generateHostKernel(full); !errors.Is(err, ErrUnboundResource) {
		t.Errorf("generate with short buffers: %v", err)
	}
}

func TestBladeGeneratorBounds(t *testing.T) {
	s := validSettings(WithClumping(1, 10))
	p, err := BuildPartition(s)
	if err != nil {
		t.Fatalf("BuildPartition() error = %v", err)
	}
	g := newGlobals(s)
	FrameContext{Frustum: boxFrustum([3]float32{-100, -100, -100}, [3]float32{4100, 4100, 500})}.apply(&g, s.FrustumBias)
	cells := decodeCells(subChunkRecords(p))
	bg := newBladeGenerator(g, s.Terrain, cells)
	all := func(uint32) bool { return true }

	for blade := uint32(0); blade < g.TotalBlades; blade++ {
		b, _, ok := bg.generate(blade, all)
		if !ok {
			t.Fatalf("blade %d culled inside an all-enclosing frustum", blade)
		}
		sub := p.SubChunks[(blade/g.BladesPerChunk)*4+(blade%g.BladesPerChunk)/g.BladesPerSubChunk]
		const eps = 1e-3
		if b.Position[0] < sub.Min[0]-eps || b.Position[0] > sub.Max[0]+eps || b.Position[1] < sub.Min[1]-eps || b.Position[1] > sub.Max[1]+eps {
			t.Fatalf("blade %d at %v outside its sub-chunk %v..%v", blade, b.Position, sub.Min, sub.Max)
		}
		if b.Stiffness < 0.4 || b.Stiffness > 1 || b.BendAmount < 0 || b.BendAmount > 1-b.Stiffness {
			t.Fatalf("blade %d stiffness %v bend %v", blade, b.Stiffness, b.BendAmount)
		}
		if b.BladeHash < 0 || b.BladeHash >= 1 {
			t.Fatalf("blade %d hash %v", blade, b.BladeHash)
		}
	}

	if _, _, ok := bg.generate(g.TotalBlades, all); ok {
		t.Error("slot past the budget produced a blade")
	}
	if _, _, ok := bg.generate(0, func(uint32) bool { return false }); ok {
		t.Error("blade in an invisible chunk produced a blade")
	}
}

// clumpDistances generates every blade of the test field and returns each blade's XY
// position and its distance to its clump center.
func clumpDistances(t *testing.T, strength, size float32) ([][2]float32, []float32) {
	t.Helper()
	s := validSettings(WithClumping(strength, size))
	p, err := BuildPartition(s)
	if err != nil {
		t.Fatalf("BuildPartition() error = %v", err)
	}
	g := newGlobals(s)
	FrameContext{Frustum: boxFrustum([3]float32{-100, -100, -100}, [3]float32{4100, 4100, 500})}.apply(&g, s.FrustumBias)
	cells := decodeCells(subChunkRecords(p))
	bg := newBladeGenerator(g, s.Terrain, cells)
	all := func(uint32) bool { return true }

	pos := make([][2]float32, g.TotalBlades)
	dist := make([]float32, g.TotalBlades)
	for blade := uint32(0); blade < g.TotalBlades; blade++ {
		b, _, ok := bg.generate(blade, all)
		if !ok {
			t.Fatalf("blade %d culled inside an all-enclosing frustum", blade)
		}
		inChunk := blade % g.BladesPerChunk
		sub := (blade/g.BladesPerChunk)*g.SubChunksPerRow*g.SubChunksPerRow + inChunk/g.BladesPerSubChunk
		cell := cells[sub]
		lo := [2]float32{cell.Min[0], cell.Min[1]}
		extent := [2]float32{cell.Max[0] - lo[0], cell.Max[1] - lo[1]}
		center := clumpCenter(sub, inChunk%g.BladesPerSubChunk, g.Seed, lo, extent)
		pos[blade] = [2]float32{b.Position[0], b.Position[1]}
		dist[blade] = distance2(pos[blade], center)
	}
	return pos, dist
}

func mean(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x)
	}
	return sum / float64(len(v))
}

func TestClumpingPullsTowardCenter(t *testing.T) {
	_, free := clumpDistances(t, 0, 1e6)
	_, some := clumpDistances(t, 0.3, 1e6)
	_, most := clumpDistances(t, 0.9, 1e6)
	if !(mean(most) < mean(some) && mean(some) < mean(free)) {
		t.Fatalf("mean clump distance for strength 0, 0.3, 0.9 = %v, %v, %v", mean(free), mean(some), mean(most))
	}
	// The pull is linear in strength while the size does not bind.
	if got, want := mean(most), 0.1*mean(free); math.Abs(got-want) > 0.01*mean(free) {
		t.Errorf("mean distance at strength 0.9 = %v, want about %v", got, want)
	}

	_, full := clumpDistances(t, 1, 1e6)
	for blade, d := range full {
		if d > 1e-2 {
			t.Fatalf("blade %d is %v from its clump at full strength", blade, d)
		}
	}
}

func TestClumpingSizeLimitsPull(t *testing.T) {
	base, _ := clumpDistances(t, 0, 10)
	pulled, _ := clumpDistances(t, 1, 10)
	moved := 0
	for blade := range base {
		d := distance2(base[blade], pulled[blade])
		if d > 10+1e-3 {
			t.Fatalf("blade %d pulled %v, limit 10", blade, d)
		}
		if d > 1e-3 {
			moved++
		}
	}
	if moved == 0 {
		t.Error("no blade moved at full strength")
	}

	still, _ := clumpDistances(t, 1, 0)
	for blade := range base {
		if distance2(base[blade], still[blade]) > 1e-3 {
			t.Fatalf("blade %d moved with a zero clump size", blade)
		}
	}
}

func decodeCells(buf []byte) []cellRecord {
	cells := make([]cellRecord, len(buf)/CellRecordSize)
	for i := range cells {
		cells[i] = unmarshalCell(buf[i*CellRecordSize:])
	}
	return cells
}

func TestDrawPipelineState(t *testing.T) {
	p, err := newDrawPipeline()
	if err != nil {
		t.Fatalf("newDrawPipeline() error = %v", err)
	}
	if p.CullMode() != wgpu.CullModeNone {
		t.Errorf("CullMode() = %v, blades must be double sided", p.CullMode())
	}
	if p.Topology() != wgpu.PrimitiveTopologyTriangleList || p.FrontFace() != wgpu.FrontFaceCCW {
		t.Errorf("Topology(), FrontFace() = %v, %v", p.Topology(), p.FrontFace())
	}
	if !p.DepthTestEnabled() || !p.DepthWriteEnabled() {
		t.Error("blades are not depth tested")
	}
}
