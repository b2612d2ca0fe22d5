package grass

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-grass/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// namedMesh is a mesh without buffers; the software backend only needs its label and
// index count.
type namedMesh struct {
	label   string
	indices uint32
}

func (m namedMesh) Label() string                 { return m.label }
func (m namedMesh) VertexBuffer() renderer.Buffer { return nil }
func (m namedMesh) IndexBuffer() renderer.Buffer  { return nil }
func (m namedMesh) IndexCount() uint32            { return m.indices }

var (
	highMesh = namedMesh{label: "grass_high", indices: 27}
	lowMesh  = namedMesh{label: "grass_low", indices: 3}
)

func fieldSettings(opts ...SettingsBuilderOption) Settings {
	base := []SettingsBuilderOption{
		WithMeshes(highMesh, lowMesh),
		WithTerrain(FlatTerrain([3]float32{}, 4000)),
		WithPartition(4, 2, 400),
	}
	return NewSettings(append(base, opts...)...)
}

func newSoftRenderer(t *testing.T, workers int) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, renderer.WithWorkers(workers))
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

func newTestGrass(t *testing.T, r renderer.Renderer, q renderer.CommandSink, s Settings, opts ...GrassBuilderOption) *grass {
	t.Helper()
	g, err := New(r, q, s, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(g.DestroyBuffers)
	return g.(*grass)
}

// renderOnce runs one host frame and returns what the renderer executed.
func renderOnce(t *testing.T, r renderer.Renderer, q *renderer.StageQueue, g Grass, frame FrameContext) renderer.FrameStats {
	t.Helper()
	if err := r.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	g.RenderSceneObject(frame)
	if err := q.Flush(r); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	stats := r.Stats()
	r.EndFrame()
	return stats
}

func boxFrame(lo, hi, camera [3]float32) FrameContext {
	return FrameContext{Frustum: boxFrustum(lo, hi), CameraPosition: camera}
}

// wholeField encloses the 4000 x 4000 test terrain.
func wholeField(camera [3]float32) FrameContext {
	return boxFrame([3]float32{-100, -100, -100}, [3]float32{4100, 4100, 500}, camera)
}

// expectedStreams runs the CPU visibility and generation for the frame g last rendered
// and returns the encoded streams.
func expectedStreams(g *grass) (high, low []byte) {
	f := g.globals.frustum()
	g.partition.UpdateVisibility(f, g.settings.UsableChunks(), g.settings.Hierarchy)
	chunks := uint32(len(g.partition.Chunks))
	visible := func(cell uint32) bool {
		if cell < chunks {
			return g.partition.Chunks[cell].Visible
		}
		return g.partition.SubChunks[cell-chunks].Visible
	}

	bg := newBladeGenerator(g.globals, g.settings.Terrain, decodeCells(subChunkRecords(g.partition)))
	for blade := uint32(0); blade < g.globals.TotalBlades; blade++ {
		b, lod, ok := bg.generate(blade, visible)
		if !ok {
			continue
		}
		if lod == LodHigh {
			high = append(high, b.Marshal()...)
		} else {
			low = append(low, b.Marshal()...)
		}
	}
	return high, low
}

// readBuffer reads size bytes of buf through the renderer's readback path.
func readBuffer(t *testing.T, r renderer.Renderer, buf renderer.Buffer, size uint64) []byte {
	t.Helper()
	var out []byte
	var readErr error
	probe := renderer.NewCommandList("probe")
	probe.ReadBufferAsync(buf, 0, size, func(data []byte, err error) {
		out, readErr = data, err
	})
	if err := r.Execute(probe); err != nil {
		t.Fatalf("Execute(probe) error = %v", err)
	}
	r.Poll()
	if readErr != nil {
		t.Fatalf("readback of %q: %v", buf.Label(), readErr)
	}
	return out
}

func drawCounts(t *testing.T, stats renderer.FrameStats) (high, low uint32) {
	t.Helper()
	if len(stats.Draws) != 2 {
		t.Fatalf("executed %d draws, want 2", len(stats.Draws))
	}
	return stats.Draws[0].InstanceCount, stats.Draws[1].InstanceCount
}

func TestGrassWholeFieldVisible(t *testing.T) {
	r := newSoftRenderer(t, 4)
	q := renderer.NewStageQueue()
	g := newTestGrass(t, r, q, fieldSettings(WithLODDistance(1000)))

	stats := renderOnce(t, r, q, g, wholeField([3]float32{2000, 2000, 100}))
	high, low := drawCounts(t, stats)
	if high+low != 1600 {
		t.Fatalf("instances = %d + %d, want 1600", high, low)
	}
	if high == 0 || low == 0 {
		t.Errorf("LOD split %d / %d, want both streams populated", high, low)
	}

	wantHigh, wantLow := expectedStreams(g)
	if uint32(len(wantHigh)/BladeInstanceSize) != high || uint32(len(wantLow)/BladeInstanceSize) != low {
		t.Errorf("counts %d / %d, CPU expects %d / %d", high, low, len(wantHigh)/BladeInstanceSize, len(wantLow)/BladeInstanceSize)
	}
	if stats.Dispatches != 2 || stats.Copies != 2 {
		t.Errorf("dispatches %d copies %d, want 2 and 2", stats.Dispatches, stats.Copies)
	}
	if stats.Draws[0].Mesh != "grass_high" || stats.Draws[0].IndexCount != 27 ||
		stats.Draws[1].Mesh != "grass_low" || stats.Draws[1].IndexCount != 3 {
		t.Errorf("draws = %+v", stats.Draws)
	}
}

func TestGrassSingleChunkVisible(t *testing.T) {
	r := newSoftRenderer(t, 4)
	q := renderer.NewStageQueue()
	g := newTestGrass(t, r, q, fieldSettings())

	// With the default bias of 50 the box grows to [10, 990], which only reaches chunk 0.
	frame := boxFrame([3]float32{60, 60, -100}, [3]float32{940, 940, 500}, [3]float32{500, 500, 100})
	high, low := drawCounts(t, renderOnce(t, r, q, g, frame))
	if low != 0 {
		t.Errorf("low instances = %d, want 0 inside the LOD distance", low)
	}
	if high > 100 || high < 80 {
		t.Errorf("high instances = %d, want between 80 and the chunk budget of 100", high)
	}
	wantHigh, _ := expectedStreams(g)
	if uint32(len(wantHigh)/BladeInstanceSize) != high {
		t.Errorf("high instances = %d, CPU expects %d", high, len(wantHigh)/BladeInstanceSize)
	}
	if n := g.DebugVisibility(frame); n != 1 {
		t.Errorf("DebugVisibility() = %d chunks, want 1", n)
	}
}

func TestGrassMaxUsableChunks(t *testing.T) {
	r := newSoftRenderer(t, 2)
	q := renderer.NewStageQueue()
	g := newTestGrass(t, r, q, fieldSettings(WithMaxUsableChunks(1)))

	high, low := drawCounts(t, renderOnce(t, r, q, g, wholeField([3]float32{500, 500, 100})))
	if high+low != 100 {
		t.Errorf("instances = %d, want the 100 blades of chunk 0", high+low)
	}
}

func TestGrassStreamsMatchCPUGeneration(t *testing.T) {
	camera := [3]float32{1200, 1800, 50}
	frame := wholeField(camera)

	var streams [][2][]byte
	for _, workers := range []int{1, 4} {
		r := newSoftRenderer(t, workers)
		q := renderer.NewStageQueue()
		g := newTestGrass(t, r, q, fieldSettings(WithLODDistance(1200), WithSeed(3)))
		high, low := drawCounts(t, renderOnce(t, r, q, g, frame))

		got := [2][]byte{
			readBuffer(t, r, g.streams[LodHigh].blades, uint64(high)*BladeInstanceSize),
			readBuffer(t, r, g.streams[LodLow].blades, uint64(low)*BladeInstanceSize),
		}
		wantHigh, wantLow := expectedStreams(g)
		if !bytes.Equal(got[0], wantHigh) || !bytes.Equal(got[1], wantLow) {
			t.Fatalf("workers=%d: streams differ from the CPU generator", workers)
		}
		streams = append(streams, got)
	}
	if !bytes.Equal(streams[0][0], streams[1][0]) || !bytes.Equal(streams[0][1], streams[1][1]) {
		t.Error("stream contents depend on the worker count")
	}
}

func TestGrassCountsBoundedByBudget(t *testing.T) {
	r := newSoftRenderer(t, 4)
	q := renderer.NewStageQueue()
	s := fieldSettings()
	g := newTestGrass(t, r, q, s)

	proj := mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 1, 10000)
	up := mgl32.Vec3{0, 0, 1}
	cameras := []struct {
		eye, target mgl32.Vec3
	}{
		{mgl32.Vec3{2000, -500, 400}, mgl32.Vec3{2000, 2000, 0}},
		{mgl32.Vec3{0, 0, 200}, mgl32.Vec3{4000, 4000, 0}},
		{mgl32.Vec3{2000, 2000, 3000}, mgl32.Vec3{2000, 2001, 0}},
		{mgl32.Vec3{-3000, 2000, 100}, mgl32.Vec3{-6000, 2000, 100}},
	}
	for _, c := range cameras {
		vp := proj.Mul4(mgl32.LookAtV(c.eye, c.target, up))
		frame := NewFrameContext([16]float32(vp), [3]float32(c.eye), 0)
		high, low := drawCounts(t, renderOnce(t, r, q, g, frame))
		if int(high+low) > s.TotalBlades() {
			t.Errorf("camera %v: %d instances exceed the budget %d", c.eye, high+low, s.TotalBlades())
		}
		wantHigh, wantLow := expectedStreams(g)
		if int(high) != len(wantHigh)/BladeInstanceSize || int(low) != len(wantLow)/BladeInstanceSize {
			t.Errorf("camera %v: counts %d / %d, CPU expects %d / %d", c.eye, high, low,
				len(wantHigh)/BladeInstanceSize, len(wantLow)/BladeInstanceSize)
		}
	}
}

func TestGrassHierarchyFlags(t *testing.T) {
	// The box only reaches sub-chunk 0 of chunk 0 once the bias is applied.
	frame := boxFrame([3]float32{60, 60, -100}, [3]float32{440, 440, 500}, [3]float32{250, 250, 100})

	tests := []struct {
		name      string
		hierarchy Hierarchy
		wantSubs  []uint32
	}{
		{"sub_chunks", HierarchySubChunks, []uint32{1, 0, 0, 0}},
		{"chunks", HierarchyChunks, []uint32{1, 1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSoftRenderer(t, 3)
			q := renderer.NewStageQueue()
			s := fieldSettings(WithHierarchy(tt.hierarchy))
			g := newTestGrass(t, r, q, s)
			high, _ := drawCounts(t, renderOnce(t, r, q, g, frame))

			cells := s.ChunkCount() + s.SubChunkCount()
			flags := readBuffer(t, r, g.flagBuf, uint64(4*cells))
			flag := func(cell int) uint32 { return uint32(flags[cell*4]) }
			for c := 0; c < s.ChunkCount(); c++ {
				if want := boolToU32(c == 0); flag(c) != want {
					t.Errorf("chunk %d flag = %d, want %d", c, flag(c), want)
				}
			}
			for i, want := range tt.wantSubs {
				if got := flag(s.ChunkCount() + i); got != want {
					t.Errorf("sub-chunk %d flag = %d, want %d", i, got, want)
				}
			}
			for i := 4; i < s.SubChunkCount(); i++ {
				if flag(s.ChunkCount()+i) != 0 {
					t.Errorf("sub-chunk %d of a hidden chunk is visible", i)
				}
			}

			if tt.hierarchy == HierarchySubChunks && high > uint32(s.BladesPerSubChunk()) {
				t.Errorf("high instances = %d, want at most one sub-chunk budget", high)
			}
		})
	}
}

func TestGrassCommandOrder(t *testing.T) {
	r := newSoftRenderer(t, 1)
	q := renderer.NewStageQueue()

	tests := []struct {
		name string
		opts []GrassBuilderOption
		want []string
	}{
		{
			name: "default",
			want: []string{
				"write_buffer", "dispatch", "reset_counter", "reset_counter", "dispatch",
				"copy_counter", "draw_indexed_indirect", "copy_counter", "draw_indexed_indirect",
			},
		},
		{
			name: "debug counts",
			opts: []GrassBuilderOption{WithDebugCounts(true)},
			want: []string{
				"write_buffer", "dispatch", "reset_counter", "reset_counter", "dispatch",
				"copy_counter", "draw_indexed_indirect", "readback",
				"copy_counter", "draw_indexed_indirect", "readback",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGrass(t, r, q, fieldSettings(), tt.opts...)
			g.RenderSceneObject(wholeField([3]float32{}))
			got := g.list.CommandNames()
			if len(got) != len(tt.want) {
				t.Fatalf("CommandNames() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("CommandNames() = %v, want %v", got, tt.want)
				}
			}
			q.Clear()
		})
	}
}

func TestGrassDrawAttributes(t *testing.T) {
	r := newSoftRenderer(t, 2)
	q := renderer.NewStageQueue()
	g := newTestGrass(t, r, q, fieldSettings(), WithFlags(Flags{WantsPrePass: true}))

	camera := [3]float32{10, 20, 30}
	stats := renderOnce(t, r, q, g, wholeField(camera))
	if len(stats.Draws) != 2 {
		t.Fatalf("executed %d draws", len(stats.Draws))
	}
	for i, d := range stats.Draws {
		lod := Lod(i)
		if d.Attributes[AttributeLOD] != lod.String() {
			t.Errorf("draw %d LOD = %v, want %s", i, d.Attributes[AttributeLOD], lod)
		}
		if d.Attributes[AttributeGrassData] != g.streams[lod].blades {
			t.Errorf("draw %d GrassData is not the %s stream", i, lod)
		}
		if d.Attributes[AttributeCameraPosition] != camera {
			t.Errorf("draw %d CameraPosition = %v", i, d.Attributes[AttributeCameraPosition])
		}
		if d.Attributes[AttributeWantsPrePass] != true || d.Attributes[AttributeCastShadows] != false {
			t.Errorf("draw %d flags = %v / %v", i, d.Attributes[AttributeWantsPrePass], d.Attributes[AttributeCastShadows])
		}
		if d.Pipeline != drawPipelineKey {
			t.Errorf("draw %d pipeline = %q", i, d.Pipeline)
		}
	}
}

func TestGrassDebugCounts(t *testing.T) {
	r := newSoftRenderer(t, 4)
	q := renderer.NewStageQueue()
	g := newTestGrass(t, r, q, fieldSettings(WithLODDistance(1000)), WithDebugCounts(true))

	if _, ok := g.DebugCounts(); ok {
		t.Fatal("DebugCounts() reported counts before any frame")
	}
	high, low := drawCounts(t, renderOnce(t, r, q, g, wholeField([3]float32{2000, 2000, 100})))
	if _, ok := g.DebugCounts(); ok {
		t.Fatal("DebugCounts() reported counts before Poll")
	}
	r.Poll()
	counts, ok := g.DebugCounts()
	if !ok {
		t.Fatal("DebugCounts() has no counts after Poll")
	}
	if counts.High != high || counts.Low != low || counts.Frame != 0 {
		t.Errorf("DebugCounts() = %+v, want %d / %d for frame 0", counts, high, low)
	}

	// A stale readback never overwrites a newer frame.
	renderOnce(t, r, q, g, wholeField([3]float32{2000, 2000, 100}))
	r.Poll()
	g.countReader(LodHigh, 0)([]byte{9, 0, 0, 0}, nil)
	if counts, _ := g.DebugCounts(); counts.Frame != 1 || counts.High != high {
		t.Errorf("DebugCounts() = %+v after a stale readback", counts)
	}
}

func TestGrassLifecycle(t *testing.T) {
	r := newSoftRenderer(t, 2)
	q := renderer.NewStageQueue()
	g := newTestGrass(t, r, q, fieldSettings())
	frame := wholeField([3]float32{2000, 2000, 100})

	if g.State() != StateReady {
		t.Fatalf("State() after New = %s", g.State())
	}
	g.RenderSceneObject(frame)
	if g.State() != StateDrawn || q.Len() != 1 {
		t.Fatalf("State() = %s with %d queued lists after render", g.State(), q.Len())
	}
	q.Clear()

	streams := g.streams
	g.DestroyBuffers()
	g.DestroyBuffers()
	if g.State() != StateDisposed {
		t.Fatalf("State() after DestroyBuffers = %s", g.State())
	}
	if streams[LodHigh].blades.Valid() || streams[LodLow].args.Valid() {
		t.Error("DestroyBuffers left stream buffers alive")
	}

	g.RenderSceneObject(frame)
	g.RenderSceneObject(frame)
	if q.Len() != 0 {
		t.Errorf("render after DestroyBuffers queued %d lists", q.Len())
	}

	if err := g.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if g.State() != StateReady {
		t.Fatalf("State() after Enable = %s", g.State())
	}
	high, low := drawCounts(t, renderOnce(t, r, q, g, frame))
	if high+low != 1600 {
		t.Errorf("instances after Enable = %d, want 1600", high+low)
	}

	g.Disable()
	if g.State() != StateDisposed {
		t.Errorf("State() after Disable = %s", g.State())
	}
}

func TestGrassSharesPipelines(t *testing.T) {
	r := newSoftRenderer(t, 2)
	q := renderer.NewStageQueue()
	a := newTestGrass(t, r, q, fieldSettings(), WithLabel("field_a"))
	b := newTestGrass(t, r, q, fieldSettings(WithStage(renderer.StageAfterTransparent, 1)), WithLabel("field_b"))

	if a.pipelines != b.pipelines {
		t.Error("second Grass object built its own pipelines")
	}
	if err := r.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	frame := wholeField([3]float32{2000, 2000, 100})
	a.RenderSceneObject(frame)
	b.RenderSceneObject(frame)
	if err := q.Flush(r); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n := len(r.Stats().Draws); n != 4 {
		t.Errorf("executed %d draws, want 4", n)
	}
}

func TestNewErrors(t *testing.T) {
	r := newSoftRenderer(t, 1)
	q := renderer.NewStageQueue()

	tests := []struct {
		name     string
		r        renderer.Renderer
		sink     renderer.CommandSink
		settings Settings
		want     error
	}{
		{"no renderer", nil, q, fieldSettings(), ErrMissingHost},
		{"no sink", r, nil, fieldSettings(), ErrMissingHost},
		{"no meshes", r, q, fieldSettings(WithMeshes(nil, nil)), ErrMissingMesh},
		{"no terrain", r, q, fieldSettings(WithTerrain(nil)), ErrMissingTerrain},
		{"bad partition", r, q, fieldSettings(WithPartition(0, 2, 400)), ErrInvalidDimensions},
		{"indivisible", r, q, fieldSettings(WithPartition(4, 2, 404)), ErrIndivisibleBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.r, tt.sink, tt.settings)
			if !errors.Is(err, tt.want) {
				t.Fatalf("New() error = %v, want %v", err, tt.want)
			}
			if g != nil {
				t.Error("New() returned an object with an error")
			}
		})
	}
}
