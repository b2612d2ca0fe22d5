package grass

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer"
)

// ErrMissingHost is returned when New is called without a renderer or command sink.
var ErrMissingHost = errors.New("grass: renderer and command sink are required")

// State is the lifecycle state of a Grass object.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateResetting
	StateDispatching
	StateDrawn
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateResetting:
		return "resetting"
	case StateDispatching:
		return "dispatching"
	case StateDrawn:
		return "drawn"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Flags are render hints forwarded to the draw commands as command list attributes.
type Flags struct {
	WantsPrePass bool
	CastShadows  bool
}

// Command list attribute names set for the grass draws.
const (
	AttributeGrassData      = "GrassData"
	AttributeCameraPosition = "CameraPosition"
	AttributeLOD            = "LOD"
	AttributeWantsPrePass   = "WantsPrePass"
	AttributeCastShadows    = "CastShadows"
)

// DebugCounts is an informational snapshot of the per-stream instance counts. It is read
// back asynchronously and is at least one frame old; nothing in the pipeline depends on it.
type DebugCounts struct {
	High  uint32
	Low   uint32
	Frame uint64 // the frame whose counts these are
}

// instanceStream is one LOD bucket: the blade append stream and its indirect arguments.
type instanceStream struct {
	lod    Lod
	mesh   renderer.Mesh
	blades renderer.AppendBuffer
	args   renderer.Buffer
}

func (s *instanceStream) valid() bool {
	return s.blades != nil && s.blades.Valid() && s.args != nil && s.args.Valid()
}

func (s *instanceStream) release() {
	if s.blades != nil {
		s.blades.Release()
		s.blades = nil
	}
	if s.args != nil {
		s.args.Release()
		s.args = nil
	}
}

// grass is the implementation of the Grass interface.
type grass struct {
	mu sync.Mutex

	label    string
	renderer renderer.Renderer
	sink     renderer.CommandSink
	settings Settings
	flags    Flags

	partition *Partition
	pipelines grassPipelines
	list      *renderer.CommandList
	globals   globals

	visibilityGroups [3]uint32
	generateGroups   [3]uint32

	globalsBuf  renderer.Buffer
	chunkBuf    renderer.Buffer
	subChunkBuf renderer.Buffer
	flagBuf     renderer.Buffer
	heightBuf   renderer.Buffer
	streams     [2]instanceStream

	state       State
	frame       uint64
	skipLogged  bool
	debugCounts bool
	counts      DebugCounts
	haveCounts  bool
}

// Grass is a GPU-driven grass field. Every frame it culls the terrain partition, generates
// the visible blades into a near and a far stream, copies each stream's counter into its
// indirect draw arguments and submits one indirect draw per stream, all without reading
// anything back to the CPU.
type Grass interface {
	// RenderSceneObject records the frame's commands and hands the command list to the
	// sink. It does nothing if the buffers have been released.
	//
	// Parameters:
	//   - frame: the camera and time of the frame
	RenderSceneObject(frame FrameContext)

	// DestroyBuffers releases every GPU buffer. Calling it again is a no-op.
	DestroyBuffers()

	// Disable releases the buffers, like DestroyBuffers.
	Disable()

	// Enable reallocates the buffers after Disable or DestroyBuffers.
	//
	// Returns:
	//   - error: an error if allocation fails
	Enable() error

	// State returns the lifecycle state.
	State() State

	// Settings returns the settings snapshot the object was built from.
	Settings() Settings

	// Flags returns the render hints.
	Flags() Flags

	// Label returns the prefix used for the object's buffers and command list.
	Label() string

	// Partition returns the static terrain partition.
	Partition() *Partition

	// DebugVisibility runs the visibility test for frame on the CPU, storing the result in
	// the partition's Visible fields.
	//
	// Parameters:
	//   - frame: the camera of the frame
	//
	// Returns:
	//   - int: the number of visible chunks
	DebugVisibility(frame FrameContext) int

	// DebugCounts returns the latest instance counts read back from the GPU.
	//
	// Returns:
	//   - DebugCounts: the counts
	//   - bool: false until the first readback arrives or when readback is disabled
	DebugCounts() (DebugCounts, bool)
}

var _ Grass = &grass{}

// New builds a Grass object: it validates settings, builds the partition, registers the
// grass pipelines on r and allocates the buffers.
//
// Parameters:
//   - r: the renderer that owns the buffers and executes the command list
//   - sink: where the per-frame command list is submitted
//   - settings: the configuration snapshot
//   - opts: a variadic list of GrassBuilderOption functions
//
// Returns:
//   - Grass: the grass object, in StateReady
//   - error: a configuration or allocation error
func New(r renderer.Renderer, sink renderer.CommandSink, settings Settings, opts ...GrassBuilderOption) (Grass, error) {
	if r == nil || sink == nil {
		return nil, ErrMissingHost
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	p, err := BuildPartition(settings)
	if err != nil {
		return nil, err
	}

	g := &grass{
		label:     "grass",
		renderer:  r,
		sink:      sink,
		settings:  settings,
		partition: p,
		state:     StateUninitialized,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.list = renderer.NewCommandList(g.label)

	if g.pipelines, err = registerPipelines(r); err != nil {
		return nil, err
	}

	g.globals = newGlobals(settings)
	g.visibilityGroups, g.globals.VisibilityWidth = dispatchGroups(uint32(settings.ChunkCount() + settings.SubChunkCount()))
	g.generateGroups, g.globals.GenerateWidth = dispatchGroups(uint32(settings.TotalBlades()))

	if err := g.allocate(); err != nil {
		return nil, err
	}
	common.Logger().Debug("grass ready",
		"label", g.label,
		"chunks", settings.ChunkCount(),
		"sub_chunks", settings.SubChunkCount(),
		"max_blades", settings.TotalBlades(),
		"hierarchy", settings.Hierarchy)
	return g, nil
}

// allocate creates and uploads every buffer and moves to StateReady. On failure the
// buffers created so far are released.
func (g *grass) allocate() (err error) {
	defer func() {
		if err != nil {
			g.release()
		}
	}()

	s := g.settings
	total := uint64(s.TotalBlades())
	cells := uint64(s.ChunkCount() + s.SubChunkCount())

	if g.globalsBuf, err = g.renderer.CreateBuffer(g.label+"_globals", GlobalsSize, renderer.BufferUsageUniform); err != nil {
		return err
	}
	if g.chunkBuf, err = g.upload(g.label+"_chunks", chunkRecords(g.partition)); err != nil {
		return err
	}
	if g.subChunkBuf, err = g.upload(g.label+"_sub_chunks", subChunkRecords(g.partition)); err != nil {
		return err
	}
	if g.flagBuf, err = g.renderer.CreateBuffer(g.label+"_visibility", 4*cells, renderer.BufferUsageStorage); err != nil {
		return err
	}
	if g.heightBuf, err = g.upload(g.label+"_heights", s.Terrain.Bytes()); err != nil {
		return err
	}

	meshes := [2]renderer.Mesh{s.HighLOD, s.LowLOD}
	for i := range g.streams {
		st := &g.streams[i]
		st.lod, st.mesh = Lod(i), meshes[i]
		if st.blades, err = g.renderer.CreateAppendBuffer(fmt.Sprintf("%s_%s_lod", g.label, st.lod), BladeInstanceSize, total); err != nil {
			return err
		}
		args := IndirectArgs{IndexCount: st.mesh.IndexCount()}
		if st.args, err = g.renderer.CreateBuffer(fmt.Sprintf("%s_%s_args", g.label, st.lod), IndirectArgsSize,
			renderer.BufferUsageIndirect|renderer.BufferUsageStorage|renderer.BufferUsageReadback); err != nil {
			return err
		}
		if err = g.renderer.WriteBuffer(st.args, 0, args.Marshal()); err != nil {
			return err
		}
	}

	g.state = StateReady
	g.skipLogged = false
	return nil
}

// upload creates a storage buffer holding data.
func (g *grass) upload(label string, data []byte) (renderer.Buffer, error) {
	buf, err := g.renderer.CreateBuffer(label, uint64(len(data)), renderer.BufferUsageStorage)
	if err != nil {
		return nil, err
	}
	if err := g.renderer.WriteBuffer(buf, 0, data); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

func (g *grass) buffersValid() bool {
	for _, b := range []renderer.Buffer{g.globalsBuf, g.chunkBuf, g.subChunkBuf, g.flagBuf, g.heightBuf} {
		if b == nil || !b.Valid() {
			return false
		}
	}
	return g.streams[0].valid() && g.streams[1].valid()
}

func (g *grass) RenderSceneObject(frame FrameContext) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateDisposed || g.state == StateUninitialized || !g.buffersValid() {
		if !g.skipLogged {
			common.Logger().Warn("grass render skipped: buffers not allocated", "label", g.label, "state", g.state)
			g.skipLogged = true
		}
		return
	}

	// (a) reset, (b) visibility, (c) counter reset
	g.state = StateResetting
	g.list.Reset()
	frame.apply(&g.globals, g.settings.FrustumBias)
	g.list.WriteBuffer(g.globalsBuf, 0, g.globals.Marshal())
	g.list.Dispatch(g.pipelines.visibility, g.visibilityGroups,
		renderer.Bind(0, 0, g.globalsBuf),
		renderer.Bind(0, 1, g.chunkBuf),
		renderer.Bind(0, 2, g.subChunkBuf),
		renderer.Bind(0, 3, g.flagBuf),
	)
	for i := range g.streams {
		g.list.ResetCounter(g.streams[i].blades)
	}

	// (d) generation
	g.state = StateDispatching
	bindings := []renderer.Binding{
		renderer.Bind(0, 0, g.globalsBuf),
		renderer.Bind(0, 1, g.subChunkBuf),
		renderer.Bind(0, 2, g.flagBuf),
		renderer.Bind(0, 3, g.heightBuf),
	}
	bindings = append(bindings, renderer.BindAppend(0, generateBindingHigh, g.streams[LodHigh].blades)...)
	bindings = append(bindings, renderer.BindAppend(0, generateBindingLow, g.streams[LodLow].blades)...)
	g.list.Dispatch(g.pipelines.generate, g.generateGroups, bindings...)

	// (e) counter copy and one indirect draw per stream
	g.list.SetAttribute(AttributeCameraPosition, frame.CameraPosition)
	g.list.SetAttribute(AttributeWantsPrePass, g.flags.WantsPrePass)
	g.list.SetAttribute(AttributeCastShadows, g.flags.CastShadows)
	for i := range g.streams {
		st := &g.streams[i]
		g.list.SetAttribute(AttributeGrassData, st.blades)
		g.list.SetAttribute(AttributeLOD, st.lod.String())
		st.blades.Counter().CopyInto(g.list, st.args, 4)
		g.list.DrawIndexedIndirect(g.pipelines.draw, st.mesh, st.args,
			renderer.Bind(0, 0, g.globalsBuf),
			renderer.Bind(0, 1, st.blades),
		)
		if g.debugCounts {
			g.list.ReadBufferAsync(st.args, 4, 4, g.countReader(st.lod, g.frame))
		}
	}

	// (f) submit
	g.sink.AddCommandList(g.list, g.settings.Stage, g.settings.StageOrder)
	g.frame++
	g.state = StateDrawn
}

// countReader returns the readback callback storing one stream's instance count.
func (g *grass) countReader(lod Lod, frame uint64) renderer.ReadbackFunc {
	return func(data []byte, err error) {
		if err != nil || len(data) < 4 {
			common.Logger().Debug("grass count readback failed", "label", g.label, "lod", lod, "error", err)
			return
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		if frame < g.counts.Frame {
			return
		}
		if frame > g.counts.Frame {
			g.counts = DebugCounts{Frame: frame}
		}
		if lod == LodHigh {
			g.counts.High = binary.LittleEndian.Uint32(data)
		} else {
			g.counts.Low = binary.LittleEndian.Uint32(data)
		}
		g.haveCounts = true
	}
}

func (g *grass) DestroyBuffers() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateDisposed {
		return
	}
	g.release()
	g.state = StateDisposed
	common.Logger().Debug("grass buffers released", "label", g.label)
}

// release frees every buffer. Nil buffers are skipped.
func (g *grass) release() {
	for _, b := range []*renderer.Buffer{&g.globalsBuf, &g.chunkBuf, &g.subChunkBuf, &g.flagBuf, &g.heightBuf} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
	for i := range g.streams {
		g.streams[i].release()
	}
}

func (g *grass) Disable() {
	g.DestroyBuffers()
}

func (g *grass) Enable() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateDisposed {
		return nil
	}
	return g.allocate()
}

func (g *grass) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *grass) Settings() Settings {
	return g.settings
}

func (g *grass) Flags() Flags {
	return g.flags
}

func (g *grass) Label() string {
	return g.label
}

func (g *grass) Partition() *Partition {
	return g.partition
}

func (g *grass) DebugVisibility(frame FrameContext) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.partition.UpdateVisibility(frame.Frustum.Shrink(g.settings.FrustumBias), g.settings.UsableChunks(), g.settings.Hierarchy)
}

func (g *grass) DebugCounts() (DebugCounts, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts, g.haveCounts
}
