package renderer

import "github.com/Carmen-Shannon/oxy-grass/engine/renderer/pipeline"

// RendererBackendType identifies the backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU backend. It needs a window surface.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeSoftware selects the CPU backend that runs host kernels on a worker pool.
	// It produces the same buffer contents as the WebGPU backend and records draws instead
	// of rasterizing them.
	BackendTypeSoftware
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeSoftware:
		return "software"
	default:
		return "unknown"
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	PresentModeUncapped
)

// DrawRecord describes one executed indirect draw.
type DrawRecord struct {
	// Pipeline is the key of the render pipeline.
	Pipeline string

	// Mesh is the mesh label.
	Mesh string

	// IndexCount and InstanceCount are the arguments the draw consumed. They are only
	// known when Resolved is true; the WebGPU backend never reads them back.
	IndexCount    uint32
	InstanceCount uint32
	Resolved      bool

	// Attributes are the command list attributes in effect for the draw.
	Attributes map[string]any
}

// FrameStats summarizes the work executed since the last BeginFrame.
type FrameStats struct {
	Dispatches int
	Copies     int
	Draws      []DrawRecord
}

// RendererBackend is the interface every backend implements. The Renderer serializes
// calls into it and owns the pipeline cache.
type RendererBackend interface {
	CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error)
	CreateAppendBuffer(label string, stride, capacity uint64) (AppendBuffer, error)
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	RegisterComputePipeline(p pipeline.Pipeline) error
	RegisterRenderPipeline(p pipeline.Pipeline) error
	Execute(list *CommandList) error

	// Poll returns the deliveries of finished readbacks. The Renderer runs them after
	// releasing its lock so callbacks may use the Renderer.
	Poll() []func()

	BeginFrame() error
	EndFrame()
	Present()
	ConfigureSurface(width, height int)
	Stats() FrameStats
	Release()
}
