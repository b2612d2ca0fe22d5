package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNoSurface is returned when the WebGPU backend is requested without a surface descriptor.
var ErrNoSurface = errors.New("renderer: wgpu backend requires a surface descriptor")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	surfaceDescriptor    *wgpu.SurfaceDescriptor
	forceFallbackAdapter bool
	presentMode          PresentMode
	workers              int
}

// Renderer defines the interface for the rendering system.
//
// It is the small GPU abstraction the grass pipeline is written against: plain and append
// buffers, compute and render pipelines, ordered command lists with counter copies and
// indirect draws, and asynchronous readback. The Renderer owns a cache of registered
// pipelines and forwards everything else to the selected backend.
type Renderer interface {
	// Backend returns the type of the active backend.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	Backend() RendererBackendType

	// CreateBuffer allocates a zero-filled buffer.
	//
	// Parameters:
	//   - label: a debug label
	//   - size: the size in bytes, rounded up to a multiple of 4
	//   - usage: how the buffer will be used
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: an error if size is zero or allocation fails
	CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error)

	// CreateAppendBuffer allocates an append stream of capacity elements of stride bytes and
	// its element counter, initialized to zero.
	//
	// Parameters:
	//   - label: a debug label
	//   - stride: the element size in bytes, a multiple of 4
	//   - capacity: the maximum number of elements
	//
	// Returns:
	//   - AppendBuffer: the new stream
	//   - error: an error if stride or capacity is zero or allocation fails
	CreateAppendBuffer(label string, stride, capacity uint64) (AppendBuffer, error)

	// WriteBuffer uploads data into buf immediately, outside of any command list.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the destination byte offset
	//   - data: the bytes to upload
	//
	// Returns:
	//   - error: an error if the buffer is invalid or the write is out of range
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// Pipeline retrieves the cached Pipeline associated with the given key, or nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// RegisterPipelines creates the backend objects for one or more pipelines and caches them
	// by PipelineKey. Pipelines whose keys are already registered are skipped.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// Execute runs the commands of list in order. Draw commands are issued into the
	// current frame; compute, copy and readback commands run before any draw recorded
	// after them.
	//
	// Parameters:
	//   - list: the command list
	//
	// Returns:
	//   - error: an error if a command references an unregistered pipeline or a released buffer
	Execute(list *CommandList) error

	// Poll delivers the callbacks of readbacks that have completed.
	Poll()

	// BeginFrame starts a new frame and resets the frame statistics.
	//
	// Returns:
	//   - error: an error if the frame cannot be started
	BeginFrame() error

	// EndFrame submits the frame's work.
	EndFrame()

	// Present shows the finished frame on the surface, if any.
	Present()

	// Resize reconfigures the surface for a new size.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// Stats returns a summary of the work executed since the last BeginFrame.
	//
	// Returns:
	//   - FrameStats: the frame statistics
	Stats() FrameStats

	// Release frees every registered pipeline and the backend device.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer with the requested backend.
//
// Parameters:
//   - backendType: the backend to create
//   - opts: a variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: the renderer
//   - error: an error if the backend cannot be created
func NewRenderer(backendType RendererBackendType, opts ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
		presentMode:   PresentModeUncapped,
	}
	for _, opt := range opts {
		opt(r)
	}

	switch backendType {
	case BackendTypeSoftware:
		r.backend = newSoftRendererBackend(r.workers)
	case BackendTypeWGPU:
		if r.surfaceDescriptor == nil {
			return nil, ErrNoSurface
		}
		b, err := newWGPURendererBackend(r.surfaceDescriptor, r.forceFallbackAdapter, r.presentMode)
		if err != nil {
			return nil, err
		}
		r.backend = b
	default:
		return nil, fmt.Errorf("renderer: unknown backend type %d", backendType)
	}

	common.Logger().Debug("renderer created", "backend", backendType.String())
	return r, nil
}

func (r *renderer) Backend() RendererBackendType {
	return r.backendType
}

func (r *renderer) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("renderer: buffer %q has zero size", label)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.CreateBuffer(label, alignSize(size), usage)
}

func (r *renderer) CreateAppendBuffer(label string, stride, capacity uint64) (AppendBuffer, error) {
	if stride == 0 || capacity == 0 || stride%4 != 0 {
		return nil, fmt.Errorf("renderer: append buffer %q needs a non-zero 4-byte aligned stride and capacity (stride=%d capacity=%d)", label, stride, capacity)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.CreateAppendBuffer(label, stride, capacity)
}

func (r *renderer) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	if buf == nil || !buf.Valid() {
		return ErrBufferReleased
	}
	if offset+uint64(len(data)) > buf.Size() {
		return fmt.Errorf("renderer: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, buf.Label(), buf.Size())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.WriteBuffer(buf, offset, data)
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range pipelines {
		if p == nil {
			continue
		}
		if _, exists := r.pipelineCache[p.PipelineKey()]; exists {
			continue
		}

		var err error
		switch p.Type() {
		case pipeline.PipelineTypeCompute:
			err = r.backend.RegisterComputePipeline(p)
		case pipeline.PipelineTypeRender:
			err = r.backend.RegisterRenderPipeline(p)
		default:
			err = fmt.Errorf("unknown pipeline type %d", p.Type())
		}
		if err != nil {
			return fmt.Errorf("renderer: register pipeline %q: %w", p.PipelineKey(), err)
		}
		r.pipelineCache[p.PipelineKey()] = p
		common.Logger().Debug("pipeline registered", "key", p.PipelineKey())
	}
	return nil
}

func (r *renderer) Execute(list *CommandList) error {
	if list == nil || list.Len() == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range list.commands {
		var p pipeline.Pipeline
		switch cmd := c.(type) {
		case dispatchCommand:
			p = cmd.pipeline
		case drawIndexedIndirectCommand:
			p = cmd.pipeline
		default:
			continue
		}
		if p == nil || r.pipelineCache[p.PipelineKey()] != p {
			return fmt.Errorf("renderer: %s uses an unregistered pipeline", c.name())
		}
	}
	return r.backend.Execute(list)
}

func (r *renderer) Poll() {
	r.mu.Lock()
	deliveries := r.backend.Poll()
	r.mu.Unlock()
	for _, deliver := range deliveries {
		deliver()
	}
}

func (r *renderer) BeginFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.BeginFrame()
}

func (r *renderer) EndFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.EndFrame()
}

func (r *renderer) Present() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.Present()
}

func (r *renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.ConfigureSurface(width, height)
}

func (r *renderer) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.Stats()
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, p := range r.pipelineCache {
		p.Release()
		delete(r.pipelineCache, key)
	}
	r.backend.Release()
}

// alignSize rounds size up to a multiple of 4, as WebGPU requires for buffer sizes.
func alignSize(size uint64) uint64 {
	return (size + 3) &^ 3
}
