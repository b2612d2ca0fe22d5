package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuBuffer struct {
	label  string
	size   uint64
	buf    *wgpu.Buffer
	owner  *wgpuRendererBackendImpl
	mu     sync.Mutex
	closed bool
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() uint64  { return b.size }

func (b *wgpuBuffer) Valid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

func (b *wgpuBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.buf.Release()
}

type wgpuAppendBuffer struct {
	wgpuBuffer
	counter  *wgpu.Buffer
	stride   uint64
	capacity uint64
}

func (b *wgpuAppendBuffer) Stride() uint64   { return b.stride }
func (b *wgpuAppendBuffer) Capacity() uint64 { return b.capacity }
func (b *wgpuAppendBuffer) Counter() Counter { return Counter{stream: b} }

func (b *wgpuAppendBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.buf.Release()
	b.counter.Release()
}

// mapRequest is a staging buffer copy waiting to be mapped and delivered.
type mapRequest struct {
	staging *wgpu.Buffer
	size    uint64
	fn      ReadbackFunc

	submitted bool
	requested bool
	done      bool
	status    wgpu.BufferMapAsyncStatus
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat    *wgpu.TextureFormat
	depthTextureView *wgpu.TextureView
	presentMode      wgpu.PresentMode

	// bind group layouts created at registration, by pipeline key
	layouts map[string][]*wgpu.BindGroupLayout

	// Frame state. Render passes are opened lazily by draws and closed by any compute or
	// copy command so that command list order is preserved inside one encoder.
	frameEncoder *wgpu.CommandEncoder
	framePass    *wgpu.RenderPassEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
	frameCleared bool

	// objects released once the encoder that references them has been submitted
	garbage []*wgpu.BindGroup

	maps  []*mapRequest
	stats FrameStats
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, mode PresentMode) (*wgpuRendererBackendImpl, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
		layouts:     make(map[string][]*wgpu.BindGroupLayout),
	}
	if mode == PresentModeVSync {
		w.presentMode = wgpu.PresentModeFifo
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Grass Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w, nil
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = &capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	depthTexture, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Depth Texture",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		common.Logger().Error("create depth texture", "err", err)
		return
	}
	if b.depthTextureView != nil {
		b.depthTextureView.Release()
	}
	b.depthTextureView, err = depthTexture.CreateView(nil)
	if err != nil {
		common.Logger().Error("create depth view", "err", err)
	}
}

func toWGPUUsage(usage BufferUsage) wgpu.BufferUsage {
	u := wgpu.BufferUsageCopyDst
	if usage&BufferUsageStorage != 0 {
		u |= wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc
	}
	if usage&BufferUsageUniform != 0 {
		u |= wgpu.BufferUsageUniform
	}
	if usage&BufferUsageIndirect != 0 {
		u |= wgpu.BufferUsageIndirect | wgpu.BufferUsageStorage
	}
	if usage&BufferUsageVertex != 0 {
		u |= wgpu.BufferUsageVertex
	}
	if usage&BufferUsageIndex != 0 {
		u |= wgpu.BufferUsageIndex
	}
	if usage&BufferUsageReadback != 0 {
		u |= wgpu.BufferUsageCopySrc
	}
	return u
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: toWGPUUsage(usage),
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{label: label, size: size, buf: buf, owner: b}, nil
}

func (b *wgpuRendererBackendImpl) CreateAppendBuffer(label string, stride, capacity uint64) (AppendBuffer, error) {
	data, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  stride * capacity,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	counter, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + " Counter",
		Size:  4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		data.Release()
		return nil, err
	}
	return &wgpuAppendBuffer{
		wgpuBuffer: wgpuBuffer{label: label, size: stride * capacity, buf: data, owner: b},
		counter:    counter,
		stride:     stride,
		capacity:   capacity,
	}, nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	dst, err := b.own(buf)
	if err != nil {
		return err
	}
	b.queue.WriteBuffer(dst, offset, data)
	return nil
}

// own resolves buf to its device buffer. The counter of an append stream is never returned.
func (b *wgpuRendererBackendImpl) own(buf Buffer) (*wgpu.Buffer, error) {
	switch v := buf.(type) {
	case *wgpuBuffer:
		if v.owner == b && v.Valid() {
			return v.buf, nil
		}
	case *wgpuAppendBuffer:
		if v.owner == b && v.Valid() {
			return v.buf, nil
		}
	}
	return nil, ErrBufferReleased
}

func (b *wgpuRendererBackendImpl) ownCounter(buf Buffer) (*wgpu.Buffer, error) {
	if v, ok := buf.(*wgpuAppendBuffer); ok && v.owner == b && v.Valid() {
		return v.counter, nil
	}
	return nil, ErrBufferReleased
}

func (b *wgpuRendererBackendImpl) createLayouts(key string, descriptors map[int]wgpu.BindGroupLayoutDescriptor) ([]*wgpu.BindGroupLayout, error) {
	maxGroup := -1
	for g := range descriptors {
		if g > maxGroup {
			maxGroup = g
		}
	}
	layouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := 0; g <= maxGroup; g++ {
		desc, ok := descriptors[g]
		if !ok {
			desc = wgpu.BindGroupLayoutDescriptor{Label: fmt.Sprintf("%s empty group %d", key, g)}
		}
		layout, err := b.device.CreateBindGroupLayout(&desc)
		if err != nil {
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		layouts[g] = layout
	}
	return layouts, nil
}

func (b *wgpuRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	if p.Shader(shader.ShaderTypeVertex) == nil || p.Shader(shader.ShaderTypeFragment) == nil {
		return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
	}
	if b.surfaceFormat == nil {
		return errors.New("surface must be configured before render pipelines are registered")
	}

	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)

	vs, err := b.device.CreateShaderModule(vertexShader.Module())
	if err != nil {
		return err
	}
	fs, err := b.device.CreateShaderModule(fragmentShader.Module())
	if err != nil {
		return err
	}

	layouts, err := b.createLayouts(p.PipelineKey(), mergeBindGroupLayouts(vertexShader.BindGroupLayoutDescriptors(), fragmentShader.BindGroupLayoutDescriptors()))
	if err != nil {
		return err
	}
	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return err
	}

	vertexLayouts := make([]wgpu.VertexBufferLayout, 0, len(vertexShader.VertexLayouts()))
	for i := 0; i < len(vertexShader.VertexLayouts()); i++ {
		vertexLayouts = append(vertexLayouts, vertexShader.VertexLayouts()[i]...)
	}

	depthCompare := wgpu.CompareFunctionLess
	if !p.DepthTestEnabled() {
		depthCompare = wgpu.CompareFunctionAlways
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
			Buffers:    vertexLayouts,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets: []wgpu.ColorTargetState{
				{
					Format:    *b.surfaceFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.Topology(),
			FrontFace: p.FrontFace(),
			CullMode:  p.CullMode(),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: p.DepthWriteEnabled(),
			DepthCompare:      depthCompare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		return err
	}

	p.SetRenderPipeline(created)
	b.layouts[p.PipelineKey()] = layouts
	return nil
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	computeShader := p.Shader(shader.ShaderTypeCompute)
	if computeShader == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}

	s, err := b.device.CreateShaderModule(computeShader.Module())
	if err != nil {
		return err
	}

	layouts, err := b.createLayouts(p.PipelineKey(), computeShader.BindGroupLayoutDescriptors())
	if err != nil {
		return err
	}
	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return err
	}

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		return err
	}

	p.SetComputePipeline(created)
	b.layouts[p.PipelineKey()] = layouts
	return nil
}

// bindGroups builds one bind group per group index referenced by bindings.
func (b *wgpuRendererBackendImpl) bindGroups(p pipeline.Pipeline, bindings []Binding) (map[int]*wgpu.BindGroup, error) {
	layouts := b.layouts[p.PipelineKey()]
	entries := make(map[int][]wgpu.BindGroupEntry)
	for _, bind := range bindings {
		var (
			buf *wgpu.Buffer
			err error
		)
		if bind.IsCounter() {
			buf, err = b.ownCounter(bind.Buffer)
		} else {
			buf, err = b.own(bind.Buffer)
		}
		if err != nil {
			return nil, err
		}
		entries[bind.Group] = append(entries[bind.Group], wgpu.BindGroupEntry{
			Binding: uint32(bind.Binding),
			Buffer:  buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}

	groups := make(map[int]*wgpu.BindGroup, len(entries))
	for g, e := range entries {
		if g >= len(layouts) {
			return nil, fmt.Errorf("pipeline %q has no bind group %d", p.PipelineKey(), g)
		}
		sort.Slice(e, func(i, j int) bool { return e[i].Binding < e[j].Binding })
		bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s group %d", p.PipelineKey(), g),
			Layout:  layouts[g],
			Entries: e,
		})
		if err != nil {
			return nil, err
		}
		groups[g] = bg
		b.garbage = append(b.garbage, bg)
	}
	return groups, nil
}

func (b *wgpuRendererBackendImpl) endPass() {
	if b.framePass != nil {
		b.framePass.End()
		b.framePass = nil
	}
}

func (b *wgpuRendererBackendImpl) beginPass() {
	if b.framePass != nil {
		return
	}
	loadOp := wgpu.LoadOpLoad
	if !b.frameCleared {
		loadOp = wgpu.LoadOpClear
		b.frameCleared = true
	}
	b.framePass = b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       b.frameView,
				LoadOp:     loadOp,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0.45, G: 0.62, B: 0.85, A: 1.0},
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            b.depthTextureView,
			DepthLoadOp:     loadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
}

func (b *wgpuRendererBackendImpl) Execute(list *CommandList) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	encoder := b.frameEncoder
	oneShot := encoder == nil
	if oneShot {
		var err error
		if encoder, err = b.device.CreateCommandEncoder(nil); err != nil {
			return err
		}
		b.frameEncoder = encoder
	}

	err := b.encode(list, oneShot)
	if oneShot {
		b.frameEncoder = nil
		if err != nil {
			encoder.Release()
			return err
		}
		return b.submit(encoder)
	}
	return err
}

func (b *wgpuRendererBackendImpl) encode(list *CommandList, oneShot bool) error {
	enc := b.frameEncoder
	for i, c := range list.commands {
		var err error
		switch cmd := c.(type) {
		case writeBufferCommand:
			var dst *wgpu.Buffer
			if dst, err = b.own(cmd.dst); err == nil {
				b.queue.WriteBuffer(dst, cmd.offset, cmd.data)
			}
		case resetCounterCommand:
			var counter *wgpu.Buffer
			if counter, err = b.ownCounter(cmd.stream); err == nil {
				b.endPass()
				enc.ClearBuffer(counter, 0, 4)
			}
		case dispatchCommand:
			var groups map[int]*wgpu.BindGroup
			if groups, err = b.bindGroups(cmd.pipeline, cmd.bindings); err == nil {
				b.endPass()
				pass := enc.BeginComputePass(nil)
				pass.SetPipeline(cmd.pipeline.Pipeline().(*wgpu.ComputePipeline))
				for g, bg := range groups {
					pass.SetBindGroup(uint32(g), bg, nil)
				}
				pass.DispatchWorkgroups(cmd.groups[0], cmd.groups[1], cmd.groups[2])
				pass.End()
				b.stats.Dispatches++
			}
		case copyCounterCommand:
			var counter, dst *wgpu.Buffer
			if counter, err = b.ownCounter(cmd.stream); err == nil {
				if dst, err = b.own(cmd.dst); err == nil {
					b.endPass()
					enc.CopyBufferToBuffer(counter, 0, dst, cmd.offset, 4)
					b.stats.Copies++
				}
			}
		case drawIndexedIndirectCommand:
			err = b.draw(cmd, oneShot)
		case readbackCommand:
			var src *wgpu.Buffer
			if src, err = b.own(cmd.src); err == nil {
				err = b.readback(src, cmd)
			}
		}
		if err != nil {
			return fmt.Errorf("%s (command %d of %q): %w", c.name(), i, list.label, err)
		}
	}
	return nil
}

func (b *wgpuRendererBackendImpl) draw(cmd drawIndexedIndirectCommand, oneShot bool) error {
	if oneShot || b.frameView == nil {
		common.Logger().Warn("indirect draw outside of a frame skipped", "pipeline", cmd.pipeline.PipelineKey())
		return nil
	}
	args, err := b.own(cmd.args)
	if err != nil {
		return err
	}
	vb, err := b.own(cmd.mesh.VertexBuffer())
	if err != nil {
		return err
	}
	ib, err := b.own(cmd.mesh.IndexBuffer())
	if err != nil {
		return err
	}
	groups, err := b.bindGroups(cmd.pipeline, cmd.bindings)
	if err != nil {
		return err
	}

	b.beginPass()
	b.framePass.SetPipeline(cmd.pipeline.Pipeline().(*wgpu.RenderPipeline))
	for g, bg := range groups {
		b.framePass.SetBindGroup(uint32(g), bg, nil)
	}
	b.framePass.SetVertexBuffer(0, vb, 0, wgpu.WholeSize)
	b.framePass.SetIndexBuffer(ib, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	b.framePass.DrawIndexedIndirect(args, 0)

	b.stats.Draws = append(b.stats.Draws, DrawRecord{
		Pipeline:   cmd.pipeline.PipelineKey(),
		Mesh:       cmd.mesh.Label(),
		IndexCount: cmd.mesh.IndexCount(),
		Attributes: cmd.attrs,
	})
	return nil
}

func (b *wgpuRendererBackendImpl) readback(src *wgpu.Buffer, cmd readbackCommand) error {
	size := alignSize(cmd.size)
	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Readback Staging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.endPass()
	b.frameEncoder.CopyBufferToBuffer(src, cmd.offset, staging, 0, size)
	b.maps = append(b.maps, &mapRequest{staging: staging, size: cmd.size, fn: cmd.fn})
	return nil
}

// submit finishes encoder, submits it and requests mapping of the readbacks it carries.
func (b *wgpuRendererBackendImpl) submit(encoder *wgpu.CommandEncoder) error {
	defer encoder.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		b.dropGarbage()
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.dropGarbage()

	for _, m := range b.maps {
		m.submitted = true
	}
	return nil
}

func (b *wgpuRendererBackendImpl) dropGarbage() {
	for _, bg := range b.garbage {
		bg.Release()
	}
	b.garbage = b.garbage[:0]
}

// Poll requests mapping of submitted readbacks and returns the ones whose mapping finished.
// A readback is requested on the Poll after its submission and delivered on a later one.
func (b *wgpuRendererBackendImpl) Poll() []func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := b.maps[:0]
	var deliveries []func()
	for _, m := range b.maps {
		switch {
		case !m.submitted:
			pending = append(pending, m)
		case !m.requested:
			m.requested = true
			req := m
			req.staging.MapAsync(wgpu.MapModeRead, 0, alignSize(req.size), func(status wgpu.BufferMapAsyncStatus) {
				req.status = status
				req.done = true
			})
			pending = append(pending, m)
		case m.done:
			deliveries = append(deliveries, b.deliver(m))
		default:
			pending = append(pending, m)
		}
	}
	b.maps = pending
	b.device.Poll(false, nil)
	return deliveries
}

// deliver copies the mapped range out of the staging buffer, releases it and returns the
// callback invocation.
func (b *wgpuRendererBackendImpl) deliver(m *mapRequest) func() {
	var (
		data []byte
		err  error
	)
	if m.status == wgpu.BufferMapAsyncStatusSuccess {
		data = append([]byte(nil), m.staging.GetMappedRange(0, uint(m.size))...)
		m.staging.Unmap()
	} else {
		err = fmt.Errorf("renderer: readback map failed with status %d", m.status)
	}
	m.staging.Release()
	return func() {
		if m.fn != nil {
			m.fn(data, err)
		}
	}
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats = FrameStats{}

	// Defensive: if a previous frame's surface texture is still held, avoid
	// attempting to acquire another one. This prevents wgpu-native validation
	// errors like "Surface image is already acquired" when frames overlap.
	if b.frameSurface != nil {
		return fmt.Errorf("previous frame surface not yet presented")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	b.frameEncoder = encoder
	b.frameSurface = surfaceTexture
	b.frameView = view
	b.frameCleared = false
	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return
	}
	// A frame without draws still clears the target.
	if !b.frameCleared {
		b.beginPass()
	}
	b.endPass()

	encoder := b.frameEncoder
	b.frameEncoder = nil
	if err := b.submit(encoder); err != nil {
		common.Logger().Error("frame submit failed", "err", err)
	}
}

func (b *wgpuRendererBackendImpl) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface == nil {
		return
	}
	b.surface.Present()

	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	b.frameSurface.Release()
	b.frameSurface = nil
}

func (b *wgpuRendererBackendImpl) Stats() FrameStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Draws = append([]DrawRecord(nil), b.stats.Draws...)
	return s
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range b.maps {
		m.staging.Release()
	}
	b.maps = nil
	for key, layouts := range b.layouts {
		for _, l := range layouts {
			l.Release()
		}
		delete(b.layouts, key)
	}
	if b.depthTextureView != nil {
		b.depthTextureView.Release()
		b.depthTextureView = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// mergeBindGroupLayouts combines the bind group layout descriptors of a vertex and fragment
// shader. Groups present in both shaders have their entries merged by binding number, with
// the visibility flags of shared bindings OR'd together.
//
// Parameters:
//   - vertexLayouts: bind group layout descriptors from the vertex shader
//   - fragmentLayouts: bind group layout descriptors from the fragment shader
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the merged descriptors keyed by group index
func mergeBindGroupLayouts(
	vertexLayouts, fragmentLayouts map[int]wgpu.BindGroupLayoutDescriptor,
) map[int]wgpu.BindGroupLayoutDescriptor {
	merged := make(map[int]wgpu.BindGroupLayoutDescriptor)

	groupIndices := make(map[int]bool)
	for g := range vertexLayouts {
		groupIndices[g] = true
	}
	for g := range fragmentLayouts {
		groupIndices[g] = true
	}

	for g := range groupIndices {
		vDesc, hasV := vertexLayouts[g]
		fDesc, hasF := fragmentLayouts[g]

		switch {
		case hasV && !hasF:
			merged[g] = vDesc
		case hasF && !hasV:
			merged[g] = fDesc
		default:
			entryMap := make(map[uint32]wgpu.BindGroupLayoutEntry)
			for _, e := range vDesc.Entries {
				entryMap[e.Binding] = e
			}
			for _, e := range fDesc.Entries {
				if existing, ok := entryMap[e.Binding]; ok {
					existing.Visibility |= e.Visibility
					entryMap[e.Binding] = existing
				} else {
					entryMap[e.Binding] = e
				}
			}

			entries := make([]wgpu.BindGroupLayoutEntry, 0, len(entryMap))
			for _, e := range entryMap {
				entries = append(entries, e)
			}
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].Binding < entries[j].Binding
			})

			merged[g] = wgpu.BindGroupLayoutDescriptor{
				Label:   vDesc.Label,
				Entries: entries,
			}
		}
	}

	return merged
}
