package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/shader"
)

// ErrNoHostKernel is returned when the software backend dispatches a compute pipeline
// without a host kernel.
var ErrNoHostKernel = errors.New("renderer: compute pipeline has no host kernel")

type softBuffer struct {
	owner  *softRendererBackend
	label  string
	usage  BufferUsage
	data   []byte
	mu     sync.Mutex
	closed bool
}

func (b *softBuffer) Label() string { return b.label }
func (b *softBuffer) Size() uint64  { return uint64(len(b.data)) }

func (b *softBuffer) Valid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

func (b *softBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

type softAppendBuffer struct {
	softBuffer
	stride   uint64
	capacity uint64
	count    uint32
}

func (b *softAppendBuffer) Stride() uint64   { return b.stride }
func (b *softAppendBuffer) Capacity() uint64 { return b.capacity }
func (b *softAppendBuffer) Counter() Counter { return Counter{stream: b} }

// pendingReadback is a readback whose data was captured during Execute and is waiting for
// the next Poll.
type pendingReadback struct {
	data []byte
	err  error
	fn   ReadbackFunc
}

// softRendererBackend executes command lists on the CPU. Compute dispatches run the
// pipeline's host kernel across a worker pool; draws are recorded with the arguments read
// from the indirect buffer.
type softRendererBackend struct {
	workers int
	pool    worker.DynamicWorkerPool

	stats     FrameStats
	readbacks []pendingReadback
}

var _ RendererBackend = &softRendererBackend{}

func newSoftRendererBackend(workers int) *softRendererBackend {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &softRendererBackend{
		workers: workers,
		pool:    worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
	}
}

func (b *softRendererBackend) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	return &softBuffer{owner: b, label: label, usage: usage, data: make([]byte, size)}, nil
}

func (b *softRendererBackend) CreateAppendBuffer(label string, stride, capacity uint64) (AppendBuffer, error) {
	return &softAppendBuffer{
		softBuffer: softBuffer{owner: b, label: label, usage: BufferUsageStorage, data: make([]byte, stride*capacity)},
		stride:     stride,
		capacity:   capacity,
	}, nil
}

func (b *softRendererBackend) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	dst, err := b.own(buf)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > uint64(len(dst.data)) {
		return fmt.Errorf("renderer: write of %d bytes at %d overflows %q", len(data), offset, dst.label)
	}
	copy(dst.data[offset:], data)
	return nil
}

func (b *softRendererBackend) RegisterComputePipeline(p pipeline.Pipeline) error {
	if p.HostKernel() == nil {
		return ErrNoHostKernel
	}
	return nil
}

func (b *softRendererBackend) RegisterRenderPipeline(p pipeline.Pipeline) error {
	if p.Shader(shader.ShaderTypeVertex) == nil {
		return errors.New("render pipeline has no vertex shader")
	}
	return nil
}

func (b *softRendererBackend) Execute(list *CommandList) error {
	for i, c := range list.commands {
		var err error
		switch cmd := c.(type) {
		case writeBufferCommand:
			err = b.WriteBuffer(cmd.dst, cmd.offset, cmd.data)
		case resetCounterCommand:
			var s *softAppendBuffer
			if s, err = b.ownAppend(cmd.stream); err == nil {
				s.count = 0
			}
		case dispatchCommand:
			err = b.dispatch(cmd)
		case copyCounterCommand:
			err = b.copyCounter(cmd)
		case drawIndexedIndirectCommand:
			err = b.draw(cmd)
		case readbackCommand:
			b.readback(cmd)
		}
		if err != nil {
			return fmt.Errorf("%s (command %d of %q): %w", c.name(), i, list.label, err)
		}
	}
	return nil
}

func (b *softRendererBackend) copyCounter(cmd copyCounterCommand) error {
	s, err := b.ownAppend(cmd.stream)
	if err != nil {
		return err
	}
	dst, err := b.own(cmd.dst)
	if err != nil {
		return err
	}
	if cmd.offset%4 != 0 || cmd.offset+4 > uint64(len(dst.data)) {
		return fmt.Errorf("counter copy to %q at offset %d is out of range", dst.label, cmd.offset)
	}
	binary.LittleEndian.PutUint32(dst.data[cmd.offset:], s.count)
	b.stats.Copies++
	return nil
}

func (b *softRendererBackend) draw(cmd drawIndexedIndirectCommand) error {
	if !buffersValid(cmd.bindings) || cmd.mesh == nil {
		return ErrBufferReleased
	}
	args, err := b.own(cmd.args)
	if err != nil {
		return err
	}
	if len(args.data) < 20 {
		return fmt.Errorf("indirect buffer %q holds %d bytes, need 20", args.label, len(args.data))
	}
	b.stats.Draws = append(b.stats.Draws, DrawRecord{
		Pipeline:      cmd.pipeline.PipelineKey(),
		Mesh:          cmd.mesh.Label(),
		IndexCount:    binary.LittleEndian.Uint32(args.data[0:]),
		InstanceCount: binary.LittleEndian.Uint32(args.data[4:]),
		Resolved:      true,
		Attributes:    cmd.attrs,
	})
	return nil
}

func (b *softRendererBackend) readback(cmd readbackCommand) {
	pr := pendingReadback{fn: cmd.fn}
	src, err := b.own(cmd.src)
	switch {
	case err != nil:
		pr.err = err
	case cmd.offset+cmd.size > uint64(len(src.data)):
		pr.err = fmt.Errorf("renderer: readback of %d bytes at %d overflows %q", cmd.size, cmd.offset, src.label)
	default:
		pr.data = append([]byte(nil), src.data[cmd.offset:cmd.offset+cmd.size]...)
	}
	b.readbacks = append(b.readbacks, pr)
}

// softResources resolves the bindings of one dispatch for a host kernel.
type softResources struct {
	plain   map[[2]int][]byte
	streams map[[2]int]*softAppendBuffer
}

func (r *softResources) Bytes(group, binding int) []byte {
	if data, ok := r.plain[[2]int{group, binding}]; ok {
		return data
	}
	if s, ok := r.streams[[2]int{group, binding}]; ok {
		return s.data
	}
	return nil
}

// localEmitter buffers the appends of one task so they can be merged in a fixed order.
type localEmitter struct {
	records map[[2]int][][]byte
	order   [][2]int
}

func (e *localEmitter) Append(group, binding int, record []byte) {
	key := [2]int{group, binding}
	if e.records == nil {
		e.records = make(map[[2]int][][]byte)
	}
	if _, ok := e.records[key]; !ok {
		e.order = append(e.order, key)
	}
	e.records[key] = append(e.records[key], append([]byte(nil), record...))
}

func (b *softRendererBackend) dispatch(cmd dispatchCommand) error {
	kernel := cmd.pipeline.HostKernel()
	if kernel == nil {
		return ErrNoHostKernel
	}

	res := &softResources{plain: make(map[[2]int][]byte), streams: make(map[[2]int]*softAppendBuffer)}
	for _, bind := range cmd.bindings {
		key := [2]int{bind.Group, bind.Binding}
		if bind.IsCounter() {
			s, err := b.ownAppend(bind.Buffer)
			if err != nil {
				return err
			}
			counter := make([]byte, 4)
			binary.LittleEndian.PutUint32(counter, s.count)
			res.plain[key] = counter
			continue
		}
		if s, ok := bind.Buffer.(*softAppendBuffer); ok {
			if _, err := b.ownAppend(s); err != nil {
				return err
			}
			res.streams[key] = s
			continue
		}
		buf, err := b.own(bind.Buffer)
		if err != nil {
			return err
		}
		res.plain[key] = buf.data
	}

	invoke, err := kernel(res)
	if err != nil {
		return err
	}
	b.stats.Dispatches++

	wgSize := [3]uint32{1, 1, 1}
	if s := cmd.pipeline.Shader(shader.ShaderTypeCompute); s != nil {
		for i, n := range s.WorkgroupSize() {
			wgSize[i] = max(n, 1)
		}
	}
	total := uint64(cmd.groups[0]) * uint64(cmd.groups[1]) * uint64(cmd.groups[2])
	if total == 0 {
		return nil
	}

	tasks := uint64(b.workers * 4)
	if tasks > total {
		tasks = total
	}
	per := (total + tasks - 1) / tasks
	emitters := make([]localEmitter, tasks)

	// Workers are reused across dispatches; the WaitGroup is the per-dispatch barrier.
	var wg sync.WaitGroup
	for t := uint64(0); t < tasks; t++ {
		start, end := t*per, min((t+1)*per, total)
		if start >= end {
			continue
		}
		wg.Add(1)
		em := &emitters[t]
		b.pool.SubmitTask(worker.Task{
			ID: int(t),
			Do: func() (any, error) {
				defer wg.Done()
				for g := start; g < end; g++ {
					gx := uint32(g % uint64(cmd.groups[0]))
					gy := uint32(g / uint64(cmd.groups[0]) % uint64(cmd.groups[1]))
					gz := uint32(g / (uint64(cmd.groups[0]) * uint64(cmd.groups[1])))
					for lz := uint32(0); lz < wgSize[2]; lz++ {
						for ly := uint32(0); ly < wgSize[1]; ly++ {
							for lx := uint32(0); lx < wgSize[0]; lx++ {
								invoke([3]uint32{gx*wgSize[0] + lx, gy*wgSize[1] + ly, gz*wgSize[2] + lz}, em)
							}
						}
					}
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	for i := range emitters {
		em := &emitters[i]
		for _, key := range em.order {
			s, ok := res.streams[key]
			if !ok {
				common.Logger().Warn("append to unbound stream dropped", "group", key[0], "binding", key[1], "pipeline", cmd.pipeline.PipelineKey())
				continue
			}
			for _, rec := range em.records[key] {
				if uint64(s.count) >= s.capacity {
					break
				}
				copy(s.data[uint64(s.count)*s.stride:uint64(s.count+1)*s.stride], rec)
				s.count++
			}
		}
	}
	return nil
}

func (b *softRendererBackend) own(buf Buffer) (*softBuffer, error) {
	switch v := buf.(type) {
	case *softBuffer:
		if v.owner == b && v.Valid() {
			return v, nil
		}
	case *softAppendBuffer:
		if v.owner == b && v.Valid() {
			return &v.softBuffer, nil
		}
	}
	return nil, ErrBufferReleased
}

func (b *softRendererBackend) ownAppend(buf Buffer) (*softAppendBuffer, error) {
	if v, ok := buf.(*softAppendBuffer); ok && v.owner == b && v.Valid() {
		return v, nil
	}
	return nil, ErrBufferReleased
}

func (b *softRendererBackend) Poll() []func() {
	deliveries := make([]func(), 0, len(b.readbacks))
	for _, pr := range b.readbacks {
		if pr.fn == nil {
			continue
		}
		deliveries = append(deliveries, func() { pr.fn(pr.data, pr.err) })
	}
	b.readbacks = nil
	return deliveries
}

func (b *softRendererBackend) BeginFrame() error {
	b.stats = FrameStats{}
	return nil
}

func (b *softRendererBackend) EndFrame()                 {}
func (b *softRendererBackend) Present()                  {}
func (b *softRendererBackend) ConfigureSurface(_, _ int) {}

func (b *softRendererBackend) Stats() FrameStats {
	s := b.stats
	s.Draws = append([]DrawRecord(nil), b.stats.Draws...)
	return s
}

func (b *softRendererBackend) Release() {
	b.readbacks = nil
}
