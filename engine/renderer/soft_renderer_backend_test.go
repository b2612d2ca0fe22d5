package renderer

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/shader"
)

const filterSource = `
//@oxy:include item
//@oxy:group 0 0 storage_read values array<u32>
//@oxy:append 0 1 kept item

@compute @workgroup_size(8)
fn cs_filter(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= arrayLength(&values)) {
        return;
    }
    if (values[id.x] % 2u == 0u) {
        let slot = atomicAdd(&kept_count, 1u);
        if (slot < arrayLength(&kept)) {
            kept[slot].value = values[id.x];
        } else {
            atomicSub(&kept_count, 1u);
        }
    }
}
`

const drawSource = `
struct VertexInput {
    @location(0) position: vec3<f32>,
}
@vertex
fn vs_main(in: VertexInput) -> @builtin(position) vec4<f32> {
    return vec4<f32>(in.position, 1.0);
}
`

// filterKernel keeps the even values of binding 0.
func filterKernel(res pipeline.HostResources) (pipeline.HostInvocation, error) {
	values := res.Bytes(0, 0)
	if values == nil {
		return nil, errors.New("values not bound")
	}
	n := uint32(len(values) / 4)
	return func(id [3]uint32, out pipeline.HostEmitter) {
		if id[0] >= n {
			return
		}
		v := binary.LittleEndian.Uint32(values[id[0]*4:])
		if v%2 == 0 {
			out.Append(0, 1, values[id[0]*4:id[0]*4+4])
		}
	}, nil
}

type testMesh struct {
	vb, ib Buffer
}

func (m testMesh) Label() string        { return "test_mesh" }
func (m testMesh) VertexBuffer() Buffer { return m.vb }
func (m testMesh) IndexBuffer() Buffer  { return m.ib }
func (m testMesh) IndexCount() uint32   { return 6 }

func newTestSoftRenderer(t *testing.T) (Renderer, pipeline.Pipeline, pipeline.Pipeline) {
	t.Helper()
	r, err := NewRenderer(BackendTypeSoftware, WithWorkers(3))
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	pp := shader.NewPreProcessor(shader.WithStruct("item", "struct Item {\n    value: u32,\n}", "Item"))
	cs, err := shader.NewShader("filter", shader.ShaderTypeCompute, filterSource, shader.WithPreProcessor(pp))
	if err != nil {
		t.Fatalf("NewShader(compute) error = %v", err)
	}
	vs, err := shader.NewShader("draw", shader.ShaderTypeVertex, drawSource)
	if err != nil {
		t.Fatalf("NewShader(vertex) error = %v", err)
	}

	filter := pipeline.NewPipeline("filter", pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(cs),
		pipeline.WithHostKernel(filterKernel),
	)
	draw := pipeline.NewPipeline("draw", pipeline.PipelineTypeRender, pipeline.WithVertexShader(vs))
	if err := r.RegisterPipelines(filter, draw); err != nil {
		t.Fatalf("RegisterPipelines() error = %v", err)
	}
	return r, filter, draw
}

func u32Bytes(values ...uint32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func TestSoftDispatchAppendAndIndirectDraw(t *testing.T) {
	r, filter, draw := newTestSoftRenderer(t)
	defer r.Release()

	const n = 100
	values := make([]uint32, n)
	for i := range values {
		values[i] = uint32(i)
	}

	input, _ := r.CreateBuffer("values", 4*n, BufferUsageStorage)
	kept, _ := r.CreateAppendBuffer("kept", 4, n)
	args, _ := r.CreateBuffer("args", 20, BufferUsageIndirect)
	vb, _ := r.CreateBuffer("vb", 12, BufferUsageVertex)
	ib, _ := r.CreateBuffer("ib", 24, BufferUsageIndex)
	if err := r.WriteBuffer(input, 0, u32Bytes(values...)); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}

	if err := r.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	list := NewCommandList("filter")
	list.WriteBuffer(args, 0, u32Bytes(6, 0, 0, 0, 0))
	list.ResetCounter(kept)
	list.Dispatch(filter, [3]uint32{(n + 7) / 8, 1, 1}, append([]Binding{Bind(0, 0, input)}, BindAppend(0, 1, kept)...)...)
	kept.Counter().CopyInto(list, args, 4)
	list.SetAttribute("lod", "high")
	list.DrawIndexedIndirect(draw, testMesh{vb: vb, ib: ib}, args, BindAppend(0, 1, kept)[0])
	if err := r.Execute(list); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	stats := r.Stats()
	if stats.Dispatches != 1 || stats.Copies != 1 || len(stats.Draws) != 1 {
		t.Fatalf("Stats() = %+v", stats)
	}
	d := stats.Draws[0]
	if !d.Resolved || d.IndexCount != 6 || d.InstanceCount != n/2 {
		t.Errorf("draw = %+v, want 6 indices and %d instances", d, n/2)
	}
	if d.Attributes["lod"] != "high" {
		t.Errorf("draw attributes = %v", d.Attributes)
	}
}

func TestSoftDispatchDeterministicOrder(t *testing.T) {
	r, filter, _ := newTestSoftRenderer(t)
	defer r.Release()

	values := make([]uint32, 257)
	for i := range values {
		values[i] = uint32(i * 2)
	}
	input, _ := r.CreateBuffer("values", uint64(4*len(values)), BufferUsageStorage)
	kept, _ := r.CreateAppendBuffer("kept", 4, uint64(len(values)))
	readback, _ := r.CreateBuffer("readback", 4, BufferUsageReadback)
	_ = r.WriteBuffer(input, 0, u32Bytes(values...))

	var got []byte
	list := NewCommandList("order")
	list.ResetCounter(kept)
	list.Dispatch(filter, [3]uint32{33, 1, 1}, append([]Binding{Bind(0, 0, input)}, BindAppend(0, 1, kept)...)...)
	kept.Counter().CopyInto(list, readback, 0)
	list.ReadBufferAsync(kept, 0, kept.Size(), func(data []byte, err error) {
		if err != nil {
			t.Errorf("readback error = %v", err)
		}
		got = data
	})
	if err := r.Execute(list); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != nil {
		t.Fatal("readback delivered during Execute")
	}
	r.Poll()
	if len(got) != 4*len(values) {
		t.Fatalf("readback length = %d", len(got))
	}
	for i := range values {
		if v := binary.LittleEndian.Uint32(got[i*4:]); v != values[i] {
			t.Fatalf("kept[%d] = %d, want %d", i, v, values[i])
		}
	}
}

func TestSoftAppendRespectsCapacity(t *testing.T) {
	r, filter, _ := newTestSoftRenderer(t)
	defer r.Release()

	values := make([]uint32, 64)
	input, _ := r.CreateBuffer("values", 4*64, BufferUsageStorage)
	kept, _ := r.CreateAppendBuffer("kept", 4, 10)
	count, _ := r.CreateBuffer("count", 4, BufferUsageReadback)
	_ = r.WriteBuffer(input, 0, u32Bytes(values...))

	var n uint32
	list := NewCommandList("capacity")
	list.ResetCounter(kept)
	list.Dispatch(filter, [3]uint32{8, 1, 1}, append([]Binding{Bind(0, 0, input)}, BindAppend(0, 1, kept)...)...)
	kept.Counter().CopyInto(list, count, 0)
	list.ReadBufferAsync(count, 0, 4, func(data []byte, _ error) { n = binary.LittleEndian.Uint32(data) })
	if err := r.Execute(list); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	r.Poll()
	if n != 10 {
		t.Errorf("counter = %d, want capacity 10", n)
	}
}

func TestSoftReleasedBuffers(t *testing.T) {
	r, filter, _ := newTestSoftRenderer(t)
	defer r.Release()

	input, _ := r.CreateBuffer("values", 16, BufferUsageStorage)
	kept, _ := r.CreateAppendBuffer("kept", 4, 4)
	kept.Release()
	kept.Release()
	if kept.Valid() {
		t.Fatal("Valid() = true after Release")
	}

	list := NewCommandList("released")
	list.Dispatch(filter, [3]uint32{1, 1, 1}, append([]Binding{Bind(0, 0, input)}, BindAppend(0, 1, kept)...)...)
	if err := r.Execute(list); !errors.Is(err, ErrBufferReleased) {
		t.Errorf("Execute() error = %v, want ErrBufferReleased", err)
	}
	if err := r.WriteBuffer(kept, 0, []byte{1, 2, 3, 4}); !errors.Is(err, ErrBufferReleased) {
		t.Errorf("WriteBuffer() error = %v, want ErrBufferReleased", err)
	}
}

func TestExecuteRejectsUnregisteredPipeline(t *testing.T) {
	r, _, _ := newTestSoftRenderer(t)
	defer r.Release()

	other := pipeline.NewPipeline("other", pipeline.PipelineTypeCompute, pipeline.WithHostKernel(filterKernel))
	list := NewCommandList("unregistered")
	list.Dispatch(other, [3]uint32{1, 1, 1})
	if err := r.Execute(list); err == nil {
		t.Error("Execute() error = nil, want unregistered pipeline error")
	}
}

func TestCreateBufferValidation(t *testing.T) {
	r, _, _ := newTestSoftRenderer(t)
	defer r.Release()

	tests := []struct {
		name    string
		create  func() error
		wantErr bool
	}{
		{"zero size", func() error { _, err := r.CreateBuffer("z", 0, BufferUsageStorage); return err }, true},
		{"unaligned stride", func() error { _, err := r.CreateAppendBuffer("s", 6, 4); return err }, true},
		{"zero capacity", func() error { _, err := r.CreateAppendBuffer("c", 4, 0); return err }, true},
		{"rounded size", func() error {
			b, err := r.CreateBuffer("r", 5, BufferUsageStorage)
			if err == nil && b.Size() != 8 {
				return errors.New("size not rounded to 8")
			}
			return err
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.create()
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
