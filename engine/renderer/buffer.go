package renderer

import "errors"

// ErrBufferReleased is returned when a released or foreign buffer is used.
var ErrBufferReleased = errors.New("renderer: buffer released or not owned by this renderer")

// BufferUsage describes how a buffer will be used. Values may be combined.
type BufferUsage uint32

const (
	// BufferUsageStorage allows binding as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << iota

	// BufferUsageUniform allows binding as a uniform buffer.
	BufferUsageUniform

	// BufferUsageIndirect allows the buffer to supply indirect draw arguments.
	BufferUsageIndirect

	// BufferUsageVertex allows binding as a vertex buffer.
	BufferUsageVertex

	// BufferUsageIndex allows binding as an index buffer.
	BufferUsageIndex

	// BufferUsageReadback allows the buffer to be the source of an asynchronous readback.
	BufferUsageReadback
)

// Buffer is a GPU buffer owned by a Renderer.
type Buffer interface {
	// Label returns the debug label the buffer was created with.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Valid reports whether the buffer is still backed by device memory.
	Valid() bool

	// Release frees the device memory. Releasing twice is a no-op.
	Release()
}

// AppendBuffer is a structured buffer written through a GPU-side atomic counter. Shaders
// reserve a slot by incrementing the counter; the counter value is the number of appended
// elements and can only be consumed on the GPU through Counter().CopyInto.
type AppendBuffer interface {
	Buffer

	// Stride returns the element size in bytes.
	Stride() uint64

	// Capacity returns the maximum number of elements the buffer can hold.
	Capacity() uint64

	// Counter returns the opaque handle to the buffer's element counter.
	Counter() Counter
}

// Counter is the opaque GPU-side element counter of an AppendBuffer. Its value is never
// visible to the CPU; the only operation is copying it into another GPU buffer.
type Counter struct {
	stream AppendBuffer
}

// CopyInto records a GPU-side copy of the counter value (a little-endian u32) into dst at
// offset. Commands recorded earlier in the list complete before the copy.
//
// Parameters:
//   - list: the command list to record into
//   - dst: the destination buffer, typically indirect draw arguments
//   - offset: the byte offset in dst, 4-byte aligned
func (c Counter) CopyInto(list *CommandList, dst Buffer, offset uint64) {
	list.record(copyCounterCommand{stream: c.stream, dst: dst, offset: offset})
}

// Binding attaches a buffer to a @group/@binding slot for a dispatch or draw.
type Binding struct {
	Group   int
	Binding int
	Buffer  Buffer

	// counter selects the element counter of an AppendBuffer instead of its data.
	counter bool
}

// Bind returns a binding of buf at group/binding.
//
// Parameters:
//   - group: the @group index
//   - binding: the @binding index
//   - buf: the buffer to bind
//
// Returns:
//   - Binding: the binding
func Bind(group, binding int, buf Buffer) Binding {
	return Binding{Group: group, Binding: binding, Buffer: buf}
}

// BindAppend returns the two bindings of an append stream: the element array at binding
// and its counter at binding+1, matching the @oxy:append shader annotation.
//
// Parameters:
//   - group: the @group index
//   - binding: the @binding index of the element array
//   - stream: the append buffer
//
// Returns:
//   - []Binding: the data binding followed by the counter binding
func BindAppend(group, binding int, stream AppendBuffer) []Binding {
	return []Binding{
		{Group: group, Binding: binding, Buffer: stream},
		{Group: group, Binding: binding + 1, Buffer: stream, counter: true},
	}
}

// IsCounter reports whether the binding refers to an append stream's counter.
func (b Binding) IsCounter() bool {
	return b.counter
}

// buffersValid reports whether every binding refers to a live buffer.
func buffersValid(bindings []Binding) bool {
	for _, b := range bindings {
		if b.Buffer == nil || !b.Buffer.Valid() {
			return false
		}
	}
	return true
}
