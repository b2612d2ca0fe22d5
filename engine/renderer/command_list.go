package renderer

import (
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/pipeline"
)

// Mesh is the view of a mesh the renderer needs to issue indexed draws.
type Mesh interface {
	// Label returns a debug name for the mesh.
	Label() string

	// VertexBuffer returns the uploaded vertex buffer.
	VertexBuffer() Buffer

	// IndexBuffer returns the uploaded uint32 index buffer.
	IndexBuffer() Buffer

	// IndexCount returns the number of indices in the index buffer.
	IndexCount() uint32
}

// ReadbackFunc receives the bytes of an asynchronous readback, or an error.
type ReadbackFunc func(data []byte, err error)

type command interface {
	name() string
}

type writeBufferCommand struct {
	dst    Buffer
	offset uint64
	data   []byte
}

type resetCounterCommand struct {
	stream AppendBuffer
}

type dispatchCommand struct {
	pipeline pipeline.Pipeline
	groups   [3]uint32
	bindings []Binding
}

type copyCounterCommand struct {
	stream AppendBuffer
	dst    Buffer
	offset uint64
}

type drawIndexedIndirectCommand struct {
	pipeline pipeline.Pipeline
	mesh     Mesh
	args     Buffer
	bindings []Binding
	attrs    map[string]any
}

type readbackCommand struct {
	src    Buffer
	offset uint64
	size   uint64
	fn     ReadbackFunc
}

func (writeBufferCommand) name() string         { return "write_buffer" }
func (resetCounterCommand) name() string        { return "reset_counter" }
func (dispatchCommand) name() string            { return "dispatch" }
func (copyCounterCommand) name() string         { return "copy_counter" }
func (drawIndexedIndirectCommand) name() string { return "draw_indexed_indirect" }
func (readbackCommand) name() string            { return "readback" }

// CommandList records an ordered sequence of GPU commands. A renderer executes the
// commands strictly in recording order, so every command observes the results of all
// commands recorded before it. The zero value is ready to use.
type CommandList struct {
	label    string
	commands []command
	attrs    map[string]any
}

// NewCommandList creates an empty command list with a debug label.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - *CommandList: the new list
func NewCommandList(label string) *CommandList {
	return &CommandList{label: label}
}

// Label returns the debug label of the list.
func (l *CommandList) Label() string {
	return l.label
}

// Reset drops all recorded commands and attributes so the list can be reused for a new frame.
func (l *CommandList) Reset() {
	clear(l.commands)
	l.commands = l.commands[:0]
	l.attrs = nil
}

// Len returns the number of recorded commands.
func (l *CommandList) Len() int {
	return len(l.commands)
}

// CommandNames returns the recorded command kinds in order. Intended for logs and tests.
func (l *CommandList) CommandNames() []string {
	names := make([]string, len(l.commands))
	for i, c := range l.commands {
		names[i] = c.name()
	}
	return names
}

// SetAttribute sets a named value that applies to every draw recorded after the call.
//
// Parameters:
//   - key: the attribute name
//   - value: the attribute value
func (l *CommandList) SetAttribute(key string, value any) {
	if l.attrs == nil {
		l.attrs = make(map[string]any)
	}
	l.attrs[key] = value
}

// WriteBuffer records an upload of data into dst at offset. data is copied at record time.
//
// Parameters:
//   - dst: the destination buffer
//   - offset: the destination byte offset
//   - data: the bytes to upload
func (l *CommandList) WriteBuffer(dst Buffer, offset uint64, data []byte) {
	l.record(writeBufferCommand{dst: dst, offset: offset, data: append([]byte(nil), data...)})
}

// ResetCounter records a reset of the stream's element counter to zero.
//
// Parameters:
//   - stream: the append buffer whose counter is reset
func (l *CommandList) ResetCounter(stream AppendBuffer) {
	l.record(resetCounterCommand{stream: stream})
}

// Dispatch records a compute dispatch of groups workgroups with the given bindings.
//
// Parameters:
//   - p: a registered compute pipeline
//   - groups: the workgroup counts along x, y and z
//   - bindings: the resources bound for the dispatch
func (l *CommandList) Dispatch(p pipeline.Pipeline, groups [3]uint32, bindings ...Binding) {
	l.record(dispatchCommand{pipeline: p, groups: groups, bindings: append([]Binding(nil), bindings...)})
}

// DrawIndexedIndirect records an indexed draw of mesh whose arguments (a 20-byte
// DrawIndexedIndirect record) are read from args on the GPU at execution time.
//
// Parameters:
//   - p: a registered render pipeline
//   - mesh: the mesh to draw
//   - args: the indirect argument buffer
//   - bindings: the resources bound for the draw, including the per-instance stream
func (l *CommandList) DrawIndexedIndirect(p pipeline.Pipeline, mesh Mesh, args Buffer, bindings ...Binding) {
	attrs := make(map[string]any, len(l.attrs))
	for k, v := range l.attrs {
		attrs[k] = v
	}
	l.record(drawIndexedIndirectCommand{
		pipeline: p,
		mesh:     mesh,
		args:     args,
		bindings: append([]Binding(nil), bindings...),
		attrs:    attrs,
	})
}

// ReadBufferAsync records a copy of size bytes of src at offset to a staging area. fn is
// called from a later Renderer.Poll once the data is available, never during Execute, so
// the result is at least one frame old by the time it is observed.
//
// Parameters:
//   - src: a buffer created with BufferUsageReadback
//   - offset: the source byte offset
//   - size: the number of bytes to read
//   - fn: the callback receiving the bytes
func (l *CommandList) ReadBufferAsync(src Buffer, offset, size uint64, fn ReadbackFunc) {
	l.record(readbackCommand{src: src, offset: offset, size: size, fn: fn})
}

func (l *CommandList) record(c command) {
	l.commands = append(l.commands, c)
}
