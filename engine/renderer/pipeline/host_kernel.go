package pipeline

// HostResources gives a host kernel access to the buffers bound for one dispatch.
type HostResources interface {
	// Bytes returns the backing memory of the buffer bound at group/binding, or nil when
	// nothing is bound there. Kernels may write into read_write bindings; concurrent
	// invocations must only touch disjoint byte ranges.
	//
	// Parameters:
	//   - group: the @group index
	//   - binding: the @binding index
	//
	// Returns:
	//   - []byte: the buffer contents
	Bytes(group, binding int) []byte
}

// HostEmitter receives append stream records produced by one invocation.
type HostEmitter interface {
	// Append pushes one record onto the append stream declared at group/binding.
	// Records past the stream's capacity are dropped, like a bounds-guarded atomicAdd.
	//
	// Parameters:
	//   - group: the @group index of the stream's data binding
	//   - binding: the @binding index of the stream's data binding
	//   - record: the encoded element
	Append(group, binding int, record []byte)
}

// HostInvocation runs one compute invocation identified by its global invocation id.
type HostInvocation func(id [3]uint32, out HostEmitter)

// HostKernel is the CPU implementation of a compute shader. It is called once per dispatch
// with the bound resources and returns the per-invocation function. The function must give
// the same results as the WGSL entry point it mirrors, including float32 rounding.
type HostKernel func(res HostResources) (HostInvocation, error)
