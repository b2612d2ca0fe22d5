package grass

// pcgHash is the PCG-RXS-M-XS 32-bit permutation. The WGSL kernels use the same function
// (pcg_hash in generate.wgsl); wrapping uint32 arithmetic matches WGSL u32 semantics.
func pcgHash(v uint32) uint32 {
	state := v*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

// unitFloat maps the top 24 bits of a hash to [0, 1). The conversion is exact in float32.
func unitFloat(h uint32) float32 {
	return float32(h>>8) / 16777216
}
