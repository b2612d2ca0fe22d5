package shader

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// CompileSPIRV compiles the processed WGSL of s to a SPIR-V module. The WebGPU backend
// consumes WGSL directly; this is an offline check that the generated source (includes,
// group and append declarations expanded) is valid WGSL.
//
// Parameters:
//   - s: the shader to compile
//
// Returns:
//   - []byte: the little-endian SPIR-V words
//   - error: the compiler error, wrapped with the shader key
func CompileSPIRV(s Shader) ([]byte, error) {
	spirv, err := naga.Compile(s.Source())
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", s.Key(), err)
	}
	if len(spirv) < 4 || binary.LittleEndian.Uint32(spirv) != SPIRVMagic {
		return nil, fmt.Errorf("shader %s: compiler output is not a SPIR-V module", s.Key())
	}
	return spirv, nil
}
