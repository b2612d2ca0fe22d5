package grass

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/shader"
)

//go:embed assets/generate.wgsl
var generateSource string

const generatePipelineKey = "grass_generate"

// Bindings of the generation kernel.
const (
	generateBindingHigh = 4 // high_lod, counter at 5
	generateBindingLow  = 6 // low_lod, counter at 7
)

// newGeneratePipeline builds the compute pipeline that places, culls and classifies blades.
func newGeneratePipeline() (pipeline.Pipeline, error) {
	cs, err := shader.NewShader(generatePipelineKey, shader.ShaderTypeCompute, generateSource, shader.WithPreProcessor(newPreProcessor()))
	if err != nil {
		return nil, err
	}
	return pipeline.NewPipeline(generatePipelineKey, pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(cs),
		pipeline.WithHostKernel(generateHostKernel),
	), nil
}

// generateHostKernel mirrors cs_generate.
func generateHostKernel(res pipeline.HostResources) (pipeline.HostInvocation, error) {
	gb, subBytes, flags, heightBytes := res.Bytes(0, 0), res.Bytes(0, 1), res.Bytes(0, 2), res.Bytes(0, 3)
	if len(gb) < GlobalsSize || subBytes == nil || flags == nil || heightBytes == nil {
		return nil, fmt.Errorf("%w: generation bindings", ErrUnboundResource)
	}
	g := unmarshalGlobals(gb)
	cells := g.ChunkCount + g.SubChunkCount
	samples := uint64(g.HeightmapW) * uint64(g.HeightmapH)
	if uint64(len(flags)) < 4*uint64(cells) ||
		uint64(len(subBytes)) < CellRecordSize*uint64(g.SubChunkCount) ||
		uint64(len(heightBytes)) < 4*samples {
		return nil, fmt.Errorf("%w: %d cells, %d height samples", ErrUnboundResource, cells, samples)
	}

	heights := common.BytesToSlice[float32](heightBytes[:4*samples])
	terrain := &Terrain{
		Origin:      g.TerrainOrigin,
		Size:        g.TerrainSize,
		HeightScale: g.HeightScale,
		Width:       int(g.HeightmapW),
		Height:      int(g.HeightmapH),
		Heights:     heights,
	}
	subs := make([]cellRecord, g.SubChunkCount)
	for i := range subs {
		subs[i] = unmarshalCell(subBytes[i*CellRecordSize:])
	}
	bg := newBladeGenerator(g, terrain, subs)
	visible := func(cell uint32) bool {
		return cell < cells && binary.LittleEndian.Uint32(flags[cell*4:]) != 0
	}

	return func(id [3]uint32, out pipeline.HostEmitter) {
		b, lod, ok := bg.generate(id[0]+id[1]*g.GenerateWidth, visible)
		if !ok {
			return
		}
		binding := generateBindingHigh
		if lod == LodLow {
			binding = generateBindingLow
		}
		out.Append(0, binding, b.Marshal())
	}, nil
}
