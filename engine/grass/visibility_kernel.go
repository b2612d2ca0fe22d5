package grass

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/shader"
)

//go:embed assets/visibility.wgsl
var visibilitySource string

const visibilityPipelineKey = "grass_visibility"

// ErrUnboundResource is returned by the host kernels when a required binding is missing
// or too small.
var ErrUnboundResource = errors.New("grass: kernel resource missing or too small")

const (
	workgroupSize         = 64
	maxGroupsPerDimension = 65535
)

// dispatchGroups returns the workgroup grid covering n invocations and the number of
// invocations per grid row. Grids wider than the per-dimension limit wrap into Y.
func dispatchGroups(n uint32) ([3]uint32, uint32) {
	groups := max((n+workgroupSize-1)/workgroupSize, 1)
	if groups <= maxGroupsPerDimension {
		return [3]uint32{groups, 1, 1}, groups * workgroupSize
	}
	rows := (groups + maxGroupsPerDimension - 1) / maxGroupsPerDimension
	return [3]uint32{maxGroupsPerDimension, rows, 1}, maxGroupsPerDimension * workgroupSize
}

// newVisibilityPipeline builds the compute pipeline that writes one visibility flag per
// chunk and sub-chunk.
func newVisibilityPipeline() (pipeline.Pipeline, error) {
	cs, err := shader.NewShader(visibilityPipelineKey, shader.ShaderTypeCompute, visibilitySource, shader.WithPreProcessor(newPreProcessor()))
	if err != nil {
		return nil, err
	}
	return pipeline.NewPipeline(visibilityPipelineKey, pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(cs),
		pipeline.WithHostKernel(visibilityHostKernel),
	), nil
}

// visibilityHostKernel mirrors cs_visibility.
func visibilityHostKernel(res pipeline.HostResources) (pipeline.HostInvocation, error) {
	gb, chunkBytes, subBytes, flags := res.Bytes(0, 0), res.Bytes(0, 1), res.Bytes(0, 2), res.Bytes(0, 3)
	if len(gb) < GlobalsSize || chunkBytes == nil || subBytes == nil || flags == nil {
		return nil, fmt.Errorf("%w: visibility bindings", ErrUnboundResource)
	}
	g := unmarshalGlobals(gb)
	cells := g.ChunkCount + g.SubChunkCount
	if uint64(len(flags)) < 4*uint64(cells) ||
		uint64(len(chunkBytes)) < CellRecordSize*uint64(g.ChunkCount) ||
		uint64(len(subBytes)) < CellRecordSize*uint64(g.SubChunkCount) {
		return nil, fmt.Errorf("%w: %d cells", ErrUnboundResource, cells)
	}

	f := g.frustum()
	chunks := make([]common.AABB, g.ChunkCount)
	for i := range chunks {
		c := unmarshalCell(chunkBytes[i*CellRecordSize:])
		chunks[i] = common.AABB{Min: c.Min, Max: c.Max}
	}
	chunkVisible := func(i uint32) bool {
		return i < g.MaxUsableChunks && i < g.ChunkCount && common.IntersectsAABB(chunks[i], f)
	}

	return func(id [3]uint32, _ pipeline.HostEmitter) {
		cell := id[0] + id[1]*g.VisibilityWidth
		if cell >= cells {
			return
		}
		var visible bool
		if cell < g.ChunkCount {
			visible = chunkVisible(cell)
		} else {
			sc := unmarshalCell(subBytes[(cell-g.ChunkCount)*CellRecordSize:])
			visible = chunkVisible(uint32(sc.Parent))
			if visible && g.Hierarchy == uint32(HierarchySubChunks) {
				visible = common.IntersectsAABB(common.AABB{Min: sc.Min, Max: sc.Max}, f)
			}
		}
		binary.LittleEndian.PutUint32(flags[cell*4:], boolToU32(visible))
	}, nil
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
