package grass

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-grass/engine/renderer"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/draw_vertex.wgsl
var drawVertexSource string

//go:embed assets/draw_fragment.wgsl
var drawFragmentSource string

const drawPipelineKey = "grass_draw"

// newDrawPipeline builds the instanced blade render pipeline. Blades are double sided
// and depth tested against the rest of the opaque scene.
func newDrawPipeline() (pipeline.Pipeline, error) {
	vs, err := shader.NewShader(drawPipelineKey+"_vs", shader.ShaderTypeVertex, drawVertexSource, shader.WithPreProcessor(newPreProcessor()))
	if err != nil {
		return nil, err
	}
	fs, err := shader.NewShader(drawPipelineKey+"_fs", shader.ShaderTypeFragment, drawFragmentSource)
	if err != nil {
		return nil, err
	}
	return pipeline.NewPipeline(drawPipelineKey, pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(vs),
		pipeline.WithFragmentShader(fs),
		pipeline.WithTopology(wgpu.PrimitiveTopologyTriangleList),
		pipeline.WithFrontFace(wgpu.FrontFaceCCW),
		pipeline.WithCullMode(wgpu.CullModeNone),
		pipeline.WithDepthTestEnabled(true),
		pipeline.WithDepthWriteEnabled(true),
	), nil
}

// grassPipelines holds the registered pipelines of one renderer.
type grassPipelines struct {
	visibility pipeline.Pipeline
	generate   pipeline.Pipeline
	draw       pipeline.Pipeline
}

// registerPipelines returns the grass pipelines of r, building and registering the ones
// it does not have yet. Several Grass objects on one renderer share the same pipelines.
func registerPipelines(r renderer.Renderer) (grassPipelines, error) {
	builders := []struct {
		key   string
		build func() (pipeline.Pipeline, error)
	}{
		{visibilityPipelineKey, newVisibilityPipeline},
		{generatePipelineKey, newGeneratePipeline},
		{drawPipelineKey, newDrawPipeline},
	}

	var pending []pipeline.Pipeline
	for _, b := range builders {
		if r.Pipeline(b.key) != nil {
			continue
		}
		p, err := b.build()
		if err != nil {
			return grassPipelines{}, fmt.Errorf("build %s: %w", b.key, err)
		}
		pending = append(pending, p)
	}
	if err := r.RegisterPipelines(pending...); err != nil {
		return grassPipelines{}, err
	}

	gp := grassPipelines{
		visibility: r.Pipeline(visibilityPipelineKey),
		generate:   r.Pipeline(generatePipelineKey),
		draw:       r.Pipeline(drawPipelineKey),
	}
	if gp.visibility == nil || gp.generate == nil || gp.draw == nil {
		return grassPipelines{}, errors.New("grass: pipelines missing after registration")
	}
	return gp, nil
}

// Shaders builds every grass shader with its includes and declarations expanded, in
// pipeline order: visibility, generation, then the draw vertex and fragment stages.
//
// Returns:
//   - []shader.Shader: the processed shaders
//   - error: the first pre-processing error
func Shaders() ([]shader.Shader, error) {
	var out []shader.Shader
	for _, build := range []func() (pipeline.Pipeline, error){newVisibilityPipeline, newGeneratePipeline, newDrawPipeline} {
		p, err := build()
		if err != nil {
			return nil, err
		}
		for _, st := range []shader.ShaderType{shader.ShaderTypeCompute, shader.ShaderTypeVertex, shader.ShaderTypeFragment} {
			if s := p.Shader(st); s != nil {
				out = append(out, s)
			}
		}
	}
	return out, nil
}
