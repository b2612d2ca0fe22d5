// pre_processor.go implements the Oxy WGSL shader pre-processor. It scans shader
// source code for @oxy: annotations, replaces them with generated WGSL declarations
// or injected struct source, and collects a declarations list that the renderer
// backends use to tell plain buffer bindings apart from append stream counters.
//
// The pre-processor maintains two registries:
//   - structRegistry: maps AnnotationArg keys to WGSL struct sources and their
//     resolved type names. Populated by the package that owns the GPU types via
//     WithStruct. Used by @oxy:include, @oxy:group and @oxy:append.
//   - addressSpaceRegistry: maps address space argument keys to WGSL var<> syntax strings.
package shader

import (
	"fmt"
	"strings"
)

// registryEntry pairs a WGSL struct source string (embedded from a .wgsl asset file)
// with the resolved WGSL type name used in generated declarations.
type registryEntry struct {
	// Source is the raw WGSL struct definition text injected by @oxy:include.
	Source string

	// Type is the WGSL type name emitted in generated declarations (e.g. "BladeInstance").
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	structRegistry       map[AnnotationArg]registryEntry
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates group and append annotations during a Process call.
	// Reset at the start of each Process invocation.
	declarations []Annotation
}

// PreProcessor processes raw WGSL shader source code containing @oxy: annotations,
// replacing them with generated declarations or injected struct sources while collecting
// a declarations list for downstream resource wiring.
type PreProcessor interface {
	// Process takes raw WGSL shader source code and pre-processes it by replacing
	// @oxy: annotations with their corresponding WGSL output. @oxy:include annotations
	// are replaced with registered struct source text. @oxy:group annotations are replaced
	// with a generated @group/@binding declaration. @oxy:append annotations are replaced
	// with a runtime array declaration and an atomic counter declaration.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code with annotations replaced
	//   - error: an error if any annotation is malformed or references an unknown type
	Process(source string) (string, error)

	// Declarations returns the group and append annotations collected during the most
	// recent call to Process, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// PreProcessorBuilderOption is a functional option applied to a pre-processor during NewPreProcessor.
type PreProcessorBuilderOption func(*preProcessor)

// WithStruct registers a WGSL struct under an annotation key.
//
// Parameters:
//   - key: the annotation argument that refers to the struct
//   - source: the WGSL struct definition
//   - typeName: the WGSL type name declared by source
//
// Returns:
//   - PreProcessorBuilderOption: a function that registers the struct
func WithStruct(key AnnotationArg, source, typeName string) PreProcessorBuilderOption {
	return func(p *preProcessor) {
		p.structRegistry[key] = registryEntry{Source: source, Type: typeName}
	}
}

// NewPreProcessor creates a new PreProcessor with the address space mappings pre-populated
// and any structs supplied through options registered.
//
// Parameters:
//   - opts: a variadic list of PreProcessorBuilderOption functions
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(opts ...PreProcessorBuilderOption) PreProcessor {
	p := &preProcessor{
		structRegistry: make(map[AnnotationArg]registryEntry),
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", a.Line, a.Args[0])
			}
			out = append(out, entry.Source)
		case AnnotationTypeBindingGroup:
			wgslType, err := p.resolveType(a.Args[2], a.Line)
			if err != nil {
				return "", err
			}
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, a.Args[1], wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeAppend:
			entry, ok := p.structRegistry[a.Args[1]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown struct type %q in @oxy append annotation", a.Line, a.Args[1])
			}
			out = append(out,
				fmt.Sprintf("@group(%d) @binding(%d) var<storage, read_write> %s: array<%s>;", *a.Group, *a.Binding, a.Args[0], entry.Type),
				fmt.Sprintf("@group(%d) @binding(%d) var<storage, read_write> %s_count: atomic<u32>;", *a.Group, *a.Binding+1, a.Args[0]),
			)
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", a.Line, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

// resolveType maps a type argument to its WGSL spelling. Registered struct keys resolve
// to their type names, array<key> wraps the resolved element, and anything else is
// treated as a raw WGSL type such as u32 or f32.
func (p *preProcessor) resolveType(arg AnnotationArg, line int) (string, error) {
	if inner, ok := strings.CutPrefix(string(arg), "array<"); ok {
		inner = strings.TrimSuffix(inner, ">")
		elem, err := p.resolveType(AnnotationArg(inner), line)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("array<%s>", elem), nil
	}
	if entry, ok := p.structRegistry[arg]; ok {
		return entry.Type, nil
	}
	if _, ok := wgslPrimitiveLayoutMap[string(arg)]; ok {
		return string(arg), nil
	}
	return "", fmt.Errorf("line %d: unknown type %q in @oxy group annotation", line, arg)
}
