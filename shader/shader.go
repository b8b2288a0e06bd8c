// Package shader holds the WGSL stages used by the glyph pipeline.
//
// The stages expect one bind group:
//
//	@binding(0) uniform mat4x4<f32> transform   (vertex)
//	@binding(1) sampler                         (fragment)
//	@binding(2) texture_2d<f32> glyph atlas     (fragment, coverage in .r)
//
// and five per-instance attributes at locations 0..4 matching
// glyph.Instance. Custom stages must keep that contract.
package shader

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed glyph_vertex.wgsl
var vertexSource string

//go:embed glyph_fragment.wgsl
var fragmentSource string

// Entry points of the embedded stages.
const (
	VertexEntryPoint   = "vs_main"
	FragmentEntryPoint = "fs_main"
)

// ErrEmptyStage is returned for a stage with neither WGSL nor SPIR-V code.
var ErrEmptyStage = errors.New("shader: stage has no source")

// Stage is one shader stage. When SPIRV is set it takes precedence over
// WGSL.
type Stage struct {
	Label      string
	EntryPoint string
	WGSL       string
	SPIRV      []uint32
}

// Source returns the stage code in the form expected by
// hal.Device.CreateShaderModule.
func (s Stage) Source() (hal.ShaderSource, error) {
	switch {
	case len(s.SPIRV) > 0:
		return hal.ShaderSource{SPIRV: s.SPIRV}, nil
	case s.WGSL != "":
		return hal.ShaderSource{WGSL: s.WGSL}, nil
	default:
		return hal.ShaderSource{}, fmt.Errorf("%w: %q", ErrEmptyStage, s.Label)
	}
}

// Set is the vertex and fragment stage pair of the pipeline.
type Set struct {
	Vertex   Stage
	Fragment Stage
}

// IsZero reports whether no stage has been configured.
func (s Set) IsZero() bool {
	return s.Vertex.WGSL == "" && len(s.Vertex.SPIRV) == 0 &&
		s.Fragment.WGSL == "" && len(s.Fragment.SPIRV) == 0
}

// Default returns the embedded WGSL stages.
func Default() Set {
	return Set{
		Vertex: Stage{
			Label:      "glyph_vertex",
			EntryPoint: VertexEntryPoint,
			WGSL:       vertexSource,
		},
		Fragment: Stage{
			Label:      "glyph_fragment",
			EntryPoint: FragmentEntryPoint,
			WGSL:       fragmentSource,
		},
	}
}

// Precompile compiles every WGSL-only stage of set to SPIR-V so backends
// that only consume binaries can load it.
func Precompile(set Set) (Set, error) {
	for _, st := range []*Stage{&set.Vertex, &set.Fragment} {
		if len(st.SPIRV) > 0 {
			continue
		}
		if st.WGSL == "" {
			return set, fmt.Errorf("%w: %q", ErrEmptyStage, st.Label)
		}
		words, err := CompileSPIRV(st.WGSL)
		if err != nil {
			return set, fmt.Errorf("shader %q: %w", st.Label, err)
		}
		st.SPIRV = words
	}
	return set, nil
}

// CompileSPIRV compiles WGSL source to little-endian SPIR-V words.
func CompileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("failed to compile shader: SPIR-V length %d is not word aligned", len(spirvBytes))
	}

	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
