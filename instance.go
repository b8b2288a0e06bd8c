package glyph

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

// Instance byte layout. The vertex shader reads these attributes per
// instance, so offsets and sizes are part of the shader contract.
const (
	instanceLeftTopOffset        = 0  // float32x3
	instanceRightBottomOffset    = 12 // float32x2
	instanceTexLeftTopOffset     = 20 // float32x2
	instanceTexRightBottomOffset = 28 // float32x2
	instanceColorOffset          = 36 // float32x4

	// InstanceSize is the packed size of one Instance in bytes.
	InstanceSize = 52
)

// Instance is one glyph quad as consumed by the vertex shader.
//
// Positions are in normalized device coordinates (before the transform is
// applied), texture coordinates in atlas UV space. LeftTop carries the
// depth in its third component.
type Instance struct {
	LeftTop        [3]float32
	RightBottom    [2]float32
	TexLeftTop     [2]float32
	TexRightBottom [2]float32
	Color          [4]float32
}

// Degenerate reports whether the quad covers no area.
func (in Instance) Degenerate() bool {
	return in.RightBottom[0] <= in.LeftTop[0] || in.LeftTop[1] <= in.RightBottom[1]
}

// AppendBytes appends the little-endian wire encoding of in to buf.
func (in Instance) AppendBytes(buf []byte) []byte {
	var b [InstanceSize]byte
	in.put(b[:])
	return append(buf, b[:]...)
}

func (in Instance) put(b []byte) {
	putFloats(b[instanceLeftTopOffset:], in.LeftTop[:])
	putFloats(b[instanceRightBottomOffset:], in.RightBottom[:])
	putFloats(b[instanceTexLeftTopOffset:], in.TexLeftTop[:])
	putFloats(b[instanceTexRightBottomOffset:], in.TexRightBottom[:])
	putFloats(b[instanceColorOffset:], in.Color[:])
}

func putFloats(b []byte, v []float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
}

// EncodeInstances packs instances into a contiguous byte slice suitable
// for upload into the instance buffer.
func EncodeInstances(instances []Instance) []byte {
	out := make([]byte, len(instances)*InstanceSize)
	for i := range instances {
		instances[i].put(out[i*InstanceSize:])
	}
	return out
}

// DecodeInstance reads one Instance from the front of b.
// b must hold at least InstanceSize bytes.
func DecodeInstance(b []byte) Instance {
	var in Instance
	getFloats(b[instanceLeftTopOffset:], in.LeftTop[:])
	getFloats(b[instanceRightBottomOffset:], in.RightBottom[:])
	getFloats(b[instanceTexLeftTopOffset:], in.TexLeftTop[:])
	getFloats(b[instanceTexRightBottomOffset:], in.TexRightBottom[:])
	getFloats(b[instanceColorOffset:], in.Color[:])
	return in
}

func getFloats(b []byte, v []float32) {
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
}

// FilterDegenerate returns the instances with non-zero area, reusing the
// backing array of instances.
func FilterDegenerate(instances []Instance) []Instance {
	out := instances[:0]
	for _, in := range instances {
		if !in.Degenerate() {
			out = append(out, in)
		}
	}
	return out
}

// instanceBufferLayout describes Instance as per-instance vertex input.
func instanceBufferLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: InstanceSize,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: instanceLeftTopOffset, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x2, Offset: instanceRightBottomOffset, ShaderLocation: 1},
				{Format: gputypes.VertexFormatFloat32x2, Offset: instanceTexLeftTopOffset, ShaderLocation: 2},
				{Format: gputypes.VertexFormatFloat32x2, Offset: instanceTexRightBottomOffset, ShaderLocation: 3},
				{Format: gputypes.VertexFormatFloat32x4, Offset: instanceColorOffset, ShaderLocation: 4},
			},
		},
	}
}
