package glyph

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// TransformSize is the size of the transform uniform in bytes.
const TransformSize = 16 * 4

// Transform is the 4x4 matrix applied to every instance position in the
// vertex shader. The 16 values are uploaded as-is and read as a WGSL
// mat4x4<f32>, so elements 12, 13 and 14 hold the translation. This is the
// memory layout of mgl32.Mat4.
type Transform [16]float32

// IdentityTransform leaves instance coordinates unchanged.
func IdentityTransform() Transform {
	return Transform(mgl32.Ident4())
}

// ScreenTransform flips the y axis so that instances converted from
// top-left origin pixel coordinates appear upright.
func ScreenTransform() Transform {
	return Transform(mgl32.Scale3D(1, -1, 1))
}

// OrthographicProjection maps pixel coordinates with the origin at the
// top-left corner of a width x height target to normalized device
// coordinates.
func OrthographicProjection(width, height float32) Transform {
	return Transform(mgl32.Ortho(0, width, height, 0, -1, 1))
}

// TransformFromMat4 wraps an mgl32 matrix.
func TransformFromMat4(m mgl32.Mat4) Transform {
	return Transform(m)
}

// Mat4 returns t as an mgl32 matrix.
func (t Transform) Mat4() mgl32.Mat4 {
	return mgl32.Mat4(t)
}

// Mul returns t * o, applying o first.
func (t Transform) Mul(o Transform) Transform {
	return Transform(t.Mat4().Mul4(o.Mat4()))
}

// Translate returns t followed by a translation in normalized device units.
func (t Transform) Translate(dx, dy float32) Transform {
	return Transform(mgl32.Translate3D(dx, dy, 0).Mul4(t.Mat4()))
}

// Bytes returns the little-endian uniform encoding of t.
func (t Transform) Bytes() []byte {
	out := make([]byte, TransformSize)
	for i, f := range t {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
