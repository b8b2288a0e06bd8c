package glyph

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestIdentityTransformBytes(t *testing.T) {
	b := IdentityTransform().Bytes()
	if len(b) != TransformSize {
		t.Fatalf("len = %d, want %d", len(b), TransformSize)
	}
	for i := range 16 {
		want := float32(0)
		if i%5 == 0 {
			want = 1
		}
		got := math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		if got != want {
			t.Errorf("element %d = %v, want %v", i, got, want)
		}
	}
}

func TestOrthographicProjection(t *testing.T) {
	m := OrthographicProjection(800, 600).Mat4()
	tests := []struct {
		x, y   float32
		nx, ny float32
	}{
		{0, 0, -1, 1},
		{800, 600, 1, -1},
		{400, 300, 0, 0},
	}
	for _, tt := range tests {
		p := m.Mul4x1(mgl32.Vec4{tt.x, tt.y, 0, 1})
		if !approx(p[0], tt.nx) || !approx(p[1], tt.ny) {
			t.Errorf("(%v,%v) -> (%v,%v), want (%v,%v)", tt.x, tt.y, p[0], p[1], tt.nx, tt.ny)
		}
	}
}

func TestScreenTransformFlipsY(t *testing.T) {
	p := ScreenTransform().Mat4().Mul4x1(mgl32.Vec4{0.25, -0.5, 0.3, 1})
	if p != (mgl32.Vec4{0.25, 0.5, 0.3, 1}) {
		t.Errorf("got %v", p)
	}
}

func TestTransformTranslate(t *testing.T) {
	tr := IdentityTransform().Translate(0.5, -0.25)
	if tr[12] != 0.5 || tr[13] != -0.25 || tr[14] != 0 {
		t.Errorf("translation = %v, want [0.5 -0.25 0]", tr[12:15])
	}
	composed := ScreenTransform().Mul(IdentityTransform().Translate(0, 0.5))
	p := composed.Mat4().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if !approx(p[1], -0.5) {
		t.Errorf("translate then flip: y = %v, want -0.5", p[1])
	}
	if TransformFromMat4(tr.Mat4()) != tr {
		t.Error("Mat4 round trip changed the transform")
	}
}
