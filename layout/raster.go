package layout

import (
	"fmt"
	"image"
	"image/draw"

	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

type glyphKey struct {
	font FontID
	id   uint16
	size fixed.Int26_6
}

// bitmap is an 8-bit coverage mask. left and top place its top-left texel
// relative to the pen position on the baseline, y-down.
type bitmap struct {
	left, top     int
	width, height int
	pix           []byte
}

func (b bitmap) empty() bool {
	return b.width == 0 || b.height == 0
}

// bitmap returns the coverage of a glyph, using the rasterized-glyph cache.
func (e *Engine) bitmap(key glyphKey, f *Font) (bitmap, error) {
	if b, ok := e.bitmaps.Get(key); ok {
		return b, nil
	}
	b, err := e.rasterize(f, key.id, key.size)
	if err != nil {
		return bitmap{}, err
	}
	e.bitmaps.Set(key, b)
	return b, nil
}

func (e *Engine) rasterize(f *Font, id uint16, size fixed.Int26_6) (bitmap, error) {
	segments, err := f.outln.LoadGlyph(&f.buf, sfnt.GlyphIndex(id), size, nil)
	if err != nil {
		return bitmap{}, fmt.Errorf("layout: load glyph %d: %w", id, err)
	}
	bounds := segments.Bounds()
	left, top := bounds.Min.X.Floor(), bounds.Min.Y.Floor()
	width, height := bounds.Max.X.Ceil()-left, bounds.Max.Y.Ceil()-top
	if len(segments) == 0 || width <= 0 || height <= 0 {
		return bitmap{}, nil
	}

	if e.rast == nil {
		e.rast = vector.NewRasterizer(width, height)
	} else {
		e.rast.Reset(width, height)
	}
	z := e.rast
	z.DrawOp = draw.Src

	ox, oy := -float32(left), -float32(top)
	pt := func(p fixed.Point26_6) (float32, float32) {
		return ox + fixedToFloat(p.X), oy + fixedToFloat(p.Y)
	}
	for _, seg := range segments {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			z.MoveTo(pt(seg.Args[0]))
		case sfnt.SegmentOpLineTo:
			z.LineTo(pt(seg.Args[0]))
		case sfnt.SegmentOpQuadTo:
			bx, by := pt(seg.Args[0])
			cx, cy := pt(seg.Args[1])
			z.QuadTo(bx, by, cx, cy)
		case sfnt.SegmentOpCubeTo:
			bx, by := pt(seg.Args[0])
			cx, cy := pt(seg.Args[1])
			dx, dy := pt(seg.Args[2])
			z.CubeTo(bx, by, cx, cy, dx, dy)
		}
	}
	z.ClosePath()

	dst := image.NewAlpha(image.Rect(0, 0, width, height))
	z.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})
	return bitmap{left: left, top: top, width: width, height: height, pix: dst.Pix}, nil
}
