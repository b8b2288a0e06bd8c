package glyph

// Point is a 2D coordinate.
type Point struct {
	X, Y float32
}

// Rect is an axis-aligned rectangle. Min holds the smaller coordinate on
// both axes.
type Rect struct {
	Min, Max Point
}

// Width returns Max.X - Min.X. It is negative for an inverted rectangle.
func (r Rect) Width() float32 { return r.Max.X - r.Min.X }

// Height returns Max.Y - Min.Y.
func (r Rect) Height() float32 { return r.Max.Y - r.Min.Y }

// GlyphVertex describes one positioned glyph as produced by a layout
// engine. Pixel coordinates grow right and down from the top-left corner
// of the screen.
type GlyphVertex struct {
	// TexCoords is the glyph's rectangle in the atlas, in UV space.
	TexCoords Rect

	// PixelCoords is the glyph quad in screen pixels.
	PixelCoords Rect

	// Bounds is the clipping rectangle of the glyph's section, in pixels.
	Bounds Rect

	ScreenWidth  float32
	ScreenHeight float32

	// Color is straight RGBA in 0..1.
	Color [4]float32

	// Z is the depth written to the quad.
	Z float32
}

// Instance converts the vertex into a GPU instance. The quad is mapped to
// normalized device coordinates, clipped to Bounds, and its texture
// coordinates are cut by the same fractions so texel density is kept.
//
// Quads entirely outside Bounds collapse to zero size but are still
// returned; see FilterDegenerate.
func (v GlyphVertex) Instance() Instance {
	sw, sh := v.ScreenWidth, v.ScreenHeight
	rect := Rect{
		Min: Point{toNDC(v.PixelCoords.Min.X, sw), toNDC(v.PixelCoords.Min.Y, sh)},
		Max: Point{toNDC(v.PixelCoords.Max.X, sw), toNDC(v.PixelCoords.Max.Y, sh)},
	}
	bounds := Rect{
		Min: Point{toNDC(v.Bounds.Min.X, sw), toNDC(v.Bounds.Min.Y, sh)},
		Max: Point{toNDC(v.Bounds.Max.X, sw), toNDC(v.Bounds.Max.Y, sh)},
	}

	rect, tex := ClipQuad(rect, v.TexCoords, bounds)

	return Instance{
		LeftTop:        [3]float32{rect.Min.X, rect.Max.Y, v.Z},
		RightBottom:    [2]float32{rect.Max.X, rect.Min.Y},
		TexLeftTop:     [2]float32{tex.Min.X, tex.Max.Y},
		TexRightBottom: [2]float32{tex.Max.X, tex.Min.Y},
		Color:          v.Color,
	}
}

// toNDC maps a pixel coordinate in [0, screen] to [-1, 1].
func toNDC(p, screen float32) float32 {
	return 2*(p/screen) - 1
}

// ClipQuad clips rect against bounds, edge by edge in the order max-x,
// min-x, max-y, min-y. Each clipped edge moves the matching edge of tex,
// anchored at the opposite edge, by the fraction of the quad removed.
//
// A quad lying completely outside bounds on an axis ends up with zero
// extent on that axis. ClipQuad is idempotent.
func ClipQuad(rect, tex, bounds Rect) (Rect, Rect) {
	if rect.Max.X > bounds.Max.X {
		old := rect.Width()
		rect.Max.X = max(bounds.Max.X, rect.Min.X)
		if old > 0 {
			tex.Max.X = tex.Min.X + tex.Width()*rect.Width()/old
		}
	}
	if rect.Min.X < bounds.Min.X {
		old := rect.Width()
		rect.Min.X = min(bounds.Min.X, rect.Max.X)
		if old > 0 {
			tex.Min.X = tex.Max.X - tex.Width()*rect.Width()/old
		}
	}
	if rect.Max.Y > bounds.Max.Y {
		old := rect.Height()
		rect.Max.Y = max(bounds.Max.Y, rect.Min.Y)
		if old > 0 {
			tex.Max.Y = tex.Min.Y + tex.Height()*rect.Height()/old
		}
	}
	if rect.Min.Y < bounds.Min.Y {
		old := rect.Height()
		rect.Min.Y = min(bounds.Min.Y, rect.Max.Y)
		if old > 0 {
			tex.Min.Y = tex.Max.Y - tex.Height()*rect.Height()/old
		}
	}
	return rect, tex
}

// Instances converts a batch of vertices, appending to dst.
func Instances(dst []Instance, vertices []GlyphVertex) []Instance {
	for i := range vertices {
		dst = append(dst, vertices[i].Instance())
	}
	return dst
}
