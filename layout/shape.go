package layout

import (
	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

type shapeKey struct {
	font   FontID
	size   fixed.Int26_6
	text   string
	rtl    bool
	script language.Script
}

// shapedGlyph is a glyph of a shaped run, positioned relative to the run
// origin on the baseline. Offsets are y-down pixels.
type shapedGlyph struct {
	id      uint16
	x, y    float32
	advance float32
}

type shapedRun struct {
	glyphs  []shapedGlyph
	advance float32
}

// shape returns the glyphs of r in visual order, using the shaped-run cache.
func (e *Engine) shape(fontID FontID, f *Font, size fixed.Int26_6, r run) shapedRun {
	key := shapeKey{font: fontID, size: size, text: string(r.text), rtl: r.rtl, script: r.script}
	return e.shapes.GetOrCreate(key, func() shapedRun {
		dir := di.DirectionLTR
		if r.rtl {
			dir = di.DirectionRTL
		}
		out := e.shaper.Shape(shaping.Input{
			Text:      r.text,
			RunStart:  0,
			RunEnd:    len(r.text),
			Direction: dir,
			Face:      f.shape,
			Size:      size,
			Script:    r.script,
			Language:  e.language,
		})
		return convertOutput(out)
	})
}

// convertOutput turns HarfBuzz output into pen positions. go-text returns
// right-to-left glyphs already in visual order.
func convertOutput(out shaping.Output) shapedRun {
	res := shapedRun{glyphs: make([]shapedGlyph, len(out.Glyphs))}
	var pen float32
	for i, g := range out.Glyphs {
		res.glyphs[i] = shapedGlyph{
			id:      uint16(g.GlyphID), //nolint:gosec // sfnt glyph indices are 16-bit
			x:       pen + fixedToFloat(g.XOffset),
			y:       -fixedToFloat(g.YOffset),
			advance: fixedToFloat(g.Advance),
		}
		pen += fixedToFloat(g.Advance)
	}
	res.advance = pen
	return res
}
