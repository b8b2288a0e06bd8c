package layout

import (
	"bytes"
	"fmt"

	gotext "github.com/go-text/typesetting/font"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// FontID identifies a font added to an Engine.
type FontID int

// Font is a parsed TrueType or OpenType font.
//
// The same bytes are parsed twice: go-text for shaping, sfnt for outlines
// and vertical metrics. Both agree on glyph indices.
type Font struct {
	name  string
	shape *gotext.Face
	outln *sfnt.Font
	buf   sfnt.Buffer
}

// ParseFont parses font data. The slice must not be modified afterwards.
func ParseFont(data []byte) (*Font, error) {
	outln, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("layout: parse font: %w", err)
	}
	face, err := gotext.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("layout: parse font for shaping: %w", err)
	}
	f := &Font{shape: face, outln: outln}
	if name, err := outln.Name(&f.buf, sfnt.NameIDFamily); err == nil {
		f.name = name
	}
	return f, nil
}

// Name returns the family name, or "" if the font has none.
func (f *Font) Name() string {
	return f.name
}

// lineMetrics holds vertical metrics in pixels, y-down.
type lineMetrics struct {
	ascent  float32 // distance from line top to baseline
	descent float32 // distance from baseline to line bottom
	height  float32 // recommended line spacing
}

func (f *Font) metrics(size fixed.Int26_6) lineMetrics {
	m, err := f.outln.Metrics(&f.buf, size, xfont.HintingNone)
	if err != nil {
		s := fixedToFloat(size)
		return lineMetrics{ascent: s, height: s}
	}
	lm := lineMetrics{
		ascent:  fixedToFloat(m.Ascent),
		descent: fixedToFloat(m.Descent),
		height:  fixedToFloat(m.Height),
	}
	lm.height = max(lm.height, lm.ascent+lm.descent)
	return lm
}

func floatToFixed(v float32) fixed.Int26_6 {
	return fixed.Int26_6(v * 64)
}

func fixedToFloat(v fixed.Int26_6) float32 {
	return float32(v) / 64
}
