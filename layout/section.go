package layout

import (
	"fmt"

	"github.com/gogpu/glyph"
)

// Align is the horizontal alignment of lines relative to Section.Position.
type Align uint8

const (
	// AlignLeft starts lines at Position.X.
	AlignLeft Align = iota
	// AlignCenter centers lines on Position.X.
	AlignCenter
	// AlignRight ends lines at Position.X.
	AlignRight
)

// String returns the alignment name.
func (a Align) String() string {
	switch a {
	case AlignLeft:
		return "left"
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	default:
		return fmt.Sprintf("Align(%d)", uint8(a))
	}
}

// Span is a piece of text in one font, size and color. A span may contain
// newlines.
type Span struct {
	Text  string
	Font  FontID
	Size  float32 // pixels per em
	Color [4]float32
}

// Section is a block of text laid out from a position. Lines break only at
// '\n'.
type Section struct {
	Spans []Span

	// Position is the top of the first line, at the alignment anchor.
	Position glyph.Point

	// Bounds clips every glyph of the section. A zero rectangle means the
	// whole screen.
	Bounds glyph.Rect

	Align Align

	// Z is the depth written for every glyph.
	Z float32
}

// Text returns a single-span section.
func Text(text string, font FontID, size float32, color [4]float32) Section {
	return Section{Spans: []Span{{Text: text, Font: font, Size: size, Color: color}}}
}
