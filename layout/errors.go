package layout

import (
	"errors"
	"fmt"
)

// Layout errors.
var (
	// ErrCacheTooSmall is matched by *CacheTooSmallError.
	ErrCacheTooSmall = errors.New("layout: glyph cache too small")

	// ErrUnknownFont is returned for a span whose FontID was not added.
	ErrUnknownFont = errors.New("layout: unknown font")

	// ErrGlyphTooLarge is returned when a single glyph does not fit in a
	// cache of the maximum size.
	ErrGlyphTooLarge = errors.New("layout: glyph larger than maximum cache")
)

// CacheTooSmallError reports that the glyphs of one frame do not fit in the
// current cache. Width and Height is the suggested new size.
type CacheTooSmallError struct {
	Width, Height uint32
}

func (e *CacheTooSmallError) Error() string {
	return fmt.Sprintf("layout: glyph cache too small, suggested size %dx%d", e.Width, e.Height)
}

// Is reports whether target is ErrCacheTooSmall.
func (e *CacheTooSmallError) Is(target error) bool {
	return target == ErrCacheTooSmall
}
