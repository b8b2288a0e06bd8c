// Package layout turns sections of text into glyph vertices for the glyph
// pipeline.
//
// An Engine owns a set of fonts, a queue of sections and the packing state
// of the glyph cache texture. Process lays out everything queued: it splits
// lines into bidi and script runs, shapes them with HarfBuzz, rasterizes
// every glyph to 8-bit coverage, packs new glyphs into the cache and hands
// their pixels to an upload callback, then emits one glyph.GlyphVertex per
// visible glyph.
//
// When the glyphs of one frame do not fit, Process clears the cache, tries
// again with only that frame's glyphs and, failing that, returns a
// *CacheTooSmallError suggesting a larger cache.
//
// An Engine is not safe for concurrent use.
package layout

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/vector"

	"github.com/gogpu/glyph"
	"github.com/gogpu/glyph/internal/atlas"
	"github.com/gogpu/glyph/internal/lru"
)

// Config holds Engine parameters.
type Config struct {
	// CacheWidth and CacheHeight must match the texture glyphs are
	// uploaded to. Default: 256x256.
	CacheWidth  uint32
	CacheHeight uint32

	// MaxCacheSize caps the suggested size of CacheTooSmallError.
	// Default: 8192.
	MaxCacheSize uint32

	// Padding is the number of empty texels kept around packed glyphs.
	// Default: 1.
	Padding int

	// ShapeCacheSize is the number of shaped runs kept. Default: 1024.
	ShapeCacheSize int

	// GlyphCacheSize is the number of rasterized glyphs kept. Default: 2048.
	GlyphCacheSize int

	// Language is the BCP 47 tag passed to the shaper. Default: "en".
	Language string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		CacheWidth:     256,
		CacheHeight:    256,
		MaxCacheSize:   8192,
		Padding:        1,
		ShapeCacheSize: 1024,
		GlyphCacheSize: 2048,
		Language:       "en",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CacheWidth == 0 {
		c.CacheWidth = def.CacheWidth
	}
	if c.CacheHeight == 0 {
		c.CacheHeight = def.CacheHeight
	}
	if c.MaxCacheSize == 0 {
		c.MaxCacheSize = def.MaxCacheSize
	}
	if c.Padding <= 0 {
		c.Padding = def.Padding
	}
	if c.ShapeCacheSize <= 0 {
		c.ShapeCacheSize = def.ShapeCacheSize
	}
	if c.GlyphCacheSize <= 0 {
		c.GlyphCacheSize = def.GlyphCacheSize
	}
	if c.Language == "" {
		c.Language = def.Language
	}
	return c
}

// UploadFunc writes a width x height coverage bitmap into the cache texture
// at (x, y). data is tightly packed, one byte per texel.
type UploadFunc func(x, y, width, height uint32, data []byte) error

// Engine lays out queued sections.
type Engine struct {
	config   Config
	language language.Language

	fonts []*Font
	queue []Section

	shaper  shaping.HarfbuzzShaper
	shapes  *lru.Cache[shapeKey, shapedRun]
	bitmaps *lru.Cache[glyphKey, bitmap]
	rast    *vector.Rasterizer

	packer *atlas.Packer
	placed map[glyphKey]atlas.Region
	cacheW uint32
	cacheH uint32
}

// NewEngine creates an Engine.
func NewEngine(config Config) *Engine {
	config = config.withDefaults()
	return &Engine{
		config:   config,
		language: language.NewLanguage(config.Language),
		shapes:   lru.New[shapeKey, shapedRun](config.ShapeCacheSize),
		bitmaps:  lru.New[glyphKey, bitmap](config.GlyphCacheSize),
		packer:   atlas.NewPacker(int(config.CacheWidth), int(config.CacheHeight), config.Padding),
		placed:   make(map[glyphKey]atlas.Region),
		cacheW:   config.CacheWidth,
		cacheH:   config.CacheHeight,
	}
}

// AddFont registers f and returns its ID.
func (e *Engine) AddFont(f *Font) FontID {
	e.fonts = append(e.fonts, f)
	return FontID(len(e.fonts) - 1)
}

// AddFontData parses data and registers the font.
func (e *Engine) AddFontData(data []byte) (FontID, error) {
	f, err := ParseFont(data)
	if err != nil {
		return 0, err
	}
	return e.AddFont(f), nil
}

func (e *Engine) font(id FontID) (*Font, error) {
	if id < 0 || int(id) >= len(e.fonts) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFont, id)
	}
	return e.fonts[id], nil
}

// Queue adds a section to the next Process call.
func (e *Engine) Queue(s Section) {
	e.queue = append(e.queue, s)
}

// Pending returns the number of queued sections.
func (e *Engine) Pending() int {
	return len(e.queue)
}

// Discard drops the queued sections. Callers that give up on a frame after
// a *CacheTooSmallError use it so the sections are not drawn again with the
// next frame.
func (e *Engine) Discard() {
	clear(e.queue)
	e.queue = e.queue[:0]
}

// CacheSize returns the cache dimensions glyphs are packed for.
func (e *Engine) CacheSize() (width, height uint32) {
	return e.cacheW, e.cacheH
}

// ResizeCache switches to a new, empty cache texture of the given size.
// Every glyph is uploaded again on its next use.
func (e *Engine) ResizeCache(width, height uint32) {
	e.cacheW, e.cacheH = width, height
	e.packer = atlas.NewPacker(int(width), int(height), e.config.Padding)
	clear(e.placed)
}

// positioned is a laid out glyph before cache placement.
type positioned struct {
	key    glyphKey
	bitmap bitmap
	x, y   int // top-left texel on screen
	color  [4]float32
	bounds glyph.Rect
	z      float32
}

// Process lays out the queued sections for a screenWidth x screenHeight
// target and returns their vertices. New glyphs are written through upload.
//
// A *CacheTooSmallError leaves the queue intact so the caller can resize
// the cache with the suggested size and call Process again. Any other
// error drops the queue.
func (e *Engine) Process(screenWidth, screenHeight float32, upload UploadFunc) ([]glyph.GlyphVertex, error) {
	glyphs, err := e.layoutQueue(screenWidth, screenHeight)
	if err != nil {
		e.queue = e.queue[:0]
		return nil, err
	}
	if err := e.place(glyphs, upload); err != nil {
		if !errors.As(err, new(*CacheTooSmallError)) {
			e.queue = e.queue[:0]
		}
		return nil, err
	}
	e.queue = e.queue[:0]

	cw, ch := float32(e.cacheW), float32(e.cacheH)
	out := make([]glyph.GlyphVertex, 0, len(glyphs))
	for _, g := range glyphs {
		r := e.placed[g.key]
		x, y := float32(g.x), float32(g.y)
		w, h := float32(r.Width), float32(r.Height)
		out = append(out, glyph.GlyphVertex{
			TexCoords: glyph.Rect{
				Min: glyph.Point{X: float32(r.X) / cw, Y: float32(r.Y) / ch},
				Max: glyph.Point{X: float32(r.X+r.Width) / cw, Y: float32(r.Y+r.Height) / ch},
			},
			PixelCoords: glyph.Rect{
				Min: glyph.Point{X: x, Y: y},
				Max: glyph.Point{X: x + w, Y: y + h},
			},
			Bounds:       g.bounds,
			ScreenWidth:  screenWidth,
			ScreenHeight: screenHeight,
			Color:        g.color,
			Z:            g.z,
		})
	}
	return out, nil
}

// place makes sure every glyph has a cache region. On overflow it clears
// the cache and retries once with only this frame's glyphs.
func (e *Engine) place(glyphs []positioned, upload UploadFunc) error {
	maxSize := int(e.config.MaxCacheSize)
	for _, g := range glyphs {
		if g.bitmap.width+e.config.Padding > maxSize || g.bitmap.height+e.config.Padding > maxSize {
			return fmt.Errorf("%w: %dx%d", ErrGlyphTooLarge, g.bitmap.width, g.bitmap.height)
		}
	}

	for attempt := 0; ; attempt++ {
		err := e.placeAll(glyphs, upload)
		if !errors.Is(err, atlas.ErrFull) {
			return err
		}
		if attempt > 0 {
			return e.tooSmall()
		}
		glyph.Logger().Debug("glyph cache full, repacking frame",
			"width", e.cacheW, "height", e.cacheH, "glyphs", len(e.placed))
		e.packer.Reset()
		clear(e.placed)
	}
}

func (e *Engine) placeAll(glyphs []positioned, upload UploadFunc) error {
	for _, g := range glyphs {
		if _, ok := e.placed[g.key]; ok {
			continue
		}
		r, err := e.packer.Allocate(g.bitmap.width, g.bitmap.height)
		if err != nil {
			return err
		}
		e.placed[g.key] = r
		if upload != nil {
			//nolint:gosec // regions lie inside the cache
			if err := upload(uint32(r.X), uint32(r.Y), uint32(r.Width), uint32(r.Height), g.bitmap.pix); err != nil {
				return fmt.Errorf("layout: upload glyph: %w", err)
			}
		}
	}
	return nil
}

func (e *Engine) tooSmall() error {
	w := min(e.cacheW*2, e.config.MaxCacheSize)
	h := min(e.cacheH*2, e.config.MaxCacheSize)
	if w == e.cacheW && h == e.cacheH {
		return fmt.Errorf("%w: frame glyphs exceed %dx%d", ErrCacheTooSmall, w, h)
	}
	return &CacheTooSmallError{Width: w, Height: h}
}

func (e *Engine) layoutQueue(screenWidth, screenHeight float32) ([]positioned, error) {
	var out []positioned
	for _, s := range e.queue {
		var err error
		out, err = e.layoutSection(out, s, screenWidth, screenHeight)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// line is one '\n'-separated line of a section. spans[i] is the span index
// of runes[i]; first is the span the line starts in.
type line struct {
	runes []rune
	spans []int
	first int
}

func splitLines(spans []Span) []line {
	lines := []line{{}}
	for si, sp := range spans {
		cur := &lines[len(lines)-1]
		if len(cur.runes) == 0 {
			cur.first = si
		}
		for _, r := range sp.Text {
			if r == '\n' {
				lines = append(lines, line{first: si})
				cur = &lines[len(lines)-1]
				continue
			}
			cur.runes = append(cur.runes, r)
			cur.spans = append(cur.spans, si)
		}
	}
	return lines
}

func (e *Engine) layoutSection(out []positioned, s Section, screenWidth, screenHeight float32) ([]positioned, error) {
	bounds := s.Bounds
	if bounds == (glyph.Rect{}) {
		bounds = glyph.Rect{Max: glyph.Point{X: screenWidth, Y: screenHeight}}
	}

	y := s.Position.Y
	for _, ln := range splitLines(s.Spans) {
		m, err := e.lineMetrics(s.Spans, ln)
		if err != nil {
			return nil, err
		}

		type shapedPart struct {
			span int
			run  shapedRun
		}
		runs := splitRuns(ln.runes, ln.spans)
		parts := make([]shapedPart, 0, len(runs))
		var width float32
		for _, r := range runs {
			sp := s.Spans[r.span]
			if sp.Size <= 0 {
				continue
			}
			f, err := e.font(sp.Font)
			if err != nil {
				return nil, err
			}
			sr := e.shape(sp.Font, f, floatToFixed(sp.Size), r)
			parts = append(parts, shapedPart{span: r.span, run: sr})
			width += sr.advance
		}

		pen := s.Position.X
		switch s.Align {
		case AlignCenter:
			pen -= width / 2
		case AlignRight:
			pen -= width
		}
		baseline := y + m.ascent

		for _, p := range parts {
			sp := s.Spans[p.span]
			f := e.fonts[sp.Font]
			size := floatToFixed(sp.Size)
			for _, g := range p.run.glyphs {
				key := glyphKey{font: sp.Font, id: g.id, size: size}
				bmp, err := e.bitmap(key, f)
				if err != nil {
					return nil, err
				}
				if bmp.empty() {
					continue
				}
				out = append(out, positioned{
					key:    key,
					bitmap: bmp,
					x:      round(pen+g.x) + bmp.left,
					y:      round(baseline+g.y) + bmp.top,
					color:  sp.Color,
					bounds: bounds,
					z:      s.Z,
				})
			}
			pen += p.run.advance
		}
		y += m.height
	}
	return out, nil
}

// lineMetrics returns the largest metrics among the spans used by ln.
func (e *Engine) lineMetrics(spans []Span, ln line) (lineMetrics, error) {
	var m lineMetrics
	visit := func(si int) error {
		sp := spans[si]
		if sp.Size <= 0 {
			return nil
		}
		f, err := e.font(sp.Font)
		if err != nil {
			return err
		}
		fm := f.metrics(floatToFixed(sp.Size))
		m.ascent = max(m.ascent, fm.ascent)
		m.descent = max(m.descent, fm.descent)
		m.height = max(m.height, fm.height)
		return nil
	}
	if len(spans) == 0 {
		return m, nil
	}
	if len(ln.spans) == 0 {
		return m, visit(ln.first)
	}
	last := -1
	for _, si := range ln.spans {
		if si == last {
			continue
		}
		last = si
		if err := visit(si); err != nil {
			return m, err
		}
	}
	return m, nil
}

func round(v float32) int {
	return int(math.Floor(float64(v) + 0.5))
}

// Stats describes the engine caches.
type Stats struct {
	Fonts        int
	Queued       int
	CacheWidth   uint32
	CacheHeight  uint32
	CachedGlyphs int
	Utilization  float64

	ShapedRuns    int
	ShapeHitRate  float64
	Bitmaps       int
	BitmapHitRate float64
}

// Stats returns a snapshot of the engine state.
func (e *Engine) Stats() Stats {
	shapes, bitmaps := e.shapes.Stats(), e.bitmaps.Stats()
	return Stats{
		Fonts:         len(e.fonts),
		Queued:        len(e.queue),
		CacheWidth:    e.cacheW,
		CacheHeight:   e.cacheH,
		CachedGlyphs:  e.packer.AllocCount(),
		Utilization:   e.packer.Utilization(),
		ShapedRuns:    shapes.Len,
		ShapeHitRate:  shapes.HitRate(),
		Bitmaps:       bitmaps.Len,
		BitmapHitRate: bitmaps.HitRate(),
	}
}
