package layout

import (
	"errors"
	"testing"

	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"

	"github.com/gogpu/glyph"
)

var white = [4]float32{1, 1, 1, 1}

type upload struct {
	x, y, w, h uint32
	n          int
}

type recorder struct {
	uploads []upload
}

func (r *recorder) upload(x, y, w, h uint32, data []byte) error {
	r.uploads = append(r.uploads, upload{x, y, w, h, len(data)})
	return nil
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, FontID) {
	t.Helper()
	e := NewEngine(cfg)
	id, err := e.AddFontData(goregular.TTF)
	if err != nil {
		t.Fatalf("AddFontData: %v", err)
	}
	return e, id
}

func process(t *testing.T, e *Engine, rec *recorder) []glyph.GlyphVertex {
	t.Helper()
	verts, err := e.Process(800, 600, rec.upload)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return verts
}

func TestParseFont(t *testing.T) {
	f, err := ParseFont(goregular.TTF)
	if err != nil {
		t.Fatal(err)
	}
	if f.Name() != "Go" {
		t.Errorf("Name = %q, want Go", f.Name())
	}
	if _, err := ParseFont([]byte("not a font")); err == nil {
		t.Error("ParseFont accepted garbage")
	}
}

func TestProcessSingleLine(t *testing.T) {
	e, font := newTestEngine(t, Config{})
	rec := &recorder{}

	s := Text("Hi there", font, 24, white)
	s.Position = glyph.Point{X: 10, Y: 20}
	e.Queue(s)
	verts := process(t, e, rec)

	// The space has no outline.
	if len(verts) != 7 {
		t.Fatalf("got %d vertices, want 7", len(verts))
	}
	// 'e' appears twice but is uploaded once.
	if len(rec.uploads) != 6 {
		t.Errorf("got %d uploads, want 6", len(rec.uploads))
	}
	for _, u := range rec.uploads {
		if u.n != int(u.w*u.h) {
			t.Errorf("upload %+v: data length does not match region", u)
		}
	}
	if e.Pending() != 0 {
		t.Error("queue not drained")
	}

	screen := glyph.Rect{Max: glyph.Point{X: 800, Y: 600}}
	prevX := float32(-1)
	for i, v := range verts {
		if v.Bounds != screen {
			t.Errorf("vertex %d bounds = %+v, want screen", i, v.Bounds)
		}
		if v.ScreenWidth != 800 || v.ScreenHeight != 600 || v.Color != white {
			t.Errorf("vertex %d = %+v", i, v)
		}
		if v.PixelCoords.Min.X <= prevX {
			t.Errorf("vertex %d x = %v not right of previous %v", i, v.PixelCoords.Min.X, prevX)
		}
		prevX = v.PixelCoords.Min.X
		tc := v.TexCoords
		if tc.Min.X < 0 || tc.Min.Y < 0 || tc.Max.X > 1 || tc.Max.Y > 1 || tc.Min.X >= tc.Max.X || tc.Min.Y >= tc.Max.Y {
			t.Errorf("vertex %d tex = %+v", i, tc)
		}
		// Texel size matches pixel size.
		if w := (tc.Max.X - tc.Min.X) * 256; w != v.PixelCoords.Width() {
			t.Errorf("vertex %d tex width %v != pixel width %v", i, w, v.PixelCoords.Width())
		}
		if v.PixelCoords.Min.Y < 20 || v.PixelCoords.Max.Y > 20+30 {
			t.Errorf("vertex %d y range %v..%v outside first line", i, v.PixelCoords.Min.Y, v.PixelCoords.Max.Y)
		}
	}
	if verts[0].PixelCoords.Min.X < 10 || verts[0].PixelCoords.Min.X > 14 {
		t.Errorf("first glyph at x=%v, want near 10", verts[0].PixelCoords.Min.X)
	}
}

func TestProcessReusesCache(t *testing.T) {
	e, font := newTestEngine(t, Config{})
	rec := &recorder{}

	e.Queue(Text("glyph", font, 16, white))
	first := process(t, e, rec)
	uploads := len(rec.uploads)

	e.Queue(Text("glyph", font, 16, white))
	second := process(t, e, rec)
	if len(rec.uploads) != uploads {
		t.Errorf("second frame uploaded %d glyphs", len(rec.uploads)-uploads)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("vertex %d differs between frames", i)
		}
	}
	st := e.Stats()
	if st.ShapeHitRate == 0 || st.CachedGlyphs != uploads {
		t.Errorf("stats = %+v", st)
	}
}

func TestProcessAlignment(t *testing.T) {
	e, font := newTestEngine(t, Config{})
	rec := &recorder{}

	firstX := func(a Align) float32 {
		s := Text("Align me", font, 20, white)
		s.Position = glyph.Point{X: 400, Y: 0}
		s.Align = a
		e.Queue(s)
		return process(t, e, rec)[0].PixelCoords.Min.X
	}
	left, center, right := firstX(AlignLeft), firstX(AlignCenter), firstX(AlignRight)

	if !(right < center && center < left) {
		t.Fatalf("left=%v center=%v right=%v", left, center, right)
	}
	// The center shift is half the right shift, up to rounding.
	if d := (left - right) - 2*(left-center); d < -2 || d > 2 {
		t.Errorf("center shift %v is not half of right shift %v", left-center, left-right)
	}
}

func TestProcessNewlines(t *testing.T) {
	e, font := newTestEngine(t, Config{})
	rec := &recorder{}

	e.Queue(Text("x\n\nx", font, 20, white))
	verts := process(t, e, rec)
	if len(verts) != 2 {
		t.Fatalf("got %d vertices, want 2", len(verts))
	}
	a, b := verts[0].PixelCoords, verts[1].PixelCoords
	if a.Min.X != b.Min.X {
		t.Errorf("lines start at different x: %v, %v", a.Min.X, b.Min.X)
	}
	// Two line advances of at least the font size each.
	if dy := b.Min.Y - a.Min.Y; dy < 40 {
		t.Errorf("line advance %v too small", dy)
	}
}

func TestProcessSpansAndBounds(t *testing.T) {
	e, font := newTestEngine(t, Config{})
	rec := &recorder{}

	red := [4]float32{1, 0, 0, 1}
	bounds := glyph.Rect{Min: glyph.Point{X: 5, Y: 5}, Max: glyph.Point{X: 50, Y: 50}}
	e.Queue(Section{
		Spans: []Span{
			{Text: "ab", Font: font, Size: 16, Color: white},
			{Text: "cd", Font: font, Size: 32, Color: red},
		},
		Bounds: bounds,
		Z:      0.25,
	})
	verts := process(t, e, rec)
	if len(verts) != 4 {
		t.Fatalf("got %d vertices, want 4", len(verts))
	}
	for i, v := range verts {
		want := white
		if i >= 2 {
			want = red
		}
		if v.Color != want || v.Bounds != bounds || v.Z != 0.25 {
			t.Errorf("vertex %d = %+v", i, v)
		}
	}
	if verts[2].PixelCoords.Height() <= verts[0].PixelCoords.Height() {
		t.Error("larger span did not produce larger glyphs")
	}
}

func TestProcessUnknownFont(t *testing.T) {
	e, _ := newTestEngine(t, Config{})
	e.Queue(Text("x", FontID(7), 12, white))
	if _, err := e.Process(100, 100, nil); !errors.Is(err, ErrUnknownFont) {
		t.Errorf("err = %v, want ErrUnknownFont", err)
	}
	if e.Pending() != 0 {
		t.Error("failed queue was kept")
	}
}

// glyphSize returns the bitmap size of r at size px.
func glyphSize(t *testing.T, e *Engine, font FontID, r rune, size float32) (int, int) {
	t.Helper()
	f := e.fonts[font]
	var buf sfnt.Buffer
	id, err := f.outln.GlyphIndex(&buf, r)
	if err != nil || id == 0 {
		t.Fatalf("GlyphIndex(%q): %v", r, err)
	}
	b, err := e.rasterize(f, uint16(id), floatToFixed(size))
	if err != nil {
		t.Fatal(err)
	}
	return b.width, b.height
}

func TestProcessRepacksFrame(t *testing.T) {
	probe, font := newTestEngine(t, Config{})
	hw, hh := glyphSize(t, probe, font, 'H', 24)
	iw, ih := glyphSize(t, probe, font, 'I', 24)

	// One shelf that holds either glyph but not both.
	w := uint32(max(hw, iw) + 1)
	h := uint32(max(hh, ih) + 1)
	e, font := newTestEngine(t, Config{CacheWidth: w, CacheHeight: h, MaxCacheSize: 1024})
	rec := &recorder{}

	e.Queue(Text("H", font, 24, white))
	process(t, e, rec)

	e.Queue(Text("I", font, 24, white))
	verts := process(t, e, rec)
	if len(verts) != 1 || len(rec.uploads) != 2 {
		t.Fatalf("vertices=%d uploads=%d", len(verts), len(rec.uploads))
	}
	if u := rec.uploads[1]; u.x != 0 || u.y != 0 {
		t.Errorf("repacked glyph at %d,%d, want origin", u.x, u.y)
	}
	if e.Stats().CachedGlyphs != 1 {
		t.Errorf("CachedGlyphs = %d, want 1", e.Stats().CachedGlyphs)
	}

	e.Queue(Text("HI", font, 24, white))
	_, err := e.Process(800, 600, rec.upload)
	var tooSmall *CacheTooSmallError
	if !errors.As(err, &tooSmall) || !errors.Is(err, ErrCacheTooSmall) {
		t.Fatalf("err = %v, want *CacheTooSmallError", err)
	}
	if tooSmall.Width != 2*w || tooSmall.Height != 2*h {
		t.Errorf("suggested %dx%d, want %dx%d", tooSmall.Width, tooSmall.Height, 2*w, 2*h)
	}
	if e.Pending() != 1 {
		t.Fatal("queue dropped on CacheTooSmallError")
	}

	e.ResizeCache(tooSmall.Width, tooSmall.Height)
	verts = process(t, e, rec)
	if len(verts) != 2 {
		t.Errorf("got %d vertices after resize, want 2", len(verts))
	}
}

func TestDiscard(t *testing.T) {
	e, font := newTestEngine(t, Config{CacheWidth: 16, CacheHeight: 16, MaxCacheSize: 1024})
	rec := &recorder{}

	e.Queue(Text("abcdef", font, 20, white))
	if _, err := e.Process(800, 600, rec.upload); !errors.As(err, new(*CacheTooSmallError)) {
		t.Fatalf("err = %v, want *CacheTooSmallError", err)
	}
	e.Discard()
	if e.Pending() != 0 {
		t.Fatal("Discard left sections queued")
	}

	e.ResizeCache(256, 256)
	e.Queue(Text("ab", font, 20, white))
	if verts := process(t, e, rec); len(verts) != 2 {
		t.Errorf("got %d vertices, want 2", len(verts))
	}
}

func TestProcessCacheAtMaximum(t *testing.T) {
	e, font := newTestEngine(t, Config{CacheWidth: 32, CacheHeight: 32, MaxCacheSize: 32})
	e.Queue(Text("abcdefghijklmnopqrstuvwxyz", font, 14, white))

	_, err := e.Process(800, 600, nil)
	if !errors.Is(err, ErrCacheTooSmall) {
		t.Fatalf("err = %v, want ErrCacheTooSmall", err)
	}
	if errors.As(err, new(*CacheTooSmallError)) {
		t.Error("no larger size can be suggested at the maximum")
	}
}

func TestProcessGlyphTooLarge(t *testing.T) {
	e, font := newTestEngine(t, Config{CacheWidth: 16, CacheHeight: 16, MaxCacheSize: 16})
	e.Queue(Text("W", font, 64, white))
	if _, err := e.Process(800, 600, nil); !errors.Is(err, ErrGlyphTooLarge) {
		t.Errorf("err = %v, want ErrGlyphTooLarge", err)
	}
}

func TestProcessUploadError(t *testing.T) {
	e, font := newTestEngine(t, Config{})
	boom := errors.New("boom")
	e.Queue(Text("a", font, 12, white))
	_, err := e.Process(100, 100, func(_, _, _, _ uint32, _ []byte) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want upload error", err)
	}
}

func TestAlignString(t *testing.T) {
	if AlignCenter.String() != "center" || Align(9).String() != "Align(9)" {
		t.Error("unexpected names")
	}
}
