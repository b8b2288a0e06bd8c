package glyph

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/glyph/internal/haltest"
	"github.com/gogpu/gputypes"
)

func TestNewCache(t *testing.T) {
	dev, q := haltest.Open(t)
	c, err := newCache(dev, q, 128, 64)
	if err != nil {
		t.Fatalf("newCache: %v", err)
	}
	if w, h := c.Size(); w != 128 || h != 64 {
		t.Errorf("Size = %dx%d, want 128x64", w, h)
	}
	if len(dev.Textures) != 1 {
		t.Fatalf("created %d textures, want 1", len(dev.Textures))
	}
	desc := dev.Textures[0].Desc
	if desc.Format != gputypes.TextureFormatR8Unorm {
		t.Errorf("Format = %v, want R8Unorm", desc.Format)
	}
	if desc.Usage&gputypes.TextureUsageTextureBinding == 0 || desc.Usage&gputypes.TextureUsageCopyDst == 0 {
		t.Errorf("Usage = %v, want TextureBinding|CopyDst", desc.Usage)
	}
	if c.View() != dev.Views[0] {
		t.Error("View() is not the created view")
	}
	if c.Refs() != 1 {
		t.Errorf("Refs = %d, want 1", c.Refs())
	}
}

func TestCacheUpdate(t *testing.T) {
	dev, q := haltest.Open(t)
	c, err := newCache(dev, q, 64, 64)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]byte, 4*3)
	for i := range data {
		data[i] = byte(i)
	}
	if err := c.Update(10, 20, 4, 3, data); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(q.Writes) != 1 {
		t.Fatalf("got %d texture writes, want 1", len(q.Writes))
	}
	w := q.Writes[0]
	if w.Texture != c.Texture() || w.Origin.X != 10 || w.Origin.Y != 20 {
		t.Errorf("write target = %v at (%d,%d)", w.Texture, w.Origin.X, w.Origin.Y)
	}
	if w.Size.Width != 4 || w.Size.Height != 3 || !slices.Equal(w.Data, data) {
		t.Errorf("write = %dx%d %v", w.Size.Width, w.Size.Height, w.Data)
	}

	tests := []struct {
		name       string
		x, y, w, h uint32
		data       []byte
	}{
		{"right edge", 62, 0, 4, 1, make([]byte, 4)},
		{"bottom edge", 0, 63, 1, 2, make([]byte, 2)},
		{"short data", 0, 0, 4, 4, make([]byte, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Update(tt.x, tt.y, tt.w, tt.h, tt.data)
			if !errors.Is(err, ErrRegionOutOfBounds) {
				t.Errorf("Update error = %v, want ErrRegionOutOfBounds", err)
			}
		})
	}

	if err := c.Update(0, 0, 0, 5, nil); err != nil {
		t.Errorf("empty Update: %v", err)
	}
}

func TestCacheRefCounting(t *testing.T) {
	dev, q := haltest.Open(t)
	c, err := newCache(dev, q, 32, 32)
	if err != nil {
		t.Fatal(err)
	}
	viewID := c.View().NativeHandle()

	shared := c.Retain()
	c.Release()
	if len(dev.DestroyedViews) != 0 {
		t.Fatal("view destroyed while a reference is held")
	}
	if err := shared.Update(0, 0, 1, 1, []byte{255}); err != nil {
		t.Errorf("Update through remaining reference: %v", err)
	}

	shared.Release()
	if !slices.Contains(dev.DestroyedViews, viewID) {
		t.Error("view not destroyed after last Release")
	}
	if len(dev.DestroyedTextures) != 1 {
		t.Errorf("destroyed %d textures, want 1", len(dev.DestroyedTextures))
	}
	if err := shared.Update(0, 0, 1, 1, []byte{255}); !errors.Is(err, ErrCacheReleased) {
		t.Errorf("Update after release = %v, want ErrCacheReleased", err)
	}

	// Extra releases are ignored.
	shared.Release()
	if c.Refs() != 0 || len(dev.DestroyedTextures) != 1 {
		t.Errorf("extra Release: refs %d, destroyed %d", c.Refs(), len(dev.DestroyedTextures))
	}
}
