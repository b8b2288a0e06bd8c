package glyph

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CacheFormat is the texel format of the glyph atlas: one byte of coverage
// per texel, sampled from the red channel.
const CacheFormat = gputypes.TextureFormatR8Unorm

// Cache is the GPU glyph atlas: a single-channel texture and a view the
// pipeline samples from.
//
// A Cache is reference counted. The pipeline holds one reference for as
// long as the cache is current; other holders call Retain and Release.
// The texture is destroyed when the last reference is released, so a
// handle kept across Pipeline.IncreaseCacheSize stays usable for commands
// that were recorded against it.
type Cache struct {
	device hal.Device
	queue  hal.Queue

	texture hal.Texture
	view    hal.TextureView

	width  uint32
	height uint32

	refs atomic.Int32
}

func newCache(device hal.Device, queue hal.Queue, width, height uint32) (*Cache, error) {
	texture, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: "glyph_cache",
		Size: hal.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        CacheFormat,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create glyph cache texture: %w", err)
	}

	view, err := device.CreateTextureView(texture, &hal.TextureViewDescriptor{
		Label:         "glyph_cache_view",
		Format:        CacheFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(texture)
		return nil, fmt.Errorf("create glyph cache view: %w", err)
	}

	c := &Cache{
		device:  device,
		queue:   queue,
		texture: texture,
		view:    view,
		width:   width,
		height:  height,
	}
	c.refs.Store(1)
	return c, nil
}

// View returns the sampleable view of the atlas texture.
func (c *Cache) View() hal.TextureView { return c.view }

// Texture returns the atlas texture.
func (c *Cache) Texture() hal.Texture { return c.texture }

// Size returns the atlas dimensions in texels.
func (c *Cache) Size() (width, height uint32) { return c.width, c.height }

// Update writes a width x height block of coverage bytes at (x, y).
// data holds one byte per texel, rows tightly packed.
func (c *Cache) Update(x, y, width, height uint32, data []byte) error {
	if c.refs.Load() <= 0 {
		return ErrCacheReleased
	}
	if width == 0 || height == 0 {
		return nil
	}
	if uint64(x)+uint64(width) > uint64(c.width) || uint64(y)+uint64(height) > uint64(c.height) {
		return fmt.Errorf("%w: %dx%d at (%d,%d) in %dx%d cache",
			ErrRegionOutOfBounds, width, height, x, y, c.width, c.height)
	}
	if uint64(len(data)) < uint64(width)*uint64(height) {
		return fmt.Errorf("%w: %d bytes for %dx%d region",
			ErrRegionOutOfBounds, len(data), width, height)
	}

	err := c.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture: c.texture,
			Origin:  hal.Origin3D{X: x, Y: y},
			Aspect:  gputypes.TextureAspectAll,
		},
		data[:width*height],
		&hal.ImageDataLayout{
			BytesPerRow:  width,
			RowsPerImage: height,
		},
		&hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("write glyph cache region: %w", err)
	}
	return nil
}

// Retain adds a reference and returns c.
func (c *Cache) Retain() *Cache {
	c.refs.Add(1)
	return c
}

// Release drops a reference. The GPU texture and view are destroyed when
// the count reaches zero. Extra calls are ignored.
func (c *Cache) Release() {
	n := c.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		c.refs.Store(0)
		return
	}
	if c.view != nil {
		c.device.DestroyTextureView(c.view)
		c.view = nil
	}
	if c.texture != nil {
		c.device.DestroyTexture(c.texture)
		c.texture = nil
	}
	Logger().Debug("glyph cache destroyed", "width", c.width, "height", c.height)
}

// Refs returns the current reference count.
func (c *Cache) Refs() int { return int(c.refs.Load()) }
