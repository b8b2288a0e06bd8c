// Package brush ties the glyph pipeline and the layout engine together.
//
// A Brush queues sections of text, lays them out, keeps the pipeline's
// glyph cache large enough for each frame and draws the result with one
// instanced draw call:
//
//	b, err := brush.New(device, queue, []*layout.Font{font}, brush.Config{})
//	...
//	b.Queue(layout.Text("Hello", 0, 32, [4]float32{1, 1, 1, 1}))
//	err = b.Draw(encoder, target, width, height)
//	index, _ := queue.Submit(...)
//	b.Submitted(index)
package brush

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/glyph"
	"github.com/gogpu/glyph/layout"
)

// Brush errors.
var (
	// ErrUnsupportedProvider is returned when a device provider exposes no
	// HAL device and queue.
	ErrUnsupportedProvider = errors.New("brush: provider does not expose HAL types")

	// ErrBackendUnavailable is returned by NewFromBackend for a backend
	// that is not registered.
	ErrBackendUnavailable = errors.New("brush: backend not registered")

	// ErrNoAdapter is returned by NewFromBackend when the backend has no
	// adapter.
	ErrNoAdapter = errors.New("brush: no adapter available")
)

// Config holds Brush construction parameters.
type Config struct {
	Pipeline glyph.PipelineConfig

	// Layout configures the layout engine. Its cache size fields are taken
	// from the pipeline.
	Layout layout.Config

	// KeepDegenerate disables dropping zero-area instances before drawing.
	KeepDegenerate bool
}

// Brush draws queued text sections. It is driven from one goroutine.
type Brush struct {
	config   Config
	pipeline *glyph.Pipeline
	engine   *layout.Engine

	device hal.Device
	queue  hal.Queue

	instances []glyph.Instance
	release   func()
}

// New creates a Brush on device and queue and registers fonts in order, so
// fonts[i] has FontID i.
func New(device hal.Device, queue hal.Queue, fonts []*layout.Font, config Config) (*Brush, error) {
	pipeline, err := glyph.NewPipeline(device, queue, config.Pipeline)
	if err != nil {
		return nil, err
	}
	pc := pipeline.Config()
	config.Pipeline = pc
	config.Layout.CacheWidth, config.Layout.CacheHeight = pipeline.CacheSize()
	config.Layout.MaxCacheSize = pc.MaxCacheDimension

	b := &Brush{
		config:   config,
		pipeline: pipeline,
		engine:   layout.NewEngine(config.Layout),
		device:   device,
		queue:    queue,
	}
	for _, f := range fonts {
		b.engine.AddFont(f)
	}
	return b, nil
}

// NewFromProvider creates a Brush on the device of a host application.
// The provider must expose HalDevice() and HalQueue(). When the pipeline
// config leaves TargetFormat unset, the provider's surface format is used.
func NewFromProvider(provider gpucontext.DeviceProvider, fonts []*layout.Font, config Config) (*Brush, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrUnsupportedProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrUnsupportedProvider)
	}

	if config.Pipeline.TargetFormat == gputypes.TextureFormatUndefined {
		config.Pipeline.TargetFormat = provider.SurfaceFormat()
	}
	if info := provider.AdapterInfo(); info.Name != "" {
		glyph.Logger().Debug("glyph brush on shared device", "adapter", info.Name)
	}
	return New(device, queue, fonts, config)
}

// NewFromBackend opens the first adapter of a registered HAL backend and
// creates a Brush that owns the device. The backend package must be
// imported for its registration, e.g. _ "github.com/gogpu/wgpu/hal/noop".
func NewFromBackend(variant gputypes.Backend, fonts []*layout.Font, config Config) (*Brush, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, variant)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Backends: gputypes.BackendsAll})
	if err != nil {
		return nil, fmt.Errorf("brush: create %s instance: %w", variant, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, variant)
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("brush: open %s device: %w", variant, err)
	}

	b, err := New(open.Device, open.Queue, fonts, config)
	if err != nil {
		open.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	b.release = func() {
		open.Device.Destroy()
		instance.Destroy()
	}
	glyph.Logger().Info("glyph brush opened device",
		"backend", variant.String(), "adapter", adapters[0].Info.Name)
	return b, nil
}

// AddFont registers a font with the layout engine.
func (b *Brush) AddFont(f *layout.Font) layout.FontID {
	return b.engine.AddFont(f)
}

// Queue adds a section to the next draw.
func (b *Brush) Queue(s layout.Section) {
	b.engine.Queue(s)
}

// Draw lays out the queued sections for a width x height target and draws
// them with the y-down screen transform.
func (b *Brush) Draw(encoder hal.CommandEncoder, target hal.TextureView, width, height uint32) error {
	return b.DrawWithTransform(encoder, target, glyph.ScreenTransform(), width, height)
}

// DrawWithTransform is Draw with a caller-supplied transform applied to
// the normalized glyph positions.
func (b *Brush) DrawWithTransform(encoder hal.CommandEncoder, target hal.TextureView, transform glyph.Transform, width, height uint32) error {
	if b.pipeline.Destroyed() {
		b.engine.Discard()
		return glyph.ErrPipelineDestroyed
	}
	vertices, err := b.process(float32(width), float32(height))
	if err != nil {
		return err
	}

	b.instances = glyph.Instances(b.instances[:0], vertices)
	if !b.config.KeepDegenerate {
		n := len(b.instances)
		b.instances = glyph.FilterDegenerate(b.instances)
		if dropped := n - len(b.instances); dropped > 0 {
			glyph.Logger().Debug("glyph brush dropped degenerate instances", "count", dropped)
		}
	}
	return b.pipeline.Draw(encoder, transform, b.instances, target)
}

// process runs the layout engine, growing the cache until the frame fits.
// If the cache cannot grow, the frame's sections are discarded.
func (b *Brush) process(width, height float32) ([]glyph.GlyphVertex, error) {
	for {
		cache := b.pipeline.Cache()
		vertices, err := b.engine.Process(width, height, cache.Update)
		cache.Release()

		var tooSmall *layout.CacheTooSmallError
		if !errors.As(err, &tooSmall) {
			return vertices, err
		}
		if err := b.pipeline.IncreaseCacheSize(tooSmall.Width, tooSmall.Height); err != nil {
			b.engine.Discard()
			return nil, fmt.Errorf("brush: grow glyph cache: %w", err)
		}
		b.engine.ResizeCache(tooSmall.Width, tooSmall.Height)
	}
}

// Redraw repeats the last draw into target without laying out again.
func (b *Brush) Redraw(encoder hal.CommandEncoder, target hal.TextureView) error {
	return b.pipeline.Redraw(encoder, target)
}

// Submitted forwards the submission index of the last recorded draw.
func (b *Brush) Submitted(index uint64) {
	b.pipeline.Submitted(index)
}

// Pipeline returns the underlying pipeline.
func (b *Brush) Pipeline() *glyph.Pipeline { return b.pipeline }

// Engine returns the underlying layout engine.
func (b *Brush) Engine() *layout.Engine { return b.engine }

// Device returns the device the brush draws with.
func (b *Brush) Device() hal.Device { return b.device }

// HALQueue returns the queue the brush uploads through.
func (b *Brush) HALQueue() hal.Queue { return b.queue }

// Destroy releases the pipeline and, for NewFromBackend, the device.
func (b *Brush) Destroy() {
	b.pipeline.Destroy()
	if b.release != nil {
		b.release()
		b.release = nil
	}
}
