// Command glyphdemo lays out and draws a line of text into an offscreen
// target and prints the pipeline and layout statistics.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/gogpu/glyph"
	"github.com/gogpu/glyph/brush"
	"github.com/gogpu/glyph/layout"
)

var backends = map[string]gputypes.Backend{
	"noop":   gputypes.BackendEmpty,
	"vulkan": gputypes.BackendVulkan,
	"metal":  gputypes.BackendMetal,
	"dx12":   gputypes.BackendDX12,
	"gl":     gputypes.BackendGL,
}

func main() {
	var (
		backend = flag.String("backend", "noop", "HAL backend (noop, vulkan, metal, dx12, gl)")
		width   = flag.Int("width", 800, "target width")
		height  = flag.Int("height", 600, "target height")
		text    = flag.String("text", "Hello, glyph!\nשלום עולם", "text to draw")
		size    = flag.Float64("size", 32, "font size in pixels")
		cache   = flag.Int("cache", 64, "initial glyph cache size")
		frames  = flag.Int("frames", 2, "frames to draw")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	glyph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	opts := options{
		backend: *backend,
		width:   uint32(*width),  //nolint:gosec // flag value
		height:  uint32(*height), //nolint:gosec // flag value
		text:    *text,
		size:    float32(*size),
		cache:   uint32(*cache), //nolint:gosec // flag value
		frames:  *frames,
	}
	if err := run(opts); err != nil {
		log.Fatalf("glyphdemo: %v", err)
	}
}

type options struct {
	backend       string
	width, height uint32
	text          string
	size          float32
	cache         uint32
	frames        int
}

// run draws opts.frames frames on a brush it owns.
func run(opts options) error {
	variant, ok := backends[strings.ToLower(opts.backend)]
	if !ok {
		return fmt.Errorf("unknown backend %q", opts.backend)
	}
	font, err := layout.ParseFont(goregular.TTF)
	if err != nil {
		return fmt.Errorf("parse font: %w", err)
	}

	b, err := brush.NewFromBackend(variant, []*layout.Font{font}, brush.Config{
		Pipeline: glyph.PipelineConfig{
			CacheWidth:   opts.cache,
			CacheHeight:  opts.cache,
			TargetFormat: gputypes.TextureFormatBGRA8Unorm,
		},
	})
	if err != nil {
		return fmt.Errorf("create brush: %w", err)
	}
	defer b.Destroy()

	target, view, err := createTarget(b.Device(), opts.width, opts.height)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	defer func() {
		b.Device().DestroyTextureView(view)
		b.Device().DestroyTexture(target)
	}()

	for i := 0; i < opts.frames; i++ {
		s := layout.Text(opts.text, 0, opts.size, [4]float32{1, 1, 1, 1})
		s.Position = glyph.Point{X: 20, Y: 20}
		b.Queue(s)

		if err := drawFrame(b, view, opts.width, opts.height); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}

	ps := b.Pipeline().Stats()
	es := b.Engine().Stats()
	log.Printf("pipeline: %d instances, cache %dx%d, %d retired",
		ps.Instances, ps.CacheWidth, ps.CacheHeight, ps.Retired)
	log.Printf("layout: %d glyphs cached (%.0f%% of atlas), shape hit rate %.2f, bitmap hit rate %.2f",
		es.CachedGlyphs, es.Utilization*100, es.ShapeHitRate, es.BitmapHitRate)
	return nil
}

func createTarget(device hal.Device, w, h uint32) (hal.Texture, hal.TextureView, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "glyphdemo_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, nil, err
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: "glyphdemo_target_view"})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, nil, err
	}
	return tex, view, nil
}

func drawFrame(b *brush.Brush, view hal.TextureView, w, h uint32) error {
	device := b.Device()
	enc, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "glyphdemo"})
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	if err := enc.BeginEncoding("glyphdemo"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	if err := b.Draw(enc, view, w, h); err != nil {
		enc.DiscardEncoding()
		return err
	}
	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	queue := b.HALQueue()
	index, err := queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	b.Submitted(index)
	return waitForSubmission(queue, index, 5*time.Second)
}

// waitForSubmission polls until index has completed, so the command buffer
// can be freed.
func waitForSubmission(queue hal.Queue, index uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("wait for GPU: submission %d not complete after %v", index, timeout)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}
