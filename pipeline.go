package glyph

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/glyph/shader"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DefaultMaxInstances is the default instance buffer capacity.
const DefaultMaxInstances = 50_000

// Default atlas dimensions used when PipelineConfig leaves them zero.
const (
	DefaultCacheWidth  = 256
	DefaultCacheHeight = 256
)

// quadVertices is the number of procedural vertices drawn per instance.
const quadVertices = 4

// OverflowPolicy selects what Draw does with more instances than the
// instance buffer holds.
type OverflowPolicy int

const (
	// OverflowReject makes Draw return ErrTooManyInstances without
	// recording anything.
	OverflowReject OverflowPolicy = iota

	// OverflowTruncate draws the first MaxInstances instances and logs a
	// warning.
	OverflowTruncate
)

// String returns the policy name.
func (o OverflowPolicy) String() string {
	switch o {
	case OverflowReject:
		return "reject"
	case OverflowTruncate:
		return "truncate"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(o))
	}
}

// PipelineConfig holds construction parameters for a Pipeline.
type PipelineConfig struct {
	// FilterMode is used for magnification, minification and mipmap
	// selection. Default: linear.
	FilterMode gputypes.FilterMode

	// CacheWidth and CacheHeight size the initial atlas.
	// Default: 256x256.
	CacheWidth  uint32
	CacheHeight uint32

	// MaxCacheDimension bounds IncreaseCacheSize.
	// Default: gputypes.DefaultLimits().MaxTextureDimension2D.
	MaxCacheDimension uint32

	// MaxInstances is the instance buffer capacity. Default: 50,000.
	MaxInstances int

	// TargetFormat is the color format of render targets.
	// Default: BGRA8Unorm.
	TargetFormat gputypes.TextureFormat

	// Overflow selects the behavior for oversized draws.
	Overflow OverflowPolicy

	// Shaders overrides the embedded stages.
	Shaders shader.Set
}

// DefaultPipelineConfig returns the default configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		FilterMode:        gputypes.FilterModeLinear,
		CacheWidth:        DefaultCacheWidth,
		CacheHeight:       DefaultCacheHeight,
		MaxCacheDimension: gputypes.DefaultLimits().MaxTextureDimension2D,
		MaxInstances:      DefaultMaxInstances,
		TargetFormat:      gputypes.TextureFormatBGRA8Unorm,
		Overflow:          OverflowReject,
		Shaders:           shader.Default(),
	}
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	def := DefaultPipelineConfig()
	if c.FilterMode == gputypes.FilterModeUndefined {
		c.FilterMode = def.FilterMode
	}
	if c.CacheWidth == 0 {
		c.CacheWidth = def.CacheWidth
	}
	if c.CacheHeight == 0 {
		c.CacheHeight = def.CacheHeight
	}
	if c.MaxCacheDimension == 0 {
		c.MaxCacheDimension = def.MaxCacheDimension
	}
	if c.MaxInstances <= 0 {
		c.MaxInstances = def.MaxInstances
	}
	if c.TargetFormat == gputypes.TextureFormatUndefined {
		c.TargetFormat = def.TargetFormat
	}
	if c.Shaders.IsZero() {
		c.Shaders = def.Shaders
	}
	return c
}

// Pipeline draws glyph instances into a render target with one instanced
// draw call per frame.
//
// It owns the render pipeline, the transform uniform, the sampler, the
// instance buffer and the bind group tying transform, sampler and the
// current Cache view together. A Pipeline is driven from one goroutine.
type Pipeline struct {
	device hal.Device
	queue  hal.Queue
	config PipelineConfig

	transform hal.Buffer
	sampler   hal.Sampler
	cache     *Cache

	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	bindGroup  hal.BindGroup

	instances hal.Buffer

	vertexShader   hal.ShaderModule
	fragmentShader hal.ShaderModule
	pipeline       hal.RenderPipeline

	currentInstances uint32

	retire    retireQueue
	destroyed bool
}

// NewPipeline creates all GPU objects of the glyph pipeline. On error every
// object created so far is destroyed.
func NewPipeline(device hal.Device, queue hal.Queue, config PipelineConfig) (*Pipeline, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if queue == nil {
		return nil, ErrNilQueue
	}
	config = config.withDefaults()
	if err := validateCacheSize(config.CacheWidth, config.CacheHeight, config.MaxCacheDimension); err != nil {
		return nil, err
	}

	p := &Pipeline{
		device: device,
		queue:  queue,
		config: config,
	}
	if err := p.init(); err != nil {
		p.destroyResources()
		return nil, err
	}

	Logger().Debug("glyph pipeline created",
		"cache_width", config.CacheWidth,
		"cache_height", config.CacheHeight,
		"max_instances", config.MaxInstances,
		"instance_buffer_bytes", uint64(config.MaxInstances)*InstanceSize,
		"format", config.TargetFormat,
	)
	return p, nil
}

func (p *Pipeline) init() error {
	transform, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "glyph_transform",
		Size:  TransformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create transform buffer: %w", err)
	}
	p.transform = transform
	if err := p.queue.WriteBuffer(transform, 0, IdentityTransform().Bytes()); err != nil {
		return fmt.Errorf("write initial transform: %w", err)
	}

	// No border color: clamp-to-edge never samples outside the atlas.
	sampler, err := p.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "glyph_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    p.config.FilterMode,
		MinFilter:    p.config.FilterMode,
		MipmapFilter: p.config.FilterMode,
		LodMinClamp:  -100,
		LodMaxClamp:  100,
		Compare:      gputypes.CompareFunctionUndefined,
		Anisotropy:   1,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	p.sampler = sampler

	cache, err := newCache(p.device, p.queue, p.config.CacheWidth, p.config.CacheHeight)
	if err != nil {
		return err
	}
	p.cache = cache

	// Bind group layout:
	//   Binding 0: transform (uniform buffer, vertex)
	//   Binding 1: sampler (fragment)
	//   Binding 2: glyph atlas (texture_2d, fragment)
	bindLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "glyph_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create glyph uniform layout: %w", err)
	}
	p.bindLayout = bindLayout

	bindGroup, err := p.createBindGroup(cache)
	if err != nil {
		return err
	}
	p.bindGroup = bindGroup

	instances, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "glyph_instances",
		Size:  uint64(p.config.MaxInstances) * InstanceSize,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create instance buffer: %w", err)
	}
	p.instances = instances

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "glyph_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create glyph pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	p.vertexShader, err = p.createShader(p.config.Shaders.Vertex)
	if err != nil {
		return err
	}
	p.fragmentShader, err = p.createShader(p.config.Shaders.Fragment)
	if err != nil {
		return err
	}

	return p.createRenderPipeline()
}

func (p *Pipeline) createShader(stage shader.Stage) (hal.ShaderModule, error) {
	src, err := stage.Source()
	if err != nil {
		return nil, err
	}
	module, err := p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  stage.Label,
		Source: src,
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s shader: %w", stage.Label, err)
	}
	return module, nil
}

func (p *Pipeline) createRenderPipeline() error {
	blend := gputypes.BlendStateAlpha()
	stripIndex := gputypes.IndexFormatUint16

	pipeline, err := p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "glyph_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.vertexShader,
			EntryPoint: p.config.Shaders.Vertex.EntryPoint,
			Buffers:    instanceBufferLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     p.fragmentShader,
			EntryPoint: p.config.Shaders.Fragment.EntryPoint,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    p.config.TargetFormat,
					Blend:     &blend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:         gputypes.PrimitiveTopologyTriangleStrip,
			StripIndexFormat: &stripIndex,
			FrontFace:        gputypes.FrontFaceCW,
			CullMode:         gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("create glyph pipeline: %w", err)
	}
	p.pipeline = pipeline
	return nil
}

func (p *Pipeline) createBindGroup(cache *Cache) (hal.BindGroup, error) {
	bg, err := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "glyph_bind_group",
		Layout: p.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: p.transform.NativeHandle(), Offset: 0, Size: TransformSize,
			}},
			{Binding: 1, Resource: gputypes.SamplerBinding{
				Sampler: p.sampler.NativeHandle(),
			}},
			{Binding: 2, Resource: gputypes.TextureViewBinding{
				TextureView: cache.View().NativeHandle(),
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create glyph bind group: %w", err)
	}
	return bg, nil
}

// Cache returns a new reference to the current atlas. The caller must
// Release it when done. After IncreaseCacheSize the returned Cache is no
// longer the one being sampled. Cache returns nil once the pipeline is
// destroyed.
func (p *Pipeline) Cache() *Cache {
	if p.destroyed {
		return nil
	}
	return p.cache.Retain()
}

// CacheSize returns the dimensions of the current atlas, or 0x0 after
// Destroy.
func (p *Pipeline) CacheSize() (width, height uint32) {
	if p.destroyed {
		return 0, 0
	}
	return p.cache.Size()
}

// Destroyed reports whether Destroy has been called.
func (p *Pipeline) Destroyed() bool { return p.destroyed }

// IncreaseCacheSize replaces the atlas with an empty one of the given size
// and rebinds it. Glyphs written to the old atlas must be uploaded again.
//
// On error the previous atlas and bind group stay in use.
func (p *Pipeline) IncreaseCacheSize(width, height uint32) error {
	if p.destroyed {
		return ErrPipelineDestroyed
	}
	if err := validateCacheSize(width, height, p.config.MaxCacheDimension); err != nil {
		return err
	}

	cache, err := newCache(p.device, p.queue, width, height)
	if err != nil {
		return fmt.Errorf("resize glyph cache: %w", err)
	}
	bindGroup, err := p.createBindGroup(cache)
	if err != nil {
		cache.Release()
		return fmt.Errorf("resize glyph cache: %w", err)
	}

	oldCache, oldGroup := p.cache, p.bindGroup
	p.retire.add("glyph_bind_group", func() { p.device.DestroyBindGroup(oldGroup) })
	p.retire.add("glyph_cache", oldCache.Release)
	p.cache, p.bindGroup = cache, bindGroup

	oldW, oldH := oldCache.Size()
	Logger().Info("glyph cache resized",
		"from_width", oldW, "from_height", oldH,
		"width", width, "height", height)
	return nil
}

// Draw uploads transform and instances and records a render pass drawing
// them into target. The uploads are recorded into encoder as buffer
// copies, so they take effect in GPU order with the draw.
//
// Draw fails with ErrTooManyInstances when instances exceeds the
// capacity, unless the pipeline was configured with OverflowTruncate.
func (p *Pipeline) Draw(encoder hal.CommandEncoder, transform Transform, instances []Instance, target hal.TextureView) error {
	if p.destroyed {
		return ErrPipelineDestroyed
	}
	if len(instances) > p.config.MaxInstances {
		if p.config.Overflow != OverflowTruncate {
			return fmt.Errorf("%w: %d instances exceeds max %d",
				ErrTooManyInstances, len(instances), p.config.MaxInstances)
		}
		Logger().Warn("glyph instances truncated",
			"count", len(instances), "max", p.config.MaxInstances)
		instances = instances[:p.config.MaxInstances]
	}

	p.Maintain()

	if err := p.upload(encoder, "glyph_transform_staging", transform.Bytes(), p.transform); err != nil {
		return err
	}
	if len(instances) > 0 {
		if err := p.upload(encoder, "glyph_instances_staging", EncodeInstances(instances), p.instances); err != nil {
			return err
		}
	}
	p.currentInstances = uint32(len(instances)) //nolint:gosec // bounded by MaxInstances

	return p.Redraw(encoder, target)
}

// upload copies data into a mapped staging buffer and records a copy from
// it into dst. The staging buffer is retired until the submission
// containing the copy has completed.
func (p *Pipeline) upload(encoder hal.CommandEncoder, label string, data []byte, dst hal.Buffer) error {
	size := uint64(len(data))
	staging, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", label, err)
	}

	mapping, err := p.device.MapBuffer(staging, 0, size)
	if err != nil {
		p.device.DestroyBuffer(staging)
		return fmt.Errorf("map %s: %w", label, err)
	}
	copy(unsafe.Slice((*byte)(mapping.Ptr), size), data) //nolint:gosec // mapping spans size bytes
	if err := p.device.UnmapBuffer(staging); err != nil {
		p.device.DestroyBuffer(staging)
		return fmt.Errorf("unmap %s: %w", label, err)
	}

	encoder.CopyBufferToBuffer(staging, dst, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	p.retire.add(label, func() { p.device.DestroyBuffer(staging) })
	return nil
}

// Redraw records a render pass drawing the instances of the last Draw into
// target. The pass loads the existing contents of target, so glyphs are
// composited over what is already there.
func (p *Pipeline) Redraw(encoder hal.CommandEncoder, target hal.TextureView) error {
	if p.destroyed {
		return ErrPipelineDestroyed
	}

	pass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "glyph_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:    target,
				LoadOp:  gputypes.LoadOpLoad,
				StoreOp: gputypes.StoreOpStore,
			},
		},
	})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.bindGroup, nil)
	pass.SetVertexBuffer(0, p.instances, 0)
	pass.Draw(quadVertices, p.currentInstances, 0, 0)
	pass.End()
	return nil
}

// Submitted tells the pipeline that everything recorded since the last
// call was submitted with the given queue submission index. Objects
// retired in that window are destroyed once the index completes.
func (p *Pipeline) Submitted(index uint64) {
	p.retire.submitted(index)
}

// Maintain destroys retired objects whose submissions have completed.
// Draw calls it; callers that stop drawing can call it directly.
func (p *Pipeline) Maintain() {
	if freed := p.retire.triage(p.queue.PollCompleted()); freed > 0 {
		Logger().Debug("glyph pipeline released retired objects", "count", freed)
	}
}

// Stats describes the current state of a Pipeline.
type Stats struct {
	Instances    int
	MaxInstances int
	CacheWidth   uint32
	CacheHeight  uint32
	Retired      int
}

// Stats returns a snapshot of the pipeline state.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Instances:    int(p.currentInstances),
		MaxInstances: p.config.MaxInstances,
		Retired:      p.retire.len(),
	}
	if p.cache != nil {
		s.CacheWidth, s.CacheHeight = p.cache.Size()
	}
	return s
}

// Config returns the effective configuration after defaults.
func (p *Pipeline) Config() PipelineConfig {
	return p.config
}

// Destroy releases every GPU object of the pipeline, including retired
// ones. The caller must make sure the GPU no longer uses them. Safe to
// call more than once.
func (p *Pipeline) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.retire.flush()
	p.destroyResources()
}

// destroyResources releases pipeline objects in reverse creation order.
func (p *Pipeline) destroyResources() {
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.fragmentShader != nil {
		p.device.DestroyShaderModule(p.fragmentShader)
		p.fragmentShader = nil
	}
	if p.vertexShader != nil {
		p.device.DestroyShaderModule(p.vertexShader)
		p.vertexShader = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.instances != nil {
		p.device.DestroyBuffer(p.instances)
		p.instances = nil
	}
	if p.bindGroup != nil {
		p.device.DestroyBindGroup(p.bindGroup)
		p.bindGroup = nil
	}
	if p.bindLayout != nil {
		p.device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.cache != nil {
		if p.cache.Refs() > 1 {
			Logger().Warn("glyph cache still referenced at pipeline destroy", "refs", p.cache.Refs())
		}
		p.cache.Release()
		p.cache = nil
	}
	if p.sampler != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
	if p.transform != nil {
		p.device.DestroyBuffer(p.transform)
		p.transform = nil
	}
}

func validateCacheSize(width, height, limit uint32) error {
	if width == 0 || height == 0 || width > limit || height > limit {
		return fmt.Errorf("%w: %dx%d (max %d)", ErrInvalidCacheSize, width, height, limit)
	}
	return nil
}
