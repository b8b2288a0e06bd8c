// Package haltest provides a hal.Device on top of the noop backend that
// records the calls tests care about.
//
// noop hands out zero-sized resources that cannot be told apart, so the
// recording device wraps textures, views and bind groups in values with a
// unique handle.
package haltest

import (
	"errors"
	"sync"
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// Open creates a noop device and queue wrapped for recording.
func Open(t testing.TB) (*Device, *Queue) {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		t.Fatal("noop backend exposed no adapters")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		open.Device.Destroy()
		instance.Destroy()
	})
	q := &Queue{Queue: open.Queue}
	d := &Device{
		Device:         open.Device,
		queue:          q,
		FailTextures:   -1,
		FailBindGroups: -1,
		FailBuffers:    -1,
		FailShaders:    -1,
	}
	return d, q
}

// Texture wraps a noop texture.
type Texture struct {
	hal.Texture
	ID   uintptr
	Desc hal.TextureDescriptor
}

// NativeHandle returns the texture ID.
func (t *Texture) NativeHandle() uintptr { return t.ID }

// View wraps a noop texture view.
type View struct {
	hal.TextureView
	ID      uintptr
	Texture *Texture
}

// NativeHandle returns the view ID.
func (v *View) NativeHandle() uintptr { return v.ID }

// BindGroup wraps a noop bind group and keeps its descriptor.
type BindGroup struct {
	hal.BindGroup
	ID   uintptr
	Desc hal.BindGroupDescriptor
}

// Device records resource creation and destruction.
type Device struct {
	hal.Device
	queue *Queue

	mu     sync.Mutex
	nextID uintptr

	Textures          []*Texture
	Views             []*View
	BindGroups        []*BindGroup
	Buffers           []*hal.BufferDescriptor
	Samplers          []hal.SamplerDescriptor
	Layouts           []hal.BindGroupLayoutDescriptor
	PipeLayouts       []hal.PipelineLayoutDescriptor
	Pipelines         []hal.RenderPipelineDescriptor
	Shaders           []hal.ShaderModuleDescriptor
	DestroyedViews    []uintptr
	DestroyedTextures []uintptr
	DestroyedGroups   []uintptr
	DestroyedBuffers  int
	Encoders          []*Encoder

	DestroyedSamplers    int
	DestroyedLayouts     int
	DestroyedPipeLayouts int
	DestroyedShaders     int
	DestroyedPipelines   int
	FreedCommandBuffers  int

	// FailTextures makes CreateTexture fail once the count reaches zero.
	// Negative disables it.
	FailTextures int
	// FailBindGroups makes CreateBindGroup fail once it reaches zero.
	FailBindGroups int
	// FailBuffers and FailShaders do the same for CreateBuffer and
	// CreateShaderModule.
	FailBuffers int
	FailShaders int
}

// fail counts down n and reports whether the call must fail. Callers hold
// d.mu.
func fail(n *int) bool {
	if *n == 0 {
		return true
	}
	if *n > 0 {
		*n--
	}
	return false
}

func (d *Device) id() uintptr {
	d.nextID++
	return d.nextID
}

// Queue returns the recording queue paired with d.
func (d *Device) Queue() *Queue { return d.queue }

// CreateBuffer records the descriptor.
func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fail(&d.FailBuffers) {
		return nil, ErrInjected
	}
	c := *desc
	d.Buffers = append(d.Buffers, &c)
	return d.Device.CreateBuffer(desc)
}

// DestroyBuffer counts destroyed buffers.
func (d *Device) DestroyBuffer(b hal.Buffer) {
	d.mu.Lock()
	d.DestroyedBuffers++
	d.mu.Unlock()
	d.Device.DestroyBuffer(b)
}

// CreateTexture wraps the noop texture.
func (d *Device) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fail(&d.FailTextures) {
		return nil, ErrInjected
	}
	inner, err := d.Device.CreateTexture(desc)
	if err != nil {
		return nil, err
	}
	t := &Texture{Texture: inner, ID: d.id(), Desc: *desc}
	d.Textures = append(d.Textures, t)
	return t, nil
}

// DestroyTexture records the texture ID.
func (d *Device) DestroyTexture(texture hal.Texture) {
	d.mu.Lock()
	d.DestroyedTextures = append(d.DestroyedTextures, texture.NativeHandle())
	d.mu.Unlock()
	if t, ok := texture.(*Texture); ok {
		d.Device.DestroyTexture(t.Texture)
	}
}

// CreateTextureView wraps the noop view.
func (d *Device) CreateTextureView(texture hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	inner, err := d.Device.CreateTextureView(texture, desc)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	tex, _ := texture.(*Texture)
	v := &View{TextureView: inner, ID: d.id(), Texture: tex}
	d.Views = append(d.Views, v)
	return v, nil
}

// DestroyTextureView records the view ID.
func (d *Device) DestroyTextureView(view hal.TextureView) {
	d.mu.Lock()
	d.DestroyedViews = append(d.DestroyedViews, view.NativeHandle())
	d.mu.Unlock()
	if v, ok := view.(*View); ok {
		d.Device.DestroyTextureView(v.TextureView)
	}
}

// CreateSampler records the descriptor.
func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	d.mu.Lock()
	d.Samplers = append(d.Samplers, *desc)
	d.mu.Unlock()
	return d.Device.CreateSampler(desc)
}

// DestroySampler counts destroyed samplers.
func (d *Device) DestroySampler(s hal.Sampler) {
	d.mu.Lock()
	d.DestroyedSamplers++
	d.mu.Unlock()
	d.Device.DestroySampler(s)
}

// CreateBindGroupLayout records the descriptor.
func (d *Device) CreateBindGroupLayout(desc *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error) {
	d.mu.Lock()
	d.Layouts = append(d.Layouts, *desc)
	d.mu.Unlock()
	return d.Device.CreateBindGroupLayout(desc)
}

// DestroyBindGroupLayout counts destroyed layouts.
func (d *Device) DestroyBindGroupLayout(l hal.BindGroupLayout) {
	d.mu.Lock()
	d.DestroyedLayouts++
	d.mu.Unlock()
	d.Device.DestroyBindGroupLayout(l)
}

// CreatePipelineLayout records the descriptor.
func (d *Device) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	d.mu.Lock()
	d.PipeLayouts = append(d.PipeLayouts, *desc)
	d.mu.Unlock()
	return d.Device.CreatePipelineLayout(desc)
}

// DestroyPipelineLayout counts destroyed pipeline layouts.
func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.mu.Lock()
	d.DestroyedPipeLayouts++
	d.mu.Unlock()
	d.Device.DestroyPipelineLayout(l)
}

// CreateBindGroup wraps the noop bind group and keeps its descriptor.
func (d *Device) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fail(&d.FailBindGroups) {
		return nil, ErrInjected
	}
	inner, err := d.Device.CreateBindGroup(desc)
	if err != nil {
		return nil, err
	}
	bg := &BindGroup{BindGroup: inner, ID: d.id(), Desc: *desc}
	d.BindGroups = append(d.BindGroups, bg)
	return bg, nil
}

// DestroyBindGroup records the group ID.
func (d *Device) DestroyBindGroup(group hal.BindGroup) {
	if bg, ok := group.(*BindGroup); ok {
		d.mu.Lock()
		d.DestroyedGroups = append(d.DestroyedGroups, bg.ID)
		d.mu.Unlock()
		d.Device.DestroyBindGroup(bg.BindGroup)
	}
}

// CreateShaderModule records the descriptor.
func (d *Device) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fail(&d.FailShaders) {
		return nil, ErrInjected
	}
	d.Shaders = append(d.Shaders, *desc)
	return d.Device.CreateShaderModule(desc)
}

// DestroyShaderModule counts destroyed shader modules.
func (d *Device) DestroyShaderModule(m hal.ShaderModule) {
	d.mu.Lock()
	d.DestroyedShaders++
	d.mu.Unlock()
	d.Device.DestroyShaderModule(m)
}

// CreateRenderPipeline records the descriptor.
func (d *Device) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.mu.Lock()
	d.Pipelines = append(d.Pipelines, *desc)
	d.mu.Unlock()
	return d.Device.CreateRenderPipeline(desc)
}

// DestroyRenderPipeline counts destroyed pipelines.
func (d *Device) DestroyRenderPipeline(p hal.RenderPipeline) {
	d.mu.Lock()
	d.DestroyedPipelines++
	d.mu.Unlock()
	d.Device.DestroyRenderPipeline(p)
}

// CreateCommandEncoder returns a recording encoder.
func (d *Device) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	inner, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	e := &Encoder{CommandEncoder: inner, device: d}
	d.mu.Lock()
	d.Encoders = append(d.Encoders, e)
	d.mu.Unlock()
	return e, nil
}

// FreeCommandBuffer counts freed command buffers.
func (d *Device) FreeCommandBuffer(cmd hal.CommandBuffer) {
	d.mu.Lock()
	d.FreedCommandBuffers++
	d.mu.Unlock()
	d.Device.FreeCommandBuffer(cmd)
}

// NewEncoder is a CreateCommandEncoder shortcut for tests.
func (d *Device) NewEncoder(t testing.TB) *Encoder {
	t.Helper()
	enc, err := d.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "test"})
	if err != nil {
		t.Fatalf("CreateCommandEncoder: %v", err)
	}
	if err := enc.BeginEncoding("test"); err != nil {
		t.Fatalf("BeginEncoding: %v", err)
	}
	return enc.(*Encoder)
}

// ReadBuffer returns the contents of a noop buffer.
func (d *Device) ReadBuffer(t testing.TB, buf hal.Buffer, size uint64) []byte {
	t.Helper()
	m, err := d.Device.MapBuffer(buf, 0, size)
	if err != nil {
		t.Fatalf("MapBuffer: %v", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(m.Ptr), size))
	return out
}

// Copy is one recorded CopyBufferToBuffer call.
type Copy struct {
	Src, Dst hal.Buffer
	Regions  []hal.BufferCopy
}

// Encoder records copies and render passes.
type Encoder struct {
	hal.CommandEncoder
	device *Device

	Copies []Copy
	Passes []*Pass
}

// CopyBufferToBuffer records the copy.
func (e *Encoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	e.Copies = append(e.Copies, Copy{Src: src, Dst: dst, Regions: regions})
	e.CommandEncoder.CopyBufferToBuffer(src, dst, regions)
}

// BeginRenderPass returns a recording pass.
func (e *Encoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	p := &Pass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), Desc: *desc}
	e.Passes = append(e.Passes, p)
	return p
}

// DrawCall is one recorded Draw.
type DrawCall struct {
	VertexCount, InstanceCount, FirstVertex, FirstInstance uint32
}

// Pass records render pass commands.
type Pass struct {
	hal.RenderPassEncoder
	Desc hal.RenderPassDescriptor

	Pipeline     hal.RenderPipeline
	BindGroups   map[uint32]hal.BindGroup
	VertexBuffer hal.Buffer
	Draws        []DrawCall
	Ended        bool
}

// SetPipeline records the pipeline.
func (p *Pass) SetPipeline(pl hal.RenderPipeline) {
	p.Pipeline = pl
	p.RenderPassEncoder.SetPipeline(pl)
}

// SetBindGroup records the group.
func (p *Pass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	if p.BindGroups == nil {
		p.BindGroups = make(map[uint32]hal.BindGroup)
	}
	p.BindGroups[index] = group
	p.RenderPassEncoder.SetBindGroup(index, group, offsets)
}

// SetVertexBuffer records slot 0.
func (p *Pass) SetVertexBuffer(slot uint32, buf hal.Buffer, offset uint64) {
	if slot == 0 {
		p.VertexBuffer = buf
	}
	p.RenderPassEncoder.SetVertexBuffer(slot, buf, offset)
}

// Draw records the call.
func (p *Pass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.Draws = append(p.Draws, DrawCall{vertexCount, instanceCount, firstVertex, firstInstance})
	p.RenderPassEncoder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// End marks the pass ended.
func (p *Pass) End() {
	p.Ended = true
	p.RenderPassEncoder.End()
}

// TextureWrite is one recorded WriteTexture call.
type TextureWrite struct {
	Texture hal.Texture
	Origin  hal.Origin3D
	Size    hal.Extent3D
	Data    []byte
}

// Queue records texture writes and lets tests hold back completion.
type Queue struct {
	hal.Queue

	mu     sync.Mutex
	Writes []TextureWrite

	stalled   bool
	completed uint64
}

// WriteTexture records the write.
func (q *Queue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error {
	q.mu.Lock()
	q.Writes = append(q.Writes, TextureWrite{
		Texture: dst.Texture,
		Origin:  dst.Origin,
		Size:    *size,
		Data:    append([]byte(nil), data...),
	})
	q.mu.Unlock()
	return q.Queue.WriteTexture(dst, data, layout, size)
}

// Stall freezes PollCompleted at its current value until Resume.
func (q *Queue) Stall() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = q.Queue.PollCompleted()
	q.stalled = true
}

// Resume lets PollCompleted report real progress again.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stalled = false
}

// PollCompleted honors Stall.
func (q *Queue) PollCompleted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stalled {
		return q.completed
	}
	return q.Queue.PollCompleted()
}

// Submit ends the encoder and submits it, returning the submission index.
func Submit(t testing.TB, q hal.Queue, enc hal.CommandEncoder) uint64 {
	t.Helper()
	cmd, err := enc.EndEncoding()
	if err != nil {
		t.Fatalf("EndEncoding: %v", err)
	}
	index, err := q.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return index
}

// ErrInjected is returned by creation calls failed on purpose.
var ErrInjected = errors.New("haltest: injected failure")
