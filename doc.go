// Package glyph draws text glyphs as instanced, textured quads on a
// gogpu/wgpu HAL device.
//
// # Overview
//
// A layout engine (see package layout) shapes and rasterizes text into a
// single-channel glyph atlas and describes every visible glyph with a
// GlyphVertex. This package converts those vertices into GPU instances,
// clipping each quad against its layout bounds, and renders them with one
// instanced draw call per frame.
//
// # Quick Start
//
//	p, err := glyph.NewPipeline(device, queue, glyph.PipelineConfig{})
//	...
//	instances := glyph.Instances(nil, vertices)
//	err = p.Draw(encoder, glyph.ScreenTransform(), instances, targetView)
//	index, _ := queue.Submit(...)
//	p.Submitted(index)
//
// Package brush wraps the pipeline and the layout engine behind a single
// Queue/Draw API.
//
// # Architecture
//
//   - Instance: 52-byte per-instance vertex record
//   - GlyphVertex: layout-space glyph description and its conversion
//   - Cache: reference counted atlas texture, replaced wholesale on growth
//   - Pipeline: transform uniform, sampler, bind group, instance buffer and
//     render pipeline state
//
// # Coordinate System
//
// Pixel coordinates have the origin at the top-left with y increasing
// down. Instances are in normalized device coordinates computed as
// 2*pixel/screen-1 on both axes, so y still increases down; ScreenTransform
// flips it for the usual y-up clip space.
//
// # Resource Lifetime
//
// Pipeline records uploads as buffer copies into the caller's encoder.
// Staging buffers and superseded bind groups stay alive until the caller
// reports the submission index through Submitted and the queue reports it
// complete.
package glyph
