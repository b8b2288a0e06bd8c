package glyph

import "errors"

var (
	// ErrNilDevice is returned when a pipeline is created without a device.
	ErrNilDevice = errors.New("glyph: device is nil")

	// ErrNilQueue is returned when a pipeline is created without a queue.
	ErrNilQueue = errors.New("glyph: queue is nil")

	// ErrTooManyInstances is returned by Draw when the instance slice is
	// larger than the pipeline's instance buffer.
	ErrTooManyInstances = errors.New("glyph: too many instances")

	// ErrInvalidCacheSize is returned for zero or oversized atlas dimensions.
	ErrInvalidCacheSize = errors.New("glyph: invalid cache size")

	// ErrCacheReleased is returned when writing to a cache whose last
	// reference has been released.
	ErrCacheReleased = errors.New("glyph: cache released")

	// ErrRegionOutOfBounds is returned when an upload region does not fit
	// inside the cache texture.
	ErrRegionOutOfBounds = errors.New("glyph: region outside cache bounds")

	// ErrPipelineDestroyed is returned by operations on a destroyed pipeline.
	ErrPipelineDestroyed = errors.New("glyph: pipeline destroyed")
)
