// Package atlas packs rectangles into a fixed-size texture area using
// shelves.
//
// Each rectangle is placed on the first shelf with enough horizontal room
// whose height can hold it; otherwise a new shelf is opened below the last
// one. Allocations are never freed individually, only all at once by Reset.
package atlas

import (
	"errors"
	"fmt"
)

// ErrFull is returned when a rectangle does not fit in the remaining space.
var ErrFull = errors.New("atlas: no space left")

// Region is an allocated rectangle in texel coordinates.
type Region struct {
	X, Y          int
	Width, Height int
}

type shelf struct {
	y      int
	height int
	nextX  int
}

// Packer is a shelf allocator. It is not safe for concurrent use.
type Packer struct {
	width   int
	height  int
	padding int

	shelves []shelf

	allocCount int
	usedArea   int
}

// NewPacker creates a packer for a width x height area. padding texels are
// kept free to the right of and below every region so bilinear sampling
// does not bleed between neighbours.
func NewPacker(width, height, padding int) *Packer {
	return &Packer{
		width:   max(width, 0),
		height:  max(height, 0),
		padding: max(padding, 0),
		shelves: make([]shelf, 0, 16),
	}
}

// Allocate reserves a width x height rectangle. It returns ErrFull if no
// shelf can hold it and no new shelf fits.
func (p *Packer) Allocate(width, height int) (Region, error) {
	if width <= 0 || height <= 0 {
		return Region{}, nil
	}

	pw, ph := width+p.padding, height+p.padding
	if pw > p.width || ph > p.height {
		return Region{}, fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrFull, width, height, p.width, p.height)
	}

	for i := range p.shelves {
		s := &p.shelves[i]
		if s.nextX+pw > p.width || ph > s.height {
			continue
		}
		r := Region{X: s.nextX, Y: s.y, Width: width, Height: height}
		s.nextX += pw
		p.record(width, height)
		return r, nil
	}

	y := 0
	if n := len(p.shelves); n > 0 {
		last := p.shelves[n-1]
		y = last.y + last.height
	}
	if y+ph > p.height {
		return Region{}, ErrFull
	}
	p.shelves = append(p.shelves, shelf{y: y, height: ph, nextX: pw})
	p.record(width, height)
	return Region{X: 0, Y: y, Width: width, Height: height}, nil
}

func (p *Packer) record(width, height int) {
	p.allocCount++
	p.usedArea += width * height
}

// Reset frees every allocation.
func (p *Packer) Reset() {
	p.shelves = p.shelves[:0]
	p.allocCount = 0
	p.usedArea = 0
}

// AllocCount returns the number of successful allocations since the last
// Reset.
func (p *Packer) AllocCount() int {
	return p.allocCount
}

// Utilization returns the fraction of the area covered by regions.
func (p *Packer) Utilization() float64 {
	total := p.width * p.height
	if total == 0 {
		return 0
	}
	return float64(p.usedArea) / float64(total)
}
