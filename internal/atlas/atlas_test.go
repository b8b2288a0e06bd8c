package atlas

import (
	"errors"
	"testing"
)

func TestPackerShelves(t *testing.T) {
	p := NewPacker(32, 32, 1)

	a, err := p.Allocate(10, 8)
	if err != nil {
		t.Fatal(err)
	}
	if a != (Region{X: 0, Y: 0, Width: 10, Height: 8}) {
		t.Errorf("first = %v", a)
	}

	// Same shelf, to the right of a plus padding.
	b, err := p.Allocate(10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if b != (Region{X: 11, Y: 0, Width: 10, Height: 5}) {
		t.Errorf("second = %v", b)
	}

	// Taller than the first shelf: opens a new one.
	c, err := p.Allocate(4, 12)
	if err != nil {
		t.Fatal(err)
	}
	if c != (Region{X: 0, Y: 9, Width: 4, Height: 12}) {
		t.Errorf("third = %v", c)
	}

	// Fits back on the first shelf.
	d, err := p.Allocate(9, 8)
	if err != nil {
		t.Fatal(err)
	}
	if d != (Region{X: 22, Y: 0, Width: 9, Height: 8}) {
		t.Errorf("fourth = %v", d)
	}

	if p.AllocCount() != 4 {
		t.Errorf("AllocCount = %d, want 4", p.AllocCount())
	}
}

func TestPackerNoOverlap(t *testing.T) {
	p := NewPacker(64, 64, 0)
	var got []Region
	for i := range 40 {
		r, err := p.Allocate(3+i%5, 2+i%7)
		if errors.Is(err, ErrFull) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if r.X < 0 || r.Y < 0 || r.X+r.Width > 64 || r.Y+r.Height > 64 {
			t.Fatalf("region %v outside area", r)
		}
		for _, o := range got {
			if r.X < o.X+o.Width && o.X < r.X+r.Width && r.Y < o.Y+o.Height && o.Y < r.Y+r.Height {
				t.Fatalf("%v overlaps %v", r, o)
			}
		}
		got = append(got, r)
	}
	if len(got) == 0 {
		t.Fatal("nothing allocated")
	}
}

func TestPackerFull(t *testing.T) {
	p := NewPacker(16, 16, 0)

	if _, err := p.Allocate(17, 1); !errors.Is(err, ErrFull) {
		t.Errorf("too wide: %v", err)
	}
	if _, err := p.Allocate(16, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Allocate(16, 7); !errors.Is(err, ErrFull) {
		t.Errorf("no vertical room: %v", err)
	}

	p.Reset()
	if p.AllocCount() != 0 || p.Utilization() != 0 {
		t.Error("Reset kept statistics")
	}
	r, err := p.Allocate(16, 16)
	if err != nil || r != (Region{Width: 16, Height: 16}) {
		t.Errorf("after Reset = %v, %v", r, err)
	}
	if p.Utilization() != 1 {
		t.Errorf("Utilization = %v, want 1", p.Utilization())
	}
}

func TestPackerEmptyRequest(t *testing.T) {
	p := NewPacker(8, 8, 1)
	r, err := p.Allocate(0, 5)
	if err != nil || r != (Region{}) {
		t.Errorf("Allocate(0, 5) = %v, %v", r, err)
	}
	if p.AllocCount() != 0 {
		t.Error("empty request counted")
	}
}
