package pii

import (
	"errors"
	"fmt"
)

// ErrInvalidBox is returned when a bounding box violates its invariants.
var ErrInvalidBox = errors.New("pii: invalid bounding box")

// BoundingBox is an integer rectangle in page pixel coordinates.
// Invariants: 0 <= X1 < X2 and 0 <= Y1 < Y2.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`

	// Derived fields, populated on serialization for consumers that do not
	// want to recompute them.
	WidthOut  int `json:"width,omitempty"`
	HeightOut int `json:"height,omitempty"`
	AreaOut   int `json:"area,omitempty"`
}

// NewBoundingBox validates and constructs a bounding box.
func NewBoundingBox(x1, y1, x2, y2 int) (BoundingBox, error) {
	b := BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// Validate checks the box invariants.
func (b BoundingBox) Validate() error {
	if b.X1 < 0 || b.Y1 < 0 {
		return fmt.Errorf("%w: negative origin (%d,%d)", ErrInvalidBox, b.X1, b.Y1)
	}
	if b.X1 >= b.X2 || b.Y1 >= b.Y2 {
		return fmt.Errorf("%w: degenerate extent (%d,%d)-(%d,%d)", ErrInvalidBox, b.X1, b.Y1, b.X2, b.Y2)
	}
	return nil
}

// Width returns the horizontal extent in pixels.
func (b BoundingBox) Width() int { return b.X2 - b.X1 }

// Height returns the vertical extent in pixels.
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// Area returns width * height.
func (b BoundingBox) Area() int { return b.Width() * b.Height() }

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (x, y int) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// IoU computes intersection-over-union with another box. The result is in
// [0,1]; disjoint boxes yield 0.
func (b BoundingBox) IoU(other BoundingBox) float64 {
	ix1 := max(b.X1, other.X1)
	iy1 := max(b.Y1, other.Y1)
	ix2 := min(b.X2, other.X2)
	iy2 := min(b.Y2, other.Y2)

	if ix1 >= ix2 || iy1 >= iy2 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Union returns the smallest box covering both b and other.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	return BoundingBox{
		X1: min(b.X1, other.X1),
		Y1: min(b.Y1, other.Y1),
		X2: max(b.X2, other.X2),
		Y2: max(b.Y2, other.Y2),
	}
}

// Expand grows the box by margin pixels on every side, clamping the origin
// at zero.
func (b BoundingBox) Expand(margin int) BoundingBox {
	return BoundingBox{
		X1: max(0, b.X1-margin),
		Y1: max(0, b.Y1-margin),
		X2: b.X2 + margin,
		Y2: b.Y2 + margin,
	}
}

// WithDerived returns a copy with the serialized derived fields populated.
func (b BoundingBox) WithDerived() BoundingBox {
	b.WidthOut = b.Width()
	b.HeightOut = b.Height()
	b.AreaOut = b.Area()
	return b
}
