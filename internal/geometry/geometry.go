// Package geometry maps points and sizes between the display viewport, the
// composition canvas and the source video. Composition space is the single
// source of truth; display coordinates only exist at the editing boundary.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateSize is returned when a scale would require dividing by a
// zero or negative dimension.
var ErrDegenerateSize = errors.New("size has a non-positive dimension")

// Point is a position in pixels. Which space it lives in depends on the caller.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q componentwise.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q componentwise.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Size is a pixel box. Composition and video sizes must be positive and even.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsPositive reports whether both dimensions are greater than zero.
func (s Size) IsPositive() bool {
	return s.Width > 0 && s.Height > 0
}

// IsEven reports whether both dimensions are divisible by two.
func (s Size) IsEven() bool {
	return s.Width%2 == 0 && s.Height%2 == 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// SizeF is a fractional size, used for display-space boxes and resize deltas.
type SizeF struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Float converts an integer size to its fractional form.
func (s Size) Float() SizeF {
	return SizeF{Width: float64(s.Width), Height: float64(s.Height)}
}

// Scale holds independent per-axis factors, display pixels per composition pixel.
// It is never assumed to be 1 or uniform.
type Scale struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewScale derives the scale for a viewport of size container showing a
// composition of size composition. It refuses degenerate sizes instead of
// dividing by zero.
func NewScale(container SizeF, composition Size) (Scale, error) {
	if !composition.IsPositive() {
		return Scale{}, fmt.Errorf("composition %s: %w", composition, ErrDegenerateSize)
	}
	if container.Width <= 0 || container.Height <= 0 {
		return Scale{}, fmt.Errorf("container %.1fx%.1f: %w", container.Width, container.Height, ErrDegenerateSize)
	}
	return Scale{
		X: container.Width / float64(composition.Width),
		Y: container.Height / float64(composition.Height),
	}, nil
}

// Valid reports whether both factors are finite and strictly positive.
func (s Scale) Valid() bool {
	return s.X > 0 && s.Y > 0 && !math.IsInf(s.X, 0) && !math.IsInf(s.Y, 0)
}

// Identity is the scale of a viewport rendered at composition size.
var Identity = Scale{X: 1, Y: 1}

// ToDisplay converts a composition-space point into display space.
func ToDisplay(p Point, s Scale) Point {
	return Point{X: p.X * s.X, Y: p.Y * s.Y}
}

// ToComposition converts a display-space point into composition space.
func ToComposition(p Point, s Scale) Point {
	return Point{X: p.X / s.X, Y: p.Y / s.Y}
}

// SizeToDisplay converts a composition-space size into display space.
func SizeToDisplay(sz SizeF, s Scale) SizeF {
	return SizeF{Width: sz.Width * s.X, Height: sz.Height * s.Y}
}

// SizeToComposition converts a display-space size into composition space.
func SizeToComposition(sz SizeF, s Scale) SizeF {
	return SizeF{Width: sz.Width / s.X, Height: sz.Height / s.Y}
}

// Clamp saturates p into [0, bounds.Width] x [0, bounds.Height].
func Clamp(p Point, bounds Size) Point {
	return Point{
		X: clamp(p.X, 0, float64(bounds.Width)),
		Y: clamp(p.Y, 0, float64(bounds.Height)),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EvenSize forces both dimensions even by dropping one pixel from odd values.
// H.264 encoders reject odd frame dimensions.
func EvenSize(width, height int) Size {
	return Size{Width: width - width%2, Height: height - height%2}
}
