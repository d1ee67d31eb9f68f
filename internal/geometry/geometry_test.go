package geometry

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestRoundTrip(t *testing.T) {
	scales := []Scale{
		{1, 1},
		{0.5, 0.5},
		{0.3333333, 0.75},
		{2.5, 0.1},
		{1e-3, 1e3},
		{0.640625, 0.6402777},
	}
	points := []Point{
		{0, 0},
		{100, 200},
		{1279.5, 719.25},
		{-15, 33.3},
		{1e6, 1e-6},
	}

	for _, s := range scales {
		for _, p := range points {
			got := ToComposition(ToDisplay(p, s), s)
			if !almostEqual(got.X, p.X) || !almostEqual(got.Y, p.Y) {
				t.Errorf("ToComposition(ToDisplay(%v, %v)) = %v, want %v", p, s, got, p)
			}
			back := ToDisplay(ToComposition(p, s), s)
			if !almostEqual(back.X, p.X) || !almostEqual(back.Y, p.Y) {
				t.Errorf("ToDisplay(ToComposition(%v, %v)) = %v, want %v", p, s, back, p)
			}
		}
	}
}

func TestSizeRoundTrip(t *testing.T) {
	s := Scale{X: 0.62, Y: 1.7}
	sz := SizeF{Width: 640, Height: 360}
	got := SizeToComposition(SizeToDisplay(sz, s), s)
	if !almostEqual(got.Width, sz.Width) || !almostEqual(got.Height, sz.Height) {
		t.Errorf("size round trip = %v, want %v", got, sz)
	}
}

func TestNewScale(t *testing.T) {
	s, err := NewScale(SizeF{Width: 640, Height: 480}, Size{Width: 1280, Height: 720})
	if err != nil {
		t.Fatalf("NewScale() error = %v", err)
	}
	if s.X != 0.5 {
		t.Errorf("s.X = %v, want 0.5", s.X)
	}
	if !almostEqual(s.Y, 480.0/720.0) {
		t.Errorf("s.Y = %v, want %v", s.Y, 480.0/720.0)
	}
}

func TestNewScale_Degenerate(t *testing.T) {
	tests := []struct {
		name        string
		container   SizeF
		composition Size
	}{
		{"zero composition width", SizeF{640, 360}, Size{0, 720}},
		{"zero composition height", SizeF{640, 360}, Size{1280, 0}},
		{"negative composition", SizeF{640, 360}, Size{-2, 720}},
		{"zero container", SizeF{0, 360}, Size{1280, 720}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScale(tt.container, tt.composition)
			if !errors.Is(err, ErrDegenerateSize) {
				t.Fatalf("NewScale() error = %v, want ErrDegenerateSize", err)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	bounds := Size{Width: 1280, Height: 720}
	tests := []struct {
		in   Point
		want Point
	}{
		{Point{100, 200}, Point{100, 200}},
		{Point{-5, 200}, Point{0, 200}},
		{Point{1500, -1}, Point{1280, 0}},
		{Point{1280, 720}, Point{1280, 720}},
		{Point{99999, 99999}, Point{1280, 720}},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in, bounds); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEvenSize(t *testing.T) {
	tests := []struct {
		w, h int
		want Size
	}{
		{1280, 720, Size{1280, 720}},
		{1281, 721, Size{1280, 720}},
		{3, 2, Size{2, 2}},
	}
	for _, tt := range tests {
		if got := EvenSize(tt.w, tt.h); got != tt.want {
			t.Errorf("EvenSize(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}
