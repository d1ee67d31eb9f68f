package geometry

import (
	"errors"
	"math"
	"testing"
)

func TestResizeToAspect_Parity(t *testing.T) {
	ratio, err := ParseAspectRatio("4:3")
	if err != nil {
		t.Fatalf("ParseAspectRatio() error = %v", err)
	}

	got := ResizeToAspect(Size{Width: 1281, Height: 720}, ratio)

	if !got.IsEven() {
		t.Fatalf("ResizeToAspect() = %v, want even dimensions", got)
	}
	ratioGot := float64(got.Height) / float64(got.Width)
	if math.Abs(ratioGot-0.75) > 2.0/float64(got.Width) {
		t.Errorf("height/width = %v, want ~0.75", ratioGot)
	}
	if got != (Size{Width: 1280, Height: 960}) {
		t.Errorf("ResizeToAspect() = %v, want 1280x960", got)
	}
}

func TestResizeToAspect_AllStandard(t *testing.T) {
	for _, label := range StandardAspectRatios {
		ratio, err := ParseAspectRatio(label)
		if err != nil {
			t.Fatalf("ParseAspectRatio(%q) error = %v", label, err)
		}
		for _, width := range []int{1280, 1281, 1919, 720, 3} {
			got := ResizeToAspect(Size{Width: width, Height: 2}, ratio)
			if !got.IsEven() {
				t.Errorf("%s width %d: %v not even", label, width, got)
			}
		}
	}
}

func TestParseAspectRatio_Invalid(t *testing.T) {
	for _, s := range []string{"", "16", "16:", ":9", "a:b", "0:9", "16:-9", "1:2:3", "1:65537", "65537:1", "1:4611686018427387905"} {
		if _, err := ParseAspectRatio(s); !errors.Is(err, ErrInvalidAspectRatio) {
			t.Errorf("ParseAspectRatio(%q) error = %v, want ErrInvalidAspectRatio", s, err)
		}
	}
}

func TestAspectRatioOf(t *testing.T) {
	tests := []struct {
		w, h int
		want string
	}{
		{1280, 720, "16:9"},
		{1920, 1080, "16:9"},
		{640, 480, "4:3"},
		{1080, 1080, "1:1"},
		{1080, 1920, "9:16"},
		{1000, 700, "10:7"},
	}
	for _, tt := range tests {
		if got := AspectRatioOf(tt.w, tt.h).String(); got != tt.want {
			t.Errorf("AspectRatioOf(%d, %d) = %s, want %s", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestAspectRatioChoices(t *testing.T) {
	std := AspectRatioChoices(AspectRatio{W: 16, H: 9})
	if len(std) != len(StandardAspectRatios) {
		t.Errorf("choices for 16:9 = %v, want the standard list", std)
	}

	custom := AspectRatioChoices(AspectRatio{W: 10, H: 7})
	if len(custom) != len(StandardAspectRatios)+1 || custom[0] != "10:7" {
		t.Errorf("choices for 10:7 = %v, want source ratio first", custom)
	}
}

func TestResizeToAspect_LargestRatio(t *testing.T) {
	r, err := ParseAspectRatio("1:65536")
	if err != nil {
		t.Fatalf("ParseAspectRatio() error = %v", err)
	}
	got := ResizeToAspect(Size{Width: 1280, Height: 720}, r)
	if got != (Size{Width: 1280, Height: 1280 * 65536}) {
		t.Errorf("ResizeToAspect() = %v, want 1280x%d", got, 1280*65536)
	}
}
