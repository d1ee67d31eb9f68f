package media

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/heimdex/heimdex-overlay/internal/geometry"
)

func TestReadFrame(t *testing.T) {
	size := geometry.Size{Width: 2, Height: 2}
	raw := make([]byte, 2*16)
	for i := range raw {
		raw[i] = byte(i)
	}
	r := bytes.NewReader(raw)

	first, err := ReadFrame(r, size)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if got := first.RGBAAt(1, 0); got.R != 4 || got.A != 7 {
		t.Errorf("pixel (1,0) = %v, want R=4 A=7", got)
	}

	second, err := ReadFrame(r, size)
	if err != nil {
		t.Fatalf("second ReadFrame() error = %v", err)
	}
	if second.Pix[0] != 16 {
		t.Errorf("second frame starts at %d, want 16", second.Pix[0])
	}

	if _, err := ReadFrame(r, size); err != io.EOF {
		t.Errorf("ReadFrame() at end error = %v, want io.EOF", err)
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(make([]byte, 10)), geometry.Size{Width: 2, Height: 2})
	if !errors.Is(err, ErrShortFrame) {
		t.Errorf("ReadFrame() error = %v, want ErrShortFrame", err)
	}
}

func TestDecodeArgs(t *testing.T) {
	args := DecodeArgs("/uploads/video-1.mp4", geometry.Size{Width: 640, Height: 360}, 30)

	for _, want := range []string{"/uploads/video-1.mp4", "pipe:", "rgba", "fps=30,scale=640:360"} {
		if !slices.Contains(args, want) {
			t.Errorf("DecodeArgs() = %v, missing %q", args, want)
		}
	}
	if i := slices.Index(args, "-i"); i < 0 || args[i+1] != "/uploads/video-1.mp4" {
		t.Errorf("DecodeArgs() = %v, input not passed with -i", args)
	}
}

func TestOpenFrames_RejectsEmptySize(t *testing.T) {
	if _, err := OpenFrames(t.Context(), "x.mp4", geometry.Size{}, 30, nil); err == nil {
		t.Error("OpenFrames() error = nil for zero size")
	}
}
