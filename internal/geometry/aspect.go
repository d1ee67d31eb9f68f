package geometry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAspectRatio is returned for ratio strings that are not "w:h"
// with two positive integers of at most MaxAspectComponent.
var ErrInvalidAspectRatio = errors.New("invalid aspect ratio")

// MaxAspectComponent bounds each side of a ratio so that resizing a
// composition cannot overflow. It covers any reduced ratio of a real
// video frame.
const MaxAspectComponent = 1 << 16

// StandardAspectRatios are the output ratios offered by the editor toolbar.
var StandardAspectRatios = []string{"16:9", "4:3", "1:1", "3:4", "9:16"}

// AspectRatio is a width:height pair such as 16:9.
type AspectRatio struct {
	W int
	H int
}

func (r AspectRatio) String() string {
	return fmt.Sprintf("%d:%d", r.W, r.H)
}

// ParseAspectRatio parses "w:h".
func ParseAspectRatio(s string) (AspectRatio, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return AspectRatio{}, fmt.Errorf("%q: %w", s, ErrInvalidAspectRatio)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || w <= 0 || w > MaxAspectComponent {
		return AspectRatio{}, fmt.Errorf("%q: %w", s, ErrInvalidAspectRatio)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h <= 0 || h > MaxAspectComponent {
		return AspectRatio{}, fmt.Errorf("%q: %w", s, ErrInvalidAspectRatio)
	}
	return AspectRatio{W: w, H: h}, nil
}

// ResizeToAspect keeps the current width and derives the height for the
// ratio, flooring and then forcing both dimensions even.
func ResizeToAspect(current Size, ratio AspectRatio) Size {
	height := current.Width * ratio.H / ratio.W
	return EvenSize(current.Width, height)
}

// AspectRatioOf reduces width:height by their greatest common divisor.
func AspectRatioOf(width, height int) AspectRatio {
	if width <= 0 || height <= 0 {
		return AspectRatio{}
	}
	g := gcd(width, height)
	return AspectRatio{W: width / g, H: height / g}
}

// AspectRatioChoices lists the standard ratios, with the source ratio first
// when it is not one of them.
func AspectRatioChoices(source AspectRatio) []string {
	label := source.String()
	for _, r := range StandardAspectRatios {
		if r == label {
			return append([]string(nil), StandardAspectRatios...)
		}
	}
	return append([]string{label}, StandardAspectRatios...)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
