package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte range within a file.
type Range struct {
	Start int64
	End   int64
}

func (r Range) ContentLength() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange resolves a single Range header against a file of the given
// size. An empty header yields nil. Only the first range of a multi-range
// request is honoured; players seeking through video never send more.
func ParseRange(header string, size int64) (*Range, error) {
	if header == "" {
		return nil, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(spec, ","); multi {
		spec = first
	}
	spec = strings.TrimSpace(spec)

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || strings.Contains(endStr, "-") {
		return nil, ErrInvalidRange
	}

	var r Range
	switch {
	case startStr == "":
		// Suffix form: the last n bytes.
		n, err := parseOffset(endStr)
		if err != nil || n == 0 {
			return nil, ErrInvalidRange
		}
		r = Range{Start: max(size-n, 0), End: size - 1}
	default:
		start, err := parseOffset(startStr)
		if err != nil {
			return nil, ErrInvalidRange
		}
		end := size - 1
		if endStr != "" {
			if end, err = parseOffset(endStr); err != nil {
				return nil, ErrInvalidRange
			}
		}
		r = Range{Start: start, End: end}
	}

	if size <= 0 || r.Start > r.End || r.Start >= size {
		return nil, ErrUnsatisfiable
	}
	r.End = min(r.End, size-1)
	return &r, nil
}

func parseOffset(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, ErrInvalidRange
	}
	return v, nil
}
