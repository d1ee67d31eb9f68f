package composition

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the sentinel wrapped by every ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrFrameOutOfRange is returned by RenderFrame for frames outside
	// [0, DurationInFrames). It signals a caller bug, not a runtime fault.
	ErrFrameOutOfRange = errors.New("frame out of range")
)

// ValidationError rejects malformed input before any state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
