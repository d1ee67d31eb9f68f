// Package editor implements the interactive edit session: a single state
// machine for drag, resize and text-edit gestures over one composition.
package editor

import (
	"errors"

	"github.com/heimdex/heimdex-overlay/internal/geometry"
)

var (
	// ErrIllegalTransition is returned when an event is not valid in the
	// current state. The state is left untouched.
	ErrIllegalTransition = errors.New("illegal transition")

	ErrOverlayNotFound = errors.New("overlay not found")
	ErrNoVideo         = errors.New("composition has no video")
	ErrSessionNotFound = errors.New("session not found")
)

// MinResize is the smallest width, in composition pixels, a resize can produce.
const MinResize = 20

// TargetKind distinguishes what a gesture acts on.
type TargetKind string

const (
	TargetOverlay TargetKind = "overlay"
	TargetVideo   TargetKind = "video"
)

// Target is an overlay (by id) or the video box.
type Target struct {
	Kind      TargetKind `json:"kind"`
	OverlayID string     `json:"overlayId,omitempty"`
}

// OverlayTarget and VideoTarget build targets.
func OverlayTarget(id string) Target { return Target{Kind: TargetOverlay, OverlayID: id} }
func VideoTarget() Target           { return Target{Kind: TargetVideo} }

// Handle is the part of a target that received the pointer.
type Handle string

const (
	HandleBody   Handle = "body"
	HandleResize Handle = "resize"
)

// State is one of Idle, Dragging, Resizing or TextEditing.
type State interface {
	Name() string
}

type Idle struct{}

// Dragging holds the offset from the target position to the pointer, in
// composition space, captured on pointer down.
type Dragging struct {
	Target     Target
	DragOrigin geometry.Point
}

// Resizing holds the pointer position and the box size at pointer down.
type Resizing struct {
	Target       Target
	DragOrigin   geometry.Point
	OriginalSize geometry.Size
}

// TextEditing holds the uncommitted text of the overlay being edited.
type TextEditing struct {
	OverlayID string
	Draft     string
}

func (Idle) Name() string        { return "idle" }
func (Dragging) Name() string    { return "dragging" }
func (Resizing) Name() string    { return "resizing" }
func (TextEditing) Name() string { return "text_editing" }

// Event is an input to the session.
type Event interface {
	eventName() string
}

// PointerDown starts a drag (HandleBody) or a resize (HandleResize).
// Pointer is in display space.
type PointerDown struct {
	Target  Target
	Handle  Handle
	Pointer geometry.Point
}

// PointerMove carries the current display-space pointer.
type PointerMove struct {
	Pointer geometry.Point
}

type PointerUp struct{}

type DoubleClick struct {
	OverlayID string
}

type TextInput struct {
	Text string
}

// StopEditing is the blur of the text field; it commits the draft.
type StopEditing struct{}

type SetPreviewMode struct {
	Preview bool
}

// SetViewport reports the rendered pixel box of the editing surface.
type SetViewport struct {
	Container geometry.SizeF
}

func (PointerDown) eventName() string    { return "pointer_down" }
func (PointerMove) eventName() string    { return "pointer_move" }
func (PointerUp) eventName() string      { return "pointer_up" }
func (DoubleClick) eventName() string    { return "double_click" }
func (TextInput) eventName() string      { return "text_input" }
func (StopEditing) eventName() string    { return "stop_editing" }
func (SetPreviewMode) eventName() string { return "set_preview_mode" }
func (SetViewport) eventName() string    { return "set_viewport" }

// EventName returns the wire name of ev.
func EventName(ev Event) string {
	return ev.eventName()
}

// Affordance is an edit handle shown on top of the canvas.
type Affordance struct {
	Target Target `json:"target"`
	Handle Handle `json:"handle"`
}
