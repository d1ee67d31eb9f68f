package composition

import (
	"github.com/google/uuid"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
)

// DefaultOverlayText and DefaultOverlayPosition are used by "Add Text".
const DefaultOverlayText = "New Text"

var DefaultOverlayPosition = geometry.Point{X: 50, Y: 50}

// Overlay is one positioned, optionally time-windowed text element.
// Position is always in composition space.
type Overlay struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Position   geometry.Point `json:"position"`
	StartFrame *int           `json:"startFrame,omitempty"`
	EndFrame   *int           `json:"endFrame,omitempty"`
}

// NewOverlay creates an overlay with a fresh id and no visibility window.
func NewOverlay(text string, position geometry.Point) Overlay {
	return Overlay{
		ID:       uuid.NewString(),
		Text:     text,
		Position: position,
	}
}

// Move translates o by a display-space delta, converting it through scale
// and clamping the result to bounds.
func Move(o Overlay, delta geometry.Point, scale geometry.Scale, bounds geometry.Size) Overlay {
	return MoveTo(o, o.Position.Add(geometry.ToComposition(delta, scale)), bounds)
}

// MoveTo places o at a composition-space position, clamped to bounds.
func MoveTo(o Overlay, position geometry.Point, bounds geometry.Size) Overlay {
	o.Position = geometry.Clamp(position, bounds)
	return o
}

// SetText returns o with its text replaced.
func SetText(o Overlay, text string) Overlay {
	o.Text = text
	return o
}

// SetWindow returns o with a new visibility window. Either bound may be nil.
func SetWindow(o Overlay, start, end *int) (Overlay, error) {
	o.StartFrame = copyInt(start)
	o.EndFrame = copyInt(end)
	if err := o.validateWindow(); err != nil {
		return Overlay{}, err
	}
	return o, nil
}

// Window resolves the half-open frame range [start, end) in which o is
// visible for a composition of total frames.
func (o Overlay) Window(total int) (start, end int) {
	start, end = 0, total
	if o.StartFrame != nil {
		start = *o.StartFrame
	}
	if o.EndFrame != nil {
		end = *o.EndFrame
	}
	return start, end
}

// VisibleAt reports whether o is visible at frame.
func (o Overlay) VisibleAt(frame, total int) bool {
	start, end := o.Window(total)
	return start <= frame && frame < end
}

// Validate checks the overlay invariants that do not depend on the canvas.
func (o Overlay) Validate() error {
	if o.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	return o.validateWindow()
}

func (o Overlay) validateWindow() error {
	if o.StartFrame != nil && *o.StartFrame < 0 {
		return &ValidationError{Field: "startFrame", Reason: "must be >= 0"}
	}
	if o.EndFrame != nil && *o.EndFrame <= 0 {
		return &ValidationError{Field: "endFrame", Reason: "must be > 0"}
	}
	if o.StartFrame != nil && o.EndFrame != nil && *o.EndFrame <= *o.StartFrame {
		return &ValidationError{Field: "endFrame", Reason: "must be greater than startFrame"}
	}
	return nil
}

func (o Overlay) clone() Overlay {
	o.StartFrame = copyInt(o.StartFrame)
	o.EndFrame = copyInt(o.EndFrame)
	return o
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IntPtr is a convenience for building optional frame bounds.
func IntPtr(v int) *int {
	return &v
}
