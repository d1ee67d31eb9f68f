// Package composition holds the editable unit that is both previewed and
// exported, and the engine that turns it into a per-frame render tree.
package composition

import (
	"fmt"
	"math"

	"github.com/heimdex/heimdex-overlay/internal/geometry"
)

// FPS is the fixed frame rate of every composition.
const FPS = 30

// VideoPlacement is where the source video sits inside the composition.
// It need not fill the canvas.
type VideoPlacement struct {
	Position geometry.Point `json:"position"`
	Size     geometry.Size  `json:"size"`
}

// Composition is the editable aggregate. Overlays are in paint order: later
// entries paint on top. Every accepted mutation returns a new value with
// Version incremented.
type Composition struct {
	Version          int             `json:"version"`
	Size             geometry.Size   `json:"size"`
	Video            *VideoPlacement `json:"video,omitempty"`
	VideoURL         string          `json:"videoUrl,omitempty"`
	Overlays         []Overlay       `json:"overlays"`
	FPS              int             `json:"fps"`
	DurationInFrames int             `json:"durationInFrames"`
}

// New creates a composition sized to the probed source video, with the video
// filling the canvas.
func New(videoURL string, videoSize geometry.Size, durationSeconds float64) (Composition, error) {
	size := geometry.EvenSize(videoSize.Width, videoSize.Height)
	c := Composition{
		Version:          1,
		Size:             size,
		Video:            &VideoPlacement{Size: size},
		VideoURL:         videoURL,
		Overlays:         []Overlay{},
		FPS:              FPS,
		DurationInFrames: DurationFromSeconds(durationSeconds),
	}
	if err := c.Validate(); err != nil {
		return Composition{}, err
	}
	return c, nil
}

// DurationFromSeconds converts a probed media duration to whole frames.
func DurationFromSeconds(seconds float64) int {
	return int(math.Round(seconds * FPS))
}

// Validate checks sizes, placement and every overlay.
func (c Composition) Validate() error {
	if err := ValidateSize("compositionSize", c.Size); err != nil {
		return err
	}
	if c.FPS != FPS {
		return &ValidationError{Field: "fps", Reason: fmt.Sprintf("must be %d", FPS)}
	}
	if c.DurationInFrames <= 0 {
		return &ValidationError{Field: "durationInFrames", Reason: "must be > 0"}
	}
	if c.Video != nil {
		if err := ValidateSize("videoSize", c.Video.Size); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(c.Overlays))
	for i, o := range c.Overlays {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("textOverlays[%d]: %w", i, err)
		}
		if _, dup := seen[o.ID]; dup {
			return &ValidationError{Field: fmt.Sprintf("textOverlays[%d].id", i), Reason: "duplicate id " + o.ID}
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}

// ValidateSize rejects non-positive or odd dimensions.
func ValidateSize(field string, s geometry.Size) error {
	if !s.IsPositive() {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%s must be positive", s)}
	}
	if !s.IsEven() {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%s must have even dimensions", s)}
	}
	return nil
}

// Clone returns a deep copy.
func (c Composition) Clone() Composition {
	if c.Video != nil {
		v := *c.Video
		c.Video = &v
	}
	overlays := make([]Overlay, len(c.Overlays))
	for i, o := range c.Overlays {
		overlays[i] = o.clone()
	}
	c.Overlays = overlays
	return c
}

func (c Composition) next() Composition {
	n := c.Clone()
	n.Version++
	return n
}

// AddOverlay appends o on top of the paint order, clamping its position.
func (c Composition) AddOverlay(o Overlay) Composition {
	n := c.next()
	n.Overlays = append(n.Overlays, MoveTo(o.clone(), o.Position, c.Size))
	return n
}

// ReplaceOverlay swaps the overlay with o's id for o, keeping its place in
// the paint order. It reports false when no such overlay exists.
func (c Composition) ReplaceOverlay(o Overlay) (Composition, bool) {
	i := c.indexOf(o.ID)
	if i < 0 {
		return c, false
	}
	n := c.next()
	n.Overlays[i] = o.clone()
	return n, true
}

// RemoveOverlay drops the overlay with the given id.
func (c Composition) RemoveOverlay(id string) (Composition, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return c, false
	}
	n := c.next()
	n.Overlays = append(n.Overlays[:i], n.Overlays[i+1:]...)
	return n, true
}

// OverlayByID looks up an overlay.
func (c Composition) OverlayByID(id string) (Overlay, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return Overlay{}, false
	}
	return c.Overlays[i].clone(), true
}

func (c Composition) indexOf(id string) int {
	for i, o := range c.Overlays {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// WithVideo replaces the video placement.
func (c Composition) WithVideo(v VideoPlacement) Composition {
	n := c.next()
	n.Video = &v
	return n
}

// Resize changes the canvas size and pulls every overlay back inside it.
// The size must already satisfy ValidateSize.
func (c Composition) Resize(size geometry.Size) (Composition, error) {
	if err := ValidateSize("compositionSize", size); err != nil {
		return c, err
	}
	n := c.next()
	n.Size = size
	for i := range n.Overlays {
		n.Overlays[i] = MoveTo(n.Overlays[i], n.Overlays[i].Position, size)
	}
	return n, nil
}

// ResizeToAspect applies an aspect-ratio change: width is kept, height is
// derived and both are forced even.
func (c Composition) ResizeToAspect(ratio geometry.AspectRatio) (Composition, error) {
	return c.Resize(geometry.ResizeToAspect(c.Size, ratio))
}

// WithDuration sets the total frame count, typically after the source media
// has been probed.
func (c Composition) WithDuration(frames int) (Composition, error) {
	if frames <= 0 {
		return c, &ValidationError{Field: "durationInFrames", Reason: "must be > 0"}
	}
	n := c.next()
	n.DurationInFrames = frames
	return n, nil
}

// Snapshot is an immutable, validated copy of a composition taken at export
// or render time. It is safe to share between goroutines.
type Snapshot struct {
	c Composition
}

// Freeze validates c and returns a snapshot detached from it.
func Freeze(c Composition) (Snapshot, error) {
	if err := c.Validate(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{c: c.Clone()}, nil
}

// Composition returns a copy of the frozen composition.
func (s Snapshot) Composition() Composition {
	return s.c.Clone()
}

func (s Snapshot) Size() geometry.Size   { return s.c.Size }
func (s Snapshot) DurationInFrames() int { return s.c.DurationInFrames }
func (s Snapshot) FPS() int              { return s.c.FPS }
func (s Snapshot) VideoURL() string      { return s.c.VideoURL }
func (s Snapshot) Version() int          { return s.c.Version }

// Video returns the frozen video placement, if any.
func (s Snapshot) Video() (VideoPlacement, bool) {
	if s.c.Video == nil {
		return VideoPlacement{}, false
	}
	return *s.c.Video, true
}

// Valid reports whether s came from Freeze.
func (s Snapshot) Valid() bool {
	return s.c.FPS == FPS
}
