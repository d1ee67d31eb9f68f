// Package wire defines the JSON document exchanged at the export boundary and
// between the agent and the renderer process. Positions travel as
// comma-joined "x,y" strings here and nowhere else.
package wire

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
)

// ExportRequest is the export boundary document.
type ExportRequest struct {
	VideoData       string        `json:"videoData"`
	VideoPosition   string        `json:"videoPosition"`
	TextOverlays    []TextOverlay `json:"textOverlays"`
	CompositionSize geometry.Size `json:"compositionSize"`
	VideoSize       geometry.Size `json:"videoSize"`

	// DurationInFrames is the editor's own duration. The renderer ignores it
	// and re-derives the length from the probed source.
	DurationInFrames int `json:"durationInFrames,omitempty"`
}

// TextOverlay is one overlay at the boundary.
type TextOverlay struct {
	ID         string `json:"id,omitempty"`
	Text       string `json:"text"`
	Position   string `json:"position"`
	StartFrame *int   `json:"startFrame,omitempty"`
	EndFrame   *int   `json:"endFrame,omitempty"`
}

// ParsePosition parses "x,y". Both parts must be finite numbers; anything
// else is a ValidationError rather than a silent NaN.
func ParsePosition(field, s string) (geometry.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geometry.Point{}, &composition.ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("%q is not of the form x,y", s),
		}
	}
	x, err := parseCoord(parts[0])
	if err != nil {
		return geometry.Point{}, &composition.ValidationError{Field: field, Reason: fmt.Sprintf("x in %q: %v", s, err)}
	}
	y, err := parseCoord(parts[1])
	if err != nil {
		return geometry.Point{}, &composition.ValidationError{Field: field, Reason: fmt.Sprintf("y in %q: %v", s, err)}
	}
	return geometry.Point{X: x, Y: y}, nil
}

func parseCoord(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite")
	}
	return v, nil
}

// FormatPosition serializes p as "x,y" using the shortest representation
// that parses back to the same values.
func FormatPosition(p geometry.Point) string {
	return strconv.FormatFloat(p.X, 'f', -1, 64) + "," + strconv.FormatFloat(p.Y, 'f', -1, 64)
}

// FromComposition builds the boundary document for a composition.
func FromComposition(c composition.Composition) ExportRequest {
	req := ExportRequest{
		VideoData:        c.VideoURL,
		VideoPosition:    FormatPosition(geometry.Point{}),
		TextOverlays:     make([]TextOverlay, len(c.Overlays)),
		CompositionSize:  c.Size,
		VideoSize:        c.Size,
		DurationInFrames: c.DurationInFrames,
	}
	if c.Video != nil {
		req.VideoPosition = FormatPosition(c.Video.Position)
		req.VideoSize = c.Video.Size
	}
	for i, o := range c.Overlays {
		req.TextOverlays[i] = TextOverlay{
			ID:         o.ID,
			Text:       o.Text,
			Position:   FormatPosition(o.Position),
			StartFrame: o.StartFrame,
			EndFrame:   o.EndFrame,
		}
	}
	return req
}

// ToComposition parses and validates the document. durationInFrames
// overrides the document's own duration when positive; the renderer passes
// the value derived from the probed source here.
func (r ExportRequest) ToComposition(durationInFrames int) (composition.Composition, error) {
	if durationInFrames <= 0 {
		durationInFrames = r.DurationInFrames
	}
	videoPos, err := ParsePosition("videoPosition", r.VideoPosition)
	if err != nil {
		return composition.Composition{}, err
	}

	c := composition.Composition{
		Version:          1,
		Size:             r.CompositionSize,
		Video:            &composition.VideoPlacement{Position: videoPos, Size: r.VideoSize},
		VideoURL:         r.VideoData,
		Overlays:         make([]composition.Overlay, len(r.TextOverlays)),
		FPS:              composition.FPS,
		DurationInFrames: durationInFrames,
	}
	for i, t := range r.TextOverlays {
		pos, err := ParsePosition(fmt.Sprintf("textOverlays[%d].position", i), t.Position)
		if err != nil {
			return composition.Composition{}, err
		}
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		c.Overlays[i] = composition.Overlay{
			ID:         id,
			Text:       t.Text,
			Position:   pos,
			StartFrame: t.StartFrame,
			EndFrame:   t.EndFrame,
		}
	}
	if err := c.Validate(); err != nil {
		return composition.Composition{}, err
	}
	return c, nil
}
