package composition

import (
	"fmt"

	"github.com/heimdex/heimdex-overlay/internal/animation"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
)

// Background is the canvas color under the video layer.
const Background = "#000000"

// Frame is the render tree for one frame index. Layers paint in order:
// background, video, then overlays.
type Frame struct {
	Index      int            `json:"index"`
	Size       geometry.Size  `json:"size"`
	Background string         `json:"background"`
	Video      *VideoLayer    `json:"video,omitempty"`
	Overlays   []OverlayLayer `json:"overlays"`
}

// VideoLayer draws SourceFrame of the source video at the placement.
type VideoLayer struct {
	Position    geometry.Point `json:"position"`
	Size        geometry.Size  `json:"size"`
	SourceFrame int            `json:"sourceFrame"`
}

// OverlayLayer is one visible overlay. LocalFrame counts from the start of
// its visibility window and drives the word animation.
type OverlayLayer struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Position   geometry.Point `json:"position"`
	LocalFrame int            `json:"localFrame"`
	Words      []WordLayer    `json:"words"`
}

// WordLayer is the animated state of one word of an overlay.
type WordLayer struct {
	Index   int     `json:"index"`
	Text    string  `json:"text"`
	Opacity float64 `json:"opacity"`
	OffsetY float64 `json:"offsetY"`
}

// RenderFrame builds the render tree for frame. It has no hidden state, so
// callers may evaluate frames out of order and from many goroutines.
func RenderFrame(frame int, s Snapshot) (Frame, error) {
	if !s.Valid() {
		return Frame{}, &ValidationError{Field: "snapshot", Reason: "not frozen"}
	}
	if frame < 0 || frame >= s.c.DurationInFrames {
		return Frame{}, fmt.Errorf("frame %d of %d: %w", frame, s.c.DurationInFrames, ErrFrameOutOfRange)
	}

	out := Frame{
		Index:      frame,
		Size:       s.c.Size,
		Background: Background,
		Overlays:   []OverlayLayer{},
	}
	if v := s.c.Video; v != nil {
		out.Video = &VideoLayer{Position: v.Position, Size: v.Size, SourceFrame: frame}
	}

	fps := float64(s.c.FPS)
	for _, o := range visible(frame, s.c) {
		start, _ := o.Window(s.c.DurationInFrames)
		local := frame - start
		words := animation.Words(o.Text)
		layer := OverlayLayer{
			ID:         o.ID,
			Text:       o.Text,
			Position:   o.Position,
			LocalFrame: local,
			Words:      make([]WordLayer, len(words)),
		}
		for i, w := range words {
			st := animation.WordState(local, i, fps)
			layer.Words[i] = WordLayer{Index: i, Text: w, Opacity: st.Opacity, OffsetY: st.OffsetY}
		}
		out.Overlays = append(out.Overlays, layer)
	}
	return out, nil
}

// VisibleOverlays returns the overlays whose window contains frame, in paint order.
func VisibleOverlays(frame int, s Snapshot) []Overlay {
	v := visible(frame, s.c)
	out := make([]Overlay, len(v))
	for i, o := range v {
		out[i] = o.clone()
	}
	return out
}

func visible(frame int, c Composition) []Overlay {
	var out []Overlay
	for _, o := range c.Overlays {
		if o.VisibleAt(frame, c.DurationInFrames) {
			out = append(out, o)
		}
	}
	return out
}
