package editor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
)

// Session is one user's editing of one composition. All methods are
// serialized by the session mutex, so at most one gesture is ever active.
type Session struct {
	ID        string
	MediaID   string
	CreatedAt time.Time

	mu        sync.Mutex
	comp      composition.Composition
	state     State
	preview   bool
	container geometry.SizeF
	scale     geometry.Scale
	updatedAt time.Time
}

// View is a consistent copy of a session's observable state.
type View struct {
	ID           string                  `json:"id"`
	MediaID      string                  `json:"mediaId,omitempty"`
	State        string                  `json:"state"`
	ActiveTarget *Target                 `json:"activeTarget,omitempty"`
	Draft        *string                 `json:"draft,omitempty"`
	Preview      bool                    `json:"preview"`
	Scale        geometry.Scale          `json:"scale"`
	Container    geometry.SizeF          `json:"container"`
	Affordances  []Affordance            `json:"affordances"`
	Composition  composition.Composition `json:"composition"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}

// NewSession starts an idle session over c, displayed at composition size
// until the client reports its viewport.
func NewSession(id, mediaID string, c composition.Composition) (*Session, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:        id,
		MediaID:   mediaID,
		CreatedAt: now,
		comp:      c.Clone(),
		state:     Idle{},
		container: c.Size.Float(),
		scale:     geometry.Identity,
		updatedAt: now,
	}, nil
}

// Apply feeds one event through the state machine.
func (s *Session) Apply(ev Event) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, comp, err := s.transition(ev)
	if err != nil {
		return s.viewLocked(), err
	}
	s.state = next
	s.comp = comp
	s.updatedAt = time.Now()
	return s.viewLocked(), nil
}

func (s *Session) transition(ev Event) (State, composition.Composition, error) {
	switch e := ev.(type) {
	case PointerDown:
		return s.pointerDown(e)
	case PointerMove:
		return s.pointerMove(e)
	case PointerUp:
		switch s.state.(type) {
		case Dragging, Resizing:
			return Idle{}, s.comp, nil
		}
		return s.state, s.comp, nil
	case DoubleClick:
		if s.preview {
			return nil, s.comp, fmt.Errorf("double click in preview: %w", ErrIllegalTransition)
		}
		if _, ok := s.state.(Idle); !ok {
			return nil, s.comp, fmt.Errorf("double click while %s: %w", s.state.Name(), ErrIllegalTransition)
		}
		o, ok := s.comp.OverlayByID(e.OverlayID)
		if !ok {
			return nil, s.comp, fmt.Errorf("%s: %w", e.OverlayID, ErrOverlayNotFound)
		}
		return TextEditing{OverlayID: o.ID, Draft: o.Text}, s.comp, nil
	case TextInput:
		te, ok := s.state.(TextEditing)
		if !ok {
			return nil, s.comp, fmt.Errorf("text input while %s: %w", s.state.Name(), ErrIllegalTransition)
		}
		te.Draft = e.Text
		return te, s.comp, nil
	case StopEditing:
		if te, ok := s.state.(TextEditing); ok {
			return Idle{}, s.commitText(te), nil
		}
		return s.state, s.comp, nil
	case SetPreviewMode:
		return s.setPreview(e.Preview)
	case SetViewport:
		scale, err := geometry.NewScale(e.Container, s.comp.Size)
		if err != nil {
			return nil, s.comp, &composition.ValidationError{Field: "container", Reason: err.Error()}
		}
		s.container = e.Container
		s.scale = scale
		return s.state, s.comp, nil
	}
	return nil, s.comp, fmt.Errorf("unknown event %T: %w", ev, ErrIllegalTransition)
}

func (s *Session) pointerDown(e PointerDown) (State, composition.Composition, error) {
	if s.preview {
		return nil, s.comp, fmt.Errorf("pointer down in preview: %w", ErrIllegalTransition)
	}
	if _, ok := s.state.(Idle); !ok {
		return nil, s.comp, fmt.Errorf("pointer down while %s: %w", s.state.Name(), ErrIllegalTransition)
	}

	pointer := geometry.ToComposition(e.Pointer, s.scale)

	switch e.Handle {
	case HandleResize:
		if e.Target.Kind != TargetVideo {
			return nil, s.comp, fmt.Errorf("resize of %s: %w", e.Target.Kind, ErrIllegalTransition)
		}
		if s.comp.Video == nil {
			return nil, s.comp, ErrNoVideo
		}
		return Resizing{Target: e.Target, DragOrigin: pointer, OriginalSize: s.comp.Video.Size}, s.comp, nil
	case HandleBody, "":
		pos, err := s.positionOf(e.Target)
		if err != nil {
			return nil, s.comp, err
		}
		return Dragging{Target: e.Target, DragOrigin: pointer.Sub(pos)}, s.comp, nil
	}
	return nil, s.comp, &composition.ValidationError{Field: "handle", Reason: fmt.Sprintf("unknown handle %q", e.Handle)}
}

func (s *Session) pointerMove(e PointerMove) (State, composition.Composition, error) {
	pointer := geometry.ToComposition(e.Pointer, s.scale)

	switch st := s.state.(type) {
	case Dragging:
		pos := pointer.Sub(st.DragOrigin)
		if st.Target.Kind == TargetVideo {
			v := *s.comp.Video
			v.Position = geometry.Clamp(pos, s.comp.Size)
			return st, s.comp.WithVideo(v), nil
		}
		o, ok := s.comp.OverlayByID(st.Target.OverlayID)
		if !ok {
			return nil, s.comp, fmt.Errorf("%s: %w", st.Target.OverlayID, ErrOverlayNotFound)
		}
		next, _ := s.comp.ReplaceOverlay(composition.MoveTo(o, pos, s.comp.Size))
		return st, next, nil
	case Resizing:
		v := *s.comp.Video
		v.Size = resize(st.OriginalSize, pointer.Sub(st.DragOrigin))
		return st, s.comp.WithVideo(v), nil
	}
	// Hover in Idle, and any move while editing text, changes nothing.
	return s.state, s.comp, nil
}

// resize grows the original box by the horizontal pointer delta and derives
// the height from the original aspect ratio.
func resize(original geometry.Size, delta geometry.Point) geometry.Size {
	width := math.Max(float64(original.Width)+delta.X, MinResize)
	height := width * float64(original.Height) / float64(original.Width)
	sz := geometry.EvenSize(int(math.Round(width)), int(math.Round(height)))
	if sz.Height < 2 {
		sz.Height = 2
	}
	return sz
}

func (s *Session) positionOf(t Target) (geometry.Point, error) {
	switch t.Kind {
	case TargetVideo:
		if s.comp.Video == nil {
			return geometry.Point{}, ErrNoVideo
		}
		return s.comp.Video.Position, nil
	case TargetOverlay:
		o, ok := s.comp.OverlayByID(t.OverlayID)
		if !ok {
			return geometry.Point{}, fmt.Errorf("%s: %w", t.OverlayID, ErrOverlayNotFound)
		}
		return o.Position, nil
	}
	return geometry.Point{}, &composition.ValidationError{Field: "target", Reason: fmt.Sprintf("unknown kind %q", t.Kind)}
}

func (s *Session) commitText(te TextEditing) composition.Composition {
	o, ok := s.comp.OverlayByID(te.OverlayID)
	if !ok || o.Text == te.Draft {
		return s.comp
	}
	next, _ := s.comp.ReplaceOverlay(composition.SetText(o, te.Draft))
	return next
}

// setPreview forces the session back to Idle. An open text edit is
// committed the way a blur would commit it.
func (s *Session) setPreview(preview bool) (State, composition.Composition, error) {
	comp := s.comp
	if te, ok := s.state.(TextEditing); ok && preview {
		comp = s.commitText(te)
	}
	s.preview = preview
	if preview {
		return Idle{}, comp, nil
	}
	return s.state, comp, nil
}

// AddOverlay appends a "New Text" overlay, leaving preview for edit mode.
func (s *Session) AddOverlay() (composition.Overlay, View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.(Idle); !ok {
		return composition.Overlay{}, s.viewLocked(), fmt.Errorf("add overlay while %s: %w", s.state.Name(), ErrIllegalTransition)
	}
	o := composition.NewOverlay(composition.DefaultOverlayText, composition.DefaultOverlayPosition)
	s.comp = s.comp.AddOverlay(o)
	s.preview = false
	s.updatedAt = time.Now()
	added, _ := s.comp.OverlayByID(o.ID)
	return added, s.viewLocked(), nil
}

// RemoveOverlay deletes an overlay that is not the target of an active gesture.
func (s *Session) RemoveOverlay(id string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isActive(id) {
		return s.viewLocked(), fmt.Errorf("remove %s while %s: %w", id, s.state.Name(), ErrIllegalTransition)
	}
	next, ok := s.comp.RemoveOverlay(id)
	if !ok {
		return s.viewLocked(), fmt.Errorf("%s: %w", id, ErrOverlayNotFound)
	}
	s.comp = next
	s.updatedAt = time.Now()
	return s.viewLocked(), nil
}

// SetOverlayWindow changes an overlay's visibility window.
func (s *Session) SetOverlayWindow(id string, start, end *int) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.comp.OverlayByID(id)
	if !ok {
		return s.viewLocked(), fmt.Errorf("%s: %w", id, ErrOverlayNotFound)
	}
	o, err := composition.SetWindow(o, start, end)
	if err != nil {
		return s.viewLocked(), err
	}
	s.comp, _ = s.comp.ReplaceOverlay(o)
	s.updatedAt = time.Now()
	return s.viewLocked(), nil
}

// SetAspectRatio resizes the canvas to ratio, keeping its width. The scale
// is recomputed against the current viewport.
func (s *Session) SetAspectRatio(label string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.(Idle); !ok {
		return s.viewLocked(), fmt.Errorf("aspect change while %s: %w", s.state.Name(), ErrIllegalTransition)
	}
	ratio, err := geometry.ParseAspectRatio(label)
	if err != nil {
		return s.viewLocked(), &composition.ValidationError{Field: "aspectRatio", Reason: err.Error()}
	}
	next, err := s.comp.ResizeToAspect(ratio)
	if err != nil {
		return s.viewLocked(), err
	}
	scale, err := geometry.NewScale(s.container, next.Size)
	if err != nil {
		return s.viewLocked(), &composition.ValidationError{Field: "container", Reason: err.Error()}
	}
	s.comp = next
	s.scale = scale
	s.updatedAt = time.Now()
	return s.viewLocked(), nil
}

// Composition returns a copy of the current composition.
func (s *Session) Composition() composition.Composition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comp.Clone()
}

// Snapshot freezes the current composition for rendering or export.
func (s *Session) Snapshot() (composition.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return composition.Freeze(s.comp)
}

// View returns the current observable state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Affordances lists the edit handles to draw. Preview mode shows none; an
// active text edit hides the handles of the overlay being edited.
func (s *Session) Affordances() []Affordance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.affordancesLocked()
}

func (s *Session) affordancesLocked() []Affordance {
	out := []Affordance{}
	if s.preview {
		return out
	}
	editing := ""
	if te, ok := s.state.(TextEditing); ok {
		editing = te.OverlayID
	}
	if s.comp.Video != nil {
		out = append(out,
			Affordance{Target: VideoTarget(), Handle: HandleBody},
			Affordance{Target: VideoTarget(), Handle: HandleResize},
		)
	}
	for _, o := range s.comp.Overlays {
		if o.ID == editing {
			continue
		}
		out = append(out, Affordance{Target: OverlayTarget(o.ID), Handle: HandleBody})
	}
	return out
}

func (s *Session) isActive(overlayID string) bool {
	switch st := s.state.(type) {
	case Dragging:
		return st.Target.OverlayID == overlayID
	case Resizing:
		return st.Target.OverlayID == overlayID
	case TextEditing:
		return st.OverlayID == overlayID
	}
	return false
}

func (s *Session) viewLocked() View {
	v := View{
		ID:          s.ID,
		MediaID:     s.MediaID,
		State:       s.state.Name(),
		Preview:     s.preview,
		Scale:       s.scale,
		Container:   s.container,
		Affordances: s.affordancesLocked(),
		Composition: s.comp.Clone(),
		UpdatedAt:   s.updatedAt,
	}
	switch st := s.state.(type) {
	case Dragging:
		t := st.Target
		v.ActiveTarget = &t
	case Resizing:
		t := st.Target
		v.ActiveTarget = &t
	case TextEditing:
		t := OverlayTarget(st.OverlayID)
		v.ActiveTarget = &t
		d := st.Draft
		v.Draft = &d
	}
	return v
}
