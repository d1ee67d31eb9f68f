package api

import (
	"fmt"
	"time"

	"github.com/heimdex/heimdex-overlay/internal/catalog"
	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/editor"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State          string                  `json:"state"`
	LastError      string                  `json:"last_error,omitempty"`
	MediaCount     int                     `json:"media_count"`
	SessionsActive int                     `json:"sessions_active"`
	ExportsRunning int                     `json:"exports_running"`
	Renderer       *RendererStatusResponse `json:"renderer,omitempty"`
}

type RendererStatusResponse struct {
	CanRender   bool   `json:"can_render"`
	Version     string `json:"version,omitempty"`
	HasFFmpeg   bool   `json:"has_ffmpeg"`
	HasFFprobe  bool   `json:"has_ffprobe"`
	HasFont     bool   `json:"has_font"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
}

// UploadResponse keeps the success/videoUrl shape the editor client
// already understands and adds the probed properties.
type UploadResponse struct {
	Success            bool     `json:"success"`
	VideoURL           string   `json:"videoUrl"`
	MediaID            string   `json:"mediaId"`
	Width              int      `json:"width"`
	Height             int      `json:"height"`
	DurationSeconds    float64  `json:"durationSeconds"`
	DurationInFrames   int      `json:"durationInFrames"`
	AspectRatio        string   `json:"aspectRatio"`
	AspectRatioChoices []string `json:"aspectRatioChoices"`
}

type MediaResponse struct {
	ID              string  `json:"id"`
	Filename        string  `json:"filename"`
	OriginalName    string  `json:"original_name,omitempty"`
	URL             string  `json:"url"`
	Size            int64   `json:"size"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
	CreatedAt       string  `json:"created_at"`
}

type MediaListResponse struct {
	Media []MediaResponse `json:"media"`
}

type ExportResponse struct {
	ID               string `json:"id"`
	SessionID        string `json:"session_id,omitempty"`
	MediaID          string `json:"media_id,omitempty"`
	Status           string `json:"status"`
	DurationInFrames int    `json:"duration_in_frames"`
	OutputFilename   string `json:"output_filename,omitempty"`
	OutputSize       int64  `json:"output_size"`
	ExitCode         *int   `json:"exit_code,omitempty"`
	Error            string `json:"error,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type ExportsResponse struct {
	Exports []ExportResponse `json:"exports"`
}

type CreateSessionRequest struct {
	MediaID string `json:"mediaId"`
}

// SessionResponse is a session view plus what the editor needs to draw its
// aspect-ratio selector.
type SessionResponse struct {
	editor.View
	AspectRatio        string   `json:"aspectRatio"`
	AspectRatioChoices []string `json:"aspectRatioChoices"`
}

type AddOverlayResponse struct {
	Overlay composition.Overlay `json:"overlay"`
	Session SessionResponse     `json:"session"`
}

type WindowRequest struct {
	StartFrame *int `json:"startFrame"`
	EndFrame   *int `json:"endFrame"`
}

type AspectRatioRequest struct {
	AspectRatio string `json:"aspectRatio"`
}

type ViewportRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type PreviewRequest struct {
	Preview bool `json:"preview"`
}

// EventRequest is one editor input. Type selects which of the other fields
// are read.
type EventRequest struct {
	Type      string          `json:"type"`
	Target    *editor.Target  `json:"target,omitempty"`
	Handle    editor.Handle   `json:"handle,omitempty"`
	Pointer   *geometry.Point `json:"pointer,omitempty"`
	OverlayID string          `json:"overlayId,omitempty"`
	Text      *string         `json:"text,omitempty"`
	Preview   *bool           `json:"preview,omitempty"`
	Container *geometry.SizeF `json:"container,omitempty"`
}

func missing(field, eventType string) error {
	return &composition.ValidationError{Field: field, Reason: fmt.Sprintf("required for %s", eventType)}
}

// Event converts the request into an editor event.
func (req EventRequest) Event() (editor.Event, error) {
	switch req.Type {
	case "pointer_down":
		if req.Target == nil {
			return nil, missing("target", req.Type)
		}
		if req.Pointer == nil {
			return nil, missing("pointer", req.Type)
		}
		handle := req.Handle
		if handle == "" {
			handle = editor.HandleBody
		}
		if handle != editor.HandleBody && handle != editor.HandleResize {
			return nil, &composition.ValidationError{Field: "handle", Reason: fmt.Sprintf("unknown handle %q", handle)}
		}
		return editor.PointerDown{Target: *req.Target, Handle: handle, Pointer: *req.Pointer}, nil
	case "pointer_move":
		if req.Pointer == nil {
			return nil, missing("pointer", req.Type)
		}
		return editor.PointerMove{Pointer: *req.Pointer}, nil
	case "pointer_up":
		return editor.PointerUp{}, nil
	case "double_click":
		if req.OverlayID == "" {
			return nil, missing("overlayId", req.Type)
		}
		return editor.DoubleClick{OverlayID: req.OverlayID}, nil
	case "text_input":
		if req.Text == nil {
			return nil, missing("text", req.Type)
		}
		return editor.TextInput{Text: *req.Text}, nil
	case "stop_editing":
		return editor.StopEditing{}, nil
	case "set_preview_mode":
		if req.Preview == nil {
			return nil, missing("preview", req.Type)
		}
		return editor.SetPreviewMode{Preview: *req.Preview}, nil
	case "set_viewport":
		if req.Container == nil {
			return nil, missing("container", req.Type)
		}
		return editor.SetViewport{Container: *req.Container}, nil
	}
	return nil, &composition.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown event %q", req.Type)}
}

func MediaToResponse(m *catalog.Media) MediaResponse {
	return MediaResponse{
		ID:              m.ID,
		Filename:        m.Filename,
		OriginalName:    m.OriginalName,
		URL:             m.URL,
		Size:            m.Size,
		Width:           m.Width,
		Height:          m.Height,
		DurationSeconds: m.DurationSeconds,
		CreatedAt:       m.CreatedAt.Format(time.RFC3339),
	}
}

func ExportToResponse(e *catalog.Export) ExportResponse {
	return ExportResponse{
		ID:               e.ID,
		SessionID:        e.SessionID,
		MediaID:          e.MediaID,
		Status:           e.Status,
		DurationInFrames: e.DurationInFrames,
		OutputFilename:   e.OutputFilename,
		OutputSize:       e.OutputSize,
		ExitCode:         e.ExitCode,
		Error:            e.Error,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        e.UpdatedAt.Format(time.RFC3339),
	}
}

// UploadToResponse describes a stored upload. The aspect ratio is that of
// the evened canvas a session over it would start with.
func UploadToResponse(m *catalog.Media) UploadResponse {
	canvas := geometry.EvenSize(m.Width, m.Height)
	ratio := geometry.AspectRatioOf(canvas.Width, canvas.Height)
	return UploadResponse{
		Success:            true,
		VideoURL:           m.URL,
		MediaID:            m.ID,
		Width:              m.Width,
		Height:             m.Height,
		DurationSeconds:    m.DurationSeconds,
		DurationInFrames:   composition.DurationFromSeconds(m.DurationSeconds),
		AspectRatio:        ratio.String(),
		AspectRatioChoices: geometry.AspectRatioChoices(ratio),
	}
}

// SessionToResponse offers the source video's own ratio among the choices
// even after the canvas was switched to another one.
func SessionToResponse(v editor.View) SessionResponse {
	c := v.Composition
	source := c.Size
	if c.Video != nil {
		source = c.Video.Size
	}
	return SessionResponse{
		View:               v,
		AspectRatio:        geometry.AspectRatioOf(c.Size.Width, c.Size.Height).String(),
		AspectRatioChoices: geometry.AspectRatioChoices(geometry.AspectRatioOf(source.Width, source.Height)),
	}
}
