package api

import (
	"encoding/json"
	"image"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/editor"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
	"github.com/heimdex/heimdex-overlay/internal/logging"
	"github.com/heimdex/heimdex-overlay/internal/media"
	"github.com/heimdex/heimdex-overlay/internal/raster"
	"github.com/heimdex/heimdex-overlay/internal/wire"
)

// maxJSONBody bounds every JSON request body.
const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", CodeBadRequest)
		return false
	}
	return true
}

func sessionFor(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	sess, err := cfg.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, cfg.Logger, err)
		return nil, false
	}
	return sess, true
}

// writeSessionResult answers a session mutation. A rejected mutation still
// carries the unchanged view in the log, not in the response.
func writeSessionResult(cfg ServerConfig, w http.ResponseWriter, sess *editor.Session, v editor.View, err error) {
	if err != nil {
		logging.WithSessionID(cfg.Logger, sess.ID).Debug("session mutation rejected", "state", v.State, "error", err)
		writeDomainError(w, cfg.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, SessionToResponse(v))
}

func createSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.MediaID == "" {
			writeDomainError(w, cfg.Logger, &composition.ValidationError{Field: "mediaId", Reason: "must not be empty"})
			return
		}

		m, err := cfg.Library.Resolve(r.Context(), req.MediaID)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		c, err := media.Composition(m)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		sess, err := cfg.Sessions.Create(m.ID, c)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		logging.WithSessionID(cfg.Logger, sess.ID).Info("edit session started",
			"media_id", m.ID,
			"size", c.Size.String(),
			"duration_in_frames", c.DurationInFrames,
		)
		WriteJSON(w, http.StatusCreated, SessionToResponse(sess.View()))
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, SessionToResponse(sess.View()))
	}
}

func deleteSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Sessions.Delete(chi.URLParam(r, "id")) {
			WriteError(w, http.StatusNotFound, "session not found", CodeNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func sessionEventHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		var req EventRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ev, err := req.Event()
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		v, err := sess.Apply(ev)
		writeSessionResult(cfg, w, sess, v, err)
	}
}

func addOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}

		o, v, err := sess.AddOverlay()
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, AddOverlayResponse{Overlay: o, Session: SessionToResponse(v)})
	}
}

func removeOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		v, err := sess.RemoveOverlay(chi.URLParam(r, "oid"))
		writeSessionResult(cfg, w, sess, v, err)
	}
}

func overlayWindowHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		var req WindowRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		v, err := sess.SetOverlayWindow(chi.URLParam(r, "oid"), req.StartFrame, req.EndFrame)
		writeSessionResult(cfg, w, sess, v, err)
	}
}

func aspectRatioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		var req AspectRatioRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		v, err := sess.SetAspectRatio(req.AspectRatio)
		writeSessionResult(cfg, w, sess, v, err)
	}
}

func viewportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		var req ViewportRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		v, err := sess.Apply(editor.SetViewport{Container: geometry.SizeF{Width: req.Width, Height: req.Height}})
		writeSessionResult(cfg, w, sess, v, err)
	}
}

func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		var req PreviewRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		v, err := sess.Apply(editor.SetPreviewMode{Preview: req.Preview})
		writeSessionResult(cfg, w, sess, v, err)
	}
}

// frameParam reads {n}. Range checks are left to the engine.
func frameParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		return 0, &composition.ValidationError{Field: "frame", Reason: "must be an integer"}
	}
	return n, nil
}

func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		n, err := frameParam(r)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		snap, err := sess.Snapshot()
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		f, err := composition.RenderFrame(n, snap)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, f)
	}
}

// stillHandler paints frame n the way the renderer would. When the source
// frame cannot be decoded the still shows the overlays on the background.
func stillHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Painter == nil {
			WriteError(w, http.StatusServiceUnavailable, "still rendering is not configured", CodeUnavailable)
			return
		}
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		n, err := frameParam(r)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		snap, err := sess.Snapshot()
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		f, err := composition.RenderFrame(n, snap)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		var video image.Image
		if f.Video != nil && cfg.Stills != nil {
			logger := logging.WithSessionID(cfg.Logger, sess.ID)
			if m, err := cfg.Library.Resolve(r.Context(), sess.MediaID); err != nil {
				logger.Warn("still without video: media unavailable", "error", err)
			} else {
				at := float64(f.Video.SourceFrame) / float64(snap.FPS())
				img, err := cfg.Stills(r.Context(), m.Path, at, f.Video.Size)
				if err != nil {
					logger.Warn("still without video: decode failed", "frame", n, "error", err)
				} else {
					video = img
				}
			}
		}

		dst := raster.NewCanvas(f)
		if err := cfg.Painter.Paint(dst, f, video); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		if err := raster.WritePNG(w, dst); err != nil {
			cfg.Logger.Warn("failed to write still", "error", err)
		}
	}
}

func propsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, wire.FromComposition(sess.Composition()))
	}
}
