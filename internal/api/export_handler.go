package api

import (
	"net/http"
	"strconv"

	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/export"
	"github.com/heimdex/heimdex-overlay/internal/logging"
	"github.com/heimdex/heimdex-overlay/internal/wire"
)

// exportVideoHandler renders an export document posted by the editor. The
// document's duration is only a hint; the renderer measures the source.
func exportVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var doc wire.ExportRequest
		if !decodeJSON(w, r, &doc) {
			return
		}
		if doc.VideoData == "" {
			writeDomainError(w, cfg.Logger, &composition.ValidationError{Field: "videoData", Reason: "must not be empty"})
			return
		}

		m, err := cfg.Library.Resolve(r.Context(), doc.VideoData)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		frames := doc.DurationInFrames
		if frames <= 0 {
			frames = composition.DurationFromSeconds(m.DurationSeconds)
		}

		c, err := doc.ToComposition(frames)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}
		snap, err := composition.Freeze(c)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		streamExport(cfg, w, r, export.Request{MediaID: m.ID, Snapshot: snap})
	}
}

func sessionExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFor(cfg, w, r)
		if !ok {
			return
		}
		snap, err := sess.Snapshot()
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		streamExport(cfg, w, r, export.Request{SessionID: sess.ID, MediaID: sess.MediaID, Snapshot: snap})
	}
}

// streamExport blocks on the render, then sends the MP4 as an attachment
// and deletes it. Nothing is written to w until the file exists.
func streamExport(cfg ServerConfig, w http.ResponseWriter, r *http.Request, req export.Request) {
	if cfg.Exporter == nil {
		WriteError(w, http.StatusServiceUnavailable, "export is not configured", CodeUnavailable)
		return
	}

	res, err := cfg.Exporter.Export(r.Context(), req)
	if err != nil {
		writeDomainError(w, cfg.Logger, err)
		return
	}
	logger := logging.WithExportID(cfg.Logger, res.ExportID)
	if req.SessionID != "" {
		logger = logging.WithSessionID(logger, req.SessionID)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("failed to remove export output", "error", err)
		}
	}()

	w.Header().Set("X-Export-ID", res.ExportID)
	w.Header().Set("X-Duration-In-Frames", strconv.Itoa(res.DurationInFrames))
	n, err := cfg.PlaybackServer.ServeAttachment(w, r, res.OutputPath, res.Filename)
	if err != nil {
		logger.Error("export delivery failed", "error", err, "written", n)
		return
	}
	logger.Info("export delivered", "filename", res.Filename, "bytes", n)
}
