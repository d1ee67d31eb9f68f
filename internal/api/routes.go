package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/heimdex/heimdex-overlay/internal/catalog"
	"github.com/heimdex/heimdex-overlay/internal/export"
)

const listLimit = 50

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORSAllowlist())
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	// <video> elements cannot send an Authorization header, so uploads are
	// served to local clients without one.
	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Get("/media/{ref}", mediaFileHandler(cfg))
		r.Head("/media/{ref}", mediaFileHandler(cfg))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/doctor", doctorHandler(cfg))
		r.Get("/exports", listExportsHandler(cfg))

		r.Post("/upload-video", uploadHandler(cfg))
		r.Get("/media", listMediaHandler(cfg))
		r.Delete("/media/{ref}", deleteMediaHandler(cfg))

		r.Post("/export-video", exportVideoHandler(cfg))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", createSessionHandler(cfg))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getSessionHandler(cfg))
				r.Delete("/", deleteSessionHandler(cfg))
				r.Post("/events", sessionEventHandler(cfg))
				r.Post("/overlays", addOverlayHandler(cfg))
				r.Delete("/overlays/{oid}", removeOverlayHandler(cfg))
				r.Put("/overlays/{oid}/window", overlayWindowHandler(cfg))
				r.Put("/aspect-ratio", aspectRatioHandler(cfg))
				r.Put("/viewport", viewportHandler(cfg))
				r.Put("/preview", previewHandler(cfg))
				r.Get("/frames/{n}", frameHandler(cfg))
				r.Get("/frames/{n}/still.png", stillHandler(cfg))
				r.Get("/props", propsHandler(cfg))
				r.Post("/export", sessionExportHandler(cfg))
			})
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		mediaCount, _ := cfg.CatalogService.CountMedia(ctx)
		exports, _ := cfg.CatalogService.ListExports(ctx, 10)

		state := "idle"
		running := 0
		lastError := ""
		for _, e := range exports {
			switch e.Status {
			case catalog.ExportStatusRunning, catalog.ExportStatusPending:
				state = "exporting"
				running++
			case catalog.ExportStatusFailed:
				if lastError == "" {
					lastError = e.Error
				}
			}
		}
		// Only the newest export decides whether we are in error.
		if len(exports) > 0 && exports[0].Status == catalog.ExportStatusFailed && state == "idle" {
			state = "error"
		}

		resp := StatusResponse{
			State:          state,
			LastError:      lastError,
			MediaCount:     mediaCount,
			ExportsRunning: running,
		}
		if cfg.Sessions != nil {
			resp.SessionsActive = cfg.Sessions.Len()
		}
		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Renderer = rendererStatus(caps)
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func rendererStatus(caps *export.Capabilities) *RendererStatusResponse {
	rs := &RendererStatusResponse{
		CanRender:  caps.CanRender,
		Version:    caps.RendererVersion,
		HasFFmpeg:  caps.Executables["ffmpeg"].Available,
		HasFFprobe: caps.Executables["ffprobe"].Available,
		HasFont:    caps.Font.Available,
	}
	if !caps.ProbedAt.IsZero() {
		rs.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
	}
	return rs
}

// doctorHandler probes the renderer when the cached report is stale.
// ?refresh=1 forces a new probe.
func doctorHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Doctor == nil {
			WriteError(w, http.StatusServiceUnavailable, "renderer is not configured", CodeUnavailable)
			return
		}

		var (
			caps *export.Capabilities
			err  error
		)
		if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
			caps, err = cfg.Doctor.Refresh(r.Context())
		} else {
			caps, err = cfg.Doctor.Get(r.Context())
		}
		if err != nil {
			WriteError(w, http.StatusServiceUnavailable, err.Error(), CodeUnavailable)
			return
		}

		WriteJSON(w, http.StatusOK, struct {
			*RendererStatusResponse
			Executables map[string]export.DepInfo `json:"executables"`
			Font        export.DepInfo            `json:"font"`
		}{rendererStatus(caps), caps.Executables, caps.Font})
	}
}

func listExportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exports, err := cfg.CatalogService.ListExports(r.Context(), listLimit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list exports", CodeInternal)
			return
		}

		resp := ExportsResponse{Exports: make([]ExportResponse, len(exports))}
		for i, e := range exports {
			resp.Exports[i] = ExportToResponse(e)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
