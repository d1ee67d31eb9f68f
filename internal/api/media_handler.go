package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/logging"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 32 << 20

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxBytes {
			WriteError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit", CodeUploadTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeDomainError(w, cfg.Logger, err)
				return
			}
			WriteError(w, http.StatusBadRequest, "invalid multipart form", CodeBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("video")
		if err != nil {
			writeDomainError(w, cfg.Logger, &composition.ValidationError{Field: "video", Reason: "no video file uploaded"})
			return
		}
		defer file.Close()

		m, err := cfg.Library.Save(r.Context(), header.Filename, file)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		logging.WithMediaID(cfg.Logger, m.ID).Info("video uploaded",
			"filename", m.Filename,
			"size", m.Size,
			"width", m.Width,
			"height", m.Height,
			"duration_seconds", m.DurationSeconds,
		)
		WriteJSON(w, http.StatusOK, UploadToResponse(m))
	}
}

func mediaFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "ref")
		m, err := cfg.Library.Resolve(r.Context(), ref)
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		if err := cfg.PlaybackServer.ServeFile(w, r, m.Path); err != nil {
			cfg.Logger.Error("playback error", "error", err, "media_id", m.ID)
		}
	}
}

func listMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		media, err := cfg.CatalogService.ListMedia(r.Context(), listLimit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list media", CodeInternal)
			return
		}

		resp := MediaListResponse{Media: make([]MediaResponse, len(media))}
		for i, m := range media {
			resp.Media[i] = MediaToResponse(m)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func deleteMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := cfg.Library.Resolve(r.Context(), chi.URLParam(r, "ref"))
		if err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		if err := cfg.CatalogService.RemoveMedia(r.Context(), m.ID); err != nil {
			writeDomainError(w, cfg.Logger, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
