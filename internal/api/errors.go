package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/heimdex/heimdex-overlay/internal/catalog"
	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/editor"
	"github.com/heimdex/heimdex-overlay/internal/export"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
	"github.com/heimdex/heimdex-overlay/internal/media"
)

const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeMediaProbeFailed  = "MEDIA_PROBE_FAILED"
	CodeUploadTooLarge    = "UPLOAD_TOO_LARGE"
	CodeRenderFailed      = "RENDER_FAILED"
	CodeRenderTimeout     = "RENDER_TIMEOUT"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// errorStatus maps a domain error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, CodeUploadTooLarge
	case errors.Is(err, composition.ErrValidation),
		errors.Is(err, geometry.ErrInvalidAspectRatio),
		errors.Is(err, composition.ErrFrameOutOfRange),
		errors.Is(err, editor.ErrNoVideo):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, editor.ErrSessionNotFound),
		errors.Is(err, editor.ErrOverlayNotFound),
		errors.Is(err, catalog.ErrMediaNotFound),
		errors.Is(err, media.ErrUnknownMedia):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, editor.ErrIllegalTransition):
		return http.StatusConflict, CodeIllegalTransition
	case errors.Is(err, media.ErrMediaProbe):
		return http.StatusUnprocessableEntity, CodeMediaProbeFailed
	case errors.Is(err, export.ErrRenderTimeout):
		return http.StatusGatewayTimeout, CodeRenderTimeout
	case errors.Is(err, export.ErrRenderProcess):
		return http.StatusBadGateway, CodeRenderFailed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeDomainError writes err as {error, code}. Unmapped errors are logged
// and answered with a generic message.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", "error", err)
		}
		msg = "internal server error"
	}
	WriteError(w, status, msg, code)
}
