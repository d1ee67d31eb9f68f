package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

var ErrMediaNotFound = errors.New("media not found")

type CatalogService interface {
	RegisterMedia(ctx context.Context, m *Media) (*Media, error)
	GetMedia(ctx context.Context, id string) (*Media, error)
	GetMediaByFilename(ctx context.Context, filename string) (*Media, error)
	ListMedia(ctx context.Context, limit int) ([]*Media, error)
	RemoveMedia(ctx context.Context, id string) error
	CountMedia(ctx context.Context) (int, error)

	StartExport(ctx context.Context, sessionID, mediaID string) (*Export, error)
	MarkExportRunning(ctx context.Context, id string) error
	CompleteExport(ctx context.Context, id string, frames int, filename string, size int64) error
	FailExport(ctx context.Context, id string, exitCode *int, err error) error
	ListExports(ctx context.Context, limit int) ([]*Export, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// RegisterMedia records a probed upload. An existing record for the same
// stored filename is returned unchanged.
func (s *Service) RegisterMedia(ctx context.Context, m *Media) (*Media, error) {
	if m.Filename == "" || m.Path == "" {
		return nil, fmt.Errorf("media filename and path are required")
	}

	existing, err := s.repo.GetMediaByFilename(ctx, m.Filename)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	if err := s.repo.CreateMedia(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to record media: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("media registered", "media_id", m.ID, "filename", m.Filename,
			"width", m.Width, "height", m.Height, "duration_seconds", m.DurationSeconds)
	}
	return m, nil
}

func (s *Service) GetMedia(ctx context.Context, id string) (*Media, error) {
	m, err := s.repo.GetMedia(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMediaNotFound
	}
	return m, nil
}

// GetMediaByFilename returns nil when no upload is stored under filename.
func (s *Service) GetMediaByFilename(ctx context.Context, filename string) (*Media, error) {
	if filename == "" {
		return nil, nil
	}
	return s.repo.GetMediaByFilename(ctx, filename)
}

func (s *Service) ListMedia(ctx context.Context, limit int) ([]*Media, error) {
	return s.repo.ListMedia(ctx, limit)
}

// RemoveMedia deletes the record and its stored file. A file that is already
// gone is not an error.
func (s *Service) RemoveMedia(ctx context.Context, id string) error {
	m, err := s.GetMedia(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMedia(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		if s.logger != nil {
			s.logger.Warn("failed to remove media file", "media_id", id, "error", err)
		}
	}
	return nil
}

func (s *Service) CountMedia(ctx context.Context) (int, error) {
	return s.repo.CountMedia(ctx)
}

// StartExport creates a pending export record. mediaID is dropped when it
// does not name a known media record.
func (s *Service) StartExport(ctx context.Context, sessionID, mediaID string) (*Export, error) {
	if mediaID != "" {
		m, err := s.repo.GetMedia(ctx, mediaID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			mediaID = ""
		}
	}

	now := time.Now()
	e := &Export{
		ID:        NewID(),
		SessionID: sessionID,
		MediaID:   mediaID,
		Status:    ExportStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateExport(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to record export: %w", err)
	}
	return e, nil
}

func (s *Service) MarkExportRunning(ctx context.Context, id string) error {
	return s.repo.UpdateExportStatus(ctx, id, ExportStatusRunning, "")
}

func (s *Service) CompleteExport(ctx context.Context, id string, frames int, filename string, size int64) error {
	if err := s.repo.CompleteExport(ctx, id, frames, filename, size); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("export completed", "export_id", id, "frames", frames, "size", size)
	}
	return nil
}

func (s *Service) FailExport(ctx context.Context, id string, exitCode *int, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.repo.FailExport(ctx, id, exitCode, msg); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Warn("export failed", "export_id", id, "error", msg)
	}
	return nil
}

func (s *Service) ListExports(ctx context.Context, limit int) ([]*Export, error) {
	return s.repo.ListExports(ctx, limit)
}
