package api

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-overlay/internal/catalog"
	"github.com/heimdex/heimdex-overlay/internal/editor"
	"github.com/heimdex/heimdex-overlay/internal/export"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
	"github.com/heimdex/heimdex-overlay/internal/playback"
	"github.com/heimdex/heimdex-overlay/internal/raster"
)

// DefaultMaxUploadBytes caps a single video upload.
const DefaultMaxUploadBytes = 2 << 30

// MediaLibrary stores uploads and finds them again. *media.Library
// satisfies it.
type MediaLibrary interface {
	Save(ctx context.Context, originalName string, r io.Reader) (*catalog.Media, error)
	Resolve(ctx context.Context, ref string) (*catalog.Media, error)
}

// Exporter renders a snapshot to a file. *export.Pipeline satisfies it.
type Exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// StillExtractor decodes one source frame scaled to size. media.ExtractFrame
// satisfies it.
type StillExtractor func(ctx context.Context, path string, atSeconds float64, size geometry.Size) (*image.RGBA, error)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	Version        string
	CatalogService catalog.CatalogService
	Repository     catalog.Repository
	Library        MediaLibrary
	PlaybackServer playback.PlaybackService
	Sessions       *editor.Store
	Exporter       Exporter
	Doctor         *export.CachedDoctor
	Painter        *raster.Painter
	Stills         StillExtractor
	MaxUploadBytes int64
	Logger         *slog.Logger
	StartTime      time.Time
	DeviceID       string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Minute,
			// Exports stream only after the render finishes.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
