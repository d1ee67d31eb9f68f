package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heimdex/heimdex-overlay/internal/api"
	"github.com/heimdex/heimdex-overlay/internal/catalog"
	"github.com/heimdex/heimdex-overlay/internal/config"
	"github.com/heimdex/heimdex-overlay/internal/db"
	"github.com/heimdex/heimdex-overlay/internal/editor"
	"github.com/heimdex/heimdex-overlay/internal/export"
	"github.com/heimdex/heimdex-overlay/internal/logging"
	"github.com/heimdex/heimdex-overlay/internal/media"
	"github.com/heimdex/heimdex-overlay/internal/playback"
	"github.com/heimdex/heimdex-overlay/internal/raster"
)

var Version = "0.1.0"

// exportMaxAge is how long an abandoned export directory survives past the
// export timeout before the sweeper removes it.
const exportMaxAge = time.Hour

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.UploadsDir(), cfg.ExportsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex overlay agent", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	deviceID, err := ensureSecret(repo, "device_id", 16)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}
	authToken, err := ensureSecret(repo, api.AuthTokenKey, 32)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Printf("║  HEIMDEX OVERLAY v%-60s║\n", Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-49d║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-65s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-65s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()

	catalogSvc := catalog.NewService(repo, logger)

	library, err := media.NewLibrary(cfg.UploadsDir(), media.NewFFProbe(media.DefaultProbeTimeout), catalogSvc, logging.WithComponent(logger, "media"))
	if err != nil {
		return err
	}

	painter, err := raster.NewPainter(cfg.FontPath(), raster.DefaultStyle())
	if err != nil {
		return fmt.Errorf("failed to load overlay font: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		exporter api.Exporter
		doctor   *export.CachedDoctor
	)
	exportLogger := logging.WithComponent(logger, "export")
	runner, err := export.NewRunner(export.RunnerConfig{
		RendererPath: cfg.RendererPath(),
		PublicDir:    library.Dir(),
		FontPath:     cfg.FontPath(),
		Workers:      cfg.RenderWorkers(),
		Logger:       exportLogger,
	})
	if err != nil {
		logger.Warn("renderer unavailable, export disabled", "error", err)
	} else {
		doctor = export.NewCachedDoctor(runner, exportLogger)
		go probeRenderer(ctx, doctor, logger)

		pipeline, err := export.NewPipeline(runner, catalogSvc, export.PipelineConfig{
			WorkDir:       cfg.ExportsDir(),
			Timeout:       cfg.ExportTimeout(),
			MaxConcurrent: int64(cfg.MaxConcurrentRenders()),
		}, exportLogger)
		if err != nil {
			return err
		}
		exporter = pipeline
		go sweepExports(ctx, pipeline, cfg.ExportTimeout()+exportMaxAge, logger)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Version:        Version,
		CatalogService: catalogSvc,
		Repository:     repo,
		Library:        library,
		PlaybackServer: playback.NewServer(logger),
		Sessions:       editor.NewStore(cfg.MaxSessions(), cfg.SessionTTL()),
		Exporter:       exporter,
		Doctor:         doctor,
		Painter:        painter,
		Stills:         media.ExtractFrame,
		Logger:         logger,
		StartTime:      startTime,
		DeviceID:       deviceID,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("HTTP server error", "error", err)
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func probeRenderer(ctx context.Context, doctor *export.CachedDoctor, logger *slog.Logger) {
	caps, err := doctor.Refresh(ctx)
	if err != nil {
		logger.Warn("initial renderer probe failed", "error", err)
		return
	}
	logger.Info("renderer capabilities detected",
		"can_render", caps.CanRender,
		"version", caps.RendererVersion,
		"ffmpeg", caps.Executables["ffmpeg"].Available,
		"font", caps.Font.Available,
	)
}

// sweepExports removes export directories left behind by a crash or a
// client that disconnected mid-download.
func sweepExports(ctx context.Context, p *export.Pipeline, maxAge time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(exportMaxAge)
	defer ticker.Stop()
	for {
		if _, err := p.Sweep(maxAge); err != nil {
			logger.Warn("export sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ensureSecret returns the config value under key, creating a random hex
// value of n bytes on first start.
func ensureSecret(repo catalog.Repository, key string, n int) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	value := hex.EncodeToString(b)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}
