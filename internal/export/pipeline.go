package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/heimdex/heimdex-overlay/internal/catalog"
	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/logging"
	"github.com/heimdex/heimdex-overlay/internal/wire"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultTimeout       = 30 * time.Minute
	DefaultMaxConcurrent = 2
)

// Recorder keeps the export log. catalog.Service satisfies it.
type Recorder interface {
	StartExport(ctx context.Context, sessionID, mediaID string) (*catalog.Export, error)
	MarkExportRunning(ctx context.Context, id string) error
	CompleteExport(ctx context.Context, id string, frames int, filename string, size int64) error
	FailExport(ctx context.Context, id string, exitCode *int, err error) error
}

type PipelineConfig struct {
	WorkDir       string
	Timeout       time.Duration
	MaxConcurrent int64
}

// Pipeline runs exports. Exports share nothing but the semaphore bounding
// how many renderer processes run at once.
type Pipeline struct {
	runner   Runner
	recorder Recorder
	cfg      PipelineConfig
	sem      *semaphore.Weighted
	logger   *slog.Logger

	// live holds exports that are rendering or not yet delivered. Sweep
	// leaves their artifacts alone however old they are.
	mu   sync.Mutex
	live map[string]struct{}
}

// NewPipeline prepares the work directory. recorder may be nil.
func NewPipeline(runner Runner, recorder Recorder, cfg PipelineConfig, logger *slog.Logger) (*Pipeline, error) {
	if err := PrepareWorkDir(cfg.WorkDir); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		runner:   runner,
		recorder: recorder,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:   logger,
		live:     make(map[string]struct{}),
	}, nil
}

// Export renders req.Snapshot and returns the produced file. It blocks until
// the renderer finishes, the timeout fires or ctx is cancelled. The props
// and result files are removed on every path; on success the output is left
// for the caller to stream and Cleanup.
func (p *Pipeline) Export(ctx context.Context, req Request) (*Result, error) {
	if !req.Snapshot.Valid() {
		return nil, &composition.ValidationError{Field: "composition", Reason: "snapshot is empty or invalid"}
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a render slot: %w", err)
	}
	defer p.sem.Release(1)

	exportID := p.startRecord(ctx, req)
	logger := logging.WithSessionID(logging.WithExportID(p.logger, exportID), req.SessionID)

	p.hold(exportID)
	res, exitCode, err := p.run(ctx, exportID, req, logger)
	if err != nil {
		p.release(exportID)
		p.failRecord(exportID, exitCode, err, logger)
		return nil, err
	}
	res.release = func() { p.release(exportID) }

	if p.recorder != nil {
		if rerr := p.recorder.CompleteExport(context.WithoutCancel(ctx), exportID, res.DurationInFrames, res.Filename, res.Size); rerr != nil {
			logger.Warn("failed to record export completion", "error", rerr)
		}
	}
	logger.Info("export finished",
		"frames", res.DurationInFrames,
		"size", res.Size,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, exportID string, req Request, logger *slog.Logger) (*Result, *int, error) {
	start := time.Now()
	paths := newArtifactPaths(p.cfg.WorkDir, exportID)
	defer os.Remove(paths.props)
	defer os.Remove(paths.result)

	success := false
	defer func() {
		if !success {
			os.RemoveAll(paths.outDir)
		}
	}()

	if err := writeProps(paths.props, req.Snapshot); err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(paths.outDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("cannot create output dir: %w", err)
	}

	if p.recorder != nil {
		if err := p.recorder.MarkExportRunning(ctx, exportID); err != nil {
			logger.Warn("failed to mark export running", "error", err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	run := p.runner.Render(runCtx, paths.props, paths.result, paths.outDir)
	if run.TimedOut || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, nil, fmt.Errorf("%w after %s", ErrRenderTimeout, p.cfg.Timeout)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if !run.IsSuccess() {
		code := run.ExitCode
		return nil, &code, &RenderError{
			ExitCode:   run.ExitCode,
			Reason:     lastLine(run.StderrTail),
			StderrTail: run.StderrTail,
		}
	}

	out, err := collectOutput(paths, run)
	if err != nil {
		code := run.ExitCode
		return nil, &code, err
	}

	info, err := os.Stat(out.OutputPath)
	if err != nil || info.IsDir() || info.Size() == 0 {
		code := run.ExitCode
		return nil, &code, &RenderError{Reason: "renderer produced no output file", StderrTail: run.StderrTail}
	}

	frames := out.DurationInFrames
	if frames <= 0 {
		frames = req.Snapshot.DurationInFrames()
	}
	if out.Width <= 0 || out.Height <= 0 {
		out.Width, out.Height = req.Snapshot.Size().Width, req.Snapshot.Size().Height
	}

	success = true
	return &Result{
		ExportID:         exportID,
		OutputPath:       out.OutputPath,
		Filename:         DownloadName(out.OutputFilename, exportID),
		Size:             info.Size(),
		DurationInFrames: frames,
		Width:            out.Width,
		Height:           out.Height,
		Elapsed:          time.Since(start),
		dir:              paths.outDir,
	}, nil, nil
}

func writeProps(path string, s composition.Snapshot) error {
	data, err := json.Marshal(wire.FromComposition(s.Composition()))
	if err != nil {
		return fmt.Errorf("cannot encode export props: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("cannot write export props: %w", err)
	}
	return nil
}

// collectOutput prefers the structured result file and falls back to the
// OUTPUT_FILENAME marker on stdout. Either way the output must live inside
// the export's own directory.
func collectOutput(paths artifactPaths, run RunResult) (wire.RenderResult, error) {
	var out wire.RenderResult
	if data, err := os.ReadFile(paths.result); err == nil {
		if err := json.Unmarshal(data, &out); err != nil {
			return out, &RenderError{Reason: fmt.Sprintf("unreadable result file: %v", err), StderrTail: run.StderrTail}
		}
	}

	if out.OutputFilename == "" && out.OutputPath != "" {
		out.OutputFilename = filepath.Base(out.OutputPath)
	}
	if out.OutputFilename == "" {
		name, ok := wire.ParseOutputMarker(run.Stdout)
		if !ok {
			return out, &RenderError{Reason: "renderer reported no output file", StderrTail: run.StderrTail}
		}
		out.OutputFilename = name
	}

	name := filepath.Base(out.OutputFilename)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return out, &RenderError{Reason: fmt.Sprintf("invalid output filename %q", out.OutputFilename)}
	}
	out.OutputFilename = name
	out.OutputPath = filepath.Join(paths.outDir, name)
	return out, nil
}

func (p *Pipeline) startRecord(ctx context.Context, req Request) string {
	if p.recorder == nil {
		return uuid.NewString()
	}
	rec, err := p.recorder.StartExport(ctx, req.SessionID, req.MediaID)
	if err != nil {
		p.logger.Warn("failed to record export start", "error", err)
		return uuid.NewString()
	}
	return rec.ID
}

func (p *Pipeline) failRecord(exportID string, exitCode *int, cause error, logger *slog.Logger) {
	logger.Warn("export failed", "error", cause)
	if p.recorder == nil {
		return
	}
	// The request context may already be done; the log entry should land anyway.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.recorder.FailExport(ctx, exportID, exitCode, cause); err != nil {
		logger.Warn("failed to record export failure", "error", err)
	}
}

func (p *Pipeline) hold(exportID string) {
	p.mu.Lock()
	p.live[exportID] = struct{}{}
	p.mu.Unlock()
}

func (p *Pipeline) release(exportID string) {
	p.mu.Lock()
	delete(p.live, exportID)
	p.mu.Unlock()
}

func (p *Pipeline) isLive(exportID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.live[exportID]
	return ok
}

// artifactExportID maps an entry of the work directory back to the export
// that owns it: export-<id>, export-<id>.json or export-<id>.result.json.
func artifactExportID(name string) (string, bool) {
	id, ok := strings.CutPrefix(name, "export-")
	if !ok || id == "" {
		return "", false
	}
	id = strings.TrimSuffix(id, ".result.json")
	id = strings.TrimSuffix(id, ".json")
	return id, true
}

// Sweep removes export artifacts older than maxAge left behind by a previous
// run that died mid-export or a download that never finished. Artifacts of
// exports still rendering or awaiting delivery are skipped.
func (p *Pipeline) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(p.cfg.WorkDir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		id, ok := artifactExportID(e.Name())
		if !ok || p.isLive(id) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(p.cfg.WorkDir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		p.logger.Info("swept stale export artifacts", "count", removed)
	}
	return removed, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "no diagnostics"
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
