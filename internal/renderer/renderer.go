// Package renderer is the headless half of an export. It rebuilds the
// composition from the props document and the probed source, paints every
// frame with the same engine the preview uses and encodes the result.
package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
	"github.com/heimdex/heimdex-overlay/internal/media"
	"github.com/heimdex/heimdex-overlay/internal/raster"
	"github.com/heimdex/heimdex-overlay/internal/wire"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const DefaultWorkers = 4

// Source yields decoded source video frames in order, io.EOF at the end.
type Source interface {
	Next() (*image.RGBA, error)
	Close() error
}

// Sink consumes finished frames in order.
type Sink interface {
	Write(img *image.RGBA) error
	Close() error
	Abort()
}

// Config controls one renderer process.
type Config struct {
	PublicDir string // videoData URLs resolve here
	OutDir    string
	FontPath  string // empty = Go Bold
	Workers   int
	Logger    *slog.Logger
}

type Renderer struct {
	cfg     Config
	prober  media.Prober
	painter *raster.Painter

	openSource func(ctx context.Context, path string, size geometry.Size, fps int) (Source, error)
	openSink   func(ctx context.Context, path string, size geometry.Size, fps int) (Sink, error)
	now        func() time.Time
}

// New loads the overlay font and wires ffmpeg as the decoder and encoder.
func New(cfg Config, prober media.Prober) (*Renderer, error) {
	if cfg.OutDir == "" {
		return nil, errors.New("output directory is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	painter, err := raster.NewPainter(cfg.FontPath, raster.DefaultStyle())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load overlay font")
	}

	return &Renderer{
		cfg:     cfg,
		prober:  prober,
		painter: painter,
		openSource: func(ctx context.Context, path string, size geometry.Size, fps int) (Source, error) {
			fr, err := media.OpenFrames(ctx, path, size, fps, os.Stderr)
			if err != nil {
				return nil, err
			}
			return fr, nil
		},
		openSink: func(ctx context.Context, path string, size geometry.Size, fps int) (Sink, error) {
			fw, err := media.CreateVideo(ctx, path, size, fps, os.Stderr)
			if err != nil {
				return nil, err
			}
			return fw, nil
		},
		now: time.Now,
	}, nil
}

// ReadProps loads the props document the agent wrote for this export.
func ReadProps(path string) (wire.ExportRequest, error) {
	var props wire.ExportRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return props, errors.Wrap(err, "failed to read props")
	}
	if err := json.Unmarshal(data, &props); err != nil {
		return props, errors.Wrap(err, "failed to parse props")
	}
	return props, nil
}

// WriteResult records the finished render where the agent expects it.
func WriteResult(path string, res *wire.RenderResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "failed to write result")
}

// ResolveVideo maps a videoData URL such as /media/video-1.mp4 to the file
// under publicDir. Only the final path element is kept.
func ResolveVideo(publicDir, videoData string) (string, error) {
	name := media.FilenameFromURL(videoData)
	if name == "" {
		return "", errors.Errorf("cannot resolve video %q", videoData)
	}
	if publicDir == "" {
		publicDir = "."
	}
	return filepath.Join(publicDir, name), nil
}

// FramesFor is the composition length for a probed source at 30fps.
func FramesFor(info *media.Info) int {
	return composition.DurationFromSeconds(info.DurationSeconds)
}

// Render produces the MP4 for props. The length always comes from the probed
// source, never from the editor's own duration.
func (r *Renderer) Render(ctx context.Context, props wire.ExportRequest) (*wire.RenderResult, error) {
	start := time.Now()

	videoPath, err := ResolveVideo(r.cfg.PublicDir, props.VideoData)
	if err != nil {
		return nil, err
	}
	info, err := r.prober.Probe(ctx, videoPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to probe %s", filepath.Base(videoPath))
	}
	frames := FramesFor(info)
	if frames <= 0 {
		return nil, errors.Errorf("%s has no usable duration", filepath.Base(videoPath))
	}

	c, err := props.ToComposition(frames)
	if err != nil {
		return nil, errors.Wrap(err, "invalid props")
	}
	snap, err := composition.Freeze(c)
	if err != nil {
		return nil, errors.Wrap(err, "invalid props")
	}

	name := fmt.Sprintf("video_%d.mp4", r.now().UnixMilli())
	outPath := filepath.Join(r.cfg.OutDir, name)
	logger := r.cfg.Logger.With("output", name)
	logger.Info("render started",
		"frames", frames,
		"duration_seconds", info.DurationSeconds,
		"size", snap.Size().String(),
		"overlays", len(c.Overlays),
		"workers", r.cfg.Workers,
	)

	var src Source
	if placement, ok := snap.Video(); ok {
		src, err = r.openSource(ctx, videoPath, placement.Size, snap.FPS())
		if err != nil {
			return nil, errors.Wrap(err, "failed to open source video")
		}
		defer src.Close()
	}

	sink, err := r.openSink(ctx, outPath, snap.Size(), snap.FPS())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open encoder")
	}

	held, err := r.compose(ctx, snap, src, sink)
	if err != nil {
		sink.Abort()
		os.Remove(outPath)
		return nil, err
	}
	if err := sink.Close(); err != nil {
		os.Remove(outPath)
		return nil, errors.Wrap(err, "failed to finish encoding")
	}
	if held > 0 {
		logger.Warn("source ran short, held its last frame", "held_frames", held)
	}

	elapsed := time.Since(start)
	logger.Info("render complete", "elapsed_ms", elapsed.Milliseconds())
	return &wire.RenderResult{
		OutputPath:       outPath,
		OutputFilename:   name,
		DurationInFrames: frames,
		DurationSeconds:  info.DurationSeconds,
		Width:            snap.Size().Width,
		Height:           snap.Size().Height,
		ElapsedMs:        elapsed.Milliseconds(),
	}, nil
}

type job struct {
	index int
	video *image.RGBA
}

type painted struct {
	index int
	img   *image.RGBA
}

// compose decodes, paints and encodes every frame of snap. Painting fans out
// over the worker pool; the sink still sees frames strictly in order. The
// window semaphore bounds how many frames are in flight so a slow frame
// cannot make the reorder buffer grow without limit. It returns how many
// frames reused the last source frame because the decoder ran out early.
func (r *Renderer) compose(ctx context.Context, snap composition.Snapshot, src Source, sink Sink) (int, error) {
	total := snap.DurationInFrames()
	workers := r.cfg.Workers
	window := semaphore.NewWeighted(int64(workers * 2))
	jobs := make(chan job, workers)
	results := make(chan painted, workers)
	held := 0

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		var last *image.RGBA
		exhausted := src == nil
		for i := 0; i < total; i++ {
			if err := window.Acquire(gctx, 1); err != nil {
				return err
			}
			if !exhausted {
				img, err := src.Next()
				switch {
				case err == io.EOF:
					if last == nil {
						return errors.New("source video produced no frames")
					}
					exhausted = true
				case err != nil:
					return errors.Wrapf(err, "failed to decode source frame %d", i)
				default:
					last = img
				}
			}
			if exhausted && src != nil {
				held++
			}
			select {
			case jobs <- job{index: i, video: last}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var painters sync.WaitGroup
	for w := 0; w < workers; w++ {
		painters.Add(1)
		g.Go(func() error {
			defer painters.Done()
			for j := range jobs {
				img, err := r.painter.Render(j.index, snap, j.video)
				if err != nil {
					return errors.Wrapf(err, "failed to paint frame %d", j.index)
				}
				select {
				case results <- painted{index: j.index, img: img}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		painters.Wait()
		close(results)
	}()

	g.Go(func() error {
		pending := make(map[int]*image.RGBA, workers*2)
		next := 0
		for p := range results {
			pending[p.index] = p.img
			for {
				img, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				if err := sink.Write(img); err != nil {
					return errors.Wrapf(err, "failed to encode frame %d", next)
				}
				window.Release(1)
				next++
			}
		}
		if next != total && gctx.Err() == nil {
			return errors.Errorf("encoded %d of %d frames", next, total)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return held, nil
}
