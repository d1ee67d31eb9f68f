package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/heimdex/heimdex-overlay/internal/catalog"
	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
)

// URLPrefix is where stored uploads are served from.
const URLPrefix = "/media/"

var ErrUnknownMedia = errors.New("unknown media")

// Catalog is the subset of the catalog the library records uploads in.
type Catalog interface {
	RegisterMedia(ctx context.Context, m *catalog.Media) (*catalog.Media, error)
	GetMedia(ctx context.Context, id string) (*catalog.Media, error)
	GetMediaByFilename(ctx context.Context, filename string) (*catalog.Media, error)
}

// Library stores uploads under one directory and records them in the
// catalog once they probe successfully.
type Library struct {
	dir     string
	prober  Prober
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
}

func NewLibrary(dir string, prober Prober, cat Catalog, logger *slog.Logger) (*Library, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid uploads directory: %w", err)
	}
	return &Library{dir: abs, prober: prober, catalog: cat, logger: logger, now: time.Now}, nil
}

func (l *Library) Dir() string {
	return l.dir
}

// Save writes an uploaded video as video-<unix ms><ext>, probes it and
// records it. A file that cannot be probed is removed and no record is made.
func (l *Library) Save(ctx context.Context, originalName string, r io.Reader) (*catalog.Media, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !catalog.IsVideoFile(originalName) {
		return nil, &composition.ValidationError{Field: "video", Reason: fmt.Sprintf("unsupported file type %q", ext)}
	}

	f, name, err := l.create(ext)
	if err != nil {
		return nil, err
	}
	full := filepath.Join(l.dir, name)

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	info, err := l.prober.Probe(ctx, full)
	if err != nil {
		os.Remove(full)
		if !errors.Is(err, ErrMediaProbe) {
			err = fmt.Errorf("%w: %v", ErrMediaProbe, err)
		}
		if l.logger != nil {
			l.logger.Warn("upload rejected", "original_name", originalName, "error", err)
		}
		return nil, err
	}

	m, err := l.catalog.RegisterMedia(ctx, &catalog.Media{
		Filename:        name,
		OriginalName:    filepath.Base(originalName),
		Path:            full,
		URL:             URLPrefix + name,
		Size:            size,
		Width:           info.Width,
		Height:          info.Height,
		DurationSeconds: info.DurationSeconds,
		Codec:           info.Codec,
	})
	if err != nil {
		os.Remove(full)
		return nil, err
	}
	return m, nil
}

// create opens a fresh upload file. Two uploads in the same millisecond
// get consecutive timestamps.
func (l *Library) create(ext string) (*os.File, string, error) {
	ts := l.now().UnixMilli()
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("video-%d%s", ts+int64(i), ext)
		f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, name, nil
		}
		if !os.IsExist(err) {
			return nil, "", fmt.Errorf("failed to create upload file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("failed to allocate an upload filename")
}

// Resolve finds a stored upload by id, stored filename or served URL.
func (l *Library) Resolve(ctx context.Context, ref string) (*catalog.Media, error) {
	if ref == "" {
		return nil, ErrUnknownMedia
	}
	m, err := l.catalog.GetMedia(ctx, ref)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, catalog.ErrMediaNotFound) {
		return nil, err
	}

	m, err = l.catalog.GetMediaByFilename(ctx, FilenameFromURL(ref))
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrUnknownMedia
	}
	return m, nil
}

// Composition starts an edit from a stored upload: the canvas takes the
// probed size (evened) and the duration comes from the probe.
func Composition(m *catalog.Media) (composition.Composition, error) {
	return composition.New(m.URL, geometry.Size{Width: m.Width, Height: m.Height}, m.DurationSeconds)
}

// FilenameFromURL reduces a media URL or path to its final element, dropping
// any query. Directory components never survive, so the result is safe to
// join under an uploads directory.
func FilenameFromURL(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		ref = u.Path
	}
	name := path.Base(strings.ReplaceAll(ref, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
