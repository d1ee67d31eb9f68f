package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/heimdex-overlay/internal/catalog"
	"github.com/heimdex/heimdex-overlay/internal/composition"
	"github.com/heimdex/heimdex-overlay/internal/db"
)

type fakeProber struct {
	info  *Info
	err   error
	calls []string
}

func (f *fakeProber) Probe(ctx context.Context, path string) (*Info, error) {
	f.calls = append(f.calls, path)
	return f.info, f.err
}

func newLibrary(t *testing.T, prober Prober) (*Library, *catalog.Service) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	svc := catalog.NewService(catalog.NewRepository(database.Conn()), nil)
	lib, err := NewLibrary(filepath.Join(t.TempDir(), "uploads"), prober, svc, nil)
	if err != nil {
		t.Fatalf("NewLibrary() error = %v", err)
	}
	lib.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return lib, svc
}

func TestLibrary_Save(t *testing.T) {
	prober := &fakeProber{info: &Info{DurationSeconds: 12.4, Width: 1281, Height: 721, Codec: "h264"}}
	lib, _ := newLibrary(t, prober)

	m, err := lib.Save(context.Background(), "Holiday.MP4", strings.NewReader("video bytes"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if m.Filename != "video-1700000000000.mp4" {
		t.Errorf("Filename = %s", m.Filename)
	}
	if m.URL != "/media/video-1700000000000.mp4" {
		t.Errorf("URL = %s", m.URL)
	}
	if m.Size != int64(len("video bytes")) {
		t.Errorf("Size = %d", m.Size)
	}
	if len(prober.calls) != 1 || prober.calls[0] != m.Path {
		t.Errorf("prober calls = %v, want [%s]", prober.calls, m.Path)
	}
	data, err := os.ReadFile(m.Path)
	if err != nil || string(data) != "video bytes" {
		t.Errorf("stored file = %q, %v", data, err)
	}

	c, err := Composition(m)
	if err != nil {
		t.Fatalf("Composition() error = %v", err)
	}
	if c.Size.Width != 1280 || c.Size.Height != 720 {
		t.Errorf("composition size = %s, want 1280x720", c.Size)
	}
	if c.DurationInFrames != 372 {
		t.Errorf("DurationInFrames = %d, want 372", c.DurationInFrames)
	}
	if c.VideoURL != m.URL {
		t.Errorf("VideoURL = %s, want %s", c.VideoURL, m.URL)
	}
}

func TestLibrary_Save_SameMillisecond(t *testing.T) {
	lib, _ := newLibrary(t, &fakeProber{info: &Info{DurationSeconds: 1, Width: 2, Height: 2}})

	a, err := lib.Save(context.Background(), "a.mp4", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("Save(a) error = %v", err)
	}
	b, err := lib.Save(context.Background(), "b.mp4", strings.NewReader("b"))
	if err != nil {
		t.Fatalf("Save(b) error = %v", err)
	}
	if a.Filename == b.Filename || a.ID == b.ID {
		t.Errorf("uploads collided: %s and %s", a.Filename, b.Filename)
	}
}

func TestLibrary_Save_ProbeFailureRemovesFile(t *testing.T) {
	lib, svc := newLibrary(t, &fakeProber{err: errors.New("moov atom not found")})

	_, err := lib.Save(context.Background(), "broken.mp4", strings.NewReader("junk"))
	if !errors.Is(err, ErrMediaProbe) {
		t.Fatalf("Save() error = %v, want ErrMediaProbe", err)
	}

	entries, _ := os.ReadDir(lib.Dir())
	if len(entries) != 0 {
		t.Errorf("uploads dir has %d entries after failed probe, want 0", len(entries))
	}
	if n, _ := svc.CountMedia(context.Background()); n != 0 {
		t.Errorf("CountMedia() = %d, want 0", n)
	}
}

func TestLibrary_Save_UnsupportedType(t *testing.T) {
	prober := &fakeProber{}
	lib, _ := newLibrary(t, prober)

	_, err := lib.Save(context.Background(), "notes.txt", strings.NewReader("x"))
	if !errors.Is(err, composition.ErrValidation) {
		t.Errorf("Save() error = %v, want ErrValidation", err)
	}
	if len(prober.calls) != 0 {
		t.Error("prober called for an unsupported file")
	}
}

func TestLibrary_Resolve(t *testing.T) {
	lib, _ := newLibrary(t, &fakeProber{info: &Info{DurationSeconds: 1, Width: 2, Height: 2}})
	ctx := context.Background()

	m, err := lib.Save(ctx, "clip.mov", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for _, ref := range []string{m.ID, m.Filename, m.URL, "http://localhost:8787" + m.URL + "?t=1"} {
		got, err := lib.Resolve(ctx, ref)
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", ref, err)
			continue
		}
		if got.ID != m.ID {
			t.Errorf("Resolve(%q) = %s, want %s", ref, got.ID, m.ID)
		}
	}

	for _, ref := range []string{"", "missing", "/media/../db.sqlite"} {
		if _, err := lib.Resolve(ctx, ref); !errors.Is(err, ErrUnknownMedia) {
			t.Errorf("Resolve(%q) error = %v, want ErrUnknownMedia", ref, err)
		}
	}
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/media/video-1.mp4", "video-1.mp4"},
		{"video-1.mp4", "video-1.mp4"},
		{"http://host/media/video-1.mp4?x=1", "video-1.mp4"},
		{"/media/../../etc/passwd", "passwd"},
		{`..\..\secret.mp4`, "secret.mp4"},
		{"/", ""},
		{"..", ""},
	}
	for _, tt := range tests {
		if got := FilenameFromURL(tt.in); got != tt.want {
			t.Errorf("FilenameFromURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
