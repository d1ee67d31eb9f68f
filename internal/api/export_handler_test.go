package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/heimdex/heimdex-overlay/internal/export"
	"github.com/heimdex/heimdex-overlay/internal/wire"
)

// fakeExporter writes a small file in place of a render.
type fakeExporter struct {
	dir string
	err error

	mu       sync.Mutex
	requests []export.Request
	outputs  []string
}

func (f *fakeExporter) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}

	id := fmt.Sprintf("exp-%d", len(f.requests))
	out := filepath.Join(f.dir, id+".mp4")
	if err := os.WriteFile(out, []byte("rendered mp4"), 0644); err != nil {
		return nil, err
	}
	f.outputs = append(f.outputs, out)
	return &export.Result{
		ExportID:         id,
		OutputPath:       out,
		Filename:         "video_" + id + ".mp4",
		Size:             12,
		DurationInFrames: req.Snapshot.DurationInFrames(),
		Width:            req.Snapshot.Size().Width,
		Height:           req.Snapshot.Size().Height,
	}, nil
}

func withExporter(f *fakeExporter) func(*ServerConfig) {
	return func(cfg *ServerConfig) { cfg.Exporter = f }
}

func TestSessionExport(t *testing.T) {
	exp := &fakeExporter{dir: t.TempDir()}
	env := newTestEnv(t, withExporter(exp))
	sess := env.startSession(t)
	env.addOverlay(t, sess.ID)

	rr := env.do(t, http.MethodPost, "/sessions/"+sess.ID+"/export", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "rendered mp4" {
		t.Errorf("body = %q", rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="video_exp-1.mp4"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := rr.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q", got)
	}
	if rr.Header().Get("X-Export-ID") != "exp-1" || rr.Header().Get("X-Duration-In-Frames") != "372" {
		t.Errorf("headers = %v", rr.Header())
	}

	if _, err := os.Stat(exp.outputs[0]); !os.IsNotExist(err) {
		t.Errorf("export output not removed after delivery: %v", err)
	}
	req := exp.requests[0]
	if req.SessionID != sess.ID || req.MediaID != sess.MediaID {
		t.Errorf("request = session %q media %q", req.SessionID, req.MediaID)
	}
	if overlays := req.Snapshot.Composition().Overlays; len(overlays) != 1 {
		t.Errorf("snapshot overlays = %d, want 1", len(overlays))
	}
}

func TestExportVideo_Document(t *testing.T) {
	exp := &fakeExporter{dir: t.TempDir()}
	env := newTestEnv(t, withExporter(exp))
	sess := env.startSession(t)
	env.addOverlay(t, sess.ID)

	var doc wire.ExportRequest
	decodeInto(t, env.do(t, http.MethodGet, "/sessions/"+sess.ID+"/props", nil), &doc)

	tests := []struct {
		name       string
		frames     int
		wantFrames int
	}{
		{"document duration", 90, 90},
		{"duration from the probed media", 0, 372},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := doc
			d.DurationInFrames = tt.frames

			rr := env.do(t, http.MethodPost, "/export-video", d)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
			}
			if got := rr.Header().Get("X-Duration-In-Frames"); got != strconv.Itoa(tt.wantFrames) {
				t.Errorf("X-Duration-In-Frames = %s, want %d", got, tt.wantFrames)
			}
		})
	}

	last := exp.requests[len(exp.requests)-1]
	if last.SessionID != "" || last.MediaID != sess.MediaID {
		t.Errorf("request = session %q media %q", last.SessionID, last.MediaID)
	}
}

func TestExportVideo_Rejections(t *testing.T) {
	exp := &fakeExporter{dir: t.TempDir()}
	env := newTestEnv(t, withExporter(exp))
	sess := env.startSession(t)

	var doc wire.ExportRequest
	decodeInto(t, env.do(t, http.MethodGet, "/sessions/"+sess.ID+"/props", nil), &doc)

	noVideo := doc
	noVideo.VideoData = ""
	unknown := doc
	unknown.VideoData = "/media/video-1.mp4"
	badPosition := doc
	badPosition.VideoPosition = "left"
	oddSize := doc
	oddSize.CompositionSize.Width = 1919

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed", `{"videoData":`, http.StatusBadRequest, CodeBadRequest},
		{"no video", noVideo, http.StatusBadRequest, CodeValidation},
		{"unknown video", unknown, http.StatusNotFound, CodeNotFound},
		{"bad position", badPosition, http.StatusBadRequest, CodeValidation},
		{"odd size", oddSize, http.StatusBadRequest, CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, env.do(t, http.MethodPost, "/export-video", tt.body), tt.status, tt.code)
		})
	}
	if len(exp.requests) != 0 {
		t.Errorf("exporter called %d times for rejected documents", len(exp.requests))
	}
}

func TestSessionExport_Failures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"renderer exits non-zero", &export.RenderError{ExitCode: 1, Reason: "ffmpeg exited"}, http.StatusBadGateway, CodeRenderFailed},
		{"renderer timed out", fmt.Errorf("after 30m: %w", export.ErrRenderTimeout), http.StatusGatewayTimeout, CodeRenderTimeout},
		{"client went away", context.Canceled, http.StatusServiceUnavailable, CodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, withExporter(&fakeExporter{dir: t.TempDir(), err: tt.err}))
			sess := env.startSession(t)

			rr := env.do(t, http.MethodPost, "/sessions/"+sess.ID+"/export", nil)
			assertError(t, rr, tt.status, tt.code)
			if rr.Header().Get("Content-Disposition") != "" {
				t.Error("failed export carries an attachment header")
			}
		})
	}
}

func TestSessionExport_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	sess := env.startSession(t)

	assertError(t, env.do(t, http.MethodPost, "/sessions/"+sess.ID+"/export", nil), http.StatusServiceUnavailable, CodeUnavailable)
	assertError(t, env.do(t, http.MethodPost, "/sessions/missing/export", nil), http.StatusNotFound, CodeNotFound)
}
