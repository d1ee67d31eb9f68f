package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/heimdex-overlay/internal/catalog"
	"github.com/heimdex/heimdex-overlay/internal/db"
	"github.com/heimdex/heimdex-overlay/internal/editor"
	"github.com/heimdex/heimdex-overlay/internal/export"
	"github.com/heimdex/heimdex-overlay/internal/geometry"
	"github.com/heimdex/heimdex-overlay/internal/media"
	"github.com/heimdex/heimdex-overlay/internal/playback"
	"github.com/heimdex/heimdex-overlay/internal/raster"
)

const testToken = "test-token-0123456789"

type fakeProber struct {
	info *media.Info
	err  error
}

func (f *fakeProber) Probe(ctx context.Context, path string) (*media.Info, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type fakeDoctorRunner struct {
	caps *export.Capabilities
	err  error
}

func (f *fakeDoctorRunner) Render(ctx context.Context, propsPath, resultPath, outDir string) export.RunResult {
	return export.RunResult{ExitCode: 1}
}

func (f *fakeDoctorRunner) Doctor(ctx context.Context) (*export.Capabilities, error) {
	return f.caps, f.err
}

type testEnv struct {
	cfg     ServerConfig
	router  http.Handler
	catalog *catalog.Service
	repo    *catalog.SQLiteRepository
	library *media.Library
	prober  *fakeProber
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, mutate ...func(*ServerConfig)) *testEnv {
	t.Helper()
	logger := discardLogger()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := catalog.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), AuthTokenKey, testToken); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	svc := catalog.NewService(repo, logger)

	prober := &fakeProber{info: &media.Info{DurationSeconds: 12.4, Width: 1920, Height: 1080, Codec: "h264", FrameRate: 30}}
	lib, err := media.NewLibrary(filepath.Join(t.TempDir(), "uploads"), prober, svc, logger)
	if err != nil {
		t.Fatalf("NewLibrary() error = %v", err)
	}

	painter, err := raster.NewPainter("", raster.DefaultStyle())
	if err != nil {
		t.Fatalf("NewPainter() error = %v", err)
	}

	cfg := ServerConfig{
		Version:        "test",
		CatalogService: svc,
		Repository:     repo,
		Library:        lib,
		PlaybackServer: playback.NewServer(logger),
		Sessions:       editor.NewStore(8, time.Hour),
		Painter:        painter,
		Stills:         solidStill,
		Logger:         logger,
		StartTime:      time.Now().Add(-10 * time.Second),
		DeviceID:       "test-device",
	}
	for _, m := range mutate {
		m(&cfg)
	}

	return &testEnv{
		cfg:     cfg,
		router:  NewRouter(cfg),
		catalog: svc,
		repo:    repo,
		library: lib,
		prober:  prober,
	}
}

// solidStill stands in for ffmpeg: a mid-grey frame of the requested size.
func solidStill(ctx context.Context, path string, atSeconds float64, size geometry.Size) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img, nil
}

// do sends an authenticated request from a loopback address.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal error: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "127.0.0.1:50000"
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) saveMedia(t *testing.T) *catalog.Media {
	t.Helper()
	m, err := e.library.Save(context.Background(), "clip.mp4", strings.NewReader("fake mp4 bytes"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return m
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v (%s)", err, rr.Body.String())
	}

	return body
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response body: %v (%s)", err, rr.Body.String())
	}
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (%s)", rr.Code, status, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["code"] != code {
		t.Errorf("code = %v, want %s", body["code"], code)
	}
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["version"] != "test" || body["device_id"] != "test-device" {
		t.Errorf("health body = %v", body)
	}
	if uptime, _ := body["uptime_s"].(float64); uptime < 10 {
		t.Errorf("uptime_s = %v, want >= 10", body["uptime_s"])
	}
}

func TestStatusHandler_NilDoctor(t *testing.T) {
	env := newTestEnv(t)
	env.saveMedia(t)

	rr := env.do(t, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}

	body := decodeJSONBody(t, rr)
	if _, ok := body["renderer"]; ok {
		t.Fatal("renderer should be omitted when doctor is nil")
	}
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
	if body["media_count"] != float64(1) {
		t.Errorf("media_count = %v, want 1", body["media_count"])
	}
}

func TestStatusHandler_EmptyCache(t *testing.T) {
	doctor := export.NewCachedDoctor(&fakeDoctorRunner{}, discardLogger())
	env := newTestEnv(t, func(cfg *ServerConfig) { cfg.Doctor = doctor })

	rr := env.do(t, http.MethodGet, "/status", nil)
	body := decodeJSONBody(t, rr)
	if _, ok := body["renderer"]; ok {
		t.Fatal("renderer should be omitted when the doctor cache is empty")
	}
}

func TestStatusHandler_WithCachedCaps(t *testing.T) {
	doctor := export.NewCachedDoctor(&fakeDoctorRunner{
		caps: &export.Capabilities{
			RendererVersion: "0.1.0",
			Executables: map[string]export.DepInfo{
				"ffmpeg":  {Available: true, Version: "6.1"},
				"ffprobe": {Available: true, Version: "6.1"},
			},
			Font:      export.DepInfo{Available: true},
			CanRender: true,
			ProbedAt:  time.Now(),
		},
	}, discardLogger())
	if _, err := doctor.Refresh(context.Background()); err != nil {
		t.Fatalf("doctor.Refresh() error = %v", err)
	}
	env := newTestEnv(t, func(cfg *ServerConfig) { cfg.Doctor = doctor })

	rr := env.do(t, http.MethodGet, "/status", nil)
	body := decodeJSONBody(t, rr)
	rs, ok := body["renderer"].(map[string]any)
	if !ok {
		t.Fatal("renderer missing from response")
	}
	if rs["can_render"] != true || rs["has_ffmpeg"] != true || rs["version"] != "0.1.0" {
		t.Errorf("renderer = %v", rs)
	}
	if _, ok := rs["last_probe_at"]; !ok {
		t.Error("last_probe_at missing")
	}
}

func TestStatusHandler_ExportStates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	failed, _ := env.catalog.StartExport(ctx, "s-1", "")
	env.catalog.FailExport(ctx, failed.ID, nil, export.ErrRenderTimeout)

	body := decodeJSONBody(t, env.do(t, http.MethodGet, "/status", nil))
	if body["state"] != "error" || body["last_error"] != export.ErrRenderTimeout.Error() {
		t.Errorf("after failure: state = %v, last_error = %v", body["state"], body["last_error"])
	}

	running, _ := env.catalog.StartExport(ctx, "s-2", "")
	env.catalog.MarkExportRunning(ctx, running.ID)

	body = decodeJSONBody(t, env.do(t, http.MethodGet, "/status", nil))
	if body["state"] != "exporting" || body["exports_running"] != float64(1) {
		t.Errorf("while running: state = %v, exports_running = %v", body["state"], body["exports_running"])
	}
}

func TestDoctorHandler(t *testing.T) {
	runner := &fakeDoctorRunner{caps: &export.Capabilities{
		RendererVersion: "0.1.0",
		Executables:     map[string]export.DepInfo{"ffmpeg": {Available: false, Error: "not found"}},
		Font:            export.DepInfo{Available: true},
	}}
	env := newTestEnv(t, func(cfg *ServerConfig) { cfg.Doctor = export.NewCachedDoctor(runner, discardLogger()) })

	rr := env.do(t, http.MethodGet, "/doctor", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["can_render"] != false {
		t.Errorf("can_render = %v, want false", body["can_render"])
	}
	exes, _ := body["executables"].(map[string]any)
	if ff, _ := exes["ffmpeg"].(map[string]any); ff["error"] != "not found" {
		t.Errorf("executables = %v", exes)
	}

	runner.caps, runner.err = nil, context.DeadlineExceeded
	env.cfg.Doctor.Invalidate()
	assertError(t, env.do(t, http.MethodGet, "/doctor?refresh=1", nil), http.StatusServiceUnavailable, CodeUnavailable)
}

func TestDoctorHandler_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	assertError(t, env.do(t, http.MethodGet, "/doctor", nil), http.StatusServiceUnavailable, CodeUnavailable)
}

func TestListExportsHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	e, _ := env.catalog.StartExport(ctx, "s-1", "")
	env.catalog.CompleteExport(ctx, e.ID, 372, "video_1.mp4", 1024)

	rr := env.do(t, http.MethodGet, "/exports", nil)
	var resp ExportsResponse
	decodeInto(t, rr, &resp)
	if len(resp.Exports) != 1 {
		t.Fatalf("exports = %d, want 1", len(resp.Exports))
	}
	got := resp.Exports[0]
	if got.Status != catalog.ExportStatusCompleted || got.DurationInFrames != 372 || got.OutputSize != 1024 {
		t.Errorf("export = %+v", got)
	}
}

func TestAuth_ProtectedRoutes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testToken},
		{"wrong token", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			env.router.ServeHTTP(rr, req)
			assertError(t, rr, http.StatusUnauthorized, CodeUnauthorized)
		})
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{editor.ErrSessionNotFound, http.StatusNotFound, CodeNotFound},
		{editor.ErrIllegalTransition, http.StatusConflict, CodeIllegalTransition},
		{media.ErrMediaProbe, http.StatusUnprocessableEntity, CodeMediaProbeFailed},
		{&export.RenderError{ExitCode: 3, Reason: "boom"}, http.StatusBadGateway, CodeRenderFailed},
		{export.ErrRenderTimeout, http.StatusGatewayTimeout, CodeRenderTimeout},
		{geometry.ErrInvalidAspectRatio, http.StatusBadRequest, CodeValidation},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge, CodeUploadTooLarge},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, code := errorStatus(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("errorStatus(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}
