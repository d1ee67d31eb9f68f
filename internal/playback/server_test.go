package playback

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeVideo(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "video-1.mp4")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestServeFile(t *testing.T) {
	path := writeVideo(t, 1000)
	srv := NewServer(nil)

	tests := []struct {
		name        string
		rangeHeader string
		wantStatus  int
		wantLen     int
		wantRange   string
	}{
		{"whole file", "", http.StatusOK, 1000, ""},
		{"partial", "bytes=100-199", http.StatusPartialContent, 100, "bytes 100-199/1000"},
		{"suffix", "bytes=-10", http.StatusPartialContent, 10, "bytes 990-999/1000"},
		{"malformed ignored", "items=1-2", http.StatusOK, 1000, ""},
		{"unsatisfiable", "bytes=5000-", http.StatusRequestedRangeNotSatisfiable, -1, "bytes */1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/media/video-1.mp4", nil)
			if tt.rangeHeader != "" {
				req.Header.Set("Range", tt.rangeHeader)
			}
			rec := httptest.NewRecorder()

			if err := srv.ServeFile(rec, req, path); err != nil {
				t.Fatalf("ServeFile() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantLen >= 0 && rec.Body.Len() != tt.wantLen {
				t.Errorf("body length = %d, want %d", rec.Body.Len(), tt.wantLen)
			}
			if got := rec.Header().Get("Content-Range"); got != tt.wantRange {
				t.Errorf("Content-Range = %q, want %q", got, tt.wantRange)
			}
			if tt.wantStatus != http.StatusRequestedRangeNotSatisfiable {
				if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
					t.Errorf("Content-Type = %q, want video/mp4", ct)
				}
			}
		})
	}
}

func TestServeFile_PartialContentBytes(t *testing.T) {
	path := writeVideo(t, 1000)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Range", "bytes=300-302")
	rec := httptest.NewRecorder()

	if err := NewServer(nil).ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	want := []byte{byte(300 % 251), byte(301 % 251), byte(302 % 251)}
	if got := rec.Body.Bytes(); string(got) != string(want) {
		t.Errorf("body = %v, want %v", got, want)
	}
}

func TestServeFile_NotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := NewServer(nil).ServeFile(rec, req, filepath.Join(t.TempDir(), "missing.mp4")); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServeFile_Head(t *testing.T) {
	path := writeVideo(t, 64)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/", nil)
	if err := NewServer(nil).ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD body length = %d, want 0", rec.Body.Len())
	}
	if got := rec.Header().Get("Content-Length"); got != "64" {
		t.Errorf("Content-Length = %q, want 64", got)
	}
}

func TestServeAttachment(t *testing.T) {
	path := writeVideo(t, 2048)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/export-video", nil)

	n, err := NewServer(nil).ServeAttachment(rec, req, path, "video_abc123.mp4")
	if err != nil {
		t.Fatalf("ServeAttachment() error = %v", err)
	}
	if n != 2048 || rec.Body.Len() != 2048 {
		t.Errorf("written = %d, body = %d, want 2048", n, rec.Body.Len())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="video_abc123.mp4"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", got)
	}
}

func TestServeAttachment_MissingFileLeavesResponseUntouched(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if _, err := NewServer(nil).ServeAttachment(rec, req, filepath.Join(t.TempDir(), "gone.mp4"), "x.mp4"); err == nil {
		t.Fatal("ServeAttachment() error = nil for missing file")
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Error("headers were written for a missing file")
	}
}
