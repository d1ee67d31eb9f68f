// Package playback serves uploaded media and rendered exports over HTTP,
// honouring byte ranges so browsers can seek.
package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type PlaybackService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
	ServeAttachment(w http.ResponseWriter, r *http.Request, filePath, downloadName string) (int64, error)
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// Not every host ships a mime.types that knows video containers.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ServeFile writes filePath to w, answering Range requests with 206.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	size := stat.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentTypeFor(filePath))

	rng, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case err == ErrUnsatisfiable:
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err == ErrInvalidRange:
		// Malformed ranges are ignored and the whole file is sent.
		rng = nil
	case err != nil:
		return err
	}

	if rng == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, file)
		}
		return nil
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	h.Set("Content-Length", strconv.FormatInt(rng.ContentLength(), 10))
	h.Set("Content-Range", rng.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		io.CopyN(w, file, rng.ContentLength())
	}
	return nil
}

// ServeAttachment streams the whole of filePath as a download named
// downloadName and reports the bytes written. Headers are only committed
// once the file is open, so a failure before that leaves w untouched.
func (s *Server) ServeAttachment(w http.ResponseWriter, r *http.Request, filePath, downloadName string) (int64, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}

	h := w.Header()
	h.Set("Content-Type", contentTypeFor(filePath))
	h.Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return 0, nil
	}
	n, err := io.Copy(w, file)
	if err != nil && s.logger != nil {
		s.logger.Warn("attachment stream interrupted", "file", filepath.Base(filePath), "written", n, "error", err)
	}
	return n, err
}
