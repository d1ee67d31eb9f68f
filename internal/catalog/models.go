package catalog

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Media is an uploaded source video with its probed properties.
type Media struct {
	ID              string    `json:"id"`
	Filename        string    `json:"filename"`
	OriginalName    string    `json:"original_name,omitempty"`
	Path            string    `json:"path"`
	URL             string    `json:"url"`
	Size            int64     `json:"size"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	DurationSeconds float64   `json:"duration_seconds"`
	Codec           string    `json:"codec,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

const (
	ExportStatusPending   = "pending"
	ExportStatusRunning   = "running"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// Export records one export attempt. Output files are deleted once streamed,
// so the record is all that remains of an export.
type Export struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id,omitempty"`
	MediaID          string    `json:"media_id,omitempty"`
	Status           string    `json:"status"`
	DurationInFrames int       `json:"duration_in_frames"`
	OutputFilename   string    `json:"output_filename,omitempty"`
	OutputSize       int64     `json:"output_size"`
	ExitCode         *int      `json:"exit_code,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
}

func NewID() string {
	return uuid.NewString()
}

func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}
