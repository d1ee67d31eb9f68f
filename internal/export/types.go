// Package export turns a frozen composition into an MP4 by handing it to the
// out-of-process renderer and collecting what it produced.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/heimdex/heimdex-overlay/internal/composition"
)

var (
	// ErrRenderProcess covers a renderer that exits non-zero or leaves no output.
	ErrRenderProcess = errors.New("render process failed")
	// ErrRenderTimeout means the export ran past its deadline and was killed.
	ErrRenderTimeout = errors.New("render timed out")
)

// RenderError is a renderer failure with the diagnostics needed to debug it.
type RenderError struct {
	ExitCode   int
	Reason     string
	StderrTail string
}

func (e *RenderError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("render failed (exit %d): %s", e.ExitCode, e.Reason)
	}
	return "render failed: " + e.Reason
}

func (e *RenderError) Unwrap() error {
	return ErrRenderProcess
}

// Request is one export: a snapshot plus where it came from, for the log.
type Request struct {
	SessionID string
	MediaID   string
	Snapshot  composition.Snapshot
}

// Result is a finished export. The caller owns the output file and must call
// Cleanup once it has been delivered.
type Result struct {
	ExportID         string
	OutputPath       string
	Filename         string
	Size             int64
	DurationInFrames int
	Width            int
	Height           int
	Elapsed          time.Duration

	dir     string
	release func()
}

// Cleanup removes the output file and its working directory. Until it runs
// the pipeline's sweeper treats the export as live.
func (r *Result) Cleanup() error {
	if r.release != nil {
		defer r.release()
	}
	if r.dir != "" {
		return os.RemoveAll(r.dir)
	}
	if r.OutputPath != "" {
		err := os.Remove(r.OutputPath)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

// RunResult is the structured outcome of one renderer invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	ResultPath string        `json:"result_path,omitempty"`
	Stdout     string        `json:"stdout,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Duration   time.Duration `json:"duration"`
	TimedOut   bool          `json:"timed_out,omitempty"`
}

// IsSuccess returns true when the renderer exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 && !r.TimedOut }

// DepInfo is the availability of one thing the renderer needs.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities is what `heimdex-render doctor --json` reports.
type Capabilities struct {
	RendererVersion string             `json:"renderer_version"`
	Executables     map[string]DepInfo `json:"executables"`
	Font            DepInfo            `json:"font"`

	CanRender bool      `json:"-"`
	ProbedAt  time.Time `json:"-"`
}

func isAvailable(deps map[string]DepInfo, name string) bool {
	d, ok := deps[name]
	return ok && d.Available
}

func (c *Capabilities) derive() {
	c.CanRender = isAvailable(c.Executables, "ffmpeg") &&
		isAvailable(c.Executables, "ffprobe") &&
		c.Font.Available
}

// artifactPaths are the files one export owns under the work directory.
type artifactPaths struct {
	props  string
	result string
	outDir string
}

func newArtifactPaths(workDir, token string) artifactPaths {
	base := filepath.Join(workDir, "export-"+token)
	return artifactPaths{
		props:  base + ".json",
		result: base + ".result.json",
		outDir: base,
	}
}
