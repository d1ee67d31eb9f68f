package renderer

import (
	"context"
	"os/exec"
	"strings"

	"github.com/heimdex/heimdex-overlay/internal/raster"
)

// Dep is the availability of one thing rendering needs.
type Dep struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report is what `doctor --json` prints. The agent reads it back as its
// renderer capabilities.
type Report struct {
	RendererVersion string         `json:"renderer_version"`
	Executables     map[string]Dep `json:"executables"`
	Font            Dep            `json:"font"`
}

// CanRender reports whether an export could succeed on this host.
func (r Report) CanRender() bool {
	return r.Executables["ffmpeg"].Available &&
		r.Executables["ffprobe"].Available &&
		r.Font.Available
}

// Doctor checks for ffmpeg, ffprobe and a usable overlay font.
func Doctor(ctx context.Context, version, fontPath string) Report {
	rep := Report{
		RendererVersion: version,
		Executables: map[string]Dep{
			"ffmpeg":  lookExecutable(ctx, "ffmpeg"),
			"ffprobe": lookExecutable(ctx, "ffprobe"),
		},
	}

	rep.Font = Dep{Path: fontPath}
	if fontPath == "" {
		rep.Font.Path = "builtin:gobold"
	}
	if _, err := raster.NewPainter(fontPath, raster.DefaultStyle()); err != nil {
		rep.Font.Error = err.Error()
	} else {
		rep.Font.Available = true
	}
	return rep
}

func lookExecutable(ctx context.Context, name string) Dep {
	path, err := exec.LookPath(name)
	if err != nil {
		return Dep{Error: err.Error()}
	}
	dep := Dep{Available: true, Path: path}

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		dep.Error = "version check failed: " + err.Error()
		return dep
	}
	// "ffmpeg version 6.1.1 Copyright ..." -> "6.1.1"
	line, _, _ := strings.Cut(string(out), "\n")
	if fields := strings.Fields(line); len(fields) > 2 {
		dep.Version = fields[2]
	}
	return dep
}
