package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // tail of renderer stderr kept for diagnostics
	maxStdoutBytes = 4 * 1024 // stdout only carries the completion marker

	// RendererName is the renderer executable looked up when none is configured.
	RendererName = "heimdex-render"
)

// Runner invokes the renderer executable.
type Runner interface {
	// Render runs `heimdex-render render` on a props file. The renderer writes
	// its structured result to resultPath and the video into outDir.
	Render(ctx context.Context, propsPath, resultPath, outDir string) RunResult

	// Doctor runs `heimdex-render doctor --json` and returns what it found.
	Doctor(ctx context.Context) (*Capabilities, error)
}

// RunnerConfig holds the runner's configuration.
type RunnerConfig struct {
	RendererPath  string // empty = next to the agent binary, then PATH
	PublicDir     string // where videoData URLs resolve
	FontPath      string // empty = built-in font
	Workers       int    // frame compositing workers; 0 = renderer default
	DoctorTimeout time.Duration
	Logger        *slog.Logger
	DebugPaths    bool // log full paths instead of sanitised ones
}

// SubprocessRunner is the production Runner.
type SubprocessRunner struct {
	cfg      RunnerConfig
	renderer string
	prefix   []string // leading arguments, used to re-exec test binaries
}

func NewRunner(cfg RunnerConfig) (*SubprocessRunner, error) {
	renderer, err := resolveRenderer(cfg.RendererPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate renderer: %w", err)
	}
	if cfg.DoctorTimeout <= 0 {
		cfg.DoctorTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg.Logger.Info("renderer runner initialised",
		"renderer", renderer,
		"public_dir", cfg.PublicDir,
		"workers", cfg.Workers,
	)
	return &SubprocessRunner{cfg: cfg, renderer: renderer}, nil
}

func (r *SubprocessRunner) Render(ctx context.Context, propsPath, resultPath, outDir string) RunResult {
	args := []string{
		"render",
		"--props", propsPath,
		"--result", resultPath,
		"--out-dir", outDir,
	}
	if r.cfg.PublicDir != "" {
		args = append(args, "--public-dir", r.cfg.PublicDir)
	}
	if r.cfg.FontPath != "" {
		args = append(args, "--font", r.cfg.FontPath)
	}
	if r.cfg.Workers > 0 {
		args = append(args, "--workers", strconv.Itoa(r.cfg.Workers))
	}

	result := r.exec(ctx, args...)
	result.ResultPath = resultPath
	return result
}

func (r *SubprocessRunner) Doctor(ctx context.Context) (*Capabilities, error) {
	out, err := os.CreateTemp("", "heimdex-render-doctor-*.json")
	if err != nil {
		return nil, fmt.Errorf("cannot create doctor output: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	args := []string{"doctor", "--json", "--out", outPath}
	if r.cfg.FontPath != "" {
		args = append(args, "--font", r.cfg.FontPath)
	}
	result := r.exec(ctx, args...)
	if !result.IsSuccess() {
		return nil, fmt.Errorf("doctor exited %d: %s", result.ExitCode, result.StderrTail)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read doctor output: %w", err)
	}

	var caps Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("cannot parse doctor JSON: %w", err)
	}
	caps.derive()
	caps.ProbedAt = time.Now()

	r.cfg.Logger.Info("renderer doctor complete",
		"can_render", caps.CanRender,
		"ffmpeg", isAvailable(caps.Executables, "ffmpeg"),
		"ffprobe", isAvailable(caps.Executables, "ffprobe"),
		"font", caps.Font.Available,
	)
	return &caps, nil
}

// exec runs the renderer once and never returns an error: every failure is
// folded into the RunResult.
func (r *SubprocessRunner) exec(ctx context.Context, args ...string) RunResult {
	start := time.Now()

	cmdArgs := append(append([]string{}, r.prefix...), args...)
	cmd := exec.CommandContext(ctx, r.renderer, cmdArgs...)
	// ffmpeg children may hold the pipes open after the renderer is killed.
	cmd.WaitDelay = 5 * time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, limit: maxStdoutBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	r.cfg.Logger.Info("executing renderer", "command", args[0], "args", r.safeArgs(args))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)

	stderrTail := stderrBuf.String()
	if err != nil && exitCode == -1 && stderrTail == "" {
		stderrTail = err.Error()
	}

	if exitCode != 0 || timedOut {
		r.cfg.Logger.Warn("renderer failed",
			"command", args[0],
			"exit_code", exitCode,
			"timed_out", timedOut,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.cfg.Logger.Info("renderer succeeded",
			"command", args[0],
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		Stdout:     stdoutBuf.String(),
		StderrTail: stderrTail,
		Duration:   elapsed,
		TimedOut:   timedOut,
	}
}

func (r *SubprocessRunner) safeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, "-") || !filepath.IsAbs(a) {
			out[i] = a
			continue
		}
		out[i] = r.safePath(a)
	}
	return out
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

// resolveRenderer finds the renderer: the configured path, then a binary
// installed beside the agent, then PATH.
func resolveRenderer(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured renderer %q not found", preferred)
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), RendererName)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	if p, err := exec.LookPath(RendererName); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no %s binary found beside the agent or on PATH", RendererName)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
