package export

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultCacheTTL = 5 * time.Minute

// CachedDoctor remembers the renderer's last self-check for ttl. Callers
// that find it stale at the same moment share one `heimdex-render doctor`
// process.
type CachedDoctor struct {
	runner Runner
	ttl    time.Duration
	logger *slog.Logger
	probes singleflight.Group

	mu   sync.RWMutex
	last *Capabilities
}

func NewCachedDoctor(runner Runner, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{runner: runner, ttl: defaultCacheTTL, logger: logger}
}

func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	if caps := d.Peek(); caps != nil && time.Since(caps.ProbedAt) < d.ttl {
		return caps, nil
	}
	return d.Refresh(ctx)
}

// Peek never spawns the renderer. It returns nil before the first probe.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Refresh runs the renderer's doctor now. When it fails, the previous
// report is returned if there is one.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	v, err, _ := d.probes.Do("doctor", func() (any, error) {
		return d.runner.Doctor(ctx)
	})
	if err != nil {
		prev := d.Peek()
		d.logf(slog.LevelWarn, "renderer self-check failed", "error", err, "have_previous", prev != nil)
		if prev != nil {
			return prev, nil
		}
		return nil, err
	}

	caps, _ := v.(*Capabilities)
	if caps == nil {
		return d.Peek(), nil
	}
	d.mu.Lock()
	prev := d.last
	d.last = caps
	d.mu.Unlock()

	if prev == nil || prev.CanRender != caps.CanRender {
		d.logf(slog.LevelInfo, "renderer readiness", "can_render", caps.CanRender, "version", caps.RendererVersion)
	}
	return caps, nil
}

// Invalidate forgets the last report so the next Get probes again.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.last = nil
	d.mu.Unlock()
}

func (d *CachedDoctor) logf(level slog.Level, msg string, args ...any) {
	if d.logger != nil {
		d.logger.Log(context.Background(), level, msg, args...)
	}
}
