// Package animation holds the time-pure animation math shared by the live
// preview and the headless renderer. Every function here is deterministic:
// identical inputs give bit-identical outputs.
package animation

import (
	"math"
	"sync"
)

const (
	// DefaultRestThreshold is the distance from the target under which a
	// spring counts as settled when measuring its natural duration.
	DefaultRestThreshold = 0.005

	// maxStepMs caps the integration step, matching the preview player.
	maxStepMs = 64.0

	// settleFrames is how long a spring must stay within the threshold
	// before it is considered finished.
	settleFrames = 20
)

// SpringConfig describes the physical spring.
type SpringConfig struct {
	Damping           float64
	Mass              float64
	Stiffness         float64
	OvershootClamping bool
}

// DefaultSpringConfig returns the player defaults: mass 1, stiffness 100, damping 10.
func DefaultSpringConfig() SpringConfig {
	return SpringConfig{Damping: 10, Mass: 1, Stiffness: 100}
}

// SpringParams are the inputs to Spring. Frame may be fractional or negative.
// DurationInFrames, when positive, stretches the spring so that its natural
// duration maps onto that many frames.
type SpringParams struct {
	Frame            float64
	FPS              float64
	Config           SpringConfig
	From             float64
	To               float64
	DurationInFrames float64
}

type springState struct {
	lastTimestamp float64
	current       float64
	toValue       float64
	velocity      float64
}

// advance integrates one step of the closed-form spring solution.
func advance(s springState, now float64, cfg SpringConfig) springState {
	deltaTime := math.Min(now-s.lastTimestamp, maxStepMs)

	c := cfg.Damping
	m := cfg.Mass
	k := cfg.Stiffness

	v0 := -s.velocity
	x0 := s.toValue - s.current

	zeta := c / (2 * math.Sqrt(k*m))
	omega0 := math.Sqrt(k / m)
	omega1 := omega0 * math.Sqrt(1-zeta*zeta)

	t := deltaTime / 1000

	next := springState{lastTimestamp: now, toValue: s.toValue}

	if zeta < 1 {
		sin1 := math.Sin(omega1 * t)
		cos1 := math.Cos(omega1 * t)
		envelope := math.Exp(-zeta * omega0 * t)
		frag := envelope * (sin1*((v0+zeta*omega0*x0)/omega1) + x0*cos1)
		next.current = s.toValue - frag
		next.velocity = zeta*omega0*frag - envelope*(cos1*(v0+zeta*omega0*x0)-omega1*x0*sin1)
		return next
	}

	// Critically damped form, also used for overdamped configurations.
	envelope := math.Exp(-omega0 * t)
	next.current = s.toValue - envelope*(x0+(v0+omega0*x0)*t)
	next.velocity = envelope * (v0*(t*omega0-1) + t*x0*omega0*omega0)
	return next
}

// springAt evaluates a unit (0 -> 1) spring at frame, stepping once per
// whole frame from zero and finishing on the fractional remainder.
func springAt(frame, fps float64, cfg SpringConfig) springState {
	s := springState{current: 0, toValue: 1}
	clamped := math.Max(0, frame)
	whole := math.Floor(clamped)
	rest := clamped - whole

	for f := 0.0; f <= whole; f++ {
		step := f
		if f == whole {
			step += rest
		}
		s = advance(s, step/fps*1000, cfg)
	}
	return s
}

type measureKey struct {
	fps       float64
	cfg       SpringConfig
	threshold float64
}

// naturalDurations memoizes MeasureSpring, a pure function of its key.
var naturalDurations sync.Map

// MeasureSpring returns the number of frames a unit spring needs to settle
// within threshold of its target and stay there for settleFrames frames.
func MeasureSpring(fps float64, cfg SpringConfig, threshold float64) float64 {
	if threshold <= 0 {
		return math.Inf(1)
	}
	if threshold >= 1 {
		return 0
	}
	key := measureKey{fps: fps, cfg: cfg, threshold: threshold}
	if v, ok := naturalDurations.Load(key); ok {
		return v.(float64)
	}

	frame := 0.0
	diff := func(f float64) float64 {
		s := springAt(f, fps, cfg)
		return math.Abs(s.current - s.toValue)
	}
	for diff(frame) >= threshold {
		frame++
	}

	finished := frame
	for i := 0; i < settleFrames; i++ {
		frame++
		if diff(frame) >= threshold {
			i = 0
			finished = frame + 1
		}
	}

	naturalDurations.Store(key, finished)
	return finished
}

// Spring evaluates the spring described by p.
func Spring(p SpringParams) float64 {
	cfg := p.Config
	if cfg == (SpringConfig{}) {
		cfg = DefaultSpringConfig()
	}
	if cfg.Mass == 0 {
		cfg.Mass = 1
	}
	if cfg.Stiffness == 0 {
		cfg.Stiffness = 100
	}

	frame := p.Frame
	if p.DurationInFrames > 0 {
		if frame > p.DurationInFrames {
			return p.To
		}
		natural := MeasureSpring(p.FPS, cfg, DefaultRestThreshold)
		frame = frame / (p.DurationInFrames / natural)
	}

	inner := springAt(frame, p.FPS, cfg).current
	if cfg.OvershootClamping {
		if p.To >= p.From {
			inner = math.Min(inner, p.To)
		} else {
			inner = math.Max(inner, p.To)
		}
	}
	if p.From == 0 && p.To == 1 {
		return inner
	}
	return Interpolate(inner, [2]float64{0, 1}, [2]float64{p.From, p.To})
}

// Interpolate maps x linearly from the input range onto the output range,
// extending beyond both ends.
func Interpolate(x float64, in, out [2]float64) float64 {
	if in[1] == in[0] {
		return out[0]
	}
	t := (x - in[0]) / (in[1] - in[0])
	return out[0] + t*(out[1]-out[0])
}
