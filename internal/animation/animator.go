package animation

import (
	"math"
	"strings"
)

// Word animation timing, in frames.
const (
	LoopDuration  = 60
	InitialDelay  = 30
	WordStagger   = 5
	SettleReserve = 10
	WordDamping   = 200

	// HiddenOffset is the vertical offset, in pixels, of a word at opacity 0.
	HiddenOffset = 20.0
)

// WordAnimation is the animated state of one word.
type WordAnimation struct {
	Opacity float64 `json:"opacity"`
	OffsetY float64 `json:"offsetY"`
}

// Words splits overlay text the same way the preview does: on every single
// space, so repeated spaces yield empty words that still take a delay slot.
func Words(text string) []string {
	return strings.Split(text, " ")
}

// WordState returns the animation of word wordIndex at frame, where frame is
// counted from the moment the overlay first became visible.
//
// During the first InitialDelay frames every word is fully shown. After that
// each word replays a spring in a LoopDuration-frame loop, staggered by
// WordStagger frames per word.
func WordState(frame, wordIndex int, fps float64) WordAnimation {
	if frame < InitialDelay {
		return WordAnimation{Opacity: 1, OffsetY: 0}
	}

	loopFrame := max(0, frame-InitialDelay) % LoopDuration
	delay := wordIndex * WordStagger

	opacity := Spring(SpringParams{
		Frame:            float64(loopFrame - delay),
		FPS:              fps,
		Config:           SpringConfig{Damping: WordDamping, Mass: 1, Stiffness: 100},
		From:             0,
		To:               1,
		DurationInFrames: LoopDuration - SettleReserve,
	})

	return WordAnimation{
		Opacity: opacity,
		OffsetY: Interpolate(opacity, [2]float64{0, 1}, [2]float64{HiddenOffset, 0}),
	}
}

// ClampedOpacity bounds an opacity for compositing. The spring with the word
// damping never overshoots, so this only guards against rounding.
func ClampedOpacity(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
