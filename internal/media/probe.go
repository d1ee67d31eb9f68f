// Package media handles uploaded source videos: storing them, probing their
// dimensions and duration with ffprobe, and decoding frames for compositing.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ErrMediaProbe means duration or dimensions could not be read from a file.
var ErrMediaProbe = errors.New("media probe failed")

const DefaultProbeTimeout = 30 * time.Second

// Info is what the compositor needs to know about a source video.
type Info struct {
	DurationSeconds float64 `json:"durationSeconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Codec           string  `json:"codec"`
	FrameRate       float64 `json:"frameRate"`
}

type Prober interface {
	Probe(ctx context.Context, path string) (*Info, error)
}

// FFProbe shells out to ffprobe through ffmpeg-go.
type FFProbe struct {
	Timeout time.Duration
}

func NewFFProbe(timeout time.Duration) *FFProbe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &FFProbe{Timeout: timeout}
}

func (p *FFProbe) Probe(ctx context.Context, path string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := p.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	out, err := ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{})
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v", ErrMediaProbe, err)
	}
	return ParseProbe(out)
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Duration   string `json:"duration"`
	NbFrames   string `json:"nb_frames"`
	RFrameRate string `json:"r_frame_rate"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseProbe reads ffprobe's JSON output. Duration comes from the video
// stream, then the container, then nb_frames over the frame rate.
func ParseProbe(data string) (*Info, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("%w: decode ffprobe output: %v", ErrMediaProbe, err)
	}

	var video *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			video = &out.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, fmt.Errorf("%w: no video stream found", ErrMediaProbe)
	}
	if video.Width <= 0 || video.Height <= 0 {
		return nil, fmt.Errorf("%w: video stream has no dimensions", ErrMediaProbe)
	}

	rate := parseRate(video.RFrameRate)
	duration := parseSeconds(video.Duration)
	if duration == 0 {
		duration = parseSeconds(out.Format.Duration)
	}
	if duration == 0 && rate > 0 {
		if frames, err := strconv.ParseFloat(strings.TrimSpace(video.NbFrames), 64); err == nil {
			duration = frames / rate
		}
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: could not determine video duration", ErrMediaProbe)
	}

	return &Info{
		DurationSeconds: duration,
		Width:           video.Width,
		Height:          video.Height,
		Codec:           video.CodecName,
		FrameRate:       rate,
	}, nil
}

func parseSeconds(s string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// parseRate reads ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseSeconds(s)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
