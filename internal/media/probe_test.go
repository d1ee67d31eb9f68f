package media

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name         string
		data         string
		wantDuration float64
		wantW, wantH int
		wantRate     float64
	}{
		{
			name: "stream duration",
			data: `{"streams":[{"codec_type":"audio","codec_name":"aac","duration":"99"},
				{"codec_type":"video","codec_name":"h264","width":1280,"height":720,"duration":"12.400000","r_frame_rate":"30/1"}],
				"format":{"duration":"12.5"}}`,
			wantDuration: 12.4, wantW: 1280, wantH: 720, wantRate: 30,
		},
		{
			name: "format duration fallback",
			data: `{"streams":[{"codec_type":"video","codec_name":"vp9","width":640,"height":360,"r_frame_rate":"25/1"}],
				"format":{"duration":"8.0"}}`,
			wantDuration: 8, wantW: 640, wantH: 360, wantRate: 25,
		},
		{
			name: "frame count fallback",
			data: `{"streams":[{"codec_type":"video","codec_name":"h264","width":1920,"height":1080,"nb_frames":"300","r_frame_rate":"30000/1001"}],
				"format":{}}`,
			wantDuration: 300 / (30000.0 / 1001), wantW: 1920, wantH: 1080, wantRate: 30000.0 / 1001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseProbe(tt.data)
			if err != nil {
				t.Fatalf("ParseProbe() error = %v", err)
			}
			if math.Abs(info.DurationSeconds-tt.wantDuration) > 1e-9 {
				t.Errorf("DurationSeconds = %v, want %v", info.DurationSeconds, tt.wantDuration)
			}
			if info.Width != tt.wantW || info.Height != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", info.Width, info.Height, tt.wantW, tt.wantH)
			}
			if math.Abs(info.FrameRate-tt.wantRate) > 1e-9 {
				t.Errorf("FrameRate = %v, want %v", info.FrameRate, tt.wantRate)
			}
		})
	}
}

func TestParseProbe_Failures(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "ffprobe: command not found"},
		{"no streams", `{"streams":[],"format":{"duration":"3"}}`},
		{"audio only", `{"streams":[{"codec_type":"audio","duration":"3"}]}`},
		{"no dimensions", `{"streams":[{"codec_type":"video","duration":"3"}]}`},
		{"no duration", `{"streams":[{"codec_type":"video","width":2,"height":2}],"format":{}}`},
		{"zero rate", `{"streams":[{"codec_type":"video","width":2,"height":2,"nb_frames":"10","r_frame_rate":"0/0"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProbe(tt.data)
			if !errors.Is(err, ErrMediaProbe) {
				t.Errorf("ParseProbe() error = %v, want ErrMediaProbe", err)
			}
		})
	}
}

func TestFFProbe_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFFProbe(0).Probe(ctx, "ignored.mp4"); !errors.Is(err, context.Canceled) {
		t.Errorf("Probe() error = %v, want context.Canceled", err)
	}
}
