package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"

	"github.com/heimdex/heimdex-overlay/internal/geometry"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegBinary is the executable the frame decoders run.
var FFmpegBinary = "ffmpeg"

// ErrShortFrame means the decoder stopped part way through a frame.
var ErrShortFrame = errors.New("truncated video frame")

// DecodeArgs builds the ffmpeg arguments that decode path as raw RGBA frames
// of the given size on stdout, resampled to fps.
func DecodeArgs(path string, size geometry.Size, fps int) []string {
	return ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"format":   "rawvideo",
			"pix_fmt":  "rgba",
			"vf":       fmt.Sprintf("fps=%d,scale=%d:%d", fps, size.Width, size.Height),
			"loglevel": "error",
		}).
		GetArgs()
}

// FrameReader yields decoded frames from a running ffmpeg process in order.
type FrameReader struct {
	cmd  *exec.Cmd
	out  io.ReadCloser
	size geometry.Size
	read int
}

// OpenFrames starts decoding path. Each Next call returns the next frame at
// size; stderr receives ffmpeg's diagnostics and may be nil.
func OpenFrames(ctx context.Context, path string, size geometry.Size, fps int, stderr io.Writer) (*FrameReader, error) {
	if !size.IsPositive() {
		return nil, fmt.Errorf("invalid decode size %s", size)
	}

	cmd := exec.CommandContext(ctx, FFmpegBinary, DecodeArgs(path, size, fps)...)
	cmd.Stderr = stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open decoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}
	return &FrameReader{cmd: cmd, out: out, size: size}, nil
}

// Next returns io.EOF once the source is exhausted.
func (r *FrameReader) Next() (*image.RGBA, error) {
	img, err := ReadFrame(r.out, r.size)
	if err != nil {
		return nil, err
	}
	r.read++
	return img, nil
}

// Frames reports how many frames have been read so far.
func (r *FrameReader) Frames() int {
	return r.read
}

// Close stops the decoder. Frames left unread are discarded.
func (r *FrameReader) Close() error {
	r.out.Close()
	err := r.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Closing the pipe early makes ffmpeg exit with a broken pipe.
		return nil
	}
	return err
}

// ReadFrame reads one raw RGBA frame of the given size from r.
func ReadFrame(r io.Reader, size geometry.Size) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	n, err := io.ReadFull(r, img.Pix)
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrShortFrame, n, len(img.Pix))
	case err != nil:
		return nil, err
	}
	return img, nil
}

// ExtractFrame decodes the single frame shown at the given time, scaled to
// size. Used for preview stills.
func ExtractFrame(ctx context.Context, path string, atSeconds float64, size geometry.Size) (*image.RGBA, error) {
	if !size.IsPositive() {
		return nil, fmt.Errorf("invalid frame size %s", size)
	}

	args := ffmpeg.Input(path, ffmpeg.KwArgs{"ss": strconv.FormatFloat(atSeconds, 'f', 3, 64)}).
		Output("pipe:", ffmpeg.KwArgs{
			"vframes":  1,
			"format":   "rawvideo",
			"pix_fmt":  "rgba",
			"s":        size.String(),
			"loglevel": "error",
		}).
		GetArgs()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, FFmpegBinary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("frame extraction failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	img, err := ReadFrame(&stdout, size)
	if err == io.EOF {
		return nil, fmt.Errorf("no frame at %.3fs", atSeconds)
	}
	return img, err
}
