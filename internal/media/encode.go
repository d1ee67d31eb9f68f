package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/heimdex/heimdex-overlay/internal/geometry"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// EncodeArgs builds the ffmpeg arguments that read raw RGBA frames of size
// from stdin and encode them as H.264 in an MP4 at outPath.
func EncodeArgs(outPath string, size geometry.Size, fps int) []string {
	return ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgba",
		"s":         size.String(),
		"framerate": fps,
	}).
		Output(outPath, ffmpeg.KwArgs{
			"c:v":      "libx264",
			"pix_fmt":  "yuv420p",
			"movflags": "+faststart",
			"loglevel": "error",
		}).
		OverWriteOutput().
		GetArgs()
}

// FrameWriter feeds frames to a running ffmpeg encoder.
type FrameWriter struct {
	cmd     *exec.Cmd
	in      io.WriteCloser
	size    geometry.Size
	written int
}

// CreateVideo starts an encoder writing outPath. Frames must be exactly size.
func CreateVideo(ctx context.Context, outPath string, size geometry.Size, fps int, stderr io.Writer) (*FrameWriter, error) {
	if !size.IsPositive() || !size.IsEven() {
		return nil, fmt.Errorf("invalid encode size %s", size)
	}

	cmd := exec.CommandContext(ctx, FFmpegBinary, EncodeArgs(outPath, size, fps)...)
	cmd.Stderr = stderr
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open encoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	return &FrameWriter{cmd: cmd, in: in, size: size}, nil
}

// Write sends one frame.
func (w *FrameWriter) Write(img *image.RGBA) error {
	if err := WriteFrame(w.in, img, w.size); err != nil {
		return err
	}
	w.written++
	return nil
}

// Frames reports how many frames have been written.
func (w *FrameWriter) Frames() int {
	return w.written
}

// Close flushes the encoder and waits for it to finish the file.
func (w *FrameWriter) Close() error {
	if err := w.in.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		w.cmd.Wait()
		return fmt.Errorf("failed to close encoder input: %w", err)
	}
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder failed: %w", err)
	}
	return nil
}

// Abort kills the encoder without finishing the file.
func (w *FrameWriter) Abort() {
	w.in.Close()
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	w.cmd.Wait()
}

// WriteFrame writes img as tightly packed RGBA rows. img must match size.
func WriteFrame(out io.Writer, img *image.RGBA, size geometry.Size) error {
	b := img.Bounds()
	if b.Dx() != size.Width || b.Dy() != size.Height {
		return fmt.Errorf("frame is %dx%d, encoder expects %s", b.Dx(), b.Dy(), size)
	}
	row := size.Width * 4
	if img.Stride == row && b.Min == (image.Point{}) {
		_, err := out.Write(img.Pix[:row*size.Height])
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := out.Write(img.Pix[off : off+row]); err != nil {
			return err
		}
	}
	return nil
}
