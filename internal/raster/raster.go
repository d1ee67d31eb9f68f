// Package raster paints composition render trees into RGBA frames.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"sync"

	"github.com/heimdex/heimdex-overlay/internal/composition"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Style is the overlay text look: bold white, 24px, words spaced 0.3em,
// with a black drop shadow.
type Style struct {
	FontSize     float64
	WordGapEm    float64
	Color        color.RGBA
	Shadow       color.RGBA
	ShadowOffset int
}

func DefaultStyle() Style {
	return Style{
		FontSize:     24,
		WordGapEm:    0.3,
		Color:        color.RGBA{255, 255, 255, 255},
		Shadow:       color.RGBA{0, 0, 0, 180},
		ShadowOffset: 2,
	}
}

// Painter draws frames. It is safe for concurrent use; each call borrows
// its own font face because faces keep per-call scratch buffers.
type Painter struct {
	font  *opentype.Font
	style Style
	faces sync.Pool
}

// NewPainter builds a painter using the TTF/OTF at fontPath, or Go Bold
// when fontPath is empty.
func NewPainter(fontPath string, style Style) (*Painter, error) {
	data := gobold.TTF
	if fontPath != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		data = b
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	p := &Painter{font: f, style: style}
	// Fail early on a size the font cannot produce.
	face, err := p.newFace()
	if err != nil {
		return nil, err
	}
	p.faces.Put(face)
	return p, nil
}

func (p *Painter) newFace() (font.Face, error) {
	face, err := opentype.NewFace(p.font, &opentype.FaceOptions{
		Size:    p.style.FontSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

func (p *Painter) face() (font.Face, error) {
	if f, ok := p.faces.Get().(font.Face); ok {
		return f, nil
	}
	return p.newFace()
}

// NewCanvas allocates a frame buffer for f.
func NewCanvas(f composition.Frame) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, f.Size.Width, f.Size.Height))
}

// Paint draws f into dst. video is the decoded source frame for the video
// layer and may be nil, in which case only the background shows.
func (p *Painter) Paint(dst *image.RGBA, f composition.Frame, video image.Image) error {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	if f.Video != nil && video != nil {
		drawVideo(dst, f.Video, video)
	}

	if len(f.Overlays) == 0 {
		return nil
	}
	face, err := p.face()
	if err != nil {
		return err
	}
	defer p.faces.Put(face)

	for _, o := range f.Overlays {
		p.drawOverlay(dst, face, o)
	}
	return nil
}

func drawVideo(dst *image.RGBA, l *composition.VideoLayer, src image.Image) {
	x := int(math.Round(l.Position.X))
	y := int(math.Round(l.Position.Y))
	rect := image.Rect(x, y, x+l.Size.Width, y+l.Size.Height)

	sb := src.Bounds()
	if sb.Dx() == l.Size.Width && sb.Dy() == l.Size.Height {
		draw.Draw(dst, rect, src, sb.Min, draw.Src)
		return
	}
	draw.BiLinear.Scale(dst, rect, src, sb, draw.Src, nil)
}

// drawOverlay lays words out left to right from the overlay's top-left
// corner, each shifted down by its animated offset and faded by its opacity.
func (p *Painter) drawOverlay(dst *image.RGBA, face font.Face, o composition.OverlayLayer) {
	metrics := face.Metrics()
	gap := fixed.Int26_6(math.Round(p.style.FontSize * p.style.WordGapEm * 64))
	x := toFixed(o.Position.X)
	baseline := toFixed(o.Position.Y) + metrics.Ascent

	for _, w := range o.Words {
		opacity := clamp01(w.Opacity)
		advance := font.MeasureString(face, w.Text)
		if w.Text != "" && opacity > 0 {
			dot := fixed.Point26_6{X: x, Y: baseline + toFixed(w.OffsetY)}
			off := fixed.I(p.style.ShadowOffset)

			shadow := &font.Drawer{
				Dst:  dst,
				Src:  image.NewUniform(fade(p.style.Shadow, opacity)),
				Face: face,
				Dot:  fixed.Point26_6{X: dot.X + off, Y: dot.Y + off},
			}
			shadow.DrawString(w.Text)

			text := &font.Drawer{
				Dst:  dst,
				Src:  image.NewUniform(fade(p.style.Color, opacity)),
				Face: face,
				Dot:  dot,
			}
			text.DrawString(w.Text)
		}
		x += advance + gap
	}
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// fade scales a color's alpha by opacity, keeping it premultiplied.
func fade(c color.RGBA, opacity float64) color.RGBA {
	return color.RGBA{
		R: uint8(math.Round(float64(c.R) * opacity)),
		G: uint8(math.Round(float64(c.G) * opacity)),
		B: uint8(math.Round(float64(c.B) * opacity)),
		A: uint8(math.Round(float64(c.A) * opacity)),
	}
}

// Render evaluates frame of s and paints it into a new canvas.
func (p *Painter) Render(frame int, s composition.Snapshot, video image.Image) (*image.RGBA, error) {
	f, err := composition.RenderFrame(frame, s)
	if err != nil {
		return nil, err
	}
	dst := NewCanvas(f)
	if err := p.Paint(dst, f, video); err != nil {
		return nil, err
	}
	return dst, nil
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
