package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// MaxCanvasPixels caps the area of any buffer the compositor allocates.
const MaxCanvasPixels = 16384 * 16384

var opaqueBlack = image.NewUniform(color.RGBA{A: 0xff})

// newCanvas allocates an opaque black w×h buffer.
func newCanvas(w, h int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 || int64(w)*int64(h) > MaxCanvasPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrContextUnavailable, w, h)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), opaqueBlack, image.Point{}, draw.Src)
	return canvas, nil
}

// Synthesize builds the opaque blurred fill for a targetW×targetH frame.
//
// The source is scaled to overfill the frame, squeezed through a tiny
// square buffer and stretched back up; the minification acts as the low-pass
// filter, so smaller buffers (lower blurIntensity) blur harder.
func Synthesize(src image.Image, targetW, targetH, blurIntensity int) (*image.RGBA, error) {
	if err := checkSource(src); err != nil {
		return nil, err
	}
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidTarget, targetW, targetH)
	}

	sb := src.Bounds()
	size := DownsampleSize(blurIntensity)

	frame, err := newCanvas(targetW, targetH)
	if err != nil {
		return nil, err
	}
	cover := CoverScale(sb.Dx(), sb.Dy(), targetW, targetH) * CoverOvershoot
	place := centered(sb.Dx(), sb.Dy(), targetW, targetH, cover)
	// Kernel.Scale sizes its scratch buffer from the whole destination
	// rectangle, so only the part of the source that reaches the frame is scaled.
	dr, sr := visibleSource(sb, place, targetW, targetH)
	xdraw.BiLinear.Scale(frame, dr, src, sr, xdraw.Over, nil)

	small, err := newCanvas(size, size)
	if err != nil {
		return nil, err
	}
	xdraw.BiLinear.Scale(small, small.Bounds(), frame, frame.Bounds(), xdraw.Src, nil)

	out, err := newCanvas(targetW, targetH)
	if err != nil {
		return nil, err
	}
	xdraw.CatmullRom.Scale(out, out.Bounds(), small, small.Bounds(), xdraw.Src, nil)

	return out, nil
}

// kernelPad is the number of source pixels kept beyond the visible edge so
// the BiLinear kernel samples the same neighbours as on the full source.
const kernelPad = 2

// visibleSource returns the sub-rectangle of sb that lands inside a w×h frame
// when drawn at p, together with the destination rectangle it maps to.
func visibleSource(sb image.Rectangle, p Placement, w, h int) (dr, sr image.Rectangle) {
	x0, x1 := visibleRange(p.X, p.Scale, w, sb.Dx())
	y0, y1 := visibleRange(p.Y, p.Scale, h, sb.Dy())

	sr = image.Rect(x0, y0, x1, y1).Add(sb.Min)
	dr = image.Rect(
		int(math.Round(p.X+float64(x0)*p.Scale)),
		int(math.Round(p.Y+float64(y0)*p.Scale)),
		int(math.Round(p.X+float64(x1)*p.Scale)),
		int(math.Round(p.Y+float64(y1)*p.Scale)),
	)
	if dr.Empty() {
		return p.Rect, sb
	}
	return dr, sr
}

// visibleRange maps the frame span [0, frame) back to source pixels for a
// source of length n drawn from offset at scale.
func visibleRange(offset, scale float64, frame, n int) (int, int) {
	lo := int(math.Floor(-offset/scale)) - kernelPad
	hi := int(math.Ceil((float64(frame)-offset)/scale)) + kernelPad
	return max(lo, 0), min(hi, n)
}
