// Package compose fits a source image into an arbitrary target frame without
// cropping it, filling the letterbox or pillarbox bars with a blurred copy of
// the source.
//
// Every call is a pure transform: it allocates its own buffers, reads the
// source without modifying it and shares no state with other calls.
package compose

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// Static errors for compositing.
var (
	// ErrInvalidSource is returned when the source is missing or has a zero dimension.
	ErrInvalidSource = errors.New("compose: invalid source image")
	// ErrInvalidTarget is returned when the target dimensions are not positive.
	ErrInvalidTarget = errors.New("compose: invalid target dimensions")
	// ErrContextUnavailable is returned when a drawing buffer cannot be allocated.
	ErrContextUnavailable = errors.New("compose: drawing surface unavailable")
	// ErrEncodingFailure is returned when the composite cannot be encoded.
	ErrEncodingFailure = errors.New("compose: encoding failed")
)

// TargetSpec is one requested output frame.
type TargetSpec struct {
	Width  int
	Height int
	// BlurIntensity controls background softness, conventionally 10..100.
	BlurIntensity int
}

// Validate checks that the target describes a drawable frame.
func (t TargetSpec) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidTarget, t.Width, t.Height)
	}
	return nil
}

// Result is a finished conversion.
type Result struct {
	// Image is the opaque raster, exactly Width×Height of the target.
	Image *image.RGBA
	// PNG is the lossless encoding of Image.
	PNG []byte
	// Stretched is true when the ratios matched and no background was drawn.
	Stretched bool
	// Placement is where the foreground was drawn.
	Placement Placement
}

// Composite renders the source into the target frame and encodes it as PNG.
func Composite(src image.Image, target TargetSpec) (*Result, error) {
	res, err := Render(src, target)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, res.Image); err != nil {
		return nil, err
	}
	res.PNG = buf.Bytes()

	return res, nil
}

// Render is Composite without the encoding step.
func Render(src image.Image, target TargetSpec) (*Result, error) {
	if err := checkSource(src); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	sb := src.Bounds()
	canvas, err := newCanvas(target.Width, target.Height)
	if err != nil {
		return nil, err
	}

	if RatiosMatch(sb.Dx(), sb.Dy(), target.Width, target.Height) {
		drawStretched(canvas, src)
		return &Result{
			Image:     canvas,
			Stretched: true,
			Placement: Placement{
				Scale: float64(target.Width) / float64(sb.Dx()),
				W:     float64(target.Width),
				H:     float64(target.Height),
				Rect:  canvas.Bounds(),
			},
		}, nil
	}

	bg, err := Synthesize(src, target.Width, target.Height, target.BlurIntensity)
	if err != nil {
		return nil, err
	}
	draw.Draw(canvas, canvas.Bounds(), bg, image.Point{}, draw.Src)

	place := FitPlacement(sb.Dx(), sb.Dy(), target.Width, target.Height)
	xdraw.CatmullRom.Scale(canvas, place.Rect, src, sb, xdraw.Over, nil)

	return &Result{Image: canvas, Placement: place}, nil
}

// Encode writes img as a lossless PNG.
func Encode(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}
	return nil
}

// drawStretched maps the whole source onto the whole canvas. Equal sizes are
// copied so the output is pixel-identical to an opaque source.
func drawStretched(canvas *image.RGBA, src image.Image) {
	sb := src.Bounds()
	if sb.Size() == canvas.Bounds().Size() {
		draw.Draw(canvas, canvas.Bounds(), src, sb.Min, draw.Over)
		return
	}
	xdraw.CatmullRom.Scale(canvas, canvas.Bounds(), src, sb, xdraw.Over, nil)
}

func checkSource(src image.Image) error {
	if src == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidSource)
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSource, b.Dx(), b.Dy())
	}
	return nil
}
