package compose

import (
	"image"
	"math"
)

const (
	// RatioTolerance is the absolute aspect-ratio difference below which the
	// source is stretched instead of letterboxed.
	RatioTolerance = 0.01

	// CoverOvershoot enlarges the background cover scale so the scaled
	// source overfills the frame on both axes.
	CoverOvershoot = 1.2

	// MinDownsampleSize and MaxDownsampleSize bound the edge of the square
	// buffer the background is squeezed through.
	MinDownsampleSize = 10
	MaxDownsampleSize = 50
)

// Placement describes where the foreground lands inside the target frame.
type Placement struct {
	// Scale is the uniform fit scale applied to the source.
	Scale float64
	// X, Y, W and H are the exact (unrounded) draw geometry.
	X, Y, W, H float64
	// Rect is the integer rectangle actually drawn.
	Rect image.Rectangle
}

// DownsampleSize returns the edge length of the blur buffer for the given
// intensity: blurIntensity/2 clamped to [MinDownsampleSize, MaxDownsampleSize].
// Smaller sizes produce a heavier blur.
func DownsampleSize(blurIntensity int) int {
	s := math.Max(MinDownsampleSize, math.Min(MaxDownsampleSize, float64(blurIntensity)/2))
	return int(s)
}

// RatiosMatch reports whether two frames are close enough in aspect ratio
// to be stretched onto each other. The comparison is absolute, not relative.
func RatiosMatch(srcW, srcH, dstW, dstH int) bool {
	sourceRatio := float64(srcW) / float64(srcH)
	targetRatio := float64(dstW) / float64(dstH)
	return math.Abs(sourceRatio-targetRatio) < RatioTolerance
}

// FitScale is the largest uniform scale that keeps the whole source inside
// the target.
func FitScale(srcW, srcH, dstW, dstH int) float64 {
	return math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
}

// CoverScale is the smallest uniform scale that makes the source cover the
// target on both axes.
func CoverScale(srcW, srcH, dstW, dstH int) float64 {
	return math.Max(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
}

// FitPlacement centers the source at fit scale inside the target.
func FitPlacement(srcW, srcH, dstW, dstH int) Placement {
	scale := FitScale(srcW, srcH, dstW, dstH)
	return centered(srcW, srcH, dstW, dstH, scale)
}

func centered(srcW, srcH, dstW, dstH int, scale float64) Placement {
	w := float64(srcW) * scale
	h := float64(srcH) * scale
	x := (float64(dstW) - w) / 2
	y := (float64(dstH) - h) / 2
	x0, x1 := span(x, w)
	y0, y1 := span(y, h)

	return Placement{
		Scale: scale,
		X:     x,
		Y:     y,
		W:     w,
		H:     h,
		Rect:  image.Rect(x0, y0, x1, y1),
	}
}

// span rounds [start, start+length) to pixels, never narrower than one pixel
// so that sub-pixel sides of a thin source still get drawn.
func span(start, length float64) (int, int) {
	lo := int(math.Round(start))
	hi := int(math.Round(start + length))
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}
