package compose

import (
	"image"
	"image/color"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsampleSize(t *testing.T) {
	tests := []struct {
		blur int
		want int
	}{
		{0, 10},
		{10, 10},
		{20, 10},
		{25, 12},
		{30, 15},
		{60, 30},
		{100, 50},
		{250, 50},
		{-5, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DownsampleSize(tt.blur), "blur=%d", tt.blur)
	}
}

func TestDownsampleSize_Monotonic(t *testing.T) {
	prev := DownsampleSize(10)
	for blur := 11; blur <= 100; blur++ {
		s := DownsampleSize(blur)
		require.GreaterOrEqual(t, s, prev, "blur=%d", blur)
		require.GreaterOrEqual(t, s, MinDownsampleSize)
		require.LessOrEqual(t, s, MaxDownsampleSize)
		prev = s
	}
}

func TestRatiosMatch(t *testing.T) {
	tests := []struct {
		name                   string
		srcW, srcH, dstW, dstH int
		want                   bool
	}{
		{"identical", 1920, 1080, 1920, 1080, true},
		{"same ratio different size", 1280, 720, 1920, 1080, true},
		{"just inside tolerance", 1000, 1000, 1009, 1000, true},
		{"on the tolerance boundary", 1000, 1000, 1010, 1000, false},
		{"landscape vs square", 800, 600, 1080, 1080, false},
		{"portrait vs landscape", 1080, 1920, 1920, 1080, false},
		// Absolute comparison: a 0.5% relative gap at ratio 3 is still outside tolerance.
		{"wide borderline", 3000, 1000, 3015, 1000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RatiosMatch(tt.srcW, tt.srcH, tt.dstW, tt.dstH))
		})
	}
}

func TestFitAndCoverScale(t *testing.T) {
	assert.InDelta(t, 1.35, FitScale(800, 600, 1080, 1080), 1e-9)
	assert.InDelta(t, 1.8, CoverScale(800, 600, 1080, 1080), 1e-9)
	assert.InDelta(t, 0.5, FitScale(3840, 2160, 1920, 1920), 1e-9)
	assert.InDelta(t, 2.0, CoverScale(1920, 1920, 3840, 2160), 1e-9)
}

func TestFitPlacement(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		dstW, dstH int
	}{
		{"landscape into square", 800, 600, 1080, 1080},
		{"portrait into landscape", 1080, 1920, 1920, 1080},
		{"square into portrait", 500, 500, 1080, 1350},
		{"odd sizes", 333, 777, 1280, 720},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FitPlacement(tt.srcW, tt.srcH, tt.dstW, tt.dstH)
			scale := FitScale(tt.srcW, tt.srcH, tt.dstW, tt.dstH)

			assert.InDelta(t, float64(tt.srcW)*scale, p.W, 1e-9)
			assert.InDelta(t, float64(tt.srcH)*scale, p.H, 1e-9)
			assert.InDelta(t, float64(tt.dstW)/2, p.X+p.W/2, 1e-9)
			assert.InDelta(t, float64(tt.dstH)/2, p.Y+p.H/2, 1e-9)

			// Never cropped: the drawn rectangle stays inside the frame.
			frame := image.Rect(0, 0, tt.dstW, tt.dstH)
			assert.True(t, p.Rect.In(frame), "rect %v outside %v", p.Rect, frame)

			c := p.Rect.Min.Add(p.Rect.Max)
			assert.InDelta(t, tt.dstW, c.X, 1)
			assert.InDelta(t, tt.dstH, c.Y, 1)
		})
	}
}

func TestSynthesize(t *testing.T) {
	t.Run("covers the frame opaquely", func(t *testing.T) {
		bg, err := Synthesize(gradient(40, 30), 90, 160, 30)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 90, 160), bg.Bounds())
		assertOpaque(t, bg)
	})

	t.Run("uniform source yields uniform fill", func(t *testing.T) {
		c := color.RGBA{R: 0x20, G: 0x80, B: 0xc0, A: 0xff}
		bg, err := Synthesize(solid(30, 10, c), 64, 64, 60)
		require.NoError(t, err)
		for _, pt := range []image.Point{{0, 0}, {63, 0}, {32, 32}, {0, 63}, {63, 63}} {
			got := bg.RGBAAt(pt.X, pt.Y)
			assert.InDelta(t, c.R, got.R, 1, "at %v", pt)
			assert.InDelta(t, c.G, got.G, 1, "at %v", pt)
			assert.InDelta(t, c.B, got.B, 1, "at %v", pt)
		}
	})

	t.Run("heavier blur is smoother", func(t *testing.T) {
		src := checker(120, 40, 4)
		soft, err := Synthesize(src, 120, 120, 10)
		require.NoError(t, err)
		sharp, err := Synthesize(src, 120, 120, 100)
		require.NoError(t, err)
		assert.Less(t, roughness(soft), roughness(sharp))
	})

	t.Run("wide source allocates only the visible region", func(t *testing.T) {
		src := image.NewRGBA(image.Rect(0, 0, 20000, 20))

		var before, after runtime.MemStats
		runtime.GC()
		runtime.ReadMemStats(&before)
		bg, err := Synthesize(src, 1080, 1920, 30)
		runtime.ReadMemStats(&after)

		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 1080, 1920), bg.Bounds())
		assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(64<<20))
	})

	t.Run("invalid inputs", func(t *testing.T) {
		_, err := Synthesize(nil, 10, 10, 30)
		assert.ErrorIs(t, err, ErrInvalidSource)

		_, err = Synthesize(gradient(4, 4), 0, 10, 30)
		assert.ErrorIs(t, err, ErrInvalidTarget)

		_, err = Synthesize(gradient(4, 4), 17000, 17000, 30)
		assert.ErrorIs(t, err, ErrContextUnavailable)
	})
}

func TestVisibleSource(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		dstW, dstH int
	}{
		{"landscape into square", 800, 600, 1080, 1080},
		{"panorama into portrait", 8000, 1000, 1080, 1920},
		{"tall strip into landscape", 20, 20000, 1920, 1080},
		{"offset bounds", 300, 100, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := image.Rect(5, 7, 5+tt.srcW, 7+tt.srcH)
			cover := CoverScale(tt.srcW, tt.srcH, tt.dstW, tt.dstH) * CoverOvershoot
			p := centered(tt.srcW, tt.srcH, tt.dstW, tt.dstH, cover)

			dr, sr := visibleSource(sb, p, tt.dstW, tt.dstH)
			frame := image.Rect(0, 0, tt.dstW, tt.dstH)

			assert.True(t, sr.In(sb), "source %v outside %v", sr, sb)
			assert.True(t, frame.In(dr), "frame %v not covered by %v", frame, dr)
			assert.True(t, dr.In(p.Rect.Inset(-1)), "destination %v outside cover %v", dr, p.Rect)
		})
	}

	p := centered(8000, 1000, 1080, 1920, CoverScale(8000, 1000, 1080, 1920)*CoverOvershoot)
	_, sr := visibleSource(image.Rect(0, 0, 8000, 1000), p, 1080, 1920)
	assert.Less(t, sr.Dx(), 8000/4)
	assert.Less(t, sr.Dy(), 1000)
}

func TestFitPlacement_ThinSourceStaysVisible(t *testing.T) {
	p := FitPlacement(2000, 1, 1080, 1080)
	assert.InDelta(t, 0.54, p.H, 1e-9)
	assert.Equal(t, image.Rect(0, 540, 1080, 541), p.Rect)

	p = FitPlacement(1, 3000, 1080, 1080)
	assert.Equal(t, 1, p.Rect.Dx())
	assert.Equal(t, 1080, p.Rect.Dy())
}

func checker(w, h, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 0xff}
			if (x/cell+y/cell)%2 == 0 {
				c.R = 0xff
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// roughness sums absolute horizontal differences of the red channel.
func roughness(img *image.RGBA) int {
	total := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X + 1; x < b.Max.X; x++ {
			d := int(img.RGBAAt(x, y).R) - int(img.RGBAAt(x-1, y).R)
			if d < 0 {
				d = -d
			}
			total += d
		}
	}
	return total
}
