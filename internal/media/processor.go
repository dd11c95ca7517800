// Package media provides the image boundary of the converter: decoding uploads
// into rasters and turning rasters into encoded covers.
package media

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/maauso/coverfit/internal/compose"
)

// Converter defines the interface for producing one encoded cover from a
// decoded source. Implementations must not retain or modify src.
type Converter interface {
	// Convert fits src into target and returns the PNG bytes.
	Convert(ctx context.Context, src image.Image, target compose.TargetSpec) ([]byte, error)
}

// Compile-time check that Compositor implements Converter.
var _ Converter = (*Compositor)(nil)

// Compositor implements Converter with the in-process blurred-fill compositor.
type Compositor struct {
	logger *slog.Logger
}

// NewCompositor creates a new Compositor.
func NewCompositor(logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{logger: logger}
}

// Convert runs the compositor synchronously. The context is only checked
// before work starts; a single conversion always runs to completion.
func (c *Compositor) Convert(ctx context.Context, src image.Image, target compose.TargetSpec) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("convert cancelled: %w", err)
	}

	start := time.Now()
	res, err := compose.Composite(src, target)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("image converted",
		slog.Int("width", target.Width),
		slog.Int("height", target.Height),
		slog.Int("blur_intensity", target.BlurIntensity),
		slog.Bool("stretched", res.Stretched),
		slog.Int("bytes", len(res.PNG)),
		slog.Duration("duration", time.Since(start)),
	)

	return res.PNG, nil
}
