package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register the WebP decoder with image.Decode

	"github.com/maauso/coverfit/internal/compose"
)

// ErrUnsupportedFormat is returned when the upload is not a decodable image type.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// MaxSourcePixels caps the declared area of an upload. Headers are checked
// before decoding, so a small file claiming a huge raster is never allocated.
const MaxSourcePixels = 100_000_000

// supportedTypes maps sniffed content types to format names.
var supportedTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Source is a fully decoded upload.
type Source struct {
	// Image is the decoded raster with EXIF orientation applied.
	Image image.Image
	// Format is the detected encoding ("jpeg", "png", "gif" or "webp").
	Format string
	// Name is the original file name, if known.
	Name string
	// Width and Height are the raster dimensions.
	Width  int
	Height int
}

// Decode reads r to the end and decodes it. It returns only once the raster
// is complete; any failure wraps compose.ErrInvalidSource.
func Decode(ctx context.Context, r io.Reader, name string) (*Source, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", compose.ErrInvalidSource, err)
	}
	return DecodeBytes(data, name)
}

// DecodeBase64 decodes a base64 (standard alphabet) payload. A data URL
// prefix such as "data:image/png;base64," is accepted and stripped.
func DecodeBase64(ctx context.Context, payload, name string) (*Source, error) {
	if i := strings.Index(payload, ";base64,"); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", compose.ErrInvalidSource, err)
	}
	return Decode(ctx, bytes.NewReader(data), name)
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte, name string) (*Source, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", compose.ErrInvalidSource)
	}

	format, ok := supportedTypes[http.DetectContentType(data)]
	if !ok {
		return nil, fmt.Errorf("%w: %w", compose.ErrInvalidSource, ErrUnsupportedFormat)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s header: %w", compose.ErrInvalidSource, format, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", compose.ErrInvalidSource, cfg.Width, cfg.Height, MaxSourcePixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", compose.ErrInvalidSource, format, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", compose.ErrInvalidSource, b.Dx(), b.Dy())
	}

	return &Source{
		Image:  img,
		Format: format,
		Name:   name,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// OutputName builds the download name for a converted cover:
// "<base>_<label>.png", where base is the original name up to its first dot.
func OutputName(original, label string) string {
	base := filepath.Base(original)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		base = "image"
	}
	label = strings.ReplaceAll(label, "/", "-")
	if label == "" {
		label = "converted"
	}
	return base + "_" + label + ".png"
}
