package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	// Registered decoders.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

const (
	jpegQuality         = 95
	defaultMaxDimension = 4096
	defaultMaxPixels    = 40_000_000
)

// Normalizer converts any supported image into an opaque RGB JPEG. Transparent
// regions are composited onto white; images wider or taller than the
// configured bound are downscaled. Images above maxPixels are rejected from
// their header, before any pixel data is decoded.
type Normalizer struct {
	maxDimension int
	maxPixels    int
}

func NewNormalizer(maxDimension, maxPixels int) *Normalizer {
	if maxDimension <= 0 {
		maxDimension = defaultMaxDimension
	}
	if maxPixels <= 0 {
		maxPixels = defaultMaxPixels
	}
	return &Normalizer{maxDimension: maxDimension, maxPixels: maxPixels}
}

func (n *Normalizer) NormalizeJPEG(data []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrDecode, "decode image header", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, domain.WrapError(domain.ErrDecode, "decode image header", fmt.Errorf("%s image has empty bounds", format))
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(n.maxPixels) {
		return nil, domain.WrapError(domain.ErrDecode, "decode image header",
			fmt.Errorf("%s image is %dx%d, above the %d pixel limit", format, cfg.Width, cfg.Height, n.maxPixels))
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrDecode, "decode image", err)
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, domain.WrapError(domain.ErrDecode, "decode image", fmt.Errorf("%s image has empty bounds", format))
	}

	w, h := scaledSize(bounds.Dx(), bounds.Dy(), n.maxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func scaledSize(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
