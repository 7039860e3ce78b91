package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	// Registered decoders for uploads and catalog images.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultQuality mirrors a 0.85 lossy quality factor.
const DefaultQuality = 85

// MaxPixels bounds the decoded size of a source image. A small compressed
// file can still describe a huge canvas.
const MaxPixels = 40_000_000

// Resize scales img to fit within maxWidth x maxHeight and re-encodes it as
// JPEG at DefaultQuality.
func Resize(img Encoded, maxWidth, maxHeight int) (Encoded, error) {
	return ResizeWithQuality(img, maxWidth, maxHeight, DefaultQuality)
}

func ResizeWithQuality(img Encoded, maxWidth, maxHeight, quality int) (Encoded, error) {
	raw, err := img.Bytes()
	if err != nil {
		return "", err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := src.Bounds()
	width, height := FitWithin(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)

	// JPEG has no alpha; transparent pixels become white.
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("%w: encode jpeg: %v", ErrDecode, err)
	}
	return FromBytes("image/jpeg", buf.Bytes()), nil
}

// FitWithin returns the largest size with the aspect ratio of width x height
// that does not exceed maxWidth x maxHeight. Sizes that already fit are
// returned unchanged. A non-positive bound is treated as unbounded.
func FitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}

	scale := 1.0
	if maxWidth > 0 && width > maxWidth {
		scale = math.Min(scale, float64(maxWidth)/float64(width))
	}
	if maxHeight > 0 && height > maxHeight {
		scale = math.Min(scale, float64(maxHeight)/float64(height))
	}
	if scale >= 1 {
		return width, height
	}

	w := clampDim(int(math.Round(float64(width)*scale)), maxWidth)
	h := clampDim(int(math.Round(float64(height)*scale)), maxHeight)
	return w, h
}

func clampDim(v, bound int) int {
	if bound > 0 && v > bound {
		v = bound
	}
	if v < 1 {
		v = 1
	}
	return v
}
