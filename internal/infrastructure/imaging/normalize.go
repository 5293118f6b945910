// Package imaging prepares scanned pages for OCR: any supported input format
// is decoded, converted to grayscale and re-encoded as PNG.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

// DefaultMaxDimension keeps phone-camera scans within what the OCR engine
// handles comfortably.
const DefaultMaxDimension = 3500

type Info struct {
	Format string
	Width  int
	Height int
	Scaled bool
}

type Normalizer struct {
	maxDimension int
}

func NewNormalizer(maxDimension int) *Normalizer {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Normalizer{maxDimension: maxDimension}
}

func (n *Normalizer) Normalize(data []byte) ([]byte, Info, error) {
	if len(data) == 0 {
		return nil, Info{}, domain.WrapError(domain.ErrInvalidInput, "normalize image", errors.New("empty image"))
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, domain.WrapError(domain.ErrInvalidInput, "decode image", err)
	}

	bounds := src.Bounds()
	w, h := n.fit(bounds.Dx(), bounds.Dy())
	info := Info{Format: format, Width: w, Height: h, Scaled: w != bounds.Dx() || h != bounds.Dy()}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	if info.Scaled {
		draw.CatmullRom.Scale(gray, gray.Bounds(), src, bounds, draw.Src, nil)
	} else {
		draw.Draw(gray, gray.Bounds(), src, bounds.Min, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, Info{}, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), info, nil
}

func (n *Normalizer) fit(w, h int) (int, int) {
	longest := max(w, h)
	if longest <= n.maxDimension {
		return w, h
	}
	scale := float64(n.maxDimension) / float64(longest)
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
}
