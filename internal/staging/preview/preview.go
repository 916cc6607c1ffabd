// Package preview decodes a style-reference image and produces the display-only
// thumbnail shown next to the style slot.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxDimension bounds the longest thumbnail edge when none is configured.
const DefaultMaxDimension = 480

// DefaultMaxPixels caps the declared source size (width*height) that is decoded.
const DefaultMaxPixels = 40_000_000

// ErrUndecodable is returned when the input is not a supported raster image.
var ErrUndecodable = errors.New("image cannot be decoded")

// Thumbnail is an encoded PNG preview plus its pixel size and the source format.
type Thumbnail struct {
	PNG          []byte
	Width        int
	Height       int
	SourceFormat string
}

// Make decodes r and scales it so neither edge exceeds maxDim. Images already
// within bounds are re-encoded at their original size. The header is checked
// first: a source declaring more than maxPixels pixels is refused undecoded.
func Make(r io.Reader, maxDim, maxPixels int) (Thumbnail, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return Thumbnail{}, fmt.Errorf("read image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return Thumbnail{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUndecodable, cfg.Width, cfg.Height, maxPixels)
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return Thumbnail{}, fmt.Errorf("encode preview: %w", err)
	}
	return Thumbnail{PNG: buf.Bytes(), Width: w, Height: h, SourceFormat: format}, nil
}

func fit(w, h, maxDim int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}
