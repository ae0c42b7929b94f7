package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
)

// Optimizer bounds page image dimensions and strips alpha channels before
// images are sent to the classifier. Optimization is deterministic and
// side-effect free: the same input always yields the same output.
type Optimizer struct {
	maxDimension int
}

// NewOptimizer constructs an Optimizer capping the longest image edge.
func NewOptimizer(maxDimension int) *Optimizer {
	if maxDimension <= 0 {
		maxDimension = 2048
	}
	return &Optimizer{maxDimension: maxDimension}
}

// Optimize decodes, bounds, flattens, and re-encodes one page image as PNG.
func (o *Optimizer) Optimize(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}

	bounded := o.bound(src)
	flattened := flatten(bounded)

	var buf bytes.Buffer
	if err := png.Encode(&buf, flattened); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	return buf.Bytes(), nil
}

// bound scales src down so neither edge exceeds the maximum. Images already
// inside the limit pass through untouched. Nearest-neighbor sampling keeps
// the operation deterministic with no external imaging dependency.
func (o *Optimizer) bound(src image.Image) image.Image {
	b := src.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= o.maxDimension && height <= o.maxDimension {
		return src
	}

	scale := float64(o.maxDimension) / float64(width)
	if height > width {
		scale = float64(o.maxDimension) / float64(height)
	}
	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		srcY := b.Min.Y + y*height/newHeight
		for x := 0; x < newWidth; x++ {
			srcX := b.Min.X + x*width/newWidth
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}

// flatten composites src over a white background, removing any alpha channel.
func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
