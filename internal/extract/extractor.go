// Package extract decodes image files into model-ready pixel tensors.
package extract

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// CLIP preprocessing constants (per RGB channel).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Extractor decodes images and converts them to normalized CHW float tensors.
type Extractor struct {
	size int
	mean [3]float32
	std  [3]float32
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithNormalization overrides the per-channel mean and standard deviation.
func WithNormalization(mean, std [3]float32) ExtractorOption {
	return func(e *Extractor) {
		e.mean = mean
		e.std = std
	}
}

// NewExtractor returns an Extractor producing size x size tensors. size <= 0 means 224.
func NewExtractor(size int, opts ...ExtractorOption) *Extractor {
	if size <= 0 {
		size = 224
	}
	e := &Extractor{size: size, mean: clipMean, std: clipStd}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Size returns the edge length of produced tensors.
func (e *Extractor) Size() int {
	return e.size
}

// Extract reads the image at path and returns its pixel tensor (see ExtractBytes).
func (e *Extractor) Extract(path string) ([]float32, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content)
}

// ExtractBytes decodes an encoded image (JPEG, PNG, GIF, BMP, TIFF, WebP), converts it to RGB,
// resizes the shorter side to size, center-crops to size x size, and returns a
// channel-major tensor of length 3*size*size normalized with the configured mean and std.
func (e *Extractor) ExtractBytes(content []byte) ([]float32, error) {
	img, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty %s image", format)
	}
	return e.tensor(e.resizeCrop(img)), nil
}

// resizeCrop scales img so its shorter side equals e.size and crops the center square.
func (e *Extractor) resizeCrop(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scaledW, scaledH := e.size, e.size
	if w < h {
		scaledH = (h*e.size + w/2) / w
	} else {
		scaledW = (w*e.size + h/2) / h
	}
	scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)

	offX := (scaledW - e.size) / 2
	offY := (scaledH - e.size) / 2
	out := image.NewRGBA(image.Rect(0, 0, e.size, e.size))
	draw.Draw(out, out.Bounds(), scaled, image.Pt(offX, offY), draw.Src)
	return out
}

func (e *Extractor) tensor(img *image.RGBA) []float32 {
	plane := e.size * e.size
	out := make([]float32, 3*plane)
	for y := 0; y < e.size; y++ {
		for x := 0; x < e.size; x++ {
			i := img.PixOffset(x, y)
			p := y*e.size + x
			for c := 0; c < 3; c++ {
				v := float32(img.Pix[i+c]) / 255
				out[c*plane+p] = (v - e.mean[c]) / e.std[c]
			}
		}
	}
	return out
}
