package extract

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, w, h int, fill color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractBytes_shapeAndNormalization(t *testing.T) {
	e := NewExtractor(8, WithNormalization([3]float32{0, 0, 0}, [3]float32{1, 1, 1}))
	tensor, err := e.ExtractBytes(encodePNG(t, 20, 10, color.RGBA{R: 255, G: 0, B: 51, A: 255}))
	if err != nil {
		t.Fatal(err)
	}
	if len(tensor) != 3*8*8 {
		t.Fatalf("len = %d, want %d", len(tensor), 3*8*8)
	}
	plane := 64
	center := 4*8 + 4
	want := [3]float32{1, 0, 0.2}
	for c := 0; c < 3; c++ {
		if got := tensor[c*plane+center]; math.Abs(float64(got-want[c])) > 0.01 {
			t.Errorf("channel %d = %v, want %v", c, got, want[c])
		}
	}
}

func TestExtractBytes_defaultsToCLIPStats(t *testing.T) {
	e := NewExtractor(0)
	if e.Size() != 224 {
		t.Errorf("default size = %d, want 224", e.Size())
	}
	tensor, err := e.ExtractBytes(encodePNG(t, 4, 4, color.Black))
	if err != nil {
		t.Fatal(err)
	}
	want := -clipMean[0] / clipStd[0]
	if math.Abs(float64(tensor[0]-want)) > 1e-4 {
		t.Errorf("black pixel red channel = %v, want %v", tensor[0], want)
	}
}

func TestExtract_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	if err := os.WriteFile(path, encodePNG(t, 5, 7, color.White), 0600); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor(4)
	if _, err := e.Extract(path); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Extract(filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExtractBytes_invalid(t *testing.T) {
	if _, err := NewExtractor(4).ExtractBytes([]byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}
