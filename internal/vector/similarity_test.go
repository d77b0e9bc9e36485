package vector

import (
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/ruiji/internal/models"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"unnormalized reference", []float32{10, 0, 0}, []float32{0.7071, 0.7071, 0}, 0.7071},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(float64(got-tt.want)) > 1e-4 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_errors(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("length mismatch: got %v", err)
	}
	if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); !errors.Is(err, models.ErrDegenerateVector) {
		t.Errorf("zero vector: got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 0, 4}
	n, err := Normalize(v)
	if err != nil {
		t.Fatal(err)
	}
	if !IsUnit(n) {
		t.Errorf("Normalize result not unit: %v (norm %v)", n, L2Norm(n))
	}
	if v[0] != 3 {
		t.Error("Normalize must not modify its input")
	}
	if _, err := Normalize([]float32{0, 0, 0}); !errors.Is(err, models.ErrDegenerateVector) {
		t.Errorf("zero vector: got %v", err)
	}
	if _, err := Normalize(nil); !errors.Is(err, models.ErrDegenerateVector) {
		t.Errorf("empty vector: got %v", err)
	}
}

func TestIsUnit(t *testing.T) {
	if !IsUnit([]float32{0.6, 0.8}) {
		t.Error("0.6,0.8 should be unit")
	}
	if IsUnit([]float32{1, 1}) {
		t.Error("1,1 should not be unit")
	}
}
