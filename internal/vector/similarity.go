// Package vector provides cosine similarity, top-K ranking, and a parallel ranker over record scans.
package vector

import (
	"fmt"
	"math"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns dot(a,b) / (|a|*|b|), clamped to [-1, 1].
// Neither vector needs to be normalized. Vectors of different length yield
// ErrDimensionMismatch; an empty or zero-magnitude vector yields ErrDegenerateVector.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, models.NewDimensionError(len(a), len(b))
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("cosine similarity: %w", models.ErrDegenerateVector)
	}
	return clamp(InnerProduct(a, b) / (na * nb)), nil
}

// Normalize returns a unit-norm copy of v. A zero-norm vector yields ErrDegenerateVector.
func Normalize(v []float32) ([]float32, error) {
	out := make([]float32, len(v))
	copy(out, v)
	norm := utils.NormalizeL2(out)
	if len(v) == 0 || norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, models.ErrDegenerateVector
	}
	return out, nil
}

// IsUnit reports whether v has L2 norm 1 within models.NormTolerance.
func IsUnit(v []float32) bool {
	return math.Abs(L2Norm(v)-1) < models.NormTolerance
}

func clamp(s float64) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return float32(s)
}
