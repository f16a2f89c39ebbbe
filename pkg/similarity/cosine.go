package similarity

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrNonFinite         = errors.New("embedding has non-finite component")
)

// Cosine returns the cosine similarity of a and b, accumulated in float64
// and clamped to [-1, 1]. A zero vector has similarity 0 with anything.
// Vectors holding NaN or Inf are rejected with ErrNonFinite.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if !isFinite(dot) || !isFinite(na) || !isFinite(nb) {
		return 0, ErrNonFinite
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	sim := dot / math.Sqrt(na*nb)
	if !isFinite(sim) {
		return 0, ErrNonFinite
	}
	return math.Max(-1, math.Min(1, sim)), nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Finite reports whether every component of v is a finite number.
func Finite(v []float32) bool {
	for _, x := range v {
		if !isFinite(float64(x)) {
			return false
		}
	}
	return true
}
