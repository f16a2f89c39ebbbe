package similarity

import (
	"errors"
	"math"
	"testing"

	"github.com/knowledgesnode/backend/pkg/common"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"diagonal", []float32{1, 0}, []float32{1, 1}, 1 / math.Sqrt2},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Fatalf("expected %.6f, got %.6f", tt.want, got)
			}
		})
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestCosine_NonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tests := []struct {
		name string
		a, b []float32
	}{
		{"nan", []float32{1, 0}, []float32{nan, 1}},
		{"inf", []float32{inf, 0}, []float32{1, 1}},
		{"inf against zero", []float32{inf, 0}, []float32{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Cosine(tt.a, tt.b)
			if !errors.Is(err, ErrNonFinite) {
				t.Fatalf("expected ErrNonFinite, got %v", err)
			}
		})
	}
}

func TestDistribution(t *testing.T) {
	buckets := Distribution([]common.Connection{
		{Strength: 1.0}, {Strength: 0.95}, {Strength: 0.85}, {Strength: 0.7}, {Strength: 0.2},
	})
	want := []int{2, 1, 1, 1}
	for i, b := range buckets {
		if b.Count != want[i] {
			t.Fatalf("bucket %d: expected %d, got %d", i, want[i], b.Count)
		}
	}
}
