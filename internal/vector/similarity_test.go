package vector

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosine_Properties(t *testing.T) {
	vecs := [][]float32{
		{0.3, -0.2, 0.9, 0.1},
		{1, 2, 3, 4},
		{-5, 0.5, 0, 2},
		{0.001, 0.002, -0.003, 7},
	}
	for i, v := range vecs {
		if got := Cosine(v, v); got != 1.0 {
			t.Errorf("Cosine(v%d, v%d) = %v, want exactly 1", i, i, got)
		}
		for j, w := range vecs {
			ab, ba := Cosine(v, w), Cosine(w, v)
			if ab != ba {
				t.Errorf("Cosine not symmetric for %d,%d: %v vs %v", i, j, ab, ba)
			}
			if ab < -1 || ab > 1 {
				t.Errorf("Cosine(%d,%d) = %v out of range", i, j, ab)
			}
		}
	}
}

func TestLevel(t *testing.T) {
	tests := map[float64]string{
		0.95: "Very High",
		0.9:  "Very High",
		0.85: "High",
		0.7:  "Medium",
		0.65: "Low",
		0.1:  "Very Low",
	}
	for score, want := range tests {
		if got := Level(score); got != want {
			t.Errorf("Level(%v) = %q, want %q", score, got, want)
		}
	}
}
