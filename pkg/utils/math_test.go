package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	NormalizeL2(x)
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("got %v, want [0.6 0.8]", x)
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector must stay zero, got %v", zero)
	}
}

func TestRound(t *testing.T) {
	if got := Round(4.98765, 2); got != 4.99 {
		t.Errorf("Round(4.98765, 2) = %v", got)
	}
	if got := Round(0.5, 0); got != 1 {
		t.Errorf("Round(0.5, 0) = %v", got)
	}
}
