package vector

import "math"

// Cosine returns the cosine similarity of a and b in [-1, 1].
// It is 0 when the lengths differ or either vector has zero magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / math.Sqrt(na*nb)
	return math.Max(-1, math.Min(1, sim))
}

// Level labels a similarity score for display.
func Level(score float64) string {
	switch {
	case score >= 0.9:
		return "Very High"
	case score >= 0.8:
		return "High"
	case score >= 0.7:
		return "Medium"
	case score >= 0.6:
		return "Low"
	default:
		return "Very Low"
	}
}
