package storage

import "math"

// Magnitude returns the Euclidean length of v.
func Magnitude(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// NormalizeVector returns a unit-length copy of v. Empty input is returned
// as-is and a zero vector yields a zero vector of the same length.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	out := make([]float32, len(v))
	mag := Magnitude(v)
	if mag == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / mag
	}
	return out
}

// DotProduct sums the pairwise products of a and b over their shared
// length. Records are stored normalized, so this is cosine similarity.
func DotProduct(a, b []float32) float32 {
	if len(b) < len(a) {
		a = a[:len(b)]
	}
	var sum float32
	for i, x := range a {
		sum += x * b[i]
	}
	return sum
}
