package hnsw

import "math"

// SquaredEuclidean returns Σ (aᵢ − bᵢ)². Panics if a and b differ in length —
// Insert and Query check the vector's dimension against the index header
// before any distance is computed, so a mismatch here means an invariant was
// violated upstream.
func SquaredEuclidean(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("hnsw: vector dimension mismatch in distance computation")
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Euclidean returns √SquaredEuclidean(a, b). Used for every stored distance
// and for result ordering; the layer-search termination test uses the
// squared form directly for speed.
func Euclidean(a, b []float64) float64 {
	return math.Sqrt(SquaredEuclidean(a, b))
}
