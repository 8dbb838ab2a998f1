package hnsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSquaredEuclidean(t *testing.T) {
	assert.Equal(t, 0.0, SquaredEuclidean([]float64{1, 2, 3}, []float64{1, 2, 3}))
	assert.Equal(t, 1.0, SquaredEuclidean([]float64{0, 0}, []float64{1, 0}))
	assert.Equal(t, 25.0, SquaredEuclidean([]float64{0, 0}, []float64{3, 4}))
}

func TestEuclidean(t *testing.T) {
	assert.Equal(t, 5.0, Euclidean([]float64{0, 0}, []float64{3, 4}))
}

func TestSquaredEuclidean_PanicsOnLengthMismatch(t *testing.T) {
	assert.Panics(t, func() { SquaredEuclidean([]float64{1}, []float64{1, 2}) })
}
