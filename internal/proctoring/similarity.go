package proctoring

import (
	"errors"
	"math"
)

var (
	ErrDimensionMismatch = errors.New("embeddings have different dimensions")
	ErrZeroMagnitude     = errors.New("embedding has zero magnitude")
)

// CosineSimilarity returns dot(a,b)/(|a||b|) clamped to [-1, 1].
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroMagnitude
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim)), nil
}

// validEmbedding rejects empty vectors and non-finite components.
func validEmbedding(v []float64) bool {
	if len(v) == 0 {
		return false
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
