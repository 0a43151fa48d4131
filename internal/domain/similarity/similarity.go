// Package similarity compares content embeddings.
package similarity

import (
	"errors"
	"math"
)

// Sentinel kinds for similarity errors.
var (
	ErrDimensionMismatch = errors.New("embedding dimensions differ or are empty")
	ErrZeroVector        = errors.New("embedding has zero magnitude")
)

// Cosine returns dot(a,b)/(|a|*|b|) clamped to [-1,1].
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroVector
	}

	// Identical inputs must compare as exactly 1 regardless of rounding in the norms.
	if normA == normB && dot == normA {
		return 1, nil
	}
	s := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, s)), nil
}
