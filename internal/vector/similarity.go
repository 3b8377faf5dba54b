// Package vector provides cosine similarity scoring and a persisted
// per-document vector index.
package vector

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of different lengths are
// compared. Callers scanning a candidate set should skip the offending
// candidate rather than abort the scan.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Cosine returns the cosine similarity dot(a,b) / (|a| * |b|).
// A zero-length or zero-norm vector never matches anything: the score is 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
