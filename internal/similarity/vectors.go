package similarity

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned for empty collections, zero-length vectors
// or vectors of mismatched dimensionality.
var ErrInvalidInput = errors.New("invalid input")

// Validate checks that vectors is non-empty and that every vector has the
// same, positive dimensionality. It returns that dimensionality.
func Validate(vectors [][]float64) (int, error) {
	if len(vectors) == 0 {
		return 0, fmt.Errorf("%w: no vectors", ErrInvalidInput)
	}

	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: vector 0 is empty", ErrInvalidInput)
	}

	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrInvalidInput, i, len(v), dim)
		}
	}

	return dim, nil
}

// Clone returns a deep copy of vectors.
func Clone(vectors [][]float64) [][]float64 {
	result := make([][]float64, len(vectors))
	for i, v := range vectors {
		result[i] = append([]float64(nil), v...)
	}
	return result
}
