package similarity

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction,
// 0 means orthogonal, and -1 means opposite direction.
// Vectors of different length or with zero magnitude have similarity 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	if len(a) == 0 {
		return 0
	}

	dotProduct := floats.Dot(a, b)

	magA := math.Sqrt(floats.Dot(a, a))
	magB := math.Sqrt(floats.Dot(b, b))

	// Avoid division by zero
	if magA == 0 || magB == 0 {
		return 0
	}

	return dotProduct / (magA * magB)
}

// SimilaritiesTo returns the cosine similarity of every vector to vectors[index].
func SimilaritiesTo(vectors [][]float64, index int) []float64 {
	focal := vectors[index]
	sims := make([]float64, len(vectors))
	for i, v := range vectors {
		sims[i] = CosineSimilarity(v, focal)
	}
	return sims
}

// SquaredEuclidean returns the squared L2 distance between a and b.
func SquaredEuclidean(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}
