// Package affinity builds the symmetric high-dimensional probability matrix
// used by t-SNE, calibrating a Gaussian kernel per point to a target perplexity.
package affinity

import (
	"errors"
	"fmt"
	"math"

	"github.com/todmy/embedscope/internal/similarity"
)

const (
	// DefaultTolerance is the entropy tolerance of the per-point binary search
	DefaultTolerance = 1e-4

	// MaxTries caps the per-point binary search. A row that has not reached
	// the target entropy by then is kept as is.
	MaxTries = 50

	// Floor is the smallest value stored in a probability matrix
	Floor = 1e-100

	// minRowProbability is the cutoff below which a row entry does not
	// contribute to the row entropy
	minRowProbability = 1e-7
)

var (
	ErrInvalidPerplexity = errors.New("perplexity must be positive")
	ErrNotSquare         = errors.New("distance matrix is not square")
)

// Matrix is a dense N×N probability matrix stored row-major
type Matrix struct {
	N    int
	Data []float64
}

// At returns P[i][j]
func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.N+j]
}

// Sum returns the total mass of the matrix
func (m *Matrix) Sum() float64 {
	sum := 0.0
	for _, v := range m.Data {
		sum += v
	}
	return sum
}

// SearchStats reports how the per-point precision search ended
type SearchStats struct {
	Tries     []int     // binary search steps used per point
	Betas     []float64 // final precision per point
	Converged []bool    // whether the point reached the entropy tolerance
}

// Build computes the affinity matrix of vectors for the given perplexity.
func Build(vectors [][]float64, perplexity, tol float64) (*Matrix, error) {
	m, _, err := BuildWithStats(vectors, perplexity, tol)
	return m, err
}

// BuildWithStats is Build that also reports the per-point search outcome.
func BuildWithStats(vectors [][]float64, perplexity, tol float64) (*Matrix, *SearchStats, error) {
	if _, err := similarity.Validate(vectors); err != nil {
		return nil, nil, fmt.Errorf("build affinities: %w", err)
	}

	return fromDistances(SquaredDistances(vectors), len(vectors), perplexity, tol)
}

// FromDistances computes the affinity matrix from a precomputed distance
// matrix. Only the upper triangle of D is read; it is mirrored to the lower one.
func FromDistances(D [][]float64, perplexity, tol float64) (*Matrix, error) {
	n := len(D)
	if n == 0 {
		return nil, fmt.Errorf("build affinities: %w: empty distance matrix", similarity.ErrInvalidInput)
	}
	for i, row := range D {
		if len(row) != n {
			return nil, fmt.Errorf("build affinities: %w: row %d has %d entries, want %d", ErrNotSquare, i, len(row), n)
		}
	}

	dists := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := D[i][j]
			dists[i*n+j] = d
			dists[j*n+i] = d
		}
	}

	m, _, err := fromDistances(dists, n, perplexity, tol)
	return m, err
}

// SquaredDistances returns the row-major pairwise squared Euclidean distances
func SquaredDistances(vectors [][]float64) []float64 {
	n := len(vectors)
	dists := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := similarity.SquaredEuclidean(vectors[i], vectors[j])
			dists[i*n+j] = d
			dists[j*n+i] = d
		}
	}
	return dists
}

func fromDistances(dists []float64, n int, perplexity, tol float64) (*Matrix, *SearchStats, error) {
	if perplexity <= 0 || math.IsNaN(perplexity) {
		return nil, nil, fmt.Errorf("build affinities: %w: got %v", ErrInvalidPerplexity, perplexity)
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}

	stats := &SearchStats{
		Tries:     make([]int, n),
		Betas:     make([]float64, n),
		Converged: make([]bool, n),
	}

	hTarget := math.Log(perplexity)
	cond := make([]float64, n*n)
	for i := 0; i < n; i++ {
		row := cond[i*n : (i+1)*n]
		stats.Betas[i], stats.Tries[i], stats.Converged[i] = calibrateRow(dists[i*n:(i+1)*n], i, hTarget, tol, row)
	}

	// symmetrize and normalize to sum to 1 over all ij
	out := make([]float64, n*n)
	n2 := float64(2 * n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = math.Max((cond[i*n+j]+cond[j*n+i])/n2, Floor)
		}
	}

	return &Matrix{N: n, Data: out}, stats, nil
}

// calibrateRow binary-searches the Gaussian precision of point i so that the
// entropy of its conditional distribution matches hTarget. The final
// distribution is written to row.
func calibrateRow(dist []float64, i int, hTarget, tol float64, row []float64) (beta float64, tries int, converged bool) {
	betaMin := math.Inf(-1)
	betaMax := math.Inf(1)
	next := 1.0

	for tries < MaxTries {
		beta = next
		h := rowEntropy(dist, i, beta, row)

		if h > hTarget {
			// too diffuse, sharpen the kernel
			betaMin = beta
			if math.IsInf(betaMax, 1) {
				next = beta * 2
			} else {
				next = (beta + betaMax) / 2
			}
		} else {
			betaMax = beta
			if math.IsInf(betaMin, -1) {
				next = beta / 2
			} else {
				next = (beta + betaMin) / 2
			}
		}

		tries++
		if math.Abs(h-hTarget) < tol {
			return beta, tries, true
		}
	}

	// row holds the distribution of the last evaluated precision
	return beta, tries, false
}

// rowEntropy fills row with the normalized kernel of point i at precision
// beta and returns its Shannon entropy. A row with no kernel mass is all zero.
func rowEntropy(dist []float64, i int, beta float64, row []float64) float64 {
	psum := 0.0
	for j := range row {
		if j == i {
			row[j] = 0
			continue
		}
		row[j] = math.Exp(-dist[j] * beta)
		psum += row[j]
	}

	h := 0.0
	for j := range row {
		pj := 0.0
		if psum != 0 {
			pj = row[j] / psum
		}
		row[j] = pj
		if pj > minRowProbability {
			h -= pj * math.Log(pj)
		}
	}
	return h
}
