// Package pca projects vectors onto their leading principal components. It
// serves both as a preprocessing step before t-SNE and as a one-shot
// embedding engine.
package pca

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/todmy/embedscope/internal/similarity"
)

// DefaultDimension is the number of components kept by preprocessing
const DefaultDimension = 50

var ErrFactorization = errors.New("pca: SVD factorization failed")

// Project returns the coordinates of vectors on their first dims principal
// components. dims is clamped to the rank bound min(N, D); the missing
// columns are zero.
func Project(vectors [][]float64, dims int) ([][]float64, error) {
	d, err := similarity.Validate(vectors)
	if err != nil {
		return nil, fmt.Errorf("pca: %w", err)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("pca: %w: dims must be positive, got %d", similarity.ErrInvalidInput, dims)
	}

	n := len(vectors)
	k := dims
	if k > d {
		k = d
	}
	if k > n {
		k = n
	}

	X := mat.NewDense(n, d, nil)
	for i, v := range vectors {
		X.SetRow(i, v)
	}

	// Center the data
	centered := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, X)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			centered.Set(i, j, col[i]-mean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, ErrFactorization
	}

	// Right singular vectors, one component per column
	var v mat.Dense
	svd.VTo(&v)

	projected := mat.NewDense(n, k, nil)
	projected.Mul(centered, v.Slice(0, d, 0, k))

	result := make([][]float64, n)
	for i := 0; i < n; i++ {
		result[i] = make([]float64, dims)
		for j := 0; j < k; j++ {
			result[i][j] = projected.At(i, j)
		}
	}

	return result, nil
}

// Reduce projects vectors to dims components when their dimensionality
// exceeds dims and returns them unchanged otherwise.
func Reduce(vectors [][]float64, dims int) ([][]float64, error) {
	d, err := similarity.Validate(vectors)
	if err != nil {
		return nil, fmt.Errorf("pca: %w", err)
	}
	if d <= dims {
		return vectors, nil
	}
	return Project(vectors, dims)
}
