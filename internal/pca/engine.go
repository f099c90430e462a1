package pca

import (
	"github.com/todmy/embedscope/internal/similarity"
)

// Engine embeds vectors with a single PCA projection. It fits the iterative
// optimizer contract: the solution is final after Initialize and Step does
// not change it.
type Engine struct {
	dim      int
	x        [][]float64
	solution [][]float64
}

// NewEngine creates a PCA engine with output dimension dim (default 2)
func NewEngine(dim int) *Engine {
	if dim <= 0 {
		dim = 2
	}
	return &Engine{dim: dim}
}

// Initialize computes the projection of vectors
func (e *Engine) Initialize(vectors [][]float64) error {
	projected, err := Project(vectors, e.dim)
	if err != nil {
		return err
	}

	e.x = similarity.Clone(vectors)
	e.solution = projected
	return nil
}

// Step is a no-op; the projection has no iterative refinement
func (e *Engine) Step() float64 {
	return 0
}

// Solution returns the projected coordinates, zero mean per dimension
func (e *Engine) Solution() [][]float64 {
	return e.solution
}

// Data returns the raw vectors
func (e *Engine) Data() [][]float64 {
	return e.x
}

// Initialized reports whether data has been loaded
func (e *Engine) Initialized() bool {
	return e.solution != nil
}
