// Package tsne implements an exact t-SNE embedding optimizer with adaptive
// gains, momentum and an optional focus force pulling a neighborhood toward
// a point of the embedding.
package tsne

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/todmy/embedscope/internal/affinity"
	"github.com/todmy/embedscope/internal/similarity"
)

const (
	DefaultPerplexity      = 30
	DefaultDim             = 2
	DefaultEpsilon         = 10
	DefaultFocusWarmupIter = 100
	DefaultFocusPullCoef   = 0.02

	exaggerationIters  = 100 // early exaggeration of P during the first iterations
	exaggeration       = 4.0
	momentumSwitchIter = 250
	initialMomentum    = 0.5
	finalMomentum      = 0.8
	minGain            = 0.01
	initStdDev         = 1e-4
)

var (
	ErrNotInitialized = errors.New("tsne: no data loaded")
	ErrInvalidFocus   = errors.New("tsne: invalid focus")
)

// Config holds t-SNE hyperparameters
type Config struct {
	Perplexity      float64 // effective number of nearest neighbors
	Dim             int     // output dimensionality
	Epsilon         float64 // learning rate
	RandomSeed      int64
	Tolerance       float64 // entropy tolerance of the affinity search
	FocusWarmupIter int     // iterations over which the focus pull ramps in
	FocusPullCoef   float64 // maximum focus pull
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Perplexity:      DefaultPerplexity,
		Dim:             DefaultDim,
		Epsilon:         DefaultEpsilon,
		RandomSeed:      0,
		Tolerance:       affinity.DefaultTolerance,
		FocusWarmupIter: DefaultFocusWarmupIter,
		FocusPullCoef:   DefaultFocusPullCoef,
	}
}

// Focus pulls every point toward Center with a strength proportional to its weight
type Focus struct {
	Index    int
	Weights  []float64
	Center   []float64
	FromIter int
}

// TSNE holds the state of one embedding run
type TSNE struct {
	config Config

	n     int
	x     [][]float64 // raw vectors, nil when loaded from distances
	p     *affinity.Matrix
	y     [][]float64
	gains [][]float64
	ystep [][]float64
	iter  int
	focus *Focus
	gauss *Gaussian
}

// New creates a t-SNE optimizer. Zero fields of config take their defaults.
func New(config Config) *TSNE {
	defaults := DefaultConfig()
	if config.Perplexity <= 0 {
		config.Perplexity = defaults.Perplexity
	}
	if config.Dim <= 0 {
		config.Dim = defaults.Dim
	}
	if config.Epsilon <= 0 {
		config.Epsilon = defaults.Epsilon
	}
	if config.Tolerance <= 0 {
		config.Tolerance = defaults.Tolerance
	}
	if config.FocusWarmupIter <= 0 {
		config.FocusWarmupIter = defaults.FocusWarmupIter
	}
	if config.FocusPullCoef <= 0 {
		config.FocusPullCoef = defaults.FocusPullCoef
	}

	return &TSNE{config: config}
}

// Config returns the effective configuration
func (ts *TSNE) Config() Config {
	return ts.config
}

// Initialize builds the affinities of vectors and starts a new run from a
// random solution. Any previous run is discarded.
func (ts *TSNE) Initialize(vectors [][]float64) error {
	p, err := affinity.Build(vectors, ts.config.Perplexity, ts.config.Tolerance)
	if err != nil {
		return fmt.Errorf("tsne: %w", err)
	}

	ts.x = similarity.Clone(vectors)
	ts.p = p
	ts.n = len(vectors)
	ts.initSolution()
	return nil
}

// InitializeDistances starts a new run from a precomputed distance matrix.
// Runs started this way have no raw vectors.
func (ts *TSNE) InitializeDistances(D [][]float64) error {
	p, err := affinity.FromDistances(D, ts.config.Perplexity, ts.config.Tolerance)
	if err != nil {
		return fmt.Errorf("tsne: %w", err)
	}

	ts.x = nil
	ts.p = p
	ts.n = len(D)
	ts.initSolution()
	return nil
}

// initSolution resets coordinates, gains, momentum and the random stream
func (ts *TSNE) initSolution() {
	ts.gauss = NewGaussian(ts.config.RandomSeed)
	ts.y = make([][]float64, ts.n)
	ts.gains = make([][]float64, ts.n)
	ts.ystep = make([][]float64, ts.n)
	for i := 0; i < ts.n; i++ {
		ts.y[i] = make([]float64, ts.config.Dim)
		ts.gains[i] = make([]float64, ts.config.Dim)
		ts.ystep[i] = make([]float64, ts.config.Dim)
		for d := 0; d < ts.config.Dim; d++ {
			ts.y[i][d] = ts.gauss.Sample(0, initStdDev)
			ts.gains[i][d] = 1.0
		}
	}
	ts.iter = 0
	ts.focus = nil
}

// Initialized reports whether data has been loaded
func (ts *TSNE) Initialized() bool {
	return ts.p != nil
}

// Solution returns the current coordinates. The slice is owned by the
// optimizer and changes on every step.
func (ts *TSNE) Solution() [][]float64 {
	return ts.y
}

// Data returns the raw vectors of the run, nil for distance input
func (ts *TSNE) Data() [][]float64 {
	return ts.x
}

// Affinities returns the high-dimensional probability matrix
func (ts *TSNE) Affinities() *affinity.Matrix {
	return ts.p
}

// Iter returns the number of completed steps
func (ts *TSNE) Iter() int {
	return ts.iter
}

// Step performs one gradient descent step and returns the cost before it.
func (ts *TSNE) Step() float64 {
	if ts.p == nil {
		return 0
	}

	cost, grad := ts.costGrad(ts.y)

	momentum := initialMomentum
	if ts.iter >= momentumSwitchIter {
		momentum = finalMomentum
	}

	for i := 0; i < ts.n; i++ {
		for d := 0; d < ts.config.Dim; d++ {
			gid := grad[i][d]
			sid := ts.ystep[i][d]

			gain := ts.gains[i][d]
			if sign(gid) == sign(sid) {
				gain *= 0.8
			} else {
				gain += 0.2
			}
			if gain < minGain {
				gain = minGain
			}
			ts.gains[i][d] = gain

			newsid := momentum*sid - ts.config.Epsilon*gain*gid
			ts.ystep[i][d] = newsid
			ts.y[i][d] += newsid
		}
	}

	recenter(ts.y, ts.config.Dim)
	ts.iter++
	return cost
}

// CostGrad returns the cost and gradient at the current solution
func (ts *TSNE) CostGrad() (float64, [][]float64, error) {
	if ts.p == nil {
		return 0, nil, ErrNotInitialized
	}
	cost, grad := ts.costGrad(ts.y)
	return cost, grad, nil
}

// costGrad evaluates the non-constant part of KL(P||Q) and its gradient at y
func (ts *TSNE) costGrad(y [][]float64) (float64, [][]float64) {
	n := ts.n
	dim := ts.config.Dim
	P := ts.p.Data

	pmul := 1.0
	if ts.iter < exaggerationIters {
		pmul = exaggeration
	}

	// Student-t kernel, unnormalized
	qu := make([]float64, n*n)
	qsum := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			q := 1.0 / (1.0 + similarity.SquaredEuclidean(y[i], y[j]))
			qu[i*n+j] = q
			qu[j*n+i] = q
			qsum += 2 * q
		}
	}

	Q := make([]float64, n*n)
	for k := range Q {
		q := 0.0
		if qsum > 0 {
			q = qu[k] / qsum
		}
		Q[k] = math.Max(q, affinity.Floor)
	}

	pull := ts.pullCoefficient()

	cost := 0.0
	grad := make([][]float64, n)
	for i := 0; i < n; i++ {
		gsum := make([]float64, dim)
		for j := 0; j < n; j++ {
			k := i*n + j
			cost += -P[k] * math.Log(Q[k])
			premult := 4 * (pmul*P[k] - Q[k]) * qu[k]
			for d := 0; d < dim; d++ {
				gsum[d] += premult * (y[i][d] - y[j][d])
			}
		}

		if ts.focus != nil {
			w := ts.focus.Weights[i] * pull
			for d := range ts.focus.Center {
				gsum[d] += (y[i][d] - ts.focus.Center[d]) * w
			}
		}
		grad[i] = gsum
	}

	return cost, grad
}

// pullCoefficient eases the focus pull in over FocusWarmupIter iterations
func (ts *TSNE) pullCoefficient() float64 {
	if ts.focus == nil {
		return 0
	}
	progress := math.Min(1, float64(ts.iter-ts.focus.FromIter)/float64(ts.config.FocusWarmupIter))
	if progress < 0 {
		progress = 0
	}
	return ts.config.FocusPullCoef * progress * progress * progress
}

// SetFocus activates the focus force. FromIter below zero means the current iteration.
func (ts *TSNE) SetFocus(f Focus) error {
	if ts.p == nil {
		return ErrNotInitialized
	}
	if f.Index < 0 || f.Index >= ts.n {
		return fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidFocus, f.Index, ts.n)
	}
	if len(f.Weights) != ts.n {
		return fmt.Errorf("%w: %d weights for %d points", ErrInvalidFocus, len(f.Weights), ts.n)
	}
	if len(f.Center) == 0 || len(f.Center) > ts.config.Dim {
		return fmt.Errorf("%w: center has dimension %d", ErrInvalidFocus, len(f.Center))
	}
	if f.FromIter < 0 {
		f.FromIter = ts.iter
	}

	f.Weights = append([]float64(nil), f.Weights...)
	f.Center = append([]float64(nil), f.Center...)
	ts.focus = &f
	return nil
}

// ClearFocus removes the focus force
func (ts *TSNE) ClearFocus() {
	ts.focus = nil
}

// Focus returns the active focus, nil when none
func (ts *TSNE) Focus() *Focus {
	return ts.focus
}

// recenter subtracts the per-dimension mean from every point
func recenter(y [][]float64, dim int) {
	if len(y) == 0 {
		return
	}
	mean := make([]float64, dim)
	for _, p := range y {
		floats.Add(mean, p)
	}
	floats.Scale(1/float64(len(y)), mean)
	for _, p := range y {
		floats.Sub(p, mean)
	}
}

func sign(x float64) int {
	if x > 0 {
		return 1
	} else if x < 0 {
		return -1
	}
	return 0
}
