package optimizer

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/todmy/embedscope/internal/similarity"
)

const (
	DefaultMaxIter       = 1000
	DefaultStopTolerance = 1e-5

	logEvery = 100
)

// StopReason tells why a loop stopped
type StopReason int

const (
	NotStopped StopReason = iota
	Converged
	MaxIterReached
)

func (r StopReason) String() string {
	switch r {
	case Converged:
		return "converged"
	case MaxIterReached:
		return "max_iter"
	default:
		return "running"
	}
}

// Result summarizes a finished run
type Result struct {
	Iterations int
	Reason     StopReason
	Cost       float64
	Change     float64
}

// Loop steps an optimizer until its solution stops moving or the iteration
// cap is exceeded
type Loop struct {
	MaxIter       int
	StopTolerance float64

	iter   int
	reason StopReason
	last   [][]float64 // owned copy of the previous solution
	cost   float64
	change float64
}

// NewLoop creates a loop. Non-positive arguments take their defaults.
func NewLoop(maxIter int, stopTolerance float64) *Loop {
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}
	if stopTolerance <= 0 {
		stopTolerance = DefaultStopTolerance
	}
	return &Loop{
		MaxIter:       maxIter,
		StopTolerance: stopTolerance,
	}
}

// Iter returns the number of steps taken
func (l *Loop) Iter() int {
	return l.iter
}

// Stopped reports whether the loop reached a terminal state
func (l *Loop) Stopped() bool {
	return l.reason != NotStopped
}

// Run steps opt until the loop stops.
func (l *Loop) Run(opt Optimizer) (Result, error) {
	if opt == nil || !opt.Initialized() {
		return Result{}, ErrNotInitialized
	}

	for !l.Stopped() {
		l.cost = opt.Step()
		l.iter++
		l.checkIfConverged(opt.Solution())

		if l.iter%logEvery == 0 {
			log.Debug().
				Int("iter", l.iter).
				Float64("cost", l.cost).
				Float64("change", l.change).
				Msg("optimization progress")
		}
	}

	log.Info().
		Int("iterations", l.iter).
		Str("reason", l.reason.String()).
		Float64("cost", l.cost).
		Msg("optimization finished")

	return l.Result(), nil
}

// Result returns the current state of the loop
func (l *Loop) Result() Result {
	return Result{
		Iterations: l.iter,
		Reason:     l.reason,
		Cost:       l.cost,
		Change:     l.change,
	}
}

// Extend allows n more iterations and clears the terminal state. The next
// convergence check starts without a previous snapshot.
func (l *Loop) Extend(n int) {
	l.MaxIter = l.iter + n
	l.reason = NotStopped
	l.last = nil
}

func (l *Loop) checkIfConverged(solution [][]float64) {
	l.change = EmbeddingChange(solution, l.last)
	if l.change < l.StopTolerance {
		l.reason = Converged
	}
	if l.iter > l.MaxIter {
		l.reason = MaxIterReached
	}
	l.last = similarity.Clone(solution)
}

// EmbeddingChange returns the mean squared relative change per coordinate
// between two solutions. Without a previous solution the change is infinite.
func EmbeddingChange(current, last [][]float64) float64 {
	if last == nil || len(current) == 0 {
		return math.Inf(1)
	}

	sqChange := 0.0
	count := 0
	for i := range current {
		for d := range current[i] {
			rel := (current[i][d] - last[i][d]) / (math.Abs(last[i][d]) + 1e-9)
			sqChange += rel * rel
			count++
		}
	}
	if count == 0 {
		return math.Inf(1)
	}
	return sqChange / float64(count)
}
