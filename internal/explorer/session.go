// Package explorer drives one interactive projection session: run an
// engine over a dataset, focus on a point's neighborhood, narrow the
// dataset to that neighborhood and reset back to the full dataset.
package explorer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/todmy/embedscope/internal/dataset"
	"github.com/todmy/embedscope/internal/metrics"
	"github.com/todmy/embedscope/internal/neighbors"
	"github.com/todmy/embedscope/internal/optimizer"
	"github.com/todmy/embedscope/internal/pca"
	"github.com/todmy/embedscope/internal/similarity"
	"github.com/todmy/embedscope/internal/tsne"
	"github.com/todmy/embedscope/pkg/models"
)

const (
	DefaultFocusSteps = 200

	// DefaultMaxPoints bounds the dataset size; memory grows with the square of it
	DefaultMaxPoints = 3000
)

var (
	ErrNoRun             = errors.New("no projection has been run")
	ErrEmptyNeighborhood = errors.New("no neighborhood selected")
)

// Config holds session settings
type Config struct {
	Engine        optimizer.Engine
	TSNE          tsne.Config
	Dim           int
	MaxIter       int
	StopTolerance float64
	UsePCA        bool
	PCADimension  int
	FocusSteps    int // extra iterations run after a focus is set
	MaxPoints     int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Engine:        optimizer.EngineTSNE,
		TSNE:          tsne.DefaultConfig(),
		Dim:           tsne.DefaultDim,
		MaxIter:       optimizer.DefaultMaxIter,
		StopTolerance: optimizer.DefaultStopTolerance,
		UsePCA:        true,
		PCADimension:  pca.DefaultDimension,
		FocusSteps:    DefaultFocusSteps,
		MaxPoints:     DefaultMaxPoints,
	}
}

// Session is a projection of a dataset and its focus state. It is safe for
// concurrent use; operations are serialized.
type Session struct {
	mu     sync.Mutex
	config Config

	full    *dataset.Set
	current *dataset.Set

	opt    optimizer.Optimizer
	loop   *optimizer.Loop
	result optimizer.Result

	neighborhood neighbors.Set
	focused      int
	oldFocusedID string
}

// New creates a session over data. The engine is validated but nothing runs
// until Run is called.
func New(data *dataset.Set, config Config) (*Session, error) {
	if data == nil || data.Len() == 0 {
		return nil, fmt.Errorf("%w: empty dataset", similarity.ErrInvalidInput)
	}

	defaults := DefaultConfig()
	if config.MaxPoints <= 0 {
		config.MaxPoints = defaults.MaxPoints
	}
	if data.Len() > config.MaxPoints {
		return nil, fmt.Errorf("%w: dataset has %d points, limit is %d", similarity.ErrInvalidInput, data.Len(), config.MaxPoints)
	}
	if config.Dim <= 0 {
		config.Dim = defaults.Dim
	}
	if config.TSNE.Dim <= 0 {
		config.TSNE.Dim = config.Dim
	}
	if config.PCADimension <= 0 {
		config.PCADimension = defaults.PCADimension
	}
	if config.FocusSteps <= 0 {
		config.FocusSteps = defaults.FocusSteps
	}

	opt, err := optimizer.New(config.Engine, optimizer.Options{TSNE: config.TSNE, Dim: config.Dim})
	if err != nil {
		return nil, err
	}

	return &Session{
		config:  config,
		full:    data,
		current: data,
		opt:     opt,
		focused: -1,
	}, nil
}

// Engine returns the engine this session projects with
func (s *Session) Engine() optimizer.Engine {
	return s.config.Engine
}

// Run projects the current dataset from scratch. Any focus is discarded.
func (s *Session) Run() (optimizer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run()
}

func (s *Session) run() (optimizer.Result, error) {
	vectors := s.current.Embeddings()
	if s.config.UsePCA {
		reduced, err := pca.Reduce(vectors, s.config.PCADimension)
		if err != nil {
			return optimizer.Result{}, fmt.Errorf("failed to reduce dataset: %w", err)
		}
		vectors = reduced
	}

	if err := s.opt.Initialize(vectors); err != nil {
		return optimizer.Result{}, fmt.Errorf("failed to initialize engine: %w", err)
	}

	s.neighborhood = nil
	s.focused = -1
	s.loop = optimizer.NewLoop(s.config.MaxIter, s.config.StopTolerance)
	return s.drive()
}

// drive runs the loop from its current state and records metrics
func (s *Session) drive() (optimizer.Result, error) {
	start := time.Now()
	res, err := s.loop.Run(s.opt)
	if err != nil {
		return optimizer.Result{}, err
	}
	metrics.ObserveRun(s.config.Engine.String(), res.Reason.String(), res.Iterations, s.current.Len(), time.Since(start))

	s.result = res
	return res, nil
}

// Result returns the state of the last run
func (s *Session) Result() optimizer.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Focus selects the neighborhood of the point at index, covering frac of the
// current dataset. Engines that support it are pulled toward the point for
// another FocusSteps iterations.
func (s *Session) Focus(index int, frac float64) (neighbors.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loop == nil {
		return nil, ErrNoRun
	}
	data := s.opt.Data()
	if data == nil {
		return nil, fmt.Errorf("%w: run has no vectors", ErrNoRun)
	}

	set, err := neighbors.Select(data, index, frac)
	if err != nil {
		return nil, err
	}
	s.neighborhood = set
	s.focused = index

	log.Info().
		Str("id", s.current.At(index).ID).
		Int("neighbors", set.Len()).
		Float64("fraction", frac).
		Msg("focus selected")
	metrics.FocusEvents.WithLabelValues("focus").Inc()

	focuser, ok := s.opt.(optimizer.Focuser)
	if !ok {
		return set, nil
	}

	center := append([]float64(nil), s.opt.Solution()[index]...)
	err = focuser.SetFocus(tsne.Focus{
		Index:    index,
		Weights:  neighbors.Weights(similarity.SimilaritiesTo(data, index), set),
		Center:   center,
		FromIter: focuser.Iter(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set focus: %w", err)
	}

	s.loop.Extend(s.config.FocusSteps)
	if _, err := s.drive(); err != nil {
		return nil, err
	}
	return set, nil
}

// ClearFocus drops the neighborhood and any focus pull
func (s *Session) ClearFocus() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.neighborhood = nil
	s.focused = -1
	if focuser, ok := s.opt.(optimizer.Focuser); ok {
		focuser.ClearFocus()
	}
	metrics.FocusEvents.WithLabelValues("clear").Inc()
}

// Narrow replaces the current dataset with the focused neighborhood and
// projects it again.
func (s *Session) Narrow() (optimizer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.neighborhood == nil || s.focused < 0 {
		return optimizer.Result{}, ErrEmptyNeighborhood
	}

	sub, err := s.current.Subset(s.neighborhood)
	if err != nil {
		return optimizer.Result{}, err
	}
	s.oldFocusedID = s.current.At(s.focused).ID
	s.current = sub

	log.Info().
		Str("focused", s.oldFocusedID).
		Int("points", sub.Len()).
		Msg("dataset narrowed")
	metrics.FocusEvents.WithLabelValues("narrow").Inc()

	return s.run()
}

// Reset restores the full dataset and projects it again
func (s *Session) Reset() (optimizer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.focused >= 0 {
		s.oldFocusedID = s.current.At(s.focused).ID
	}
	s.current = s.full

	log.Info().
		Str("focused", s.oldFocusedID).
		Int("points", s.full.Len()).
		Msg("dataset reset")
	metrics.FocusEvents.WithLabelValues("reset").Inc()

	return s.run()
}

// Dataset returns the dataset currently projected
func (s *Session) Dataset() *dataset.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Neighborhood returns the selected neighborhood, nil when none
func (s *Session) Neighborhood() neighbors.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neighborhood
}

// Focused returns the focused index
func (s *Session) Focused() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused, s.focused >= 0
}

// OldFocusedID returns the id of the point focused before the last narrow or reset
func (s *Session) OldFocusedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.oldFocusedID
}

// Solution returns a copy of the current coordinates
func (s *Session) Solution() [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loop == nil {
		return nil
	}
	return similarity.Clone(s.opt.Solution())
}

// Points returns the current projection with display attributes
func (s *Session) Points() []models.RenderPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points()
}

func (s *Session) points() []models.RenderPoint {
	if s.loop == nil {
		return nil
	}

	solution := s.opt.Solution()
	points := make([]models.RenderPoint, s.current.Len())
	for i, p := range s.current.Points() {
		rp := models.RenderPoint{
			ID:          p.ID,
			Text:        p.Text,
			Hue:         p.Hue,
			Opacity:     neighbors.Opacity(s.neighborhood, i),
			Highlighted: i == s.focused || (s.oldFocusedID != "" && p.ID == s.oldFocusedID),
		}
		if len(solution[i]) > 0 {
			rp.X = solution[i][0]
		}
		if len(solution[i]) > 1 {
			rp.Y = solution[i][1]
		}
		points[i] = rp
	}
	return points
}

// Snapshot is a consistent view of a session taken under one lock
type Snapshot struct {
	Engine       optimizer.Engine
	Result       optimizer.Result
	Points       []models.RenderPoint
	Focused      int // -1 when nothing is focused
	OldFocusedID string
	Neighbors    []int // sorted indices into Points, nil when none
}

// Snapshot returns the run result, render points and focus state together
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Engine:       s.config.Engine,
		Result:       s.result,
		Points:       s.points(),
		Focused:      s.focused,
		OldFocusedID: s.oldFocusedID,
	}
	if s.neighborhood != nil {
		snap.Neighbors = s.neighborhood.Sorted()
	}
	return snap
}
