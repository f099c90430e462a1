// Package optimizer drives embedding engines to convergence. Engines are a
// closed set selected through Engine; the loop only relies on the Optimizer
// capability interface.
package optimizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/todmy/embedscope/internal/pca"
	"github.com/todmy/embedscope/internal/tsne"
)

var (
	// ErrUnknownEngine is returned for an engine name or value outside the supported set
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrNotInitialized is returned when running an optimizer that has no data
	ErrNotInitialized = errors.New("optimizer not initialized")
)

// Optimizer is an embedding engine that can be stepped toward a solution
type Optimizer interface {
	// Initialize loads vectors and discards any previous run
	Initialize(vectors [][]float64) error
	// Step performs one iteration and returns an informational cost
	Step() float64
	// Solution returns the current coordinates, one row per input vector
	Solution() [][]float64
	// Data returns the raw vectors of the current run
	Data() [][]float64
	Initialized() bool
}

// Focuser is implemented by engines that honor a focus pull force
type Focuser interface {
	SetFocus(f tsne.Focus) error
	ClearFocus()
	Iter() int
}

// Engine identifies a concrete embedding engine
type Engine int

const (
	EngineTSNE Engine = iota
	EnginePCA
)

// Engines lists every supported engine
var Engines = []Engine{EngineTSNE, EnginePCA}

func (e Engine) String() string {
	switch e {
	case EngineTSNE:
		return "tsne"
	case EnginePCA:
		return "pca"
	default:
		return fmt.Sprintf("engine(%d)", int(e))
	}
}

// ParseEngine maps a name such as "TSNE" or "pca" to its Engine
func ParseEngine(name string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tsne", "t-sne":
		return EngineTSNE, nil
	case "pca":
		return EnginePCA, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}

// MarshalText implements encoding.TextMarshaler
func (e Engine) MarshalText() ([]byte, error) {
	switch e {
	case EngineTSNE, EnginePCA:
		return []byte(e.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEngine, int(e))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (e *Engine) UnmarshalText(text []byte) error {
	parsed, err := ParseEngine(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Options configures the engine built by New
type Options struct {
	TSNE tsne.Config
	Dim  int // output dimension of engines other than t-SNE
}

// DefaultOptions returns default engine options
func DefaultOptions() Options {
	return Options{
		TSNE: tsne.DefaultConfig(),
		Dim:  tsne.DefaultDim,
	}
}

// New creates an uninitialized optimizer for engine
func New(engine Engine, opts Options) (Optimizer, error) {
	switch engine {
	case EngineTSNE:
		return tsne.New(opts.TSNE), nil
	case EnginePCA:
		return pca.NewEngine(opts.Dim), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEngine, int(engine))
	}
}
