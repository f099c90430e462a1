package optimizer

import (
	"errors"
	"math"
	"testing"

	"github.com/todmy/embedscope/internal/pca"
	"github.com/todmy/embedscope/internal/tsne"
)

func clusterData() [][]float64 {
	return [][]float64{
		{0, 0, 0}, {0.1, 0, 0}, {0, 0.1, 0}, {0.1, 0.1, 0},
		{5, 5, 5}, {5.1, 5, 5}, {5, 5.1, 5}, {5.1, 5.1, 5},
	}
}

func TestParseEngine(t *testing.T) {
	tests := []struct {
		name    string
		want    Engine
		wantErr bool
	}{
		{"tsne", EngineTSNE, false},
		{"TSNE", EngineTSNE, false},
		{" pca ", EnginePCA, false},
		{"umap", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEngine(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownEngine) {
					t.Fatalf("expected ErrUnknownEngine, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEngine_TextRoundTrip(t *testing.T) {
	for _, e := range Engines {
		text, err := e.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", e, err)
		}
		var got Engine
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("unmarshal %q: %v", text, err)
		}
		if got != e {
			t.Errorf("expected %v, got %v", e, got)
		}
	}

	if _, err := Engine(42).MarshalText(); !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestNew(t *testing.T) {
	opt, err := New(EngineTSNE, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := opt.(*tsne.TSNE); !ok {
		t.Errorf("expected *tsne.TSNE, got %T", opt)
	}
	if _, ok := opt.(Focuser); !ok {
		t.Error("t-SNE engine should support focus")
	}

	opt, err = New(EnginePCA, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := opt.(*pca.Engine); !ok {
		t.Errorf("expected *pca.Engine, got %T", opt)
	}
	if _, ok := opt.(Focuser); ok {
		t.Error("PCA engine should not support focus")
	}

	if _, err := New(Engine(7), DefaultOptions()); !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestEmbeddingChange(t *testing.T) {
	current := [][]float64{{1, 2}, {3, 4}}

	if got := EmbeddingChange(current, nil); !math.IsInf(got, 1) {
		t.Errorf("expected +Inf without previous solution, got %v", got)
	}

	if got := EmbeddingChange(current, [][]float64{{1, 2}, {3, 4}}); got != 0 {
		t.Errorf("expected 0 for identical solutions, got %v", got)
	}

	// (2-1)/1 = 1 relative change in one of four coordinates
	got := EmbeddingChange([][]float64{{2, 2}, {3, 4}}, [][]float64{{1, 2}, {3, 4}})
	if math.Abs(got-0.25) > 1e-6 {
		t.Errorf("expected 0.25, got %v", got)
	}
}

func TestLoop_NotInitialized(t *testing.T) {
	loop := NewLoop(0, 0)
	if _, err := loop.Run(tsne.New(tsne.DefaultConfig())); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestLoop_Defaults(t *testing.T) {
	loop := NewLoop(-1, -1)
	if loop.MaxIter != DefaultMaxIter {
		t.Errorf("expected max iter %d, got %d", DefaultMaxIter, loop.MaxIter)
	}
	if loop.StopTolerance != DefaultStopTolerance {
		t.Errorf("expected tolerance %v, got %v", DefaultStopTolerance, loop.StopTolerance)
	}
}

func TestLoop_PCAConvergesImmediately(t *testing.T) {
	engine := pca.NewEngine(2)
	if err := engine.Initialize(clusterData()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	res, err := NewLoop(DefaultMaxIter, DefaultStopTolerance).Run(engine)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// first check has no snapshot, second sees no change
	if res.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", res.Iterations)
	}
	if res.Reason != Converged {
		t.Errorf("expected converged, got %v", res.Reason)
	}
}

func TestLoop_MaxIter(t *testing.T) {
	ts := tsne.New(tsne.Config{Perplexity: 2, RandomSeed: 1})
	if err := ts.Initialize(clusterData()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// a tolerance nothing reaches forces the iteration cap
	loop := NewLoop(10, 1e-300)
	res, err := loop.Run(ts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Reason != MaxIterReached {
		t.Errorf("expected max_iter, got %v", res.Reason)
	}
	if res.Iterations != 11 {
		t.Errorf("expected 11 iterations, got %d", res.Iterations)
	}
	if ts.Iter() != 11 {
		t.Errorf("expected engine at 11, got %d", ts.Iter())
	}
	if !loop.Stopped() {
		t.Error("loop should be stopped")
	}
}

func TestLoop_Extend(t *testing.T) {
	ts := tsne.New(tsne.Config{Perplexity: 2, RandomSeed: 1})
	if err := ts.Initialize(clusterData()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	loop := NewLoop(5, 1e-300)
	if _, err := loop.Run(ts); err != nil {
		t.Fatalf("run: %v", err)
	}
	first := loop.Iter()

	loop.Extend(5)
	if loop.Stopped() {
		t.Fatal("extend should clear the terminal state")
	}
	res, err := loop.Run(ts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Iterations != first+6 {
		t.Errorf("expected %d iterations, got %d", first+6, res.Iterations)
	}
}

func TestLoop_DoesNotAliasSolution(t *testing.T) {
	ts := tsne.New(tsne.Config{Perplexity: 2, RandomSeed: 3})
	if err := ts.Initialize(clusterData()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	loop := NewLoop(3, 1e-300)
	if _, err := loop.Run(ts); err != nil {
		t.Fatalf("run: %v", err)
	}

	// snapshot must be a copy or the next change would read 0
	ts.Step()
	if change := EmbeddingChange(ts.Solution(), loop.last); change == 0 {
		t.Error("loop snapshot aliases the engine solution")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([][]float64{{0, 5}, {10, 5}, {5, 5}})

	want := [][]float64{{-1, 0}, {1, 0}, {0, 0}}
	for i := range want {
		for d := range want[i] {
			if math.Abs(got[i][d]-want[i][d]) > 1e-12 {
				t.Errorf("point %d dim %d: expected %v, got %v", i, d, want[i][d], got[i][d])
			}
		}
	}

	if out := Normalize(nil); len(out) != 0 {
		t.Errorf("expected empty result, got %v", out)
	}
}
