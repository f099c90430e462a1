package affinity

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/todmy/embedscope/internal/similarity"
)

func randomVectors(rng *rand.Rand, n, d int) [][]float64 {
	vectors := make([][]float64, n)
	for i := range vectors {
		vectors[i] = make([]float64, d)
		for j := range vectors[i] {
			vectors[i][j] = rng.NormFloat64()
		}
	}
	return vectors
}

func TestBuild_SymmetricAndNormalized(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	tests := []struct {
		name       string
		n, d       int
		perplexity float64
	}{
		{"small", 6, 3, 2},
		{"medium", 40, 10, 10},
		{"perplexity above n", 12, 4, 30},
		{"single dimension", 25, 1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Build(randomVectors(rng, tt.n, tt.d), tt.perplexity, DefaultTolerance)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.N != tt.n {
				t.Fatalf("expected N=%d, got %d", tt.n, m.N)
			}

			for i := 0; i < m.N; i++ {
				for j := 0; j < m.N; j++ {
					if m.At(i, j) != m.At(j, i) {
						t.Fatalf("P[%d][%d]=%v != P[%d][%d]=%v", i, j, m.At(i, j), j, i, m.At(j, i))
					}
					if m.At(i, j) < Floor {
						t.Fatalf("P[%d][%d]=%v below floor", i, j, m.At(i, j))
					}
				}
			}

			if sum := m.Sum(); math.Abs(sum-1) > 1e-9 {
				t.Errorf("expected sum 1, got %v", sum)
			}
		})
	}
}

func TestBuildWithStats_TerminatesWithinMaxTries(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	vectors := randomVectors(rng, 30, 5)

	// An unreachable tolerance forces every row to use the whole budget.
	_, stats, err := BuildWithStats(vectors, 5, 1e-300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, tries := range stats.Tries {
		if tries < 1 || tries > MaxTries {
			t.Errorf("point %d used %d tries, want 1..%d", i, tries, MaxTries)
		}
	}
}

func TestBuildWithStats_ReachesTargetEntropy(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	vectors := randomVectors(rng, 50, 4)
	perplexity := 8.0

	_, stats, err := BuildWithStats(vectors, perplexity, DefaultTolerance)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dists := SquaredDistances(vectors)
	row := make([]float64, len(vectors))
	for i := range vectors {
		if !stats.Converged[i] {
			t.Errorf("point %d did not converge", i)
			continue
		}
		h := rowEntropy(dists[i*len(vectors):(i+1)*len(vectors)], i, stats.Betas[i], row)
		if math.Abs(h-math.Log(perplexity)) >= DefaultTolerance {
			t.Errorf("point %d: entropy %v, want %v", i, h, math.Log(perplexity))
		}
	}
}

func TestBuild_InvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		vectors    [][]float64
		perplexity float64
		want       error
	}{
		{"empty", nil, 30, similarity.ErrInvalidInput},
		{"zero length", [][]float64{{}, {}}, 30, similarity.ErrInvalidInput},
		{"mismatched", [][]float64{{1, 2}, {1}}, 30, similarity.ErrInvalidInput},
		{"zero perplexity", [][]float64{{1}, {2}}, 0, ErrInvalidPerplexity},
		{"negative perplexity", [][]float64{{1}, {2}}, -1, ErrInvalidPerplexity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Build(tt.vectors, tt.perplexity, DefaultTolerance)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if m != nil {
				t.Error("expected nil matrix")
			}
		})
	}
}

func TestBuild_SinglePointHasNoMass(t *testing.T) {
	m, err := Build([][]float64{{1, 2, 3}}, 30, DefaultTolerance)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.At(0, 0) != Floor {
		t.Errorf("expected floor value, got %v", m.At(0, 0))
	}
}

func TestFromDistances_MatchesBuild(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	vectors := randomVectors(rng, 15, 3)

	flat := SquaredDistances(vectors)
	n := len(vectors)
	D := make([][]float64, n)
	for i := range D {
		D[i] = make([]float64, n)
		for j := i + 1; j < n; j++ {
			D[i][j] = flat[i*n+j] // lower triangle left at zero
		}
	}

	fromVectors, err := Build(vectors, 4, DefaultTolerance)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromDists, err := FromDistances(D, 4, DefaultTolerance)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for k := range fromVectors.Data {
		if fromVectors.Data[k] != fromDists.Data[k] {
			t.Fatalf("entry %d differs: %v vs %v", k, fromVectors.Data[k], fromDists.Data[k])
		}
	}
}

func TestFromDistances_NotSquare(t *testing.T) {
	_, err := FromDistances([][]float64{{0, 1}, {1}}, 2, DefaultTolerance)
	if !errors.Is(err, ErrNotSquare) {
		t.Errorf("expected ErrNotSquare, got %v", err)
	}

	_, err = FromDistances(nil, 2, DefaultTolerance)
	if !errors.Is(err, similarity.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
