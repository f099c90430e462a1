package neighbors

import (
	"errors"
	"testing"
)

func TestCount(t *testing.T) {
	tests := []struct {
		n    int
		frac float64
		want int
	}{
		{100, 0.2, 20},
		{20, 0.1, 5},
		{3, 0.5, 3},
		{10, 1.0, 10},
		{10, 2.0, 10},
		{10, 0, 5},
		{0, 0.2, 0},
	}

	for _, tt := range tests {
		if got := Count(tt.n, tt.frac); got != tt.want {
			t.Errorf("Count(%d, %v) = %d, expected %d", tt.n, tt.frac, got, tt.want)
		}
	}
}

func directions(n int) [][]float64 {
	vectors := make([][]float64, n)
	for i := range vectors {
		// similarity to the first vector decreases with i
		vectors[i] = []float64{1, float64(i)}
	}
	return vectors
}

func TestSelect_MostSimilar(t *testing.T) {
	set, err := Select(directions(20), 0, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set.Len() != 5 {
		t.Fatalf("expected 5 neighbors, got %d", set.Len())
	}
	want := []int{0, 1, 2, 3, 4}
	got := set.Sorted()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}
}

func TestSelect_IncludesFocal(t *testing.T) {
	vectors := directions(12)
	for focal := range vectors {
		set, err := Select(vectors, focal, 0.5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !set.Has(focal) {
			t.Errorf("neighborhood of %d does not contain it", focal)
		}
	}
}

func TestSelect_FewerThanMinimum(t *testing.T) {
	set, err := Select(directions(3), 1, 0.2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 3 {
		t.Errorf("expected all 3 points, got %d", set.Len())
	}
}

func TestSelect_TiesKeepInputOrder(t *testing.T) {
	vectors := make([][]float64, 10)
	for i := range vectors {
		vectors[i] = []float64{1, 1}
	}

	set, err := Select(vectors, 7, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if !set.Has(i) {
			t.Errorf("expected tie-broken set to hold index %d, got %v", i, set.Sorted())
		}
	}
}

func TestSelect_OutOfRange(t *testing.T) {
	for _, focal := range []int{-1, 5} {
		if _, err := Select(directions(5), focal, 0.2); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("focal %d: expected ErrIndexOutOfRange, got %v", focal, err)
		}
	}
}

func TestOpacity(t *testing.T) {
	set := NewSet(1, 3)

	if got := Opacity(set, 1); got != 1.0 {
		t.Errorf("member opacity = %v, expected 1", got)
	}
	if got := Opacity(set, 2); got != DimmedOpacity {
		t.Errorf("non-member opacity = %v, expected %v", got, DimmedOpacity)
	}
	if got := Opacity(nil, 2); got != 1.0 {
		t.Errorf("opacity without neighborhood = %v, expected 1", got)
	}
}

func TestWeights(t *testing.T) {
	sims := []float64{1, 0.5, -0.3, 0.9}
	w := Weights(sims, NewSet(0, 1, 2))

	want := []float64{1, 0.5, 0, 0}
	for i := range want {
		if w[i] != want[i] {
			t.Errorf("weight %d = %v, expected %v", i, w[i], want[i])
		}
	}
}
