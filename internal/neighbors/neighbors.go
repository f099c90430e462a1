// Package neighbors selects the focus neighborhood of a point by cosine
// similarity in the original vector space.
package neighbors

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/todmy/embedscope/internal/similarity"
)

const (
	// MinNeighbors is the smallest neighborhood selected when enough points exist
	MinNeighbors = 5

	DefaultFraction = 0.2

	// DimmedOpacity is the opacity of points outside the neighborhood
	DimmedOpacity = 0.2
)

var ErrIndexOutOfRange = errors.New("focal index out of range")

// Set is a collection of point indices
type Set map[int]struct{}

// NewSet builds a set from indices
func NewSet(indices ...int) Set {
	s := make(Set, len(indices))
	for _, i := range indices {
		s[i] = struct{}{}
	}
	return s
}

// Has reports whether i is a member. A nil set has no members.
func (s Set) Has(i int) bool {
	_, ok := s[i]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// Sorted returns the members in ascending order
func (s Set) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Count returns how many neighbors to select out of n points for frac.
// The result is floor(frac*n) clamped to [MinNeighbors, n].
func Count(n int, frac float64) int {
	k := int(math.Floor(frac * float64(n)))
	if k < MinNeighbors {
		k = MinNeighbors
	}
	if k > n {
		k = n
	}
	return k
}

// Select returns the indices of the Count(len(vectors), frac) vectors most
// cosine-similar to vectors[focal]. Ties keep input order.
func Select(vectors [][]float64, focal int, frac float64) (Set, error) {
	if focal < 0 || focal >= len(vectors) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, focal, len(vectors))
	}

	ranked := Rank(similarity.SimilaritiesTo(vectors, focal))
	k := Count(len(vectors), frac)
	return NewSet(ranked[:k]...), nil
}

// Rank returns indices ordered by descending score with ties in index order
func Rank(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

// Opacity returns the display opacity of point i. With no neighborhood every
// point is fully opaque.
func Opacity(set Set, i int) float64 {
	if set == nil || set.Has(i) {
		return 1.0
	}
	return DimmedOpacity
}

// Weights returns focus pull weights: the similarity of each member clipped
// at zero, and zero for non-members.
func Weights(sims []float64, set Set) []float64 {
	w := make([]float64, len(sims))
	for i, s := range sims {
		if set.Has(i) && s > 0 {
			w[i] = s
		}
	}
	return w
}
