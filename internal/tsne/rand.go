package tsne

import (
	"math"
	"math/rand"
)

// Gaussian draws normally distributed numbers from its own seeded source.
// The polar method yields two samples per draw; the second one is kept for
// the next call.
type Gaussian struct {
	rng      *rand.Rand
	hasSpare bool
	spare    float64
}

// NewGaussian creates a generator seeded with seed
func NewGaussian(seed int64) *Gaussian {
	return &Gaussian{rng: rand.New(rand.NewSource(seed))}
}

// Next returns a sample with mean 0 and unit standard deviation
func (g *Gaussian) Next() float64 {
	if g.hasSpare {
		g.hasSpare = false
		return g.spare
	}

	var u, v, r float64
	for r == 0 || r > 1 {
		u = 2*g.rng.Float64() - 1
		v = 2*g.rng.Float64() - 1
		r = u*u + v*v
	}

	c := math.Sqrt(-2 * math.Log(r) / r)
	g.spare = v * c
	g.hasSpare = true
	return u * c
}

// Sample returns a sample with mean mu and standard deviation std
func (g *Gaussian) Sample(mu, std float64) float64 {
	return mu + g.Next()*std
}
