package tsne

import "github.com/todmy/embedscope/internal/similarity"

// GradCheck compares the analytic gradient of one coordinate with a central
// difference estimate of the cost
type GradCheck struct {
	Index     int
	Dim       int
	Analytic  float64
	Numerical float64
}

// GradientCheck evaluates every coordinate of the current solution with step
// eps. The two values only agree once early exaggeration is over and no
// focus is active, since neither term is part of the cost.
func (ts *TSNE) GradientCheck(eps float64) ([]GradCheck, error) {
	if ts.p == nil {
		return nil, ErrNotInitialized
	}
	if eps <= 0 {
		eps = 1e-5
	}

	_, grad := ts.costGrad(ts.y)
	y := similarity.Clone(ts.y)

	checks := make([]GradCheck, 0, ts.n*ts.config.Dim)
	for i := 0; i < ts.n; i++ {
		for d := 0; d < ts.config.Dim; d++ {
			old := y[i][d]

			y[i][d] = old + eps
			plus, _ := ts.costGrad(y)

			y[i][d] = old - eps
			minus, _ := ts.costGrad(y)

			y[i][d] = old

			checks = append(checks, GradCheck{
				Index:     i,
				Dim:       d,
				Analytic:  grad[i][d],
				Numerical: (plus - minus) / (2 * eps),
			})
		}
	}

	return checks, nil
}
