package optimizer

import "gonum.org/v1/gonum/floats"

// Normalize returns a copy of coords with every dimension scaled into
// [-1, 1]. A dimension with no spread maps to 0.
func Normalize(coords [][]float64) [][]float64 {
	if len(coords) == 0 {
		return coords
	}

	dims := len(coords[0])
	column := make([]float64, len(coords))
	lo := make([]float64, dims)
	span := make([]float64, dims)
	for d := 0; d < dims; d++ {
		for i, c := range coords {
			column[i] = c[d]
		}
		lo[d] = floats.Min(column)
		span[d] = floats.Max(column) - lo[d]
	}

	out := make([][]float64, len(coords))
	for i, c := range coords {
		out[i] = make([]float64, dims)
		for d := 0; d < dims; d++ {
			if span[d] == 0 {
				continue
			}
			out[i][d] = 2*(c[d]-lo[d])/span[d] - 1
		}
	}
	return out
}
