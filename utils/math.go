package utils

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// RowMean averages the given rows of an (N, D) float64 tensor.
func RowMean(t *tensor.Dense, rows ...int) ([]float64, error) {
	shape := t.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("expected a 2D tensor, got shape: %v", shape)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to average")
	}
	n, d := shape[0], shape[1]
	data := t.Float64s()
	mean := make([]float64, d)
	for _, r := range rows {
		if r < 0 || r >= n {
			return nil, fmt.Errorf("row %d out of range for %d rows", r, n)
		}
		floats.Add(mean, data[r*d:(r+1)*d])
	}
	floats.Scale(1/float64(len(rows)), mean)
	return mean, nil
}

// L2Norm returns the Euclidean length of v.
func L2Norm(v []float64) float64 {
	return floats.Norm(v, 2)
}
