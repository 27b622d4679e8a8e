package nn

import (
	"github.com/deepmat-ml/deepmat/internal/mat"
)

// initWeights draws a rows x cols weight matrix from N(0, stddev^2) and
// zeroes the reserved last column.
func initWeights(rows, cols int, stddev float32) *mat.Matrix {
	w := mat.Randn(rows, cols, stddev)
	w.FillLastCol(0)
	return w
}
