package conv

import (
	"fmt"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// Downsample reduces x by an integer factor using block means over
// scale x scale blocks. Panics unless scale divides both dimensions.
func Downsample(x *mat.Matrix, scale int) *mat.Matrix {
	if scale <= 0 {
		panic(fmt.Sprintf("conv: invalid downsample scale %d", scale))
	}
	xr, xc := x.Rows(), x.Cols()
	if xr%scale != 0 || xc%scale != 0 {
		panic(fmt.Sprintf("conv: downsample scale %d does not divide image %dx%d", scale, xr, xc))
	}
	out := mat.New(xr/scale, xc/scale)
	norm := 1 / float32(scale*scale)
	for j := 0; j < out.Cols(); j++ {
		for i := 0; i < out.Rows(); i++ {
			var sum float32
			for v := 0; v < scale; v++ {
				for u := 0; u < scale; u++ {
					sum += x.At(i*scale+u, j*scale+v)
				}
			}
			out.Set(i, j, sum*norm)
		}
	}
	return out
}

// Upsample expands x to rows x cols by nearest-neighbour repetition.
// Together with a division by scale^2 this is the exact adjoint of the
// block-mean Downsample: the sub-sampling layer relies on that pairing to
// redistribute gradient mass uniformly over each pooled block.
// Panics unless the target size is an integer multiple of x in both
// dimensions with a common factor.
func Upsample(x *mat.Matrix, rows, cols int) *mat.Matrix {
	xr, xc := x.Rows(), x.Cols()
	if rows%xr != 0 || cols%xc != 0 || rows/xr != cols/xc {
		panic(fmt.Sprintf("conv: cannot upsample %dx%d to %dx%d", xr, xc, rows, cols))
	}
	scale := rows / xr
	out := mat.New(rows, cols)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			out.Set(i, j, x.At(i/scale, j/scale))
		}
	}
	return out
}
