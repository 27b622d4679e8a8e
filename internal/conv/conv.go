// Package conv provides the 2-D convolution primitives and image reshape
// utilities the convolutional layers are built from.
//
// Images are small host matrices (one feature map of one sample); the batch
// representation used between layers is a matrix with one flattened image
// per row. Convolution and cross-correlation are related by a 180-degree
// kernel rotation: Convolve(x, k, mode) == Correlate(x, Rot180(k), mode).
// Getting that rotation wrong produces plausible-looking but incorrect
// gradients, so both primitives are exposed and tested against each other.
package conv

import (
	"fmt"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// Size is the spatial extent of one feature map.
type Size struct {
	Rows, Cols int
}

// Area returns Rows*Cols.
func (s Size) Area() int { return s.Rows * s.Cols }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Rows, s.Cols) }

// Mode selects the output geometry of a convolution.
type Mode int

const (
	// Valid keeps only fully-overlapping positions: output shrinks by
	// (kernel-1) in each dimension.
	Valid Mode = iota
	// Full zero-pads the image so every partial overlap contributes:
	// output grows by (kernel-1) in each dimension.
	Full
)

// Rot180 returns the kernel rotated by 180 degrees.
func Rot180(k *mat.Matrix) *mat.Matrix {
	rows, cols := k.Rows(), k.Cols()
	out := mat.New(rows, cols)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			out.Set(rows-1-r, cols-1-c, k.At(r, c))
		}
	}
	return out
}

// Correlate computes the 2-D cross-correlation of x with kernel k:
// out(i,j) = sum_{u,v} x(i+u, j+v) * k(u,v), with the offsets implied by
// mode. Panics if a valid-mode kernel exceeds the image.
func Correlate(x, k *mat.Matrix, mode Mode) *mat.Matrix {
	xr, xc := x.Rows(), x.Cols()
	kr, kc := k.Rows(), k.Cols()

	switch mode {
	case Valid:
		if kr > xr || kc > xc {
			panic(fmt.Sprintf("conv: valid-mode kernel %dx%d exceeds image %dx%d", kr, kc, xr, xc))
		}
		out := mat.New(xr-kr+1, xc-kc+1)
		for j := 0; j < out.Cols(); j++ {
			for i := 0; i < out.Rows(); i++ {
				var sum float32
				for v := 0; v < kc; v++ {
					for u := 0; u < kr; u++ {
						sum += x.At(i+u, j+v) * k.At(u, v)
					}
				}
				out.Set(i, j, sum)
			}
		}
		return out

	case Full:
		out := mat.New(xr+kr-1, xc+kc-1)
		for j := 0; j < out.Cols(); j++ {
			for i := 0; i < out.Rows(); i++ {
				var sum float32
				for v := 0; v < kc; v++ {
					for u := 0; u < kr; u++ {
						ir := i + u - (kr - 1)
						ic := j + v - (kc - 1)
						if ir >= 0 && ir < xr && ic >= 0 && ic < xc {
							sum += x.At(ir, ic) * k.At(u, v)
						}
					}
				}
				out.Set(i, j, sum)
			}
		}
		return out

	default:
		panic(fmt.Sprintf("conv: unknown mode %d", mode))
	}
}

// Convolve computes the true 2-D convolution of x with kernel k
// (kernel flipped in both dimensions).
func Convolve(x, k *mat.Matrix, mode Mode) *mat.Matrix {
	return Correlate(x, Rot180(k), mode)
}

// OutputSize returns the spatial size a mode-m pass produces for image in
// and kernel k.
func OutputSize(in, k Size, mode Mode) Size {
	switch mode {
	case Valid:
		return Size{in.Rows - k.Rows + 1, in.Cols - k.Cols + 1}
	case Full:
		return Size{in.Rows + k.Rows - 1, in.Cols + k.Cols - 1}
	default:
		panic(fmt.Sprintf("conv: unknown mode %d", mode))
	}
}
