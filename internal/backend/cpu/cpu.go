// Package cpu implements the mat.Backend interface with plain Go loops.
//
// This is the reference backend: every kernel walks the column-major data
// directly. Float32 transcendentals come from chewxy/math32 to avoid
// float64 round-trips in the elementwise hot loops.
package cpu

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// Backend computes on the host CPU.
type Backend struct{}

// New creates a CPU backend.
func New() *Backend { return &Backend{} }

// Device reports mat.CPU.
func (b *Backend) Device() mat.Device { return mat.CPU }

func opDims(trans bool, m *mat.Matrix) (rows, cols int) {
	if trans {
		return m.Cols(), m.Rows()
	}
	return m.Rows(), m.Cols()
}

func opAt(trans bool, m *mat.Matrix, r, c int) float32 {
	if trans {
		return m.At(c, r)
	}
	return m.At(r, c)
}

// Gemm computes C = alpha*op(A)*op(B) + beta*C.
func (b *Backend) Gemm(transA, transB bool, alpha float32, a, bm *mat.Matrix, beta float32, c *mat.Matrix) {
	m, k := opDims(transA, a)
	k2, n := opDims(transB, bm)
	if k != k2 {
		panic(fmt.Sprintf("cpu: gemm: inner dimension mismatch: op(A) is %dx%d, op(B) is %dx%d", m, k, k2, n))
	}
	if c.Rows() != m || c.Cols() != n {
		panic(fmt.Sprintf("cpu: gemm: C is %dx%d, want %dx%d", c.Rows(), c.Cols(), m, n))
	}
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			var sum float32
			for l := 0; l < k; l++ {
				sum += opAt(transA, a, i, l) * opAt(transB, bm, l, j)
			}
			c.Set(i, j, alpha*sum+beta*c.At(i, j))
		}
	}
}

// Geam computes C = alpha*op(A) + beta*op(B).
func (b *Backend) Geam(transA, transB bool, alpha float32, a *mat.Matrix, beta float32, bm *mat.Matrix, c *mat.Matrix) {
	m, n := opDims(transA, a)
	if bm != nil {
		bmR, bmC := opDims(transB, bm)
		if bmR != m || bmC != n {
			panic(fmt.Sprintf("cpu: geam: op(A) is %dx%d, op(B) is %dx%d", m, n, bmR, bmC))
		}
	}
	if c.Rows() != m || c.Cols() != n {
		panic(fmt.Sprintf("cpu: geam: C is %dx%d, want %dx%d", c.Rows(), c.Cols(), m, n))
	}
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			v := alpha * opAt(transA, a, i, j)
			if bm != nil && beta != 0 {
				v += beta * opAt(transB, bm, i, j)
			}
			c.Set(i, j, v)
		}
	}
}

// Mul computes the elementwise product C = A .* B.
func (b *Backend) Mul(a, bm, c *mat.Matrix) {
	mat.CheckSameShape("mul", a, bm)
	mat.CheckSameShape("mul", a, c)
	ad, bd, cd := a.Data(), bm.Data(), c.Data()
	for i := range cd {
		cd[i] = ad[i] * bd[i]
	}
}

// Scale multiplies A by alpha in place.
func (b *Backend) Scale(alpha float32, a *mat.Matrix) {
	ad := a.Data()
	for i := range ad {
		ad[i] *= alpha
	}
}

// Fill sets every element of A to v.
func (b *Backend) Fill(a *mat.Matrix, v float32) {
	ad := a.Data()
	for i := range ad {
		ad[i] = v
	}
}

// Sigmoid computes B = 1/(1+exp(-A)) elementwise.
func (b *Backend) Sigmoid(a, bm *mat.Matrix) {
	mat.CheckSameShape("sigmoid", a, bm)
	ad, bd := a.Data(), bm.Data()
	for i := range bd {
		bd[i] = 1 / (1 + math32.Exp(-ad[i]))
	}
}

// SigmoidGrad computes delta = err .* fout .* (1 - fout).
func (b *Backend) SigmoidGrad(fout, err, delta *mat.Matrix) {
	mat.CheckSameShape("sigmoidGrad", fout, err)
	mat.CheckSameShape("sigmoidGrad", fout, delta)
	fd, ed, dd := fout.Data(), err.Data(), delta.Data()
	for i := range dd {
		dd[i] = ed[i] * fd[i] * (1 - fd[i])
	}
}

// SoftmaxRows computes a max-shifted softmax over each row of A.
func (b *Backend) SoftmaxRows(a, bm *mat.Matrix) {
	mat.CheckSameShape("softmaxRows", a, bm)
	rows, cols := a.Rows(), a.Cols()
	for r := 0; r < rows; r++ {
		maxv := a.At(r, 0)
		for c := 1; c < cols; c++ {
			if v := a.At(r, c); v > maxv {
				maxv = v
			}
		}
		var sum float32
		for c := 0; c < cols; c++ {
			e := math32.Exp(a.At(r, c) - maxv)
			bm.Set(r, c, e)
			sum += e
		}
		for c := 0; c < cols; c++ {
			bm.Set(r, c, bm.At(r, c)/sum)
		}
	}
}
