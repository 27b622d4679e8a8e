package mat

import "fmt"

// Backend defines the compute interface the training engine runs on.
// Implementations:
//   - backend/cpu: straight loops over the column-major data
//   - backend/webgpu: WGSL compute shaders via go-webgpu
//
// All operations are synchronous: when a call returns, the result matrix
// holds the final values and the next dependent operation may start. Shape
// mismatches are precondition violations and panic.
type Backend interface {
	// Device reports where this backend computes.
	Device() Device

	// Gemm computes C = alpha*op(A)*op(B) + beta*C, where op transposes
	// its argument when the corresponding flag is set. C must not alias
	// A or B.
	Gemm(transA, transB bool, alpha float32, a, b *Matrix, beta float32, c *Matrix)

	// Geam computes C = alpha*op(A) + beta*op(B). With beta == 0 this is a
	// scaled copy or device transpose; with transposes off, C may alias A
	// or B, which makes it the in-place axpy used by parameter updates.
	Geam(transA, transB bool, alpha float32, a *Matrix, beta float32, b *Matrix, c *Matrix)

	// Mul computes the elementwise product C = A .* B. C may alias A or B.
	Mul(a, b, c *Matrix)

	// Scale multiplies A by alpha in place.
	Scale(alpha float32, a *Matrix)

	// Fill sets every element of A to v.
	Fill(a *Matrix, v float32)

	// Sigmoid computes B = 1/(1+exp(-A)) elementwise. B may alias A.
	Sigmoid(a, b *Matrix)

	// SigmoidGrad computes the fused local-delta product
	// delta = err .* fout .* (1 - fout). delta may alias err.
	SigmoidGrad(fout, err, delta *Matrix)

	// SoftmaxRows computes a max-shifted softmax independently over each
	// row of A (one sample per row). B may alias A.
	SoftmaxRows(a, b *Matrix)
}

// CheckSameShape panics unless a and b have identical dimensions.
// op names the caller in the panic message.
func CheckSameShape(op string, a, b *Matrix) {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		panic(fmt.Sprintf("mat: %s: shape mismatch: %dx%d vs %dx%d",
			op, a.Rows(), a.Cols(), b.Rows(), b.Cols()))
	}
}
