package nn

import (
	"fmt"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// Affine is a bias-augmented linear map followed by a sigmoid nonlinearity.
//
// The weight matrix W is [(din+1) x (dout+1)] with the bias row last; the
// gradient matrix dW always matches W's shape. The forward pass computes
// sigmoid(fin * W) and refills the output's bias column with 1s.
type Affine struct {
	w  *mat.Matrix
	dw *mat.Matrix

	isOutputLayer bool
	be            mat.Backend
}

// NewAffine creates an affine layer mapping inDim to outDim features, with
// weights drawn from N(0, variance^2) and the reserved last column zeroed.
func NewAffine(inDim, outDim int, variance float32, be mat.Backend) *Affine {
	return &Affine{
		w:  initWeights(inDim+1, outDim+1, variance),
		dw: mat.New(inDim+1, outDim+1),
		be: be,
	}
}

// NewAffineFromWeights wraps an existing [(din+1) x (dout+1)] weight matrix.
// The layer takes ownership of w.
func NewAffineFromWeights(w *mat.Matrix, be mat.Backend) *Affine {
	return &Affine{
		w:  w,
		dw: mat.New(w.Rows(), w.Cols()),
		be: be,
	}
}

// Kind returns the serialization tag.
func (a *Affine) Kind() string { return KindSigmoid }

// InputDim returns the input dimension without the bias term.
func (a *Affine) InputDim() int { return a.w.Rows() - 1 }

// OutputDim returns the output dimension without the bias term.
func (a *Affine) OutputDim() int { return a.w.Cols() - 1 }

// W returns the weight matrix.
func (a *Affine) W() *mat.Matrix { return a.w }

// Dw returns the gradient accumulator.
func (a *Affine) Dw() *mat.Matrix { return a.dw }

// SetOutputLayer marks this layer as the pipeline's terminal layer.
func (a *Affine) SetOutputLayer(flag bool) { a.isOutputLayer = flag }

// IsOutputLayer reports whether this is the terminal layer.
func (a *Affine) IsOutputLayer() bool { return a.isOutputLayer }

// Resize reallocates W and dW to rows x cols. No partial state survives:
// both matrices come back zero-filled.
func (a *Affine) Resize(rows, cols int) {
	a.w = mat.New(rows, cols)
	a.dw = mat.New(rows, cols)
}

// Clone returns a deep copy.
func (a *Affine) Clone() FeatureTransform {
	return &Affine{
		w:             a.w.Clone(),
		dw:            a.dw.Clone(),
		isOutputLayer: a.isOutputLayer,
		be:            a.be,
	}
}

// FeedForward computes fout = sigmoid(fin * W) with the bias column
// refilled with 1s for the next layer.
func (a *Affine) FeedForward(fin *mat.Matrix) *mat.Matrix {
	checkForwardShapes(a.Kind(), fin, a.w)
	fout := mat.New(fin.Rows(), a.w.Cols())
	a.be.Gemm(false, false, 1, fin, a.w, 0, fout)
	a.be.Sigmoid(fout, fout)
	fout.FillLastCol(1)
	return fout
}

// BackPropagate accumulates dW from the downstream error signal and returns
// the error propagated to this layer's input.
//
// The local delta is errSig .* fout .* (1-fout); the bias column zeroes
// itself because the forward pass pinned fout's last column to 1. The
// weight gradient is fin^T * delta, averaged over the batch, and the
// returned error is delta * W^T.
func (a *Affine) BackPropagate(fin, fout, errSig *mat.Matrix) *mat.Matrix {
	checkBackwardShapes(a.Kind(), fin, fout, errSig, a.w)
	delta := mat.New(errSig.Rows(), errSig.Cols())
	a.be.SigmoidGrad(fout, errSig, delta)
	return a.linearBackProp(fin, delta)
}

// linearBackProp performs the shared linear-gradient math: accumulate
// dW = fin^T * delta / batch and return delta * W^T.
func (a *Affine) linearBackProp(fin, delta *mat.Matrix) *mat.Matrix {
	nData := fin.Rows()
	a.be.Gemm(true, false, 1/float32(nData), fin, delta, 0, a.dw)
	errOut := mat.New(nData, a.w.Rows())
	a.be.Gemm(false, true, 1, delta, a.w, 0, errOut)
	return errOut
}

// Update applies one gradient-descent step: W -= learningRate * dW.
func (a *Affine) Update(learningRate float32) {
	a.be.Geam(false, false, 1, a.w, -learningRate, a.dw, a.w)
}

func (a *Affine) String() string {
	return fmt.Sprintf("%s %d -> %d", a.Kind(), a.InputDim(), a.OutputDim())
}
