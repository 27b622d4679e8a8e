package nn

import (
	"github.com/deepmat-ml/deepmat/internal/mat"
)

// Softmax is an affine map whose output nonlinearity normalizes each
// sample into a probability distribution over the class columns. It is the
// usual terminal layer of a classification DNN.
type Softmax struct {
	Affine
}

// NewSoftmax creates a softmax layer mapping inDim to outDim features.
func NewSoftmax(inDim, outDim int, variance float32, be mat.Backend) *Softmax {
	return &Softmax{Affine: Affine{
		w:  initWeights(inDim+1, outDim+1, variance),
		dw: mat.New(inDim+1, outDim+1),
		be: be,
	}}
}

// NewSoftmaxFromWeights wraps an existing [(din+1) x (dout+1)] weight
// matrix. The layer takes ownership of w.
func NewSoftmaxFromWeights(w *mat.Matrix, be mat.Backend) *Softmax {
	return &Softmax{Affine: Affine{
		w:  w,
		dw: mat.New(w.Rows(), w.Cols()),
		be: be,
	}}
}

// Kind returns the serialization tag.
func (s *Softmax) Kind() string { return KindSoftmax }

// Clone returns a deep copy.
func (s *Softmax) Clone() FeatureTransform {
	return &Softmax{Affine: Affine{
		w:             s.w.Clone(),
		dw:            s.dw.Clone(),
		isOutputLayer: s.isOutputLayer,
		be:            s.be,
	}}
}

// FeedForward computes the affine map, then normalizes each sample over
// the class columns with a max-shifted softmax. The reserved bias column
// is excluded from the normalization and refilled with 1s.
func (s *Softmax) FeedForward(fin *mat.Matrix) *mat.Matrix {
	checkForwardShapes(s.Kind(), fin, s.w)
	z := mat.New(fin.Rows(), s.w.Cols())
	s.be.Gemm(false, false, 1, fin, s.w, 0, z)
	probs := z.DropLastCol()
	s.be.SoftmaxRows(probs, probs)
	return probs.AddBiasCol()
}

// BackPropagate converts the downstream error signal into this layer's
// local delta through the softmax Jacobian,
//
//	delta_c = p_c * (err_c - sum_k err_k * p_k),
//
// then performs the same linear-gradient math as Affine. For the terminal
// layer under the cross-entropy measure (err = -target/p) this reduces
// analytically to the classic out - target delta.
func (s *Softmax) BackPropagate(fin, fout, errSig *mat.Matrix) *mat.Matrix {
	checkBackwardShapes(s.Kind(), fin, fout, errSig, s.w)
	nData := fin.Rows()
	classes := s.w.Cols() - 1

	delta := mat.New(errSig.Rows(), errSig.Cols())
	for r := 0; r < nData; r++ {
		var dot float32
		for c := 0; c < classes; c++ {
			dot += errSig.At(r, c) * fout.At(r, c)
		}
		for c := 0; c < classes; c++ {
			p := fout.At(r, c)
			delta.Set(r, c, p*(errSig.At(r, c)-dot))
		}
		// Reserved bias column carries no error.
		delta.Set(r, classes, 0)
	}
	return s.linearBackProp(fin, delta)
}
