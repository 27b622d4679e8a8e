// Package nn implements the layered neural-network computation engine:
// single-input-single-output feature transforms (affine, softmax), their
// multi-input-multi-output image-aware counterparts (convolutional,
// sub-sampling), and the DNN/CNN pipelines that orchestrate full-batch
// forward passes, error backpropagation and parameter updates on top of
// the mat substrate.
//
// Conventions threaded through every layer:
//
//   - Activation matrices are row-per-sample with a trailing constant-1
//     bias column. Every layer's output emerges bias-augmented; the final
//     consumer strips the last column.
//   - Weight matrices are [(din+1) x (dout+1)]: the last row is the bias
//     row, the last column is reserved, kept zero at initialization and
//     never read.
//   - Shape mismatches are precondition violations and panic; they are
//     never silently truncated.
//
// Instances are not safe for concurrent use: a forward pass, its paired
// backward pass and the following update require exclusive access.
package nn

import (
	"fmt"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// Layer kind tags. These double as the type tags of the model file format.
const (
	KindSigmoid = "sigmoid"
	KindSoftmax = "softmax"
)

// FeatureTransform is one single-input-single-output layer of a DNN.
//
// FeedForward consumes a bias-augmented batch (one sample per row) and
// produces the bias-augmented activation for the next layer. BackPropagate
// consumes the cached forward input/output pair together with the
// downstream error signal, accumulates this layer's weight gradient and
// returns the error signal propagated to the layer's input. Update applies
// one plain gradient-descent step and must only run after a BackPropagate
// pass populated the gradient for the current batch.
type FeatureTransform interface {
	FeedForward(fin *mat.Matrix) *mat.Matrix
	BackPropagate(fin, fout, errSig *mat.Matrix) *mat.Matrix
	Update(learningRate float32)

	// Kind returns the serialization tag of the layer type.
	Kind() string
	// InputDim and OutputDim report dimensions without the bias term.
	InputDim() int
	OutputDim() int

	// Clone returns a deep copy with freshly allocated weight and
	// gradient matrices.
	Clone() FeatureTransform
}

func checkForwardShapes(kind string, fin, w *mat.Matrix) {
	if fin.Cols() != w.Rows() {
		panic(fmt.Sprintf("nn: %s: input has %d columns (incl. bias), weights expect %d",
			kind, fin.Cols(), w.Rows()))
	}
}

func checkBackwardShapes(kind string, fin, fout, errSig, w *mat.Matrix) {
	if fin.Rows() != fout.Rows() || fin.Rows() != errSig.Rows() {
		panic(fmt.Sprintf("nn: %s: batch size mismatch: fin %d, fout %d, error %d rows",
			kind, fin.Rows(), fout.Rows(), errSig.Rows()))
	}
	if fin.Cols() != w.Rows() || fout.Cols() != w.Cols() || errSig.Cols() != w.Cols() {
		panic(fmt.Sprintf("nn: %s: shape mismatch: fin %dx%d, fout %dx%d, error %dx%d, weights %dx%d",
			kind, fin.Rows(), fin.Cols(), fout.Rows(), fout.Cols(),
			errSig.Rows(), errSig.Cols(), w.Rows(), w.Cols()))
	}
}
