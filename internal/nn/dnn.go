package nn

import (
	"fmt"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// ErrorMeasure selects the training objective.
type ErrorMeasure string

// Supported objectives.
const (
	MeasureL2           ErrorMeasure = "l2"
	MeasureCrossEntropy ErrorMeasure = "cross-entropy"
)

// ceClampEps floors softmax outputs inside the cross-entropy gradient so a
// saturated probability never divides to infinity.
const ceClampEps = 1e-7

// Config carries the training hyperparameters of a DNN.
type Config struct {
	LearningRate float32
	Variance     float32
	Measure      ErrorMeasure
}

// ForwardContext captures every activation of one forward pass so the paired
// backward pass can consume exactly the inputs and outputs that produced the
// error signal. activations[0] is the network input, activations[i] the
// output of layer i-1.
type ForwardContext struct {
	activations []*mat.Matrix
}

// Output returns the final activation of the pass.
func (c *ForwardContext) Output() *mat.Matrix {
	return c.activations[len(c.activations)-1]
}

// DNN is a stack of single-input-single-output feature transforms trained
// with full-batch gradient descent. The terminal layer of a freshly built
// network is a softmax classifier.
type DNN struct {
	layers []FeatureTransform
	cfg    Config
	be     mat.Backend
}

// NewDNN builds a network from the dimension chain dims: dims[0] input
// features, dims[len-1] output classes, sigmoid-affine layers in between and
// a softmax layer last.
func NewDNN(dims []int, cfg Config, be mat.Backend) (*DNN, error) {
	if len(dims) < 2 {
		return nil, fmt.Errorf("nn: a network needs at least input and output dimensions, got %v", dims)
	}
	for _, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("nn: non-positive layer dimension in %v", dims)
		}
	}

	layers := make([]FeatureTransform, 0, len(dims)-1)
	for i := 0; i < len(dims)-2; i++ {
		layers = append(layers, NewAffine(dims[i], dims[i+1], cfg.Variance, be))
	}
	out := NewSoftmax(dims[len(dims)-2], dims[len(dims)-1], cfg.Variance, be)
	out.SetOutputLayer(true)
	layers = append(layers, out)

	return &DNN{layers: layers, cfg: cfg, be: be}, nil
}

// NewDNNFromLayers wraps an existing layer stack, e.g. one read back from a
// model file.
func NewDNNFromLayers(layers []FeatureTransform, cfg Config, be mat.Backend) (*DNN, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("nn: empty layer stack")
	}
	for i := 0; i < len(layers)-1; i++ {
		if layers[i].OutputDim() != layers[i+1].InputDim() {
			return nil, fmt.Errorf("nn: layer %d outputs %d features but layer %d expects %d",
				i, layers[i].OutputDim(), i+1, layers[i+1].InputDim())
		}
	}
	return &DNN{layers: layers, cfg: cfg, be: be}, nil
}

// Layers exposes the layer stack.
func (d *DNN) Layers() []FeatureTransform { return d.layers }

// Config returns the training configuration.
func (d *DNN) Config() Config { return d.cfg }

// InputDim returns the input feature count without the bias term.
func (d *DNN) InputDim() int {
	if len(d.layers) == 0 {
		panic("nn: empty network has no input dimension")
	}
	return d.layers[0].InputDim()
}

// OutputDim returns the output feature count without the bias term.
func (d *DNN) OutputDim() int {
	if len(d.layers) == 0 {
		panic("nn: empty network has no output dimension")
	}
	return d.layers[len(d.layers)-1].OutputDim()
}

// FeedForward runs one full forward pass over a bias-augmented batch
// (one sample per row) and returns the terminal activation together with
// the context required by the paired BackPropagate call.
func (d *DNN) FeedForward(fin *mat.Matrix) (*mat.Matrix, *ForwardContext) {
	ctx := &ForwardContext{activations: make([]*mat.Matrix, 0, len(d.layers)+1)}
	ctx.activations = append(ctx.activations, fin)
	cur := fin
	for _, l := range d.layers {
		cur = l.FeedForward(cur)
		ctx.activations = append(ctx.activations, cur)
	}
	return cur, ctx
}

// GetError derives the output-side error signal from the network output and
// the bias-augmented one-hot target batch.
//
// Under the L2 measure the error is fout - target; under cross-entropy it is
// -target/max(fout, eps) over the class columns, which the terminal softmax
// layer's Jacobian then collapses to the classic fout - target delta.
func (d *DNN) GetError(fout, target *mat.Matrix) *mat.Matrix {
	mat.CheckSameShape("GetError", fout, target)
	errSig := mat.New(fout.Rows(), fout.Cols())

	switch d.cfg.Measure {
	case MeasureCrossEntropy:
		classes := fout.Cols() - 1
		for r := 0; r < fout.Rows(); r++ {
			for c := 0; c < classes; c++ {
				p := fout.At(r, c)
				if p < ceClampEps {
					p = ceClampEps
				}
				errSig.Set(r, c, -target.At(r, c)/p)
			}
		}
		// Bias column carries no error by construction (left zero).
	default:
		d.be.Geam(false, false, 1, fout, -1, target, errSig)
	}
	return errSig
}

// BackPropagate folds the error signal right to left through the layer
// stack, accumulating each layer's gradient, and returns the error
// propagated to the network input (consumed by an upstream CNN, if any).
func (d *DNN) BackPropagate(errSig *mat.Matrix, ctx *ForwardContext) *mat.Matrix {
	if len(ctx.activations) != len(d.layers)+1 {
		panic(fmt.Sprintf("nn: forward context has %d activations, want %d",
			len(ctx.activations), len(d.layers)+1))
	}
	cur := errSig
	for i := len(d.layers) - 1; i >= 0; i-- {
		cur = d.layers[i].BackPropagate(ctx.activations[i], ctx.activations[i+1], cur)
	}
	return cur
}

// Update applies one gradient-descent step to every layer at the given rate.
func (d *DNN) Update(learningRate float32) {
	for _, l := range d.layers {
		l.Update(learningRate)
	}
}

// Predict runs a forward pass and returns the class posteriors as a
// [classes x samples] matrix, bias trimmed.
func (d *DNN) Predict(fin *mat.Matrix) *mat.Matrix {
	fout, _ := d.FeedForward(fin)
	return fout.DropLastCol().Transpose()
}

// OneHot encodes labels as a bias-augmented [len(labels) x (classes+1)]
// target batch: row r has a 1 in column labels[r] and in the bias column.
func OneHot(labels []int, classes int) *mat.Matrix {
	t := mat.New(len(labels), classes+1)
	for r, l := range labels {
		if l < 0 || l >= classes {
			panic(fmt.Sprintf("nn: label %d out of range [0, %d)", l, classes))
		}
		t.Set(r, l, 1)
	}
	t.FillLastCol(1)
	return t
}

// CountCorrect counts argmax predictions from a [classes x samples]
// posterior matrix that match the true labels. The integer form lets
// callers aggregate exactly across batches.
func CountCorrect(posteriors *mat.Matrix, labels []int) int {
	if posteriors.Cols() != len(labels) {
		panic(fmt.Sprintf("nn: %d posterior columns vs %d labels", posteriors.Cols(), len(labels)))
	}
	correct := 0
	for c := 0; c < posteriors.Cols(); c++ {
		best, bestV := 0, posteriors.At(0, c)
		for r := 1; r < posteriors.Rows(); r++ {
			if v := posteriors.At(r, c); v > bestV {
				best, bestV = r, v
			}
		}
		if best == labels[c] {
			correct++
		}
	}
	return correct
}

// Accuracy scores argmax predictions from a [classes x samples] posterior
// matrix against the true labels.
func Accuracy(posteriors *mat.Matrix, labels []int) float32 {
	return float32(CountCorrect(posteriors, labels)) / float32(len(labels))
}
