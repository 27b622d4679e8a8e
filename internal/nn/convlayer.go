package nn

import (
	"fmt"

	"github.com/deepmat-ml/deepmat/internal/conv"
	"github.com/deepmat-ml/deepmat/internal/mat"
)

// ConvLayer is a convolutional feature transform: an n x m grid of kernels
// mapping n input maps to m output maps under valid-mode cross-correlation,
// plus one bias per output map and a sigmoid nonlinearity.
type ConvLayer struct {
	kernels [][]*mat.Matrix // [input map][output map]
	bias    []float32

	nInputs  int
	nOutputs int
	inSize   Size
	outSize  Size

	be mat.Backend
}

// NewConvLayer creates a convolutional layer with kernel entries drawn from
// N(0, variance^2) and zero biases. Returns a configuration error if the
// kernel does not fit the input geometry.
func NewConvLayer(nInputs, nOutputs int, kernel, input Size, variance float32, be mat.Backend) (*ConvLayer, error) {
	if nInputs <= 0 || nOutputs <= 0 {
		return nil, fmt.Errorf("nn: conv layer needs positive map counts, got %d -> %d", nInputs, nOutputs)
	}
	if kernel.Rows > input.Rows || kernel.Cols > input.Cols {
		return nil, fmt.Errorf("nn: conv kernel %s exceeds input image %s", kernel, input)
	}

	kernels := make([][]*mat.Matrix, nInputs)
	for i := range kernels {
		kernels[i] = make([]*mat.Matrix, nOutputs)
		for j := range kernels[i] {
			kernels[i][j] = mat.Randn(kernel.Rows, kernel.Cols, variance)
		}
	}

	return &ConvLayer{
		kernels:  kernels,
		bias:     make([]float32, nOutputs),
		nInputs:  nInputs,
		nOutputs: nOutputs,
		inSize:   input,
		outSize:  conv.OutputSize(input, kernel, conv.Valid),
		be:       be,
	}, nil
}

// Kind names the layer type.
func (c *ConvLayer) Kind() string { return "convolution" }

// NumInputMaps returns the number of input feature maps.
func (c *ConvLayer) NumInputMaps() int { return c.nInputs }

// NumOutputMaps returns the number of output feature maps.
func (c *ConvLayer) NumOutputMaps() int { return c.nOutputs }

// InputSize returns the per-map input image geometry.
func (c *ConvLayer) InputSize() Size { return c.inSize }

// OutputSize returns the per-map output image geometry.
func (c *ConvLayer) OutputSize() Size { return c.outSize }

// Kernel returns kernel (i, j), mapping input map i to output map j.
func (c *ConvLayer) Kernel(i, j int) *mat.Matrix { return c.kernels[i][j] }

// Bias returns the bias of output map j.
func (c *ConvLayer) Bias(j int) float32 { return c.bias[j] }

// FeedForward cross-correlates every input map against its kernel column,
// accumulates per output map, adds the map bias and applies the sigmoid.
func (c *ConvLayer) FeedForward(fins []*mat.Matrix) []*mat.Matrix {
	checkMaps(c.Kind(), "input", len(fins), c.nInputs)
	nData := fins[0].Rows()

	inImgs := make([][]*mat.Matrix, c.nInputs)
	for i, fin := range fins {
		inImgs[i] = conv.VectorsToImages(fin, c.inSize)
	}

	fouts := make([]*mat.Matrix, c.nOutputs)
	for j := 0; j < c.nOutputs; j++ {
		outImgs := make([]*mat.Matrix, nData)
		for k := 0; k < nData; k++ {
			acc := mat.New(c.outSize.Rows, c.outSize.Cols)
			for i := 0; i < c.nInputs; i++ {
				addInto(acc, conv.Correlate(inImgs[i][k], c.kernels[i][j], conv.Valid))
			}
			addScalarInto(acc, c.bias[j])
			outImgs[k] = acc
		}
		fout := conv.ImagesToVectors(outImgs)
		c.be.Sigmoid(fout, fout)
		fouts[j] = fout
	}
	return fouts
}

// BackPropagate converts the incoming per-map error into local deltas via
// the sigmoid derivative, propagates the input-side error as a full-mode
// convolution of each delta with the corresponding kernel summed over
// output maps, and applies the fused kernel/bias gradient update
// (kernel -= lr/batch * gradient) in the same pass. The weight gradient is
// the valid-mode correlation of the input image against the delta image,
// matching the cross-correlation forward pass.
func (c *ConvLayer) BackPropagate(errs, fins, fouts []*mat.Matrix, learningRate float32) []*mat.Matrix {
	checkMaps(c.Kind(), "error", len(errs), c.nOutputs)
	checkMaps(c.Kind(), "input", len(fins), c.nInputs)
	checkMaps(c.Kind(), "output", len(fouts), c.nOutputs)
	nData := fins[0].Rows()

	// Local deltas per output map, as images.
	deltaImgs := make([][]*mat.Matrix, c.nOutputs)
	for j := 0; j < c.nOutputs; j++ {
		delta := mat.New(errs[j].Rows(), errs[j].Cols())
		c.be.SigmoidGrad(fouts[j], errs[j], delta)
		deltaImgs[j] = conv.VectorsToImages(delta, c.outSize)
	}

	inImgs := make([][]*mat.Matrix, c.nInputs)
	for i, fin := range fins {
		inImgs[i] = conv.VectorsToImages(fin, c.inSize)
	}

	// Input-side error: full-mode convolution undoes the valid-mode
	// cross-correlation of the forward pass.
	errIns := make([]*mat.Matrix, c.nInputs)
	for i := 0; i < c.nInputs; i++ {
		errImgs := make([]*mat.Matrix, nData)
		for k := 0; k < nData; k++ {
			acc := mat.New(c.inSize.Rows, c.inSize.Cols)
			for j := 0; j < c.nOutputs; j++ {
				addInto(acc, conv.Convolve(deltaImgs[j][k], c.kernels[i][j], conv.Full))
			}
			errImgs[k] = acc
		}
		errIns[i] = conv.ImagesToVectors(errImgs)
	}

	// Fused gradient + update, averaged over the batch.
	step := learningRate / float32(nData)
	for i := 0; i < c.nInputs; i++ {
		for j := 0; j < c.nOutputs; j++ {
			grad := mat.New(c.kernels[i][j].Rows(), c.kernels[i][j].Cols())
			for k := 0; k < nData; k++ {
				addInto(grad, conv.Correlate(inImgs[i][k], deltaImgs[j][k], conv.Valid))
			}
			c.be.Geam(false, false, 1, c.kernels[i][j], -step, grad, c.kernels[i][j])
		}
	}
	for j := 0; j < c.nOutputs; j++ {
		var biasGrad float32
		for k := 0; k < nData; k++ {
			for _, v := range deltaImgs[j][k].Data() {
				biasGrad += v
			}
		}
		c.bias[j] -= step * biasGrad
	}

	return errIns
}

func addInto(dst, src *mat.Matrix) {
	mat.CheckSameShape("addInto", dst, src)
	dd, sd := dst.Data(), src.Data()
	for i := range dd {
		dd[i] += sd[i]
	}
}

func addScalarInto(dst *mat.Matrix, v float32) {
	dd := dst.Data()
	for i := range dd {
		dd[i] += v
	}
}
