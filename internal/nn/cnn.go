package nn

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// ErrNotSupported marks operations a convolutional front-end deliberately
// lacks, such as standalone model serialization.
var ErrNotSupported = errors.New("nn: operation not supported for convolutional networks")

// Structure descriptor tokens, joined by "-": NxHxW declares a convolutional
// layer with N output maps and an HxW kernel; Ns declares a sub-sampling
// layer with scale factor N.
var (
	convTokenRe = regexp.MustCompile(`^(\d+)x(\d+)x(\d+)$`)
	poolTokenRe = regexp.MustCompile(`^(\d+)s$`)
)

// CNN is a stack of multi-input-multi-output transforms acting as the
// convolutional front-end of a classification pipeline. It consumes the
// same bias-augmented row-per-sample batches as a DNN, splitting them into
// feature maps internally.
type CNN struct {
	layers []MIMOFeatureTransform
	inMaps int
	inSize Size
	be     mat.Backend
}

// CNNForwardContext captures the per-layer, per-map activations of one
// forward pass for the paired BackPropagate call. ins[i] and outs[i] are the
// input and output map batches of layer i.
type CNNForwardContext struct {
	ins  [][]*mat.Matrix
	outs [][]*mat.Matrix
}

// NewCNN builds a convolutional stack from a structure descriptor, e.g.
// "4x5x5-2s-8x3x3-2s" on a 28x28 single-map input. Layer geometry is
// propagated token by token; an unparsable token or an infeasible geometry
// yields an error naming the offending token.
func NewCNN(input Size, nInputMaps int, structure string, variance float32, be mat.Backend) (*CNN, error) {
	if nInputMaps <= 0 {
		return nil, fmt.Errorf("nn: cnn needs a positive input map count, got %d", nInputMaps)
	}
	if input.Rows <= 0 || input.Cols <= 0 {
		return nil, fmt.Errorf("nn: cnn needs a positive input image size, got %s", input)
	}

	cnn := &CNN{inMaps: nInputMaps, inSize: input, be: be}
	maps, size := nInputMaps, input
	for _, token := range strings.Split(structure, "-") {
		switch {
		case convTokenRe.MatchString(token):
			m := convTokenRe.FindStringSubmatch(token)
			nOut, _ := strconv.Atoi(m[1])
			kr, _ := strconv.Atoi(m[2])
			kc, _ := strconv.Atoi(m[3])
			layer, err := NewConvLayer(maps, nOut, Size{Rows: kr, Cols: kc}, size, variance, be)
			if err != nil {
				return nil, fmt.Errorf("nn: structure token %q: %w", token, err)
			}
			cnn.layers = append(cnn.layers, layer)
			maps, size = nOut, layer.OutputSize()
		case poolTokenRe.MatchString(token):
			m := poolTokenRe.FindStringSubmatch(token)
			scale, _ := strconv.Atoi(m[1])
			layer, err := NewSubSampleLayer(maps, scale, size)
			if err != nil {
				return nil, fmt.Errorf("nn: structure token %q: %w", token, err)
			}
			cnn.layers = append(cnn.layers, layer)
			size = layer.OutputSize()
		default:
			return nil, fmt.Errorf("nn: unrecognized structure token %q (want NxHxW or Ns)", token)
		}
	}
	if len(cnn.layers) == 0 {
		return nil, fmt.Errorf("nn: empty structure descriptor %q", structure)
	}
	return cnn, nil
}

// Layers exposes the layer stack.
func (c *CNN) Layers() []MIMOFeatureTransform { return c.layers }

// NumInputMaps returns the number of input feature maps.
func (c *CNN) NumInputMaps() int { return c.inMaps }

// NumOutputMaps returns the number of feature maps emitted by the last layer.
func (c *CNN) NumOutputMaps() int { return c.layers[len(c.layers)-1].NumOutputMaps() }

// InputSize returns the per-map input image geometry.
func (c *CNN) InputSize() Size { return c.inSize }

// OutputSize returns the per-map output image geometry of the last layer.
func (c *CNN) OutputSize() Size { return c.layers[len(c.layers)-1].OutputSize() }

// InputDim returns the flattened input width without the bias term.
func (c *CNN) InputDim() int { return c.inMaps * c.inSize.Area() }

// OutputDim returns the flattened output width without the bias term. This
// is the input dimension the downstream DNN must declare.
func (c *CNN) OutputDim() int { return c.NumOutputMaps() * c.OutputSize().Area() }

// FeedForward consumes a bias-augmented batch (one sample per row, feature
// maps concatenated column-wise), runs the layer stack and returns the
// bias-augmented concatenation of the output maps, plus the context for the
// paired BackPropagate call.
func (c *CNN) FeedForward(fin *mat.Matrix) (*mat.Matrix, *CNNForwardContext) {
	if fin.Cols() != c.InputDim()+1 {
		panic(fmt.Sprintf("nn: cnn: input has %d columns, want %d maps of %s plus bias",
			fin.Cols(), c.inMaps, c.inSize))
	}
	cur := mat.SplitCols(fin.DropLastCol(), c.inMaps)

	ctx := &CNNForwardContext{
		ins:  make([][]*mat.Matrix, len(c.layers)),
		outs: make([][]*mat.Matrix, len(c.layers)),
	}
	for i, l := range c.layers {
		ctx.ins[i] = cur
		cur = l.FeedForward(cur)
		ctx.outs[i] = cur
	}
	return mat.ConcatCols(cur...).AddBiasCol(), ctx
}

// BackPropagate folds the bias-augmented error signal from the downstream
// network right to left through the layer stack, applying each learnable
// layer's fused update at the given rate, and returns the error at the raw
// input (bias column stripped, maps concatenated).
func (c *CNN) BackPropagate(errSig *mat.Matrix, ctx *CNNForwardContext, learningRate float32) *mat.Matrix {
	if len(ctx.ins) != len(c.layers) {
		panic(fmt.Sprintf("nn: cnn: forward context covers %d layers, want %d", len(ctx.ins), len(c.layers)))
	}
	if errSig.Cols() != c.OutputDim()+1 {
		panic(fmt.Sprintf("nn: cnn: error signal has %d columns, want %d", errSig.Cols(), c.OutputDim()+1))
	}
	cur := mat.SplitCols(errSig.DropLastCol(), c.NumOutputMaps())
	for i := len(c.layers) - 1; i >= 0; i-- {
		cur = c.layers[i].BackPropagate(cur, ctx.ins[i], ctx.outs[i], learningRate)
	}
	return mat.ConcatCols(cur...)
}

// Save is not implemented for convolutional networks.
func (c *CNN) Save(path string) error {
	return fmt.Errorf("saving %s: %w", path, ErrNotSupported)
}

// Read is not implemented for convolutional networks.
func (c *CNN) Read(path string) error {
	return fmt.Errorf("reading %s: %w", path, ErrNotSupported)
}

// FeedBackward (top-down generative reconstruction) is not implemented for
// convolutional networks.
func (c *CNN) FeedBackward(fout *mat.Matrix) (*mat.Matrix, error) {
	return nil, ErrNotSupported
}

func (c *CNN) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cnn %dx%s", c.inMaps, c.inSize)
	for _, l := range c.layers {
		fmt.Fprintf(&sb, " -> %s %dx%s", l.Kind(), l.NumOutputMaps(), l.OutputSize())
	}
	return sb.String()
}
