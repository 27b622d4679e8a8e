package nn

import (
	"fmt"

	"github.com/deepmat-ml/deepmat/internal/conv"
	"github.com/deepmat-ml/deepmat/internal/mat"
)

// SubSampleLayer pools each feature map independently by an integer factor,
// so the number of input maps always equals the number of output maps.
// It has no learnable parameters: backpropagation is a pure pass-through
// that upsamples the output-side delta and divides by scale^2, the exact
// adjoint of the block-mean downsampling of the forward pass.
type SubSampleLayer struct {
	maps   int
	scale  int
	inSize Size
}

// NewSubSampleLayer creates a pooling layer. Returns a configuration error
// unless scale divides both input dimensions.
func NewSubSampleLayer(maps, scale int, input Size) (*SubSampleLayer, error) {
	if maps <= 0 {
		return nil, fmt.Errorf("nn: sub-sample layer needs a positive map count, got %d", maps)
	}
	if scale <= 0 || input.Rows%scale != 0 || input.Cols%scale != 0 {
		return nil, fmt.Errorf("nn: sub-sample scale %d does not divide input image %s", scale, input)
	}
	return &SubSampleLayer{maps: maps, scale: scale, inSize: input}, nil
}

// Kind names the layer type.
func (s *SubSampleLayer) Kind() string { return "subsample" }

// Scale returns the pooling factor.
func (s *SubSampleLayer) Scale() int { return s.scale }

// NumInputMaps returns the number of input feature maps.
func (s *SubSampleLayer) NumInputMaps() int { return s.maps }

// NumOutputMaps returns the number of output feature maps.
func (s *SubSampleLayer) NumOutputMaps() int { return s.maps }

// InputSize returns the per-map input image geometry.
func (s *SubSampleLayer) InputSize() Size { return s.inSize }

// OutputSize returns the per-map output image geometry.
func (s *SubSampleLayer) OutputSize() Size {
	return Size{Rows: s.inSize.Rows / s.scale, Cols: s.inSize.Cols / s.scale}
}

// FeedForward downsamples each map by block means.
func (s *SubSampleLayer) FeedForward(fins []*mat.Matrix) []*mat.Matrix {
	checkMaps(s.Kind(), "input", len(fins), s.maps)
	fouts := make([]*mat.Matrix, s.maps)
	for i, fin := range fins {
		imgs := conv.VectorsToImages(fin, s.inSize)
		outImgs := make([]*mat.Matrix, len(imgs))
		for k, img := range imgs {
			outImgs[k] = conv.Downsample(img, s.scale)
		}
		fouts[i] = conv.ImagesToVectors(outImgs)
	}
	return fouts
}

// BackPropagate upsamples each output-side delta back to input resolution
// and divides by scale^2. fins and fouts are accepted for interface
// symmetry; the layer has nothing to update.
func (s *SubSampleLayer) BackPropagate(errs, fins, fouts []*mat.Matrix, learningRate float32) []*mat.Matrix {
	checkMaps(s.Kind(), "error", len(errs), s.maps)
	outSize := s.OutputSize()
	norm := 1 / float32(s.scale*s.scale)

	errIns := make([]*mat.Matrix, s.maps)
	for i, errBatch := range errs {
		imgs := conv.VectorsToImages(errBatch, outSize)
		upImgs := make([]*mat.Matrix, len(imgs))
		for k, img := range imgs {
			up := conv.Upsample(img, s.inSize.Rows, s.inSize.Cols)
			d := up.Data()
			for n := range d {
				d[n] *= norm
			}
			upImgs[k] = up
		}
		errIns[i] = conv.ImagesToVectors(upImgs)
	}
	return errIns
}
