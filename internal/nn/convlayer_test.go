package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepmat-ml/deepmat/internal/backend/cpu"
	"github.com/deepmat-ml/deepmat/internal/conv"
	"github.com/deepmat-ml/deepmat/internal/mat"
)

// TestConvLayer_ForwardKnownValues tests one sample, one map and a known
// kernel against a hand-computed correlation.
func TestConvLayer_ForwardKnownValues(t *testing.T) {
	be := cpu.New()
	layer, err := NewConvLayer(1, 1, Size{Rows: 2, Cols: 2}, Size{Rows: 3, Cols: 3}, 0, be)
	require.NoError(t, err)

	// Zero-variance init gives zero kernels; install a known one.
	k := layer.Kernel(0, 0)
	k.Set(0, 0, 1)
	k.Set(1, 1, 1)

	img := mat.FromRows([][]float32{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})
	fin := conv.ImagesToVectors([]*mat.Matrix{img})
	fouts := layer.FeedForward([]*mat.Matrix{fin})
	require.Len(t, fouts, 1)
	require.Equal(t, 4, fouts[0].Cols())

	// Correlation values are {6, 8, 12, 14}; output is their sigmoid.
	want := conv.Correlate(img, k, conv.Valid)
	out := conv.VectorsToImages(fouts[0], Size{Rows: 2, Cols: 2})[0]
	for c := 0; c < 2; c++ {
		for r := 0; r < 2; r++ {
			exp := 1 / (1 + math.Exp(-float64(want.At(r, c))))
			assert.InDelta(t, exp, float64(out.At(r, c)), 1e-6)
		}
	}
}

// TestConvLayer_MultiMapAccumulation tests that output maps sum over all
// input maps before the nonlinearity.
func TestConvLayer_MultiMapAccumulation(t *testing.T) {
	be := cpu.New()
	layer, err := NewConvLayer(2, 1, Size{Rows: 1, Cols: 1}, Size{Rows: 2, Cols: 2}, 0, be)
	require.NoError(t, err)
	layer.Kernel(0, 0).Set(0, 0, 1)
	layer.Kernel(1, 0).Set(0, 0, 1)

	a := mat.FromRows([][]float32{{1, 2, 3, 4}})
	b := mat.FromRows([][]float32{{10, 20, 30, 40}})
	fouts := layer.FeedForward([]*mat.Matrix{a, b})

	// 1x1 identity kernels: pre-activation is a+b elementwise.
	for i := 0; i < 4; i++ {
		exp := 1 / (1 + math.Exp(-float64(a.Data()[i]+b.Data()[i])))
		assert.InDelta(t, exp, float64(fouts[0].Data()[i]), 1e-6)
	}
}

// TestConvLayer_BackPropagate tests backward geometry and that zero error
// leaves the parameters unchanged.
func TestConvLayer_BackPropagate(t *testing.T) {
	be := cpu.New()
	layer, err := NewConvLayer(1, 2, Size{Rows: 3, Cols: 3}, Size{Rows: 6, Cols: 6}, 0.1, be)
	require.NoError(t, err)

	fin := mat.Randn(2, 36, 1)
	fouts := layer.FeedForward([]*mat.Matrix{fin})
	require.Len(t, fouts, 2)
	require.Equal(t, 16, fouts[0].Cols())

	before := layer.Kernel(0, 1).Clone()
	biasBefore := layer.Bias(1)

	zero := []*mat.Matrix{mat.New(2, 16), mat.New(2, 16)}
	errIns := layer.BackPropagate(zero, []*mat.Matrix{fin}, fouts, 0.5)
	require.Len(t, errIns, 1)
	assert.Equal(t, 36, errIns[0].Cols())

	assert.Equal(t, before.Data(), layer.Kernel(0, 1).Data())
	assert.Equal(t, biasBefore, layer.Bias(1))
}

// convLayerLoss sums every output activation of a forward pass. With an
// all-ones error signal the backward pass computes exactly this loss's
// gradient, which makes it the reference for the finite-difference checks.
func convLayerLoss(layer *ConvLayer, fin *mat.Matrix) float64 {
	fouts := layer.FeedForward([]*mat.Matrix{fin})
	var sum float64
	for _, fout := range fouts {
		for _, v := range fout.Data() {
			sum += float64(v)
		}
	}
	return sum
}

// TestConvLayer_KernelGradientMatchesFiniteDifference tests the fused
// kernel update against central finite differences of the summed output.
func TestConvLayer_KernelGradientMatchesFiniteDifference(t *testing.T) {
	be := cpu.New()
	layer, err := NewConvLayer(1, 1, Size{Rows: 2, Cols: 2}, Size{Rows: 4, Cols: 4}, 0.3, be)
	require.NoError(t, err)

	nData := 2
	fin := mat.Randn(nData, 16, 1)
	k := layer.Kernel(0, 0)

	const eps = 1e-2
	fd := make([]float64, k.Size())
	for i := range k.Data() {
		orig := k.Data()[i]
		k.Data()[i] = orig + eps
		plus := convLayerLoss(layer, fin)
		k.Data()[i] = orig - eps
		minus := convLayerLoss(layer, fin)
		k.Data()[i] = orig
		fd[i] = (plus - minus) / (2 * eps)
	}

	fouts := layer.FeedForward([]*mat.Matrix{fin})
	ones := mat.New(nData, 9)
	be.Fill(ones, 1)
	before := k.Clone()
	// lr = nData makes the update step exactly the batch-summed gradient.
	layer.BackPropagate([]*mat.Matrix{ones}, []*mat.Matrix{fin}, fouts, float32(nData))

	for i, want := range fd {
		grad := float64(before.Data()[i] - k.Data()[i])
		assert.InDelta(t, want, grad, 5e-2)
	}
}

// TestConvLayer_InputErrorMatchesFiniteDifference tests the full-mode
// input-side error against central finite differences of the summed output.
func TestConvLayer_InputErrorMatchesFiniteDifference(t *testing.T) {
	be := cpu.New()
	layer, err := NewConvLayer(1, 2, Size{Rows: 2, Cols: 2}, Size{Rows: 4, Cols: 4}, 0.3, be)
	require.NoError(t, err)

	fin := mat.Randn(1, 16, 1)
	fouts := layer.FeedForward([]*mat.Matrix{fin})

	ones := []*mat.Matrix{mat.New(1, 9), mat.New(1, 9)}
	be.Fill(ones[0], 1)
	be.Fill(ones[1], 1)
	errIns := layer.BackPropagate(ones, []*mat.Matrix{fin}, fouts, 0)

	const eps = 1e-2
	for i := range fin.Data() {
		orig := fin.Data()[i]
		fin.Data()[i] = orig + eps
		plus := convLayerLoss(layer, fin)
		fin.Data()[i] = orig - eps
		minus := convLayerLoss(layer, fin)
		fin.Data()[i] = orig
		assert.InDelta(t, (plus-minus)/(2*eps), float64(errIns[0].Data()[i]), 5e-2)
	}
}

// TestNewConvLayer_ConfigErrors tests the geometry validation.
func TestNewConvLayer_ConfigErrors(t *testing.T) {
	be := cpu.New()
	_, err := NewConvLayer(1, 1, Size{Rows: 5, Cols: 5}, Size{Rows: 4, Cols: 4}, 0.1, be)
	require.Error(t, err)
	_, err = NewConvLayer(0, 1, Size{Rows: 2, Cols: 2}, Size{Rows: 4, Cols: 4}, 0.1, be)
	require.Error(t, err)
}

// TestSubSampleLayer_ForwardBackward tests pooling values and the scaled
// pass-through gradient.
func TestSubSampleLayer_ForwardBackward(t *testing.T) {
	layer, err := NewSubSampleLayer(1, 2, Size{Rows: 4, Cols: 4})
	require.NoError(t, err)
	assert.Equal(t, Size{Rows: 2, Cols: 2}, layer.OutputSize())

	img := mat.FromRows([][]float32{
		{1, 1, 2, 2},
		{1, 1, 2, 2},
		{3, 3, 4, 4},
		{3, 3, 4, 4},
	})
	fin := conv.ImagesToVectors([]*mat.Matrix{img})
	fouts := layer.FeedForward([]*mat.Matrix{fin})
	out := conv.VectorsToImages(fouts[0], Size{Rows: 2, Cols: 2})[0]
	assert.Equal(t, float32(1), out.At(0, 0))
	assert.Equal(t, float32(4), out.At(1, 1))

	// A unit error on one pooled cell spreads 1/4 over its block.
	errOut := mat.New(1, 4)
	errOut.Set(0, 0, 1)
	errIns := layer.BackPropagate([]*mat.Matrix{errOut}, []*mat.Matrix{fin}, fouts, 0.1)
	errImg := conv.VectorsToImages(errIns[0], Size{Rows: 4, Cols: 4})[0]
	assert.InDelta(t, 0.25, float64(errImg.At(0, 0)), 1e-6)
	assert.InDelta(t, 0.25, float64(errImg.At(1, 1)), 1e-6)
	assert.InDelta(t, 0, float64(errImg.At(0, 2)), 1e-6)

	_, err = NewSubSampleLayer(1, 3, Size{Rows: 4, Cols: 4})
	require.Error(t, err)
}
