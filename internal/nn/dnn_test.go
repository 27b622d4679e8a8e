package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepmat-ml/deepmat/internal/backend/cpu"
	"github.com/deepmat-ml/deepmat/internal/mat"
)

func testConfig(measure ErrorMeasure) Config {
	return Config{LearningRate: 0.1, Variance: 0.1, Measure: measure}
}

// TestNewDNN_LayerStack tests constructed layer kinds and dimensions.
func TestNewDNN_LayerStack(t *testing.T) {
	be := cpu.New()
	d, err := NewDNN([]int{5, 8, 3}, testConfig(MeasureCrossEntropy), be)
	require.NoError(t, err)
	require.Len(t, d.Layers(), 2)

	assert.Equal(t, KindSigmoid, d.Layers()[0].Kind())
	assert.Equal(t, KindSoftmax, d.Layers()[1].Kind())
	assert.Equal(t, 5, d.InputDim())
	assert.Equal(t, 3, d.OutputDim())

	out, ok := d.Layers()[1].(*Softmax)
	require.True(t, ok)
	assert.True(t, out.IsOutputLayer())

	_, err = NewDNN([]int{5}, testConfig(MeasureL2), be)
	require.Error(t, err)
	_, err = NewDNN([]int{5, 0, 3}, testConfig(MeasureL2), be)
	require.Error(t, err)
}

// TestDNN_SoftmaxOutputIsDistribution tests that a [3,4,2] network maps a
// batch of 5 to per-sample class distributions summing to 1.
func TestDNN_SoftmaxOutputIsDistribution(t *testing.T) {
	be := cpu.New()
	d, err := NewDNN([]int{3, 4, 2}, testConfig(MeasureCrossEntropy), be)
	require.NoError(t, err)

	fin := mat.Randn(5, 3, 1).AddBiasCol()
	fout, ctx := d.FeedForward(fin)

	require.Equal(t, 5, fout.Rows())
	require.Equal(t, 3, fout.Cols()) // 2 classes + bias
	for r := 0; r < 5; r++ {
		sum := fout.At(r, 0) + fout.At(r, 1)
		assert.InDelta(t, 1.0, float64(sum), 1e-6)
		assert.Equal(t, float32(1), fout.At(r, 2))
	}
	assert.Same(t, fout, ctx.Output())
}

// TestDNN_GetErrorL2 tests the L2 error signal fout - target.
func TestDNN_GetErrorL2(t *testing.T) {
	be := cpu.New()
	d, err := NewDNN([]int{2, 2}, testConfig(MeasureL2), be)
	require.NoError(t, err)

	fout := mat.FromRows([][]float32{{0.7, 0.3, 1}})
	target := OneHot([]int{0}, 2)
	errSig := d.GetError(fout, target)

	assert.InDelta(t, -0.3, float64(errSig.At(0, 0)), 1e-6)
	assert.InDelta(t, 0.3, float64(errSig.At(0, 1)), 1e-6)
	// Both bias columns are 1, so the bias error vanishes.
	assert.InDelta(t, 0, float64(errSig.At(0, 2)), 1e-6)
}

// TestDNN_GetErrorCrossEntropy tests -target/p with the saturation clamp.
func TestDNN_GetErrorCrossEntropy(t *testing.T) {
	be := cpu.New()
	d, err := NewDNN([]int{2, 2}, testConfig(MeasureCrossEntropy), be)
	require.NoError(t, err)

	fout := mat.FromRows([][]float32{{0.5, 0.5, 1}})
	target := OneHot([]int{1}, 2)
	errSig := d.GetError(fout, target)

	assert.InDelta(t, 0, float64(errSig.At(0, 0)), 1e-6)
	assert.InDelta(t, -2, float64(errSig.At(0, 1)), 1e-6)
	assert.InDelta(t, 0, float64(errSig.At(0, 2)), 1e-6)

	// A saturated zero probability must clamp, not diverge.
	fout2 := mat.FromRows([][]float32{{1, 0, 1}})
	errSig2 := d.GetError(fout2, target)
	assert.InDelta(t, -1/1e-7, float64(errSig2.At(0, 1)), 1e2)
}

// TestSoftmax_CrossEntropyDeltaReducesToOutMinusTarget tests that the
// softmax Jacobian applied to the cross-entropy error signal accumulates
// the classic fin^T*(fout-target)/n gradient.
func TestSoftmax_CrossEntropyDeltaReducesToOutMinusTarget(t *testing.T) {
	be := cpu.New()
	d, err := NewDNN([]int{3, 2}, testConfig(MeasureCrossEntropy), be)
	require.NoError(t, err)
	out := d.Layers()[0].(*Softmax)

	fin := mat.Randn(4, 3, 1).AddBiasCol()
	fout, ctx := d.FeedForward(fin)
	target := OneHot([]int{0, 1, 1, 0}, 2)

	errSig := d.GetError(fout, target)
	d.BackPropagate(errSig, ctx)

	// Expected gradient from the analytic reduction.
	diff := mat.New(4, 3)
	be.Geam(false, false, 1, fout, -1, target, diff)
	want := mat.New(fin.Cols(), 3)
	be.Gemm(true, false, 0.25, fin, diff, 0, want)

	for i, v := range want.Data() {
		assert.InDelta(t, float64(v), float64(out.Dw().Data()[i]), 1e-4)
	}
}

// TestDNN_BackPropagateReturnsInputError tests the input-side error shape
// consumed by an upstream convolutional front-end.
func TestDNN_BackPropagateReturnsInputError(t *testing.T) {
	be := cpu.New()
	d, err := NewDNN([]int{6, 4, 3}, testConfig(MeasureCrossEntropy), be)
	require.NoError(t, err)

	fin := mat.Randn(2, 6, 1).AddBiasCol()
	fout, ctx := d.FeedForward(fin)
	errSig := d.GetError(fout, OneHot([]int{0, 2}, 3))

	errIn := d.BackPropagate(errSig, ctx)
	assert.Equal(t, 2, errIn.Rows())
	assert.Equal(t, 7, errIn.Cols())
}

// TestDNN_TrainingReducesLoss tests that a few full-batch steps on a
// linearly separable toy problem improve accuracy.
func TestDNN_TrainingReducesLoss(t *testing.T) {
	be := cpu.New()
	d, err := NewDNN([]int{2, 6, 2}, Config{LearningRate: 0.5, Variance: 0.5, Measure: MeasureCrossEntropy}, be)
	require.NoError(t, err)

	// Class 0 in the lower-left quadrant, class 1 upper-right.
	fin := mat.FromRows([][]float32{
		{-1, -1, 1},
		{-2, -1, 1},
		{-1, -2, 1},
		{1, 1, 1},
		{2, 1, 1},
		{1, 2, 1},
	})
	labels := []int{0, 0, 0, 1, 1, 1}
	target := OneHot(labels, 2)

	for step := 0; step < 200; step++ {
		fout, ctx := d.FeedForward(fin)
		errSig := d.GetError(fout, target)
		d.BackPropagate(errSig, ctx)
		d.Update(0.5)
	}

	acc := Accuracy(d.Predict(fin), labels)
	assert.Equal(t, float32(1), acc)
}

// TestOneHot_Encoding tests the bias-augmented target layout.
func TestOneHot_Encoding(t *testing.T) {
	target := OneHot([]int{1, 0}, 3)
	require.Equal(t, 2, target.Rows())
	require.Equal(t, 4, target.Cols())
	assert.Equal(t, float32(1), target.At(0, 1))
	assert.Equal(t, float32(0), target.At(0, 0))
	assert.Equal(t, float32(1), target.At(1, 0))
	assert.Equal(t, float32(1), target.At(0, 3))

	assert.Panics(t, func() { OneHot([]int{3}, 3) })
}

// TestAccuracy_Argmax tests argmax scoring over a posterior matrix and the
// exact integer count it is built on.
func TestAccuracy_Argmax(t *testing.T) {
	// [classes x samples]
	posteriors := mat.FromRows([][]float32{
		{0.9, 0.2, 0.4},
		{0.1, 0.8, 0.6},
	})
	labels := []int{0, 1, 0}
	assert.Equal(t, 2, CountCorrect(posteriors, labels))
	assert.InDelta(t, 2.0/3.0, float64(Accuracy(posteriors, labels)), 1e-6)

	assert.Panics(t, func() { CountCorrect(posteriors, []int{0, 1}) })
}
