package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// TestRot180_FlipsBothAxes tests the kernel rotation.
func TestRot180_FlipsBothAxes(t *testing.T) {
	k := mat.FromRows([][]float32{
		{1, 2},
		{3, 4},
	})
	r := Rot180(k)
	assert.Equal(t, float32(4), r.At(0, 0))
	assert.Equal(t, float32(3), r.At(0, 1))
	assert.Equal(t, float32(2), r.At(1, 0))
	assert.Equal(t, float32(1), r.At(1, 1))

	// Rotating twice is the identity.
	assert.Equal(t, k.Data(), Rot180(r).Data())
}

// TestCorrelate_ValidKnownValues tests valid-mode correlation by hand.
func TestCorrelate_ValidKnownValues(t *testing.T) {
	x := mat.FromRows([][]float32{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})
	k := mat.FromRows([][]float32{
		{1, 0},
		{0, 1},
	})
	out := Correlate(x, k, Valid)
	require.Equal(t, 2, out.Rows())
	require.Equal(t, 2, out.Cols())
	// out(i,j) = x(i,j) + x(i+1,j+1)
	assert.Equal(t, float32(6), out.At(0, 0))
	assert.Equal(t, float32(8), out.At(0, 1))
	assert.Equal(t, float32(12), out.At(1, 0))
	assert.Equal(t, float32(14), out.At(1, 1))

	assert.Panics(t, func() {
		Correlate(k, x, Valid)
	})
}

// TestCorrelate_FullPadsToGrow tests full-mode geometry and border values.
func TestCorrelate_FullPadsToGrow(t *testing.T) {
	x := mat.FromRows([][]float32{
		{1, 2},
		{3, 4},
	})
	k := mat.FromRows([][]float32{
		{1, 1},
		{1, 1},
	})
	out := Correlate(x, k, Full)
	require.Equal(t, 3, out.Rows())
	require.Equal(t, 3, out.Cols())
	assert.Equal(t, float32(1), out.At(0, 0))
	assert.Equal(t, float32(10), out.At(1, 1))
	assert.Equal(t, float32(4), out.At(2, 2))
}

// TestConvolve_IsCorrelateWithRotatedKernel tests the defining identity.
func TestConvolve_IsCorrelateWithRotatedKernel(t *testing.T) {
	x := mat.Randn(6, 7, 1)
	k := mat.Randn(3, 2, 1)

	for _, mode := range []Mode{Valid, Full} {
		conv := Convolve(x, k, mode)
		corr := Correlate(x, Rot180(k), mode)
		require.Equal(t, corr.Rows(), conv.Rows())
		for i, v := range corr.Data() {
			assert.InDelta(t, v, conv.Data()[i], 1e-5)
		}
	}
}

// TestModeDuality tests the flip duality between the two primitives:
// rot180(correlate(rot180(x), h, valid)) == correlate(x, rot180(h), valid),
// i.e. rotating the image commutes with rotating the kernel. Both sides
// equal Convolve(x, h, Valid), which is asserted as well.
func TestModeDuality(t *testing.T) {
	x := mat.Randn(8, 8, 1)
	h := mat.Randn(3, 3, 1)

	left := Rot180(Correlate(Rot180(x), h, Valid))
	right := Correlate(x, Rot180(h), Valid)
	require.Equal(t, right.Rows(), left.Rows())
	require.Equal(t, right.Cols(), left.Cols())
	for i, v := range right.Data() {
		assert.InDelta(t, v, left.Data()[i], 1e-4)
	}

	conv := Convolve(x, h, Valid)
	for i, v := range right.Data() {
		assert.InDelta(t, v, conv.Data()[i], 1e-4)
	}
}

// TestOutputSize tests the geometry arithmetic for both modes.
func TestOutputSize(t *testing.T) {
	in := Size{Rows: 10, Cols: 12}
	k := Size{Rows: 5, Cols: 3}
	assert.Equal(t, Size{Rows: 6, Cols: 10}, OutputSize(in, k, Valid))
	assert.Equal(t, Size{Rows: 14, Cols: 14}, OutputSize(in, k, Full))
}

// TestDownsample_BlockMeans tests block-mean pooling values.
func TestDownsample_BlockMeans(t *testing.T) {
	x := mat.FromRows([][]float32{
		{1, 2, 5, 6},
		{3, 4, 7, 8},
		{0, 0, 1, 1},
		{0, 0, 1, 1},
	})
	out := Downsample(x, 2)
	require.Equal(t, 2, out.Rows())
	assert.InDelta(t, 2.5, out.At(0, 0), 1e-6)
	assert.InDelta(t, 6.5, out.At(0, 1), 1e-6)
	assert.InDelta(t, 0.0, out.At(1, 0), 1e-6)
	assert.InDelta(t, 1.0, out.At(1, 1), 1e-6)

	assert.Panics(t, func() { Downsample(x, 3) })
}

// TestUpsample_RepeatsBlocks tests nearest-neighbour expansion.
func TestUpsample_RepeatsBlocks(t *testing.T) {
	x := mat.FromRows([][]float32{
		{1, 2},
		{3, 4},
	})
	out := Upsample(x, 4, 4)
	assert.Equal(t, float32(1), out.At(0, 0))
	assert.Equal(t, float32(1), out.At(1, 1))
	assert.Equal(t, float32(2), out.At(0, 2))
	assert.Equal(t, float32(4), out.At(3, 3))

	assert.Panics(t, func() { Upsample(x, 4, 6) })
}

// TestDownUpsample_Adjointness tests
// <Downsample(x), y> == <x, Upsample(y)/scale^2>.
func TestDownUpsample_Adjointness(t *testing.T) {
	const scale = 2
	x := mat.Randn(6, 6, 1)
	y := mat.Randn(3, 3, 1)

	down := Downsample(x, scale)
	var lhs float32
	for i, v := range down.Data() {
		lhs += v * y.Data()[i]
	}

	up := Upsample(y, 6, 6)
	var rhs float32
	for i, v := range up.Data() {
		rhs += v * x.Data()[i] / (scale * scale)
	}

	assert.InDelta(t, lhs, rhs, 1e-4)
}
