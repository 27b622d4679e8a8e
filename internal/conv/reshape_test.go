package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// TestVectorsToImages_RoundTrip tests that the reshape pair is an inverse.
func TestVectorsToImages_RoundTrip(t *testing.T) {
	batch := mat.Randn(3, 12, 1)
	imgs := VectorsToImages(batch, Size{Rows: 3, Cols: 4})
	require.Len(t, imgs, 3)
	require.Equal(t, 3, imgs[0].Rows())
	require.Equal(t, 4, imgs[0].Cols())

	back := ImagesToVectors(imgs)
	assert.Equal(t, batch.Data(), back.Data())
}

// TestVectorsToImages_ShapeChecks tests the precondition panics.
func TestVectorsToImages_ShapeChecks(t *testing.T) {
	batch := mat.Randn(2, 10, 1)
	assert.Panics(t, func() {
		VectorsToImages(batch, Size{Rows: 3, Cols: 4})
	})
	assert.Panics(t, func() {
		ImagesToVectors([]*mat.Matrix{mat.New(2, 2), mat.New(2, 3)})
	})
}
