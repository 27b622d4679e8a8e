package conv

import (
	"fmt"

	"github.com/deepmat-ml/deepmat/internal/mat"
)

// VectorsToImages splits a batch matrix (one flattened image per row,
// column-major flattening) into one s.Rows x s.Cols image per sample.
// Inverse of ImagesToVectors.
func VectorsToImages(batch *mat.Matrix, s Size) []*mat.Matrix {
	if batch.Cols() != s.Area() {
		panic(fmt.Sprintf("conv: batch has %d columns, want %d for %s images", batch.Cols(), s.Area(), s))
	}
	nData := batch.Rows()
	images := make([]*mat.Matrix, nData)
	for k := 0; k < nData; k++ {
		img := mat.New(s.Rows, s.Cols)
		d := img.Data()
		for i := range d {
			d[i] = batch.At(k, i)
		}
		images[k] = img
	}
	return images
}

// ImagesToVectors flattens a list of equally-sized images back into a batch
// matrix with one image per row. Inverse of VectorsToImages.
func ImagesToVectors(images []*mat.Matrix) *mat.Matrix {
	if len(images) == 0 {
		panic("conv: ImagesToVectors requires at least one image")
	}
	rows, cols := images[0].Rows(), images[0].Cols()
	batch := mat.New(len(images), rows*cols)
	for k, img := range images {
		if img.Rows() != rows || img.Cols() != cols {
			panic(fmt.Sprintf("conv: image %d is %dx%d, want %dx%d", k, img.Rows(), img.Cols(), rows, cols))
		}
		d := img.Data()
		for i, v := range d {
			batch.Set(k, i, v)
		}
	}
	return batch
}
