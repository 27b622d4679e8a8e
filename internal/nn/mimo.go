package nn

import (
	"fmt"

	"github.com/deepmat-ml/deepmat/internal/conv"
	"github.com/deepmat-ml/deepmat/internal/mat"
)

// Size is the spatial extent of one feature map, propagated layer to layer:
// a convolutional layer shrinks it by (kernel-1) under valid mode, a
// sub-sampling layer divides it by its scale factor.
type Size = conv.Size

// MIMOFeatureTransform is one multi-input-multi-output, image-aware layer
// of a CNN. The slice arguments carry one batch matrix per feature map
// (one flattened image per row).
//
// BackPropagate both returns the input-side error signals and, for layers
// with learnable parameters, applies the fused gradient update at the given
// learning rate. It must be called with the exact fins/fouts produced by
// the matching FeedForward call.
type MIMOFeatureTransform interface {
	FeedForward(fins []*mat.Matrix) []*mat.Matrix
	BackPropagate(errs, fins, fouts []*mat.Matrix, learningRate float32) []*mat.Matrix

	NumInputMaps() int
	NumOutputMaps() int
	InputSize() Size
	OutputSize() Size

	// Kind names the layer type for diagnostics.
	Kind() string
}

func checkMaps(kind, arg string, got, want int) {
	if got != want {
		panic(fmt.Sprintf("nn: %s: %s has %d feature maps, want %d", kind, arg, got, want))
	}
}
