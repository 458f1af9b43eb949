package modules

import (
	"fmt"

	"github.com/okieraised/go-face3d-pipeline/utils"
	"gorgonia.org/tensor"
)

// Zero-based indices into the 68-point scheme.
const (
	idxNoseTip        = 30
	idxLeftEyeOuter   = 36
	idxLeftEyeInner   = 39
	idxRightEyeInner  = 42
	idxRightEyeOuter  = 45
	idxMouthLeft      = 48
	idxMouthRight     = 54
	denseLandmarkSize = 68
)

// ReduceLandmarks maps an (N, D) landmark tensor onto the 5 canonical points
// {left eye, right eye, nose, mouth left, mouth right}. Eyes are the mean of their two corners.
// A 5-row input is returned unchanged and must already be in canonical order. Any other row
// count than 5 or 68 is rejected since the indices only hold for the 68-point scheme.
func ReduceLandmarks(lm *tensor.Dense) (*tensor.Dense, error) {
	shape := lm.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("%w: expected (n, d), got %v", ErrLandmarkShape, shape)
	}
	n, d := shape[0], shape[1]
	if n == 5 {
		return lm, nil
	}
	if n != denseLandmarkSize {
		return nil, fmt.Errorf("%w: need 5 or %d points, got %d", ErrLandmarkShape, denseLandmarkSize, n)
	}

	leftEye, err := utils.RowMean(lm, idxLeftEyeOuter, idxLeftEyeInner)
	if err != nil {
		return nil, err
	}
	rightEye, err := utils.RowMean(lm, idxRightEyeInner, idxRightEyeOuter)
	if err != nil {
		return nil, err
	}
	nose, err := utils.RowMean(lm, idxNoseTip)
	if err != nil {
		return nil, err
	}
	mouthLeft, err := utils.RowMean(lm, idxMouthLeft)
	if err != nil {
		return nil, err
	}
	mouthRight, err := utils.RowMean(lm, idxMouthRight)
	if err != nil {
		return nil, err
	}

	backing := make([]float64, 0, 5*d)
	for _, p := range [][]float64{leftEye, rightEye, nose, mouthLeft, mouthRight} {
		backing = append(backing, p...)
	}
	return tensor.New(
		tensor.Of(tensor.Float64),
		tensor.WithShape(5, d),
		tensor.WithBacking(backing),
	), nil
}
