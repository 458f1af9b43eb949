package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

func TestMatToCHWTensor(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 51, 0, 0), 2, 3, gocv.MatTypeCV8UC3)
	defer img.Close()

	out, err := MatToCHWTensor(img, 1.0/255)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3, 2, 3}, out.Shape())

	data := out.Float32s()
	for i := 0; i < 6; i++ {
		assert.InDelta(t, 1.0, data[i], 1e-6)
		assert.InDelta(t, 0.2, data[6+i], 1e-6)
		assert.InDelta(t, 0.0, data[12+i], 1e-6)
	}
}

func TestMatToCHWTensor_Empty(t *testing.T) {
	img := gocv.NewMat()
	defer img.Close()

	_, err := MatToCHWTensor(img, 1)
	assert.ErrorIs(t, err, ErrEmptyImage)
}
