package modules

import (
	"testing"

	"github.com/okieraised/go-face3d-pipeline/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

func TestReconstructionClient_Postprocess(t *testing.T) {
	client := &ReconstructionClient{ModelParams: config.DefaultReconstructionParams}

	coeffs := make([]float32, 257)
	for i := range coeffs {
		coeffs[i] = float32(i)
	}
	lm := make([]float32, 68*2)
	for i := range lm {
		lm[i] = float32(i) / 2
	}
	outputs := map[string]*tensor.Dense{
		"coeffs":  f32Tensor([]int{1, 257}, coeffs...),
		"pred_lm": f32Tensor([]int{1, 68, 2}, lm...),
	}

	out, err := client.postprocess(outputs)
	require.NoError(t, err)
	assert.Len(t, out.Coefficients, 6)
	assert.Len(t, out.Coefficients["id"], 80)
	assert.Len(t, out.Coefficients["gamma"], 27)
	assert.Equal(t, []float32{224, 225, 226}, out.Coefficients["angle"])
	assert.Equal(t, []float32{254, 255, 256}, out.Coefficients["trans"])

	require.NotNil(t, out.Landmarks)
	assert.Equal(t, 68, out.Landmarks.Len())
	assert.Equal(t, config.CartesianConvention, out.Landmarks.Convention)
}

func TestReconstructionClient_PostprocessErrors(t *testing.T) {
	client := &ReconstructionClient{ModelParams: config.DefaultReconstructionParams}

	_, err := client.postprocess(map[string]*tensor.Dense{})
	assert.Error(t, err)

	_, err = client.postprocess(map[string]*tensor.Dense{
		"coeffs": f32Tensor([]int{1, 10}, make([]float32, 10)...),
	})
	assert.Error(t, err)

	// landmark output is optional
	out, err := client.postprocess(map[string]*tensor.Dense{
		"coeffs": f32Tensor([]int{1, 257}, make([]float32, 257)...),
	})
	assert.NoError(t, err)
	assert.Nil(t, out.Landmarks)
}

func TestReconstructionClient_Preprocess(t *testing.T) {
	client := &ReconstructionClient{ModelParams: config.DefaultReconstructionParams}
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 51, 0), 448, 448, gocv.MatTypeCV8UC3)
	defer img.Close()

	imgTensor, err := client.preprocess(img)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3, 224, 224}, imgTensor.Shape())

	data := imgTensor.Float32s()
	plane := 224 * 224
	assert.InDelta(t, 1, data[0], 1e-6)
	assert.InDelta(t, 0, data[plane], 1e-6)
	assert.InDelta(t, 0.2, data[2*plane], 1e-6)
}

func TestReconstructionClient_Reconstruct(t *testing.T) {
	triton := newTestTritonClient(t)

	client, err := NewReconstructionClient(triton, config.DefaultReconstructionParams)
	require.NoError(t, err)

	img := patternImage(224, 224)
	defer img.Close()

	out, err := client.Reconstruct(img, syntheticLandmarks(t, 100, 112, 112))
	assert.NoError(t, err)
	assert.Len(t, out.Coefficients["exp"], 64)
}
