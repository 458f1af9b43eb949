package modules

import (
	"fmt"
	"image"

	"github.com/okieraised/go-face3d-pipeline/config"
	"github.com/okieraised/go-face3d-pipeline/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/okieraised/go-triton-client/triton_proto"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// ReconstructionClient runs the Deep3D coefficient regressor served by Triton.
type ReconstructionClient struct {
	tritonClient *gotritonclient.TritonGRPCClient
	ModelParams  *config.ReconstructionParams
	ModelConfig  *triton_proto.ModelConfigResponse
}

func NewReconstructionClient(triton *gotritonclient.TritonGRPCClient, cfg *config.ReconstructionParams) (*ReconstructionClient, error) {
	if cfg == nil {
		cfg = config.DefaultReconstructionParams
	}
	if err := config.Validate(cfg); err != nil {
		return nil, &ConfigurationError{Source: "reconstruction params", Err: err}
	}

	inferenceConfig, err := triton.GetModelConfiguration(cfg.Timeout, cfg.ModelName, "")
	if err != nil {
		return nil, err
	}
	if len(inferenceConfig.GetConfig().GetInput()) == 0 {
		return nil, &ConfigurationError{Source: cfg.ModelName, Err: fmt.Errorf("model declares no inputs")}
	}

	return &ReconstructionClient{
		tritonClient: triton,
		ModelParams:  cfg,
		ModelConfig:  inferenceConfig,
	}, nil
}

// preprocess resizes img to the model size and lays it out as (1, 3, H, W) floats in [0, 1].
func (c *ReconstructionClient) preprocess(img gocv.Mat) (*tensor.Dense, error) {
	if img.Empty() {
		return nil, utils.ErrEmptyImage
	}
	size := c.ModelParams.ImgSize
	if img.Rows() == size && img.Cols() == size {
		return utils.MatToCHWTensor(img, 1.0/255)
	}

	resizedImg := gocv.NewMat()
	defer resizedImg.Close()
	gocv.Resize(img, &resizedImg, image.Point{X: size, Y: size}, 0, 0, ResizeInterpolation(float64(size)/float64(img.Cols())))
	return utils.MatToCHWTensor(resizedImg, 1.0/255)
}

// postprocess splits the coefficient vector by the configured layout and picks up the
// predicted landmarks when the model exports them.
func (c *ReconstructionClient) postprocess(outputs map[string]*tensor.Dense) (*config.ReconstructionOutput, error) {
	coeffTensor, ok := outputs[c.ModelParams.CoefficientOutput]
	if !ok {
		return nil, fmt.Errorf("model output %q not found", c.ModelParams.CoefficientOutput)
	}
	coeffs, err := float32Values(coeffTensor)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, s := range c.ModelParams.Layout {
		total += s.Length
	}
	if len(coeffs) < total {
		return nil, fmt.Errorf("coefficient vector has %d values, layout needs %d", len(coeffs), total)
	}

	result := &config.ReconstructionOutput{
		Coefficients: make(map[string][]float32, len(c.ModelParams.Layout)),
	}
	offset := 0
	for _, s := range c.ModelParams.Layout {
		values := make([]float32, s.Length)
		copy(values, coeffs[offset:offset+s.Length])
		result.Coefficients[s.Name] = values
		offset += s.Length
	}

	if c.ModelParams.LandmarkOutput == "" {
		return result, nil
	}
	lmTensor, ok := outputs[c.ModelParams.LandmarkOutput]
	if !ok {
		return result, nil
	}
	lm, err := float32Values(lmTensor)
	if err != nil {
		return nil, err
	}
	result.Landmarks, err = config.NewLandmarkSet(utils.Float32sToFloat64s(lm), config.CartesianConvention)
	if err != nil {
		return nil, fmt.Errorf("predicted landmarks: %w", err)
	}
	return result, nil
}

// Reconstruct predicts the coefficients for one aligned face. lm is the bottom-up landmark set
// on the model canvas; it is sent only when the model declares a second input.
func (c *ReconstructionClient) Reconstruct(img gocv.Mat, lm *config.LandmarkSet) (*config.ReconstructionOutput, error) {
	imgTensor, err := c.preprocess(img)
	if err != nil {
		return nil, err
	}

	modelRequest := &triton_proto.ModelInferRequest{
		ModelName: c.ModelParams.ModelName,
	}
	inputs := c.ModelConfig.Config.Input
	shape := make([]int64, 0, 4)
	for _, d := range imgTensor.Shape() {
		shape = append(shape, int64(d))
	}
	modelInputs := []*triton_proto.ModelInferRequest_InferInputTensor{
		newFP32Input(inputs[0], shape, imgTensor.Float32s()),
	}
	if len(inputs) > 1 {
		if lm == nil || lm.Convention != config.CartesianConvention {
			return nil, fmt.Errorf("model %q expects bottom-up landmarks", c.ModelParams.ModelName)
		}
		modelInputs = append(modelInputs, newFP32Input(
			inputs[1],
			[]int64{1, int64(lm.Len()), 2},
			utils.Float64sToFloat32s(lm.Flat()),
		))
	}
	modelRequest.Inputs = modelInputs

	inferResp, err := c.tritonClient.ModelGRPCInfer(c.ModelParams.Timeout, modelRequest)
	if err != nil {
		return nil, err
	}
	outputs, _, err := parseInferOutputs(inferResp)
	if err != nil {
		return nil, err
	}
	return c.postprocess(outputs)
}
