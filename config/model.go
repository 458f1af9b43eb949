package config

import "time"

type FaceDetectionParams struct {
	ModelName string        `json:"model_name" validate:"required"`
	Mean      float64       `json:"mean"`
	Scale     float64       `json:"scale" validate:"gt=0"`
	Timeout   time.Duration `json:"timeout" validate:"gt=0"`
}

func NewFaceDetectionParams(modelName string, mean, scale float64, timeout time.Duration) *FaceDetectionParams {
	return &FaceDetectionParams{
		ModelName: modelName,
		Mean:      mean,
		Scale:     scale,
		Timeout:   timeout,
	}
}

var DefaultFaceDetectionParams = &FaceDetectionParams{
	ModelName: "scrfd",
	Mean:      127.5,
	Scale:     0.00784313725490196,
	Timeout:   10 * time.Second,
}

// CoefficientSlice names a contiguous range of the reconstruction network's coefficient vector.
type CoefficientSlice struct {
	Name   string `json:"name" validate:"required"`
	Length int    `json:"length" validate:"gt=0"`
}

// DefaultCoefficientLayout is the 257-wide Deep3D coefficient split.
var DefaultCoefficientLayout = []CoefficientSlice{
	{Name: "id", Length: 80},
	{Name: "exp", Length: 64},
	{Name: "tex", Length: 80},
	{Name: "angle", Length: 3},
	{Name: "gamma", Length: 27},
	{Name: "trans", Length: 3},
}

type ReconstructionParams struct {
	ModelName         string             `json:"model_name" validate:"required"`
	CoefficientOutput string             `json:"coefficient_output" validate:"required"`
	LandmarkOutput    string             `json:"landmark_output"`
	ImgSize           int                `json:"img_size" validate:"gt=0"`
	Layout            []CoefficientSlice `json:"layout" validate:"required,min=1,dive"`
	Timeout           time.Duration      `json:"timeout" validate:"gt=0"`
}

func NewReconstructionParams(modelName, coefficientOutput, landmarkOutput string, imgSize int, layout []CoefficientSlice, timeout time.Duration) *ReconstructionParams {
	return &ReconstructionParams{
		ModelName:         modelName,
		CoefficientOutput: coefficientOutput,
		LandmarkOutput:    landmarkOutput,
		ImgSize:           imgSize,
		Layout:            layout,
		Timeout:           timeout,
	}
}

var DefaultReconstructionParams = &ReconstructionParams{
	ModelName:         "deep3d_recon",
	CoefficientOutput: "coeffs",
	LandmarkOutput:    "pred_lm",
	ImgSize:           224,
	Layout:            DefaultCoefficientLayout,
	Timeout:           10 * time.Second,
}

// AlignParams configures one Aligner + Resampler pass.
type AlignParams struct {
	// RescaleFactor is the target face size in canvas pixels; the solver scale is inverted against it.
	RescaleFactor float64 `json:"rescale_factor" validate:"gt=0"`
	TargetSize    int     `json:"target_size" validate:"gt=0"`
	BlurSigma     float64 `json:"blur_sigma" validate:"gte=0"`
}

func NewAlignParams(rescaleFactor float64, targetSize int, blurSigma float64) *AlignParams {
	return &AlignParams{
		RescaleFactor: rescaleFactor,
		TargetSize:    targetSize,
		BlurSigma:     blurSigma,
	}
}

var DefaultModelInputAlignParams = &AlignParams{
	RescaleFactor: 466.285,
	TargetSize:    1024,
	BlurSigma:     3,
}

var DefaultFinalCropAlignParams = &AlignParams{
	RescaleFactor: 300,
	TargetSize:    1024,
	BlurSigma:     3,
}

type PipelineParams struct {
	ModelInput          *AlignParams `json:"model_input" validate:"required"`
	FinalCrop           *AlignParams `json:"final_crop" validate:"required"`
	ModelInputSize      int          `json:"model_input_size" validate:"gt=0"`
	CenterCropSize      int          `json:"center_crop_size" validate:"gt=0"`
	OutputSize          int          `json:"output_size" validate:"gt=0"`
	ConfidenceThreshold float32      `json:"confidence_threshold" validate:"gte=0,lte=1"`
}

var DefaultPipelineParams = &PipelineParams{
	ModelInput:          DefaultModelInputAlignParams,
	FinalCrop:           DefaultFinalCropAlignParams,
	ModelInputSize:      224,
	CenterCropSize:      700,
	OutputSize:          512,
	ConfidenceThreshold: 0.9,
}
