package modules

import (
	"fmt"
	"image"
	"slices"

	"github.com/okieraised/go-face3d-pipeline/config"
	"github.com/okieraised/go-face3d-pipeline/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/okieraised/go-triton-client/triton_proto"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

type FaceDetectionClient struct {
	tritonClient *gotritonclient.TritonGRPCClient
	ModelConfig  *triton_proto.ModelConfigResponse
	ModelParams  *config.FaceDetectionParams
}

func NewFaceDetectionClient(triton *gotritonclient.TritonGRPCClient, cfg *config.FaceDetectionParams) (*FaceDetectionClient, error) {
	if cfg == nil {
		cfg = config.DefaultFaceDetectionParams
	}
	if err := config.Validate(cfg); err != nil {
		return nil, &ConfigurationError{Source: "face detection params", Err: err}
	}

	inferenceConfig, err := triton.GetModelConfiguration(cfg.Timeout, cfg.ModelName, "")
	if err != nil {
		return nil, err
	}
	if len(inferenceConfig.GetConfig().GetInput()) == 0 || len(inferenceConfig.GetConfig().GetInput()[0].Dims) != 3 {
		return nil, &ConfigurationError{Source: cfg.ModelName, Err: fmt.Errorf("expected a (C, H, W) image input")}
	}

	return &FaceDetectionClient{
		tritonClient: triton,
		ModelParams:  cfg,
		ModelConfig:  inferenceConfig,
	}, nil
}

// preprocess letterboxes img into the top-left corner of the model canvas and normalizes it.
func (c *FaceDetectionClient) preprocess(img gocv.Mat) (*tensor.Dense, config.Size, error) {
	dims := c.ModelConfig.Config.Input[0].Dims
	modelH, modelW := int(dims[1]), int(dims[2])

	imgH, imgW := img.Rows(), img.Cols()
	size := config.Size{Width: imgW, Height: imgH}
	imgRatio := float64(imgW) / float64(imgH)
	modelRatio := float64(modelW) / float64(modelH)

	var newWidth, newHeight int
	if imgRatio > modelRatio {
		newWidth = modelW
		newHeight = int(float64(newWidth) / imgRatio)
	} else {
		newHeight = modelH
		newWidth = int(float64(newHeight) * imgRatio)
	}

	scaledImg := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), modelH, modelW, gocv.MatTypeCV8UC3)
	defer scaledImg.Close()

	roi := scaledImg.Region(image.Rect(0, 0, newWidth, newHeight))
	gocv.Resize(img, &roi, image.Point{X: newWidth, Y: newHeight}, 0, 0, gocv.InterpolationLinear)
	_ = roi.Close()

	imgTensor, err := utils.MatToCHWTensor(scaledImg, 1)
	if err != nil {
		return nil, size, err
	}
	mean, scale := float32(c.ModelParams.Mean), float32(c.ModelParams.Scale)
	data := imgTensor.Float32s()
	for i := range data {
		data[i] = (data[i] - mean) * scale
	}
	return imgTensor, size, nil
}

// postprocess decodes (num_dets, boxes, scores, classes, landmarks) for one image. Boxes and
// keypoints are normalized to the letterbox canvas, so they scale back by the longest side.
func (c *FaceDetectionClient) postprocess(rawOutputs []*tensor.Dense, size config.Size) ([]config.FaceDetection, error) {
	if len(rawOutputs) < 5 {
		return nil, fmt.Errorf("expected 5 detector outputs, got %d", len(rawOutputs))
	}
	boxes, err := float32Values(rawOutputs[1])
	if err != nil {
		return nil, err
	}
	scores, err := float32Values(rawOutputs[2])
	if err != nil {
		return nil, err
	}
	landmarks, err := float32Values(rawOutputs[4])
	if err != nil {
		return nil, err
	}

	numDets := min(len(scores), len(boxes)/4, len(landmarks)/10)
	if counts, err := float32Values(rawOutputs[0]); err == nil && len(counts) > 0 {
		numDets = min(numDets, int(counts[0]))
	}

	scale := float32(size.Max())
	results := make([]config.FaceDetection, 0, numDets)
	for i := 0; i < numDets; i++ {
		b := boxes[i*4 : i*4+4]
		k := landmarks[i*10 : i*10+10]
		point := func(j int) config.Coordinate2D {
			return config.Coordinate2D{X: k[2*j] * scale, Y: k[2*j+1] * scale}
		}
		results = append(results, config.FaceDetection{
			Box:   [4]float32{b[0] * scale, b[1] * scale, b[2] * scale, b[3] * scale},
			Score: scores[i],
			Keypoints: config.FaceLandmark{
				LeftEye:    point(0),
				RightEye:   point(1),
				Nose:       point(2),
				LeftMouth:  point(3),
				RightMouth: point(4),
			},
		})
	}

	// largest face first
	slices.SortStableFunc(results, func(a, b config.FaceDetection) int {
		switch {
		case a.Area() > b.Area():
			return -1
		case a.Area() < b.Area():
			return 1
		default:
			return 0
		}
	})
	return results, nil
}

func (c *FaceDetectionClient) InferSingle(img gocv.Mat) ([]config.FaceDetection, error) {
	if img.Empty() {
		return nil, utils.ErrEmptyImage
	}
	inputTensor, size, err := c.preprocess(img)
	if err != nil {
		return nil, err
	}

	modelRequest := &triton_proto.ModelInferRequest{
		ModelName: c.ModelParams.ModelName,
	}
	inputCfg := c.ModelConfig.Config.Input[0]
	modelRequest.Inputs = []*triton_proto.ModelInferRequest_InferInputTensor{
		newFP32Input(inputCfg, []int64{1, inputCfg.Dims[0], inputCfg.Dims[1], inputCfg.Dims[2]}, inputTensor.Float32s()),
	}

	inferResp, err := c.tritonClient.ModelGRPCInfer(c.ModelParams.Timeout, modelRequest)
	if err != nil {
		return nil, err
	}
	_, outputs, err := parseInferOutputs(inferResp)
	if err != nil {
		return nil, err
	}
	return c.postprocess(outputs, size)
}

// Detect runs the detector on each image and returns its candidates, largest face first.
func (c *FaceDetectionClient) Detect(images []gocv.Mat) ([][]config.FaceDetection, error) {
	results := make([][]config.FaceDetection, 0, len(images))
	for idx, img := range images {
		dets, err := c.InferSingle(img)
		if err != nil {
			return nil, fmt.Errorf("detect faces in image %d: %w", idx, err)
		}
		results = append(results, dets)
	}
	return results, nil
}
