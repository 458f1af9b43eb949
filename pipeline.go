package go_face3d_pipeline

import (
	"errors"
	"fmt"
	"image"

	"github.com/okieraised/go-face3d-pipeline/config"
	"github.com/okieraised/go-face3d-pipeline/modules"
	"github.com/okieraised/go-face3d-pipeline/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// Detector finds faces and their 5 keypoints in top-down pixel coordinates. Candidates are
// expected in order of preference.
type Detector interface {
	Detect(images []gocv.Mat) ([][]config.FaceDetection, error)
}

// Reconstructor regresses 3D face coefficients from an aligned model-input image and its
// bottom-up landmarks.
type Reconstructor interface {
	Reconstruct(img gocv.Mat, lm *config.LandmarkSet) (*config.ReconstructionOutput, error)
}

// Face3DPipeline defines the structure of the face normalization pipeline.
type Face3DPipeline struct {
	Detector          Detector
	Reconstructor     Reconstructor
	ModelInputAligner *modules.FaceAlignerClient
	FinalCropAligner  *modules.FaceAlignerClient
	Params            *config.PipelineParams
	logger            *zap.Logger
}

// NewFace3DPipeline initializes a pipeline from its collaborators. detector and reconstructor
// may be nil when the corresponding use-cases are not needed. lm3D nil selects the built-in
// reference face, params nil selects config.DefaultPipelineParams.
func NewFace3DPipeline(
	detector Detector,
	reconstructor Reconstructor,
	lm3D *tensor.Dense,
	params *config.PipelineParams,
	logger *zap.Logger,
) (*Face3DPipeline, error) {
	if params == nil {
		params = config.DefaultPipelineParams
	}
	if err := config.Validate(params); err != nil {
		return nil, &modules.ConfigurationError{Source: "pipeline params", Err: err}
	}
	if params.CenterCropSize > params.FinalCrop.TargetSize {
		return nil, &modules.ConfigurationError{
			Source: "pipeline params",
			Err:    fmt.Errorf("center crop %d exceeds aligned size %d", params.CenterCropSize, params.FinalCrop.TargetSize),
		}
	}
	logger = utils.LoggerOrNop(logger)

	pipeline := &Face3DPipeline{
		Detector:      detector,
		Reconstructor: reconstructor,
		Params:        params,
		logger:        logger,
	}

	// Init aligners
	modelInputAligner, err := modules.NewFaceAlignerClient(lm3D, params.ModelInput, logger.Named("model_input"))
	if err != nil {
		return nil, err
	}
	pipeline.ModelInputAligner = modelInputAligner

	finalCropAligner, err := modules.NewFaceAlignerClient(lm3D, params.FinalCrop, logger.Named("final_crop"))
	if err != nil {
		return nil, err
	}
	pipeline.FinalCropAligner = finalCropAligner

	return pipeline, nil
}

// NewFace3DPipelineFromTriton wires the SCRFD detector and the Deep3D regressor served by
// Triton. An empty referencePath selects the built-in reference face.
func NewFace3DPipelineFromTriton(tritonClient *gotritonclient.TritonGRPCClient, referencePath string, logger *zap.Logger) (*Face3DPipeline, error) {
	var lm3D *tensor.Dense
	if referencePath != "" {
		var err error
		lm3D, err = modules.LoadReferenceLandmarks(referencePath)
		if err != nil {
			return nil, err
		}
	}

	// Init face detection client
	faceDetClient, err := modules.NewFaceDetectionClient(tritonClient, config.DefaultFaceDetectionParams)
	if err != nil {
		return nil, err
	}

	// Init reconstruction client
	reconClient, err := modules.NewReconstructionClient(tritonClient, config.DefaultReconstructionParams)
	if err != nil {
		return nil, err
	}

	return NewFace3DPipeline(faceDetClient, reconClient, lm3D, config.DefaultPipelineParams, logger)
}

// toAlignerLandmarks turns detector keypoints (top-down) into the bottom-up set the aligner
// consumes. This is the only place detector output is flipped.
func toAlignerLandmarks(keypoints []float64, height int) (*config.LandmarkSet, error) {
	lm, err := config.NewLandmarkSetFromKeypoints(keypoints)
	if err != nil {
		return nil, err
	}
	return lm.ToCartesian(height)
}

/*
DetectKeypoints returns the flat keypoint list [x0, y0, ..., x4, y4] of the first face found
in every input image.

Inputs:

  - images ([]gocv.Mat): input images.

Outputs:

  - keypoints ([][]float64): top-down keypoints in canonical order, one list per image.
*/
func (c *Face3DPipeline) DetectKeypoints(images []gocv.Mat) ([][]float64, error) {
	if c.Detector == nil {
		return nil, errors.New("pipeline has no detector")
	}
	batchDets, err := c.Detector.Detect(images)
	if err != nil {
		return nil, err
	}
	if len(batchDets) != len(images) {
		return nil, fmt.Errorf("detector returned %d results for %d images", len(batchDets), len(images))
	}

	keypoints := make([][]float64, 0, len(images))
	for idx, dets := range batchDets {
		if len(dets) == 0 {
			c.logger.Warn("no face detected", zap.Int("image", idx))
			return nil, &modules.NoDetectionError{Index: idx}
		}
		best := dets[0]
		if best.Score <= c.Params.ConfidenceThreshold {
			c.logger.Warn("face confidence too low",
				zap.Int("image", idx),
				zap.Float32("confidence", best.Score),
				zap.Float32("threshold", c.Params.ConfidenceThreshold),
			)
			return nil, &modules.LowConfidenceError{Index: idx, Confidence: best.Score, Threshold: c.Params.ConfidenceThreshold}
		}
		keypoints = append(keypoints, best.Keypoints.Flatten())
	}
	return keypoints, nil
}

// ModelInputResult holds the reconstruction-network input derived from one image. Image and
// HighRes must be closed by the caller.
type ModelInputResult struct {
	Image     gocv.Mat
	Landmarks *config.LandmarkSet
	HighRes   gocv.Mat
	Params    config.TransformParams
}

func (r *ModelInputResult) Close() error {
	return errors.Join(r.Image.Close(), r.HighRes.Close())
}

/*
ModelInput aligns the face described by keypoints and produces the model-sized image.

Inputs:

  - img (gocv.Mat): RGB input image.
  - keypoints ([]float64): top-down detector keypoints.

Outputs:

  - result (*ModelInputResult): ModelInputSize image with bottom-up landmarks scaled onto it,
    the TargetSize aligned image and the transform parameters.
*/
func (c *Face3DPipeline) ModelInput(img gocv.Mat, keypoints []float64) (*ModelInputResult, error) {
	if img.Empty() {
		return nil, utils.ErrEmptyImage
	}
	lm, err := toAlignerLandmarks(keypoints, img.Rows())
	if err != nil {
		return nil, err
	}

	aligned, err := c.ModelInputAligner.Align(img, lm, nil)
	if err != nil {
		return nil, err
	}

	size := c.Params.ModelInputSize
	ratio := float64(size) / float64(c.Params.ModelInput.TargetSize)
	lmLow, err := aligned.Landmarks.Scale(ratio)
	if err != nil {
		_ = aligned.Close()
		return nil, err
	}

	low := gocv.NewMat()
	gocv.Resize(aligned.Image, &low, image.Point{X: size, Y: size}, 0, 0, modules.ResizeInterpolation(ratio))

	return &ModelInputResult{
		Image:     low,
		Landmarks: lmLow,
		HighRes:   aligned.Image,
		Params:    aligned.Params,
	}, nil
}

/*
Coefficients runs the reconstruction network on the model input of one face.

Inputs:

  - img (gocv.Mat): RGB input image.
  - keypoints ([]float64): top-down detector keypoints.

Outputs:

  - output (*config.ReconstructionOutput): named coefficient arrays; predicted landmarks, when
    the network returns them, are converted to top-down rows of the model-input image.
*/
func (c *Face3DPipeline) Coefficients(img gocv.Mat, keypoints []float64) (*config.ReconstructionOutput, error) {
	if c.Reconstructor == nil {
		return nil, errors.New("pipeline has no reconstructor")
	}
	input, err := c.ModelInput(img, keypoints)
	if err != nil {
		return nil, err
	}
	defer input.Close()

	output, err := c.Reconstructor.Reconstruct(input.Image, input.Landmarks)
	if err != nil {
		return nil, err
	}
	if output.Landmarks != nil {
		output.Landmarks, err = output.Landmarks.ToImage(input.Image.Rows())
		if err != nil {
			return nil, fmt.Errorf("predicted landmarks: %w", err)
		}
	}
	return output, nil
}

/*
FinalCrop aligns the face described by keypoints, cuts a CenterCropSize window around the
canvas centre and resizes it to OutputSize.

Inputs:

  - img (gocv.Mat): RGB input image.
  - keypoints ([]float64): top-down detector keypoints.

Outputs:

  - cropped (gocv.Mat): OutputSize x OutputSize face crop; closed by the caller.
*/
func (c *Face3DPipeline) FinalCrop(img gocv.Mat, keypoints []float64) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), utils.ErrEmptyImage
	}
	lm, err := toAlignerLandmarks(keypoints, img.Rows())
	if err != nil {
		return gocv.NewMat(), err
	}

	aligned, err := c.FinalCropAligner.Align(img, lm, nil)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer aligned.Close()

	cropSize := c.Params.CenterCropSize
	left := int(float64(aligned.Image.Cols())/2 - float64(cropSize)/2)
	upper := int(float64(aligned.Image.Rows())/2 - float64(cropSize)/2)
	roi := aligned.Image.Region(image.Rect(left, upper, left+cropSize, upper+cropSize))
	defer roi.Close()

	size := c.Params.OutputSize
	cropped := gocv.NewMat()
	gocv.Resize(roi, &cropped, image.Point{X: size, Y: size}, 0, 0, modules.ResizeInterpolation(float64(size)/float64(cropSize)))
	return cropped, nil
}

// FinalCropFromImage detects the face in img and returns its final crop.
func (c *Face3DPipeline) FinalCropFromImage(img gocv.Mat) (gocv.Mat, error) {
	keypoints, err := c.DetectKeypoints([]gocv.Mat{img})
	if err != nil {
		return gocv.NewMat(), err
	}
	return c.FinalCrop(img, keypoints[0])
}
