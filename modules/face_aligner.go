package modules

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/okieraised/go-face3d-pipeline/config"
	"github.com/okieraised/go-face3d-pipeline/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"
	"gorgonia.org/tensor"
)

type referenceFile struct {
	Landmarks [][]float64 `yaml:"landmarks"`
}

// LoadReferenceLandmarks reads a YAML table of 3D reference landmarks:
//
//	landmarks:
//	  - [x, y, z]
//
// Tables hold 5 or 68 rows; 68-point tables are reduced to the 5 canonical points.
func LoadReferenceLandmarks(fPath string) (*tensor.Dense, error) {
	content, err := os.ReadFile(fPath)
	if err != nil {
		return nil, &ConfigurationError{Source: fPath, Err: err}
	}
	var ref referenceFile
	if err = yaml.Unmarshal(content, &ref); err != nil {
		return nil, &ConfigurationError{Source: fPath, Err: err}
	}
	if len(ref.Landmarks) == 0 {
		return nil, &ConfigurationError{Source: fPath, Err: errors.New("no landmarks")}
	}

	backing := make([]float64, 0, len(ref.Landmarks)*3)
	for i, row := range ref.Landmarks {
		if len(row) != 3 {
			return nil, &ConfigurationError{Source: fPath, Err: fmt.Errorf("row %d has %d values, expected 3", i, len(row))}
		}
		backing = append(backing, row...)
	}
	lm3D := tensor.New(
		tensor.Of(tensor.Float64),
		tensor.WithShape(len(ref.Landmarks), 3),
		tensor.WithBacking(backing),
	)

	reduced, err := ReduceLandmarks(lm3D)
	if err != nil {
		return nil, &ConfigurationError{Source: fPath, Err: err}
	}
	return reduced, nil
}

// AlignResult is the output of FaceAlignerClient.Align.
type AlignResult struct {
	*ResampleResult
	Params config.TransformParams
}

type FaceAlignerClient struct {
	lm3D      *tensor.Dense
	params    *config.AlignParams
	resampler *FaceResampler
	logger    *zap.Logger
}

// NewFaceAlignerClient initializes an aligner. lm3D must hold the 5 canonical reference points
// as a (5, 3) tensor; nil selects config.DefaultReferenceLandmarks3D.
func NewFaceAlignerClient(lm3D *tensor.Dense, params *config.AlignParams, logger *zap.Logger) (*FaceAlignerClient, error) {
	if lm3D == nil {
		lm3D = config.DefaultReferenceLandmarks3D()
	}
	if params == nil {
		params = config.DefaultModelInputAlignParams
	}
	shape := lm3D.Shape()
	if len(shape) != 2 || shape[0] != 5 || shape[1] < 2 {
		return nil, &ConfigurationError{Source: "reference landmarks", Err: fmt.Errorf("%w: expected (5, 3), got %v", ErrLandmarkShape, shape)}
	}
	if lm3D.Dtype() != tensor.Float64 {
		return nil, &ConfigurationError{Source: "reference landmarks", Err: fmt.Errorf("expected float64 values, got %v", lm3D.Dtype())}
	}
	if err := config.Validate(params); err != nil {
		return nil, &ConfigurationError{Source: "align params", Err: err}
	}
	logger = utils.LoggerOrNop(logger)

	return &FaceAlignerClient{
		lm3D:      lm3D,
		params:    params,
		resampler: NewFaceResampler(logger),
		logger:    logger,
	}, nil
}

func (c *FaceAlignerClient) Params() *config.AlignParams {
	return c.params
}

// EstimateTransform reduces lm to the 5 canonical points, solves for the similarity to the
// reference face and inverts its scale against the rescale factor.
func (c *FaceAlignerClient) EstimateTransform(lm *config.LandmarkSet) (*SimilarityTransform, error) {
	if lm == nil || lm.Len() == 0 {
		return nil, fmt.Errorf("%w: no landmarks", ErrLandmarkShape)
	}
	if lm.Convention != config.CartesianConvention {
		return nil, fmt.Errorf("aligner expects %s landmarks, got %s", config.CartesianConvention, lm.Convention)
	}
	lm5p, err := ReduceLandmarks(lm.Points)
	if err != nil {
		return nil, err
	}

	raw, err := SolveSimilarity(c.lm3D, lm5p)
	if err != nil {
		return nil, err
	}
	if !raw.Valid() {
		return nil, &DegenerateGeometryError{Scale: raw.Scale}
	}

	scale := c.params.RescaleFactor / raw.Scale
	if math.IsInf(scale, 0) || math.IsNaN(scale) {
		return nil, &DegenerateGeometryError{Scale: raw.Scale}
	}
	return &SimilarityTransform{Translation: raw.Translation, Scale: scale}, nil
}

// Align crops img around the face described by lm into a TargetSize square canvas. lm must be
// bottom-up; the returned landmarks are bottom-up on the canvas. mask is optional.
func (c *FaceAlignerClient) Align(img gocv.Mat, lm *config.LandmarkSet, mask *gocv.Mat) (*AlignResult, error) {
	if img.Empty() {
		return nil, utils.ErrEmptyImage
	}
	st, err := c.EstimateTransform(lm)
	if err != nil {
		return nil, err
	}

	resampled, err := c.resampler.ResizeAndCrop(
		img,
		lm,
		st.Translation,
		st.Scale,
		c.params.TargetSize,
		mask,
		utils.Ref(c.params.BlurSigma),
	)
	if err != nil {
		return nil, err
	}

	return &AlignResult{
		ResampleResult: resampled,
		Params: config.TransformParams{
			OriginalWidth:  img.Cols(),
			OriginalHeight: img.Rows(),
			Scale:          st.Scale,
			TranslateX:     st.Translation[0],
			TranslateY:     st.Translation[1],
		},
	}, nil
}
