package modules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okieraised/go-face3d-pipeline/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestNewFaceAlignerClient(t *testing.T) {
	aligner, err := NewFaceAlignerClient(nil, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, config.DefaultModelInputAlignParams, aligner.Params())

	badShape := tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(4, 3), tensor.WithBacking(make([]float64, 12)))
	_, err = NewFaceAlignerClient(badShape, nil, nil)
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, ErrLandmarkShape))

	badType := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(5, 3), tensor.WithBacking(make([]float32, 15)))
	_, err = NewFaceAlignerClient(badType, nil, nil)
	assert.True(t, errors.As(err, &cfgErr))

	_, err = NewFaceAlignerClient(nil, config.NewAlignParams(0, 1024, 3), nil)
	assert.True(t, errors.As(err, &cfgErr))
}

func TestFaceAlignerClient_EstimateTransform(t *testing.T) {
	aligner, err := NewFaceAlignerClient(nil, config.NewAlignParams(300, 1024, 3), nil)
	require.NoError(t, err)

	st, err := aligner.EstimateTransform(syntheticLandmarks(t, 200, 480, 520))
	require.NoError(t, err)
	assert.InDelta(t, 480, st.Translation[0], 1e-6)
	assert.InDelta(t, 520, st.Translation[1], 1e-6)
	assert.InDelta(t, 1.5, st.Scale, 1e-9)
}

func TestFaceAlignerClient_EstimateTransform_Errors(t *testing.T) {
	aligner, err := NewFaceAlignerClient(nil, nil, nil)
	require.NoError(t, err)

	_, err = aligner.EstimateTransform(nil)
	assert.True(t, errors.Is(err, ErrLandmarkShape))

	topDown, err := config.NewLandmarkSetFromKeypoints(syntheticLandmarks(t, 100, 50, 50).Flat())
	require.NoError(t, err)
	_, err = aligner.EstimateTransform(topDown)
	assert.Error(t, err)

	collapsed, err := config.NewLandmarkSet([]float64{7, 7, 7, 7, 7, 7, 7, 7, 7, 7}, config.CartesianConvention)
	require.NoError(t, err)
	_, err = aligner.EstimateTransform(collapsed)
	var degenerate *DegenerateGeometryError
	assert.True(t, errors.As(err, &degenerate))

	// spread over a millipixel: passes the solver check but inverts to scale ~4.7e5
	nearlyCollapsed := syntheticLandmarks(t, 1e-3, 320, 240)
	st, err := aligner.EstimateTransform(nearlyCollapsed)
	require.NoError(t, err)
	assert.InDelta(t, 466285, st.Scale, 1)

	img := patternImage(640, 480)
	defer img.Close()
	_, err = aligner.Align(img, nearlyCollapsed, nil)
	assert.True(t, errors.As(err, &degenerate))

	short, err := config.NewLandmarkSet([]float64{1, 2, 3, 4, 5, 6}, config.CartesianConvention)
	require.NoError(t, err)
	_, err = aligner.EstimateTransform(short)
	assert.True(t, errors.Is(err, ErrLandmarkShape))
}

func TestFaceAlignerClient_Align(t *testing.T) {
	img := patternImage(640, 480)
	defer img.Close()

	aligner, err := NewFaceAlignerClient(nil, config.NewAlignParams(150, 256, 3), nil)
	require.NoError(t, err)

	res, err := aligner.Align(img, syntheticLandmarks(t, 100, 320, 240), nil)
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, 256, res.Image.Rows())
	assert.Equal(t, 256, res.Image.Cols())
	assert.Equal(t, 640, res.Params.OriginalWidth)
	assert.Equal(t, 480, res.Params.OriginalHeight)
	assert.InDelta(t, 1.5, res.Params.Scale, 1e-9)
	assert.InDelta(t, 320, res.Params.TranslateX, 1e-6)
	assert.InDelta(t, 240, res.Params.TranslateY, 1e-6)

	// the face centre lands on the canvas centre
	var cx, cy float64
	for i := 0; i < res.Landmarks.Len(); i++ {
		p := res.Landmarks.Point(i)
		cx += p.X
		cy += p.Y
	}
	ref := config.DefaultReferenceLandmarks3D().Float64s()
	var rx, ry float64
	for i := 0; i < 5; i++ {
		rx += ref[i*3]
		ry += ref[i*3+1]
	}
	assert.InDelta(t, 128+150*rx/5, cx/5, 1)
	assert.InDelta(t, 128+150*ry/5, cy/5, 1)
}

func writeReferenceFile(t *testing.T, rows [][]float64) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("landmarks:\n")
	for _, r := range rows {
		parts := make([]string, len(r))
		for i, v := range r {
			parts[i] = fmt.Sprintf("%g", v)
		}
		sb.WriteString("  - [" + strings.Join(parts, ", ") + "]\n")
	}
	fPath := filepath.Join(t.TempDir(), "lm3d.yaml")
	require.NoError(t, os.WriteFile(fPath, []byte(sb.String()), 0o644))
	return fPath
}

func TestLoadReferenceLandmarks(t *testing.T) {
	ref := config.DefaultReferenceLandmarks3D().Float64s()
	rows := make([][]float64, 5)
	for i := range rows {
		rows[i] = ref[i*3 : i*3+3]
	}
	lm3D, err := LoadReferenceLandmarks(writeReferenceFile(t, rows))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 3}, lm3D.Shape())
	assert.InDeltaSlice(t, ref, lm3D.Float64s(), 1e-12)

	dense := make([][]float64, 68)
	for i := range dense {
		dense[i] = []float64{float64(i), float64(i), 0.5}
	}
	lm3D, err = LoadReferenceLandmarks(writeReferenceFile(t, dense))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 3}, lm3D.Shape())
	assert.Equal(t, []float64{37.5, 37.5, 0.5}, lm3D.Float64s()[0:3])
}

func TestLoadReferenceLandmarks_Errors(t *testing.T) {
	var cfgErr *ConfigurationError

	_, err := LoadReferenceLandmarks(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = LoadReferenceLandmarks(writeReferenceFile(t, [][]float64{{1, 2}}))
	assert.True(t, errors.As(err, &cfgErr))

	_, err = LoadReferenceLandmarks(writeReferenceFile(t, [][]float64{{1, 2, 3}, {4, 5, 6}}))
	assert.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, ErrLandmarkShape))

	wide := make([][]float64, 98)
	for i := range wide {
		wide[i] = []float64{float64(i), float64(i), 0}
	}
	_, err = LoadReferenceLandmarks(writeReferenceFile(t, wide))
	assert.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, ErrLandmarkShape))

	_, err = LoadReferenceLandmarks(writeReferenceFile(t, nil))
	assert.True(t, errors.As(err, &cfgErr))
}
