package config

import (
	"errors"
	"fmt"
	"image"

	"gorgonia.org/tensor"
)

type Size struct {
	Width  int
	Height int
}

func (s *Size) Max() int {
	if s.Height > s.Width {
		return s.Height
	}
	return s.Width
}

// Convention tells which way the y-axis of a landmark set points.
type Convention int

const (
	// ImageConvention measures y downward from the top row (detector output, pixel rows).
	ImageConvention Convention = iota
	// CartesianConvention measures y upward from the bottom row (solver and reconstruction space).
	CartesianConvention
)

func (c Convention) String() string {
	switch c {
	case ImageConvention:
		return "image"
	case CartesianConvention:
		return "cartesian"
	default:
		return fmt.Sprintf("convention(%d)", int(c))
	}
}

var ErrConventionMismatch = errors.New("landmark set is already in the requested convention")

// LandmarkSet is an ordered (N, 2) set of points tagged with its y-axis convention.
type LandmarkSet struct {
	Points     *tensor.Dense
	Convention Convention
}

// NewLandmarkSet copies a flat [x0, y0, x1, y1, ...] slice into a LandmarkSet.
func NewLandmarkSet(flat []float64, convention Convention) (*LandmarkSet, error) {
	if len(flat) == 0 || len(flat)%2 != 0 {
		return nil, fmt.Errorf("expected an even, non-zero number of coordinates, got %d", len(flat))
	}
	backing := make([]float64, len(flat))
	copy(backing, flat)
	return &LandmarkSet{
		Points: tensor.New(
			tensor.Of(tensor.Float64),
			tensor.WithShape(len(flat)/2, 2),
			tensor.WithBacking(backing),
		),
		Convention: convention,
	}, nil
}

// NewLandmarkSetFromKeypoints builds a top-down landmark set from a detector's flat keypoint list.
func NewLandmarkSetFromKeypoints(keypoints []float64) (*LandmarkSet, error) {
	return NewLandmarkSet(keypoints, ImageConvention)
}

func (l *LandmarkSet) Len() int {
	if l == nil || l.Points == nil {
		return 0
	}
	return l.Points.Shape()[0]
}

// Flat returns a copy of the coordinates as [x0, y0, x1, y1, ...].
func (l *LandmarkSet) Flat() []float64 {
	data := l.Points.Float64s()
	out := make([]float64, len(data))
	copy(out, data)
	return out
}

// Point returns the i-th point.
func (l *LandmarkSet) Point(i int) Coordinate2D64 {
	data := l.Points.Float64s()
	return Coordinate2D64{X: data[2*i], Y: data[2*i+1]}
}

// ToCartesian flips a top-down set into the bottom-up convention of an image of the given height.
func (l *LandmarkSet) ToCartesian(height int) (*LandmarkSet, error) {
	if l.Convention == CartesianConvention {
		return nil, ErrConventionMismatch
	}
	return l.flipY(height, CartesianConvention)
}

// ToImage flips a bottom-up set back into top-down pixel rows of an image of the given height.
func (l *LandmarkSet) ToImage(height int) (*LandmarkSet, error) {
	if l.Convention == ImageConvention {
		return nil, ErrConventionMismatch
	}
	return l.flipY(height, ImageConvention)
}

func (l *LandmarkSet) flipY(height int, to Convention) (*LandmarkSet, error) {
	flat := l.Flat()
	for i := 1; i < len(flat); i += 2 {
		flat[i] = float64(height) - 1 - flat[i]
	}
	return NewLandmarkSet(flat, to)
}

// Scale multiplies every coordinate by factor, keeping the convention.
func (l *LandmarkSet) Scale(factor float64) (*LandmarkSet, error) {
	flat := l.Flat()
	for i := range flat {
		flat[i] *= factor
	}
	return NewLandmarkSet(flat, l.Convention)
}

type FaceLandmark struct {
	LeftEye    Coordinate2D
	RightEye   Coordinate2D
	Nose       Coordinate2D
	LeftMouth  Coordinate2D
	RightMouth Coordinate2D
}

type Coordinate2D struct {
	X float32
	Y float32
}

type Coordinate2D64 struct {
	X float64
	Y float64
}

// Flatten returns the keypoints in canonical order as a flat [x, y, ...] list.
func (f *FaceLandmark) Flatten() []float64 {
	return []float64{
		float64(f.LeftEye.X), float64(f.LeftEye.Y),
		float64(f.RightEye.X), float64(f.RightEye.Y),
		float64(f.Nose.X), float64(f.Nose.Y),
		float64(f.LeftMouth.X), float64(f.LeftMouth.Y),
		float64(f.RightMouth.X), float64(f.RightMouth.Y),
	}
}

// FaceDetection is a single face candidate returned by a detector, in top-down pixel coordinates.
type FaceDetection struct {
	Box       [4]float32 `json:"box"`
	Score     float32    `json:"confidence"`
	Keypoints FaceLandmark
}

func (d *FaceDetection) Area() float32 {
	return (d.Box[2] - d.Box[0]) * (d.Box[3] - d.Box[1])
}

// TransformParams describes the mapping from the original image to the aligned canvas.
type TransformParams struct {
	OriginalWidth  int     `json:"original_width"`
	OriginalHeight int     `json:"original_height"`
	Scale          float64 `json:"scale"`
	TranslateX     float64 `json:"translate_x"`
	TranslateY     float64 `json:"translate_y"`
}

// Slice returns the parameters as (W, H, s, tx, ty).
func (p TransformParams) Slice() []float64 {
	return []float64{float64(p.OriginalWidth), float64(p.OriginalHeight), p.Scale, p.TranslateX, p.TranslateY}
}

// CropWindow is a (left, top, right, bottom) pixel window that may extend past the image.
type CropWindow struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

func (w CropWindow) Width() int  { return w.Right - w.Left }
func (w CropWindow) Height() int { return w.Bottom - w.Top }

func (w CropWindow) Rect() image.Rectangle {
	return image.Rect(w.Left, w.Top, w.Right, w.Bottom)
}

// Shift moves the window by d on both axes.
func (w CropWindow) Shift(d int) CropWindow {
	return CropWindow{Left: w.Left + d, Top: w.Top + d, Right: w.Right + d, Bottom: w.Bottom + d}
}

// Inside reports whether the window lies fully within a width x height image.
func (w CropWindow) Inside(width, height int) bool {
	return w.Left >= 0 && w.Top >= 0 && w.Right <= width && w.Bottom <= height
}

// PadNeeded returns the smallest border that, added on all four sides of a width x height
// image, contains the window.
func (w CropWindow) PadNeeded(width, height int) int {
	return max(-w.Left, -w.Top, w.Right-width, w.Bottom-height, 0)
}

// ReconstructionOutput holds the named coefficient arrays predicted for one face.
type ReconstructionOutput struct {
	Coefficients map[string][]float32
	Landmarks    *LandmarkSet
}
