package modules

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/okieraised/go-face3d-pipeline/config"
	"github.com/okieraised/go-face3d-pipeline/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const defaultBlurSigma = 3.0

// MaxResizeFactor bounds the resized image side at MaxResizeFactor * (targetSize + longest
// original side). Larger requests come from collapsed landmarks and are rejected.
const MaxResizeFactor = 16

// CanvasMapping converts points between the original image and the aligned canvas. Both sides
// use the bottom-up y convention.
type CanvasMapping struct {
	OriginalWidth  int
	OriginalHeight int
	ResizedWidth   int
	ResizedHeight  int
	TargetSize     int
	TranslateX     float64
	TranslateY     float64
	Scale          float64
}

func (m CanvasMapping) offset() (float64, float64) {
	return float64(m.ResizedWidth)/2 - float64(m.TargetSize)/2, float64(m.ResizedHeight)/2 - float64(m.TargetSize)/2
}

// Forward maps an original-image point onto the canvas.
func (m CanvasMapping) Forward(x, y float64) (float64, float64) {
	ox, oy := m.offset()
	return (x-m.TranslateX+float64(m.OriginalWidth)/2)*m.Scale - ox,
		(y-m.TranslateY+float64(m.OriginalHeight)/2)*m.Scale - oy
}

// Inverse maps a canvas point back onto the original image.
func (m CanvasMapping) Inverse(x, y float64) (float64, float64) {
	ox, oy := m.offset()
	return (x+ox)/m.Scale + m.TranslateX - float64(m.OriginalWidth)/2,
		(y+oy)/m.Scale + m.TranslateY - float64(m.OriginalHeight)/2
}

func (m CanvasMapping) apply(lm *config.LandmarkSet, fn func(x, y float64) (float64, float64)) (*config.LandmarkSet, error) {
	if lm.Convention != config.CartesianConvention {
		return nil, fmt.Errorf("canvas mapping expects %s landmarks, got %s", config.CartesianConvention, lm.Convention)
	}
	flat := lm.Flat()
	for i := 0; i+1 < len(flat); i += 2 {
		flat[i], flat[i+1] = fn(flat[i], flat[i+1])
	}
	return config.NewLandmarkSet(flat, config.CartesianConvention)
}

// ForwardLandmarks maps a bottom-up landmark set onto the canvas.
func (m CanvasMapping) ForwardLandmarks(lm *config.LandmarkSet) (*config.LandmarkSet, error) {
	return m.apply(lm, m.Forward)
}

// InverseLandmarks maps canvas landmarks back onto the original image.
func (m CanvasMapping) InverseLandmarks(lm *config.LandmarkSet) (*config.LandmarkSet, error) {
	return m.apply(lm, m.Inverse)
}

// ResampleResult is the output of FaceResampler.ResizeAndCrop. Image and Mask must be closed
// by the caller.
type ResampleResult struct {
	Image     gocv.Mat
	Mask      *gocv.Mat
	Landmarks *config.LandmarkSet
	Window    config.CropWindow
	Pad       int
	Mapping   CanvasMapping
}

func (r *ResampleResult) Close() error {
	var errs []error
	errs = append(errs, r.Image.Close())
	if r.Mask != nil {
		errs = append(errs, r.Mask.Close())
	}
	return errors.Join(errs...)
}

type FaceResampler struct {
	logger *zap.Logger
}

func NewFaceResampler(logger *zap.Logger) *FaceResampler {
	return &FaceResampler{logger: utils.LoggerOrNop(logger)}
}

// CropWindowFor computes the resized image size and the target-size window that puts the
// bottom-up point translation at the canvas centre.
func CropWindowFor(origW, origH int, translation [2]float64, scale float64, targetSize int) (config.Size, config.CropWindow) {
	w := int(math.Round(float64(origW) * scale))
	h := int(math.Round(float64(origH) * scale))
	half := float64(targetSize) / 2
	left := int(float64(w)/2 - half + (translation[0]-float64(origW)/2)*scale)
	top := int(float64(h)/2 - half + (float64(origH)/2-translation[1])*scale)
	return config.Size{Width: w, Height: h}, config.CropWindow{
		Left:   left,
		Top:    top,
		Right:  left + targetSize,
		Bottom: top + targetSize,
	}
}

// ResizeInterpolation picks area averaging when shrinking and Lanczos4 otherwise.
func ResizeInterpolation(scale float64) gocv.InterpolationFlags {
	if scale < 1 {
		return gocv.InterpolationArea
	}
	return gocv.InterpolationLanczos4
}

// ResizeAndCrop scales img by scale and cuts a targetSize square around translation. Windows
// reaching past the resized image are served from a reflect-padded copy whose synthetic
// border is blurred with blurSigma (default 3, 0 disables). Landmarks must be bottom-up.
func (c *FaceResampler) ResizeAndCrop(
	img gocv.Mat,
	lm *config.LandmarkSet,
	translation [2]float64,
	scale float64,
	targetSize int,
	mask *gocv.Mat,
	blurSigma *float64,
) (*ResampleResult, error) {
	if img.Empty() {
		return nil, utils.ErrEmptyImage
	}
	if targetSize <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %d", targetSize)
	}
	if !(scale > 0) || math.IsInf(scale, 0) {
		return nil, &DegenerateGeometryError{Scale: scale}
	}
	if mask != nil && (mask.Rows() != img.Rows() || mask.Cols() != img.Cols()) {
		return nil, fmt.Errorf("mask size %v does not match image size %v", mask.Size(), img.Size())
	}
	sigma := utils.DerefOr(blurSigma, defaultBlurSigma)

	origW, origH := img.Cols(), img.Rows()
	if !resizeWithinBounds(origW, origH, scale, targetSize) {
		return nil, &DegenerateGeometryError{Scale: scale}
	}
	size, window := CropWindowFor(origW, origH, translation, scale, targetSize)
	if size.Width < 1 || size.Height < 1 {
		return nil, &DegenerateGeometryError{Scale: scale}
	}

	mapping := CanvasMapping{
		OriginalWidth:  origW,
		OriginalHeight: origH,
		ResizedWidth:   size.Width,
		ResizedHeight:  size.Height,
		TargetSize:     targetSize,
		TranslateX:     translation[0],
		TranslateY:     translation[1],
		Scale:          scale,
	}
	var newLm *config.LandmarkSet
	if lm != nil {
		var err error
		newLm, err = mapping.ForwardLandmarks(lm)
		if err != nil {
			return nil, err
		}
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Point{X: size.Width, Y: size.Height}, 0, 0, ResizeInterpolation(scale))

	pad := 0
	cropFrom := resized
	if !window.Inside(size.Width, size.Height) {
		pad = window.PadNeeded(size.Width, size.Height)
		c.logger.Debug("padding resized image",
			zap.Int("pad", pad),
			zap.Int("width", size.Width),
			zap.Int("height", size.Height),
			zap.Any("window", window),
		)
		padded := reflectPad(resized, pad)
		defer padded.Close()
		if sigma > 0 {
			blurred := gocv.NewMat()
			defer blurred.Close()
			gocv.GaussianBlur(padded, &blurred, image.Point{}, sigma, sigma, gocv.BorderReflect101)
			paste(resized, blurred, pad)
			cropFrom = blurred
		} else {
			cropFrom = padded
		}
		window = window.Shift(pad)
	}

	result := &ResampleResult{
		Image:     crop(cropFrom, window),
		Landmarks: newLm,
		Window:    window,
		Pad:       pad,
		Mapping:   mapping,
	}

	if mask != nil {
		resizedMask := gocv.NewMat()
		defer resizedMask.Close()
		gocv.Resize(*mask, &resizedMask, image.Point{X: size.Width, Y: size.Height}, 0, 0, ResizeInterpolation(scale))
		maskFrom := resizedMask
		if pad > 0 {
			paddedMask := reflectPad(resizedMask, pad)
			defer paddedMask.Close()
			maskFrom = paddedMask
		}
		croppedMask := crop(maskFrom, window)
		result.Mask = &croppedMask
	}

	return result, nil
}

// resizeWithinBounds reports whether resizing origW x origH by scale stays below the
// MaxResizeFactor limit and the int32 range used by OpenCV.
func resizeWithinBounds(origW, origH int, scale float64, targetSize int) bool {
	limit := math.Min(float64(MaxResizeFactor*(targetSize+max(origW, origH))), math.MaxInt32)
	return float64(origW)*scale <= limit && float64(origH)*scale <= limit
}

func reflectPad(src gocv.Mat, pad int) gocv.Mat {
	dst := gocv.NewMat()
	gocv.CopyMakeBorder(src, &dst, pad, pad, pad, pad, gocv.BorderReflect101, color.RGBA{})
	return dst
}

// paste copies src into dst with its top-left corner at (offset, offset).
func paste(src, dst gocv.Mat, offset int) {
	roi := dst.Region(image.Rect(offset, offset, offset+src.Cols(), offset+src.Rows()))
	defer roi.Close()
	src.CopyTo(&roi)
}

func crop(src gocv.Mat, window config.CropWindow) gocv.Mat {
	roi := src.Region(window.Rect())
	defer roi.Close()
	return roi.Clone()
}
