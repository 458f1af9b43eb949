package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gorgonia.org/tensor"
)

var ErrEmptyImage = errors.New("image is empty")

// ConvertImageToMat decodes an encoded image into an RGB Mat. Formats OpenCV cannot read
// (webp builds without codec, bmp variants, tiff) go through the Go decoders instead.
func ConvertImageToMat(bImage []byte) (*gocv.Mat, error) {
	srcMat, err := gocv.IMDecode(bImage, gocv.IMReadColor)
	if err == nil && srcMat.Empty() {
		_ = srcMat.Close()
		err = ErrEmptyImage
	}
	if err != nil {
		img, _, dErr := image.Decode(bytes.NewReader(bImage))
		if dErr != nil {
			return nil, fmt.Errorf("decode image: %w", errors.Join(err, dErr))
		}
		srcMat, err = gocv.ImageToMatRGB(img)
		if err != nil {
			return nil, err
		}
	}
	defer srcMat.Close()

	dstMat := gocv.NewMat()
	gocv.CvtColor(srcMat, &dstMat, gocv.ColorBGRToRGB)
	return &dstMat, nil
}

// ReadImageFile loads an image file into an RGB Mat.
func ReadImageFile(fPath string) (*gocv.Mat, error) {
	content, err := os.ReadFile(fPath)
	if err != nil {
		return nil, err
	}
	return ConvertImageToMat(content)
}

// MatToCHWTensor converts an 8-bit HWC Mat to a (1, C, H, W) float32 tensor, multiplying every
// value by scale.
func MatToCHWTensor(img gocv.Mat, scale float32) (*tensor.Dense, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}
	rows, cols, channels := img.Rows(), img.Cols(), img.Channels()
	plane := rows * cols
	backing := make([]float32, channels*plane)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			vec := img.GetVecbAt(y, x)
			for z := 0; z < channels; z++ {
				backing[z*plane+y*cols+x] = float32(vec[z]) * scale
			}
		}
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(1, channels, rows, cols),
		tensor.WithBacking(backing),
	), nil
}

// OpenCVImageToJPEG writes an RGB Mat to fPath.
func OpenCVImageToJPEG(fPath string, jpegQuality int, img gocv.Mat) error {
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(img, &bgr, gocv.ColorRGBToBGR)

	outImg, err := bgr.ToImage()
	if err != nil {
		return err
	}

	f, err := os.Create(fPath)
	if err != nil {
		return err
	}
	defer f.Close()

	opt := jpeg.Options{
		Quality: jpegQuality,
	}
	err = jpeg.Encode(f, outImg, &opt)
	if err != nil {
		return err
	}
	return nil
}
