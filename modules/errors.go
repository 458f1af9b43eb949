package modules

import (
	"errors"
	"fmt"
)

var ErrLandmarkShape = errors.New("unexpected landmark shape")

// NoDetectionError is returned when the detector finds no face in an image.
type NoDetectionError struct {
	Index int
}

func (e *NoDetectionError) Error() string {
	return fmt.Sprintf("cannot find valid face in image %d", e.Index)
}

// LowConfidenceError is returned when the best face candidate scores at or below the threshold.
type LowConfidenceError struct {
	Index      int
	Confidence float32
	Threshold  float32
}

func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("cannot find valid face in image %d: confidence %.4f <= %.2f", e.Index, e.Confidence, e.Threshold)
}

// DegenerateGeometryError is returned when the landmarks yield an unusable solver scale.
type DegenerateGeometryError struct {
	Scale float64
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("degenerate landmark geometry: solver scale %g", e.Scale)
}

// ConfigurationError is returned when the reference landmarks or params cannot be used.
type ConfigurationError struct {
	Source string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
