package config

import "gorgonia.org/tensor"

// DefaultReferenceLandmarks3D returns the standard 5-point 3D face (left eye, right eye, nose,
// mouth left, mouth right) reduced from the BFM 68-point similarity landmarks.
func DefaultReferenceLandmarks3D() *tensor.Dense {
	return tensor.New(
		tensor.Of(tensor.Float64),
		tensor.WithShape(5, 3),
		tensor.WithBacking([]float64{
			-0.31148657, 0.29036078, 0.13377953,
			0.30979887, 0.28972036, 0.13179526,
			0.0032535, -0.04617932, 0.55244243,
			-0.25216928, -0.38133916, 0.22405732,
			0.2484662, -0.38128236, 0.22235769,
		}),
	)
}
