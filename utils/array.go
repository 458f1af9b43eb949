package utils

import (
	"unsafe"
)

// BytesToT32 reinterprets a raw little-endian tensor payload as 4-byte elements without copying.
func BytesToT32[T int32 | float32](arr []byte) []T {
	if len(arr) < 4 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&arr[0])), len(arr)/4)
}

// BytesToT64 reinterprets a raw little-endian tensor payload as 8-byte elements without copying.
func BytesToT64[T int64 | float64](arr []byte) []T {
	if len(arr) < 8 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&arr[0])), len(arr)/8)
}

func Float64sToFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func Float32sToFloat64s(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
