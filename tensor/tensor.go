// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/accelconv/internal/tensor"
)

// Type aliases for public API

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Float32 is the only element type the convolution engine computes in.
const Float32 DataType = tensor.Float32

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4, 4} is a batch of two 3-channel 4x4 planes.
type Shape = tensor.Shape

// Tensor is a dense row-major float32 tensor.
type Tensor = tensor.Tensor

// Image is an interleaved rows x cols x channels image as stored on disk.
type Image = tensor.Image

// Matrix is a row-major 2D filter.
type Matrix = tensor.Matrix

// New returns a zero-filled tensor of the given shape.
func New(shape Shape) (*Tensor, error) {
	return tensor.New(shape)
}

// FromData wraps data in a tensor of the given shape without copying.
//
// Example:
//
//	x, err := tensor.FromData(tensor.Shape{1, 1, 3, 3}, []float32{
//	    1, 2, 3,
//	    4, 5, 6,
//	    7, 8, 9,
//	})
func FromData(shape Shape, data []float32) (*Tensor, error) {
	return tensor.FromData(shape, data)
}

// MustFromData is like FromData but panics on a shape mismatch.
func MustFromData(shape Shape, data []float32) *Tensor {
	return tensor.MustFromData(shape, data)
}

// NewImage returns a zero-filled interleaved image.
func NewImage(rows, cols, channels int) (*Image, error) {
	return tensor.NewImage(rows, cols, channels)
}

// ImageFromPlanar converts a [C, 1, H, W] or [C, H, W] planar tensor back to
// an interleaved image.
func ImageFromPlanar(t *Tensor) (*Image, error) {
	return tensor.ImageFromPlanar(t)
}
