// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the data types exchanged with the convolution engine.
//
// # Overview
//
// The engine works on planar float32 tensors:
//   - Input: [N, C, H, W]
//   - Weights: [M, C, K, K]
//   - Output: [N, M, Ho, Wo]
//
// Images are stored interleaved (rows x cols x channels). Image.Planar and
// ImageFromPlanar convert between the two layouts.
//
// # Basic Usage
//
//	img, _ := tensor.NewImage(4, 4, 3)
//	planar := img.Planar()                           // [3, 4, 4]
//	x, _ := planar.Reshape(tensor.Shape{3, 1, 4, 4}) // channels as batch
//	_ = x
package tensor
