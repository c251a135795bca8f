// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go accelerator for the convolution engine.
//
// # Overview
//
// The device executes the same programs as the GPU backend:
//   - im2col unroll kernel
//   - direct convolution kernel
//   - batched GEMM through gonum BLAS
//
// It keeps the accelerator contract: commands run in submission order,
// a failed command drops everything queued after it, and Finish reports
// the first failure. Buffers a failed or dropped command would have written
// report that failure when read.
//
// A Device may be shared. conv.Engine holds the device lock for each pass,
// so concurrent passes run one after the other.
//
// # Basic Usage
//
//	dev := cpu.New()
//	y, err := conv.New(conv.DefaultOptions()).Forward(dev, x, w, 1)
//
// # Configuration
//
//	cfg := cpu.DefaultConfig()
//	cfg.BatchedGemm = false // one GEMM call per batch element
//	dev := cpu.NewWithConfig(cfg)
package cpu
