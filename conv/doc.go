// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package conv computes 2D convolutions on an accelerator.
//
// # Overview
//
// A forward pass computes the valid cross-correlation of an input batch
// [N, C, H, W] with filters [M, C, K, K] at a given stride:
//
//	Ho = (H-K)/stride + 1
//	Wo = (W-K)/stride + 1
//	y[n,m,i,j] = sum_{c,p,q} x[n,c,i*stride+p,j*stride+q] * w[m,c,p,q]
//
// Two strategies are available:
//   - Unroll: an im2col kernel expands every receptive field into a column,
//     then one batched GEMM multiplies the filters by the unrolled matrix.
//   - Direct: one work item per output element accumulates its window.
//
// Auto uses Unroll unless the unrolled buffer exceeds Options.UnrollLimitBytes.
//
// # Resource Handling
//
// The engine borrows the Device and never closes it. Every buffer and
// kernel a pass creates is released before Forward returns, on success and
// on failure. Device failures are reported as *Error carrying the failed
// step and the accelerator status.
package conv
