// Package webgpu implements device.Context on a GPU through WebGPU.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// The compiled program holds the same entry points as the cpu device: the
// im2col unroll, the direct convolution and a batched GEMM. Launch dimension d
// of a device.NDRange maps to WGSL axis 2-d, so the widest dimension of every
// launch lands on x, which has the largest per-axis workgroup limit.
package webgpu

import "errors"

// ErrUnavailable is returned by Open when no WebGPU adapter can be used.
var ErrUnavailable = errors.New("webgpu: not available")
