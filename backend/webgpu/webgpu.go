// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU accelerator for the convolution engine.
//
// The device is only available on Windows, where the go-webgpu bindings load
// the wgpu-native library. Elsewhere Open returns ErrUnavailable.
//
// Example:
//
//	import (
//	    "github.com/born-ml/accelconv/backend/cpu"
//	    "github.com/born-ml/accelconv/backend/webgpu"
//	    "github.com/born-ml/accelconv/conv"
//	)
//
//	func main() {
//	    var dev conv.Device = cpu.New()
//	    if gpu, release, err := webgpu.Open(); err == nil {
//	        defer release()
//	        dev = gpu
//	    }
//	    y, err := conv.New(conv.DefaultOptions()).Forward(dev, x, w, 1)
//	}
package webgpu

import (
	"github.com/born-ml/accelconv/internal/device"
	internalwebgpu "github.com/born-ml/accelconv/internal/device/webgpu"
)

// ErrUnavailable is returned by Open when no WebGPU adapter can be used.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// Open initializes a WebGPU device and returns it with its release function.
func Open() (device.Context, func(), error) {
	return internalwebgpu.Open()
}

// IsAvailable checks if WebGPU is available on the current system.
//
// It opens and immediately releases a device. Useful for a graceful
// fallback to the cpu backend.
func IsAvailable() bool {
	_, release, err := internalwebgpu.Open()
	if err != nil {
		return false
	}
	release()
	return true
}
