// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/born-ml/accelconv/internal/device"
	internalcpu "github.com/born-ml/accelconv/internal/device/cpu"
)

// Device represents the software accelerator.
//
// Buffers are host slices, kernels run as work-groups on a goroutine pool
// and GEMM is computed with gonum's BLAS.
type Device = internalcpu.Context

// Config controls worker count, work-group and allocation limits.
type Config = internalcpu.Config

// Compile-time check that Device implements the accelerator interface.
var _ device.Context = (*Device)(nil)

// DefaultConfig returns a configuration using every CPU.
func DefaultConfig() Config {
	return internalcpu.DefaultConfig()
}

// New creates a software accelerator with the default configuration.
//
// Example:
//
//	import (
//	    "github.com/born-ml/accelconv/backend/cpu"
//	    "github.com/born-ml/accelconv/conv"
//	)
//
//	func main() {
//	    dev := cpu.New()
//	    y, err := conv.New(conv.DefaultOptions()).Forward(dev, x, w, 1)
//	}
func New() *Device {
	return internalcpu.New(internalcpu.DefaultConfig())
}

// NewWithConfig creates a software accelerator with an explicit configuration.
func NewWithConfig(cfg Config) *Device {
	return internalcpu.New(cfg)
}
