// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conv

import (
	"github.com/born-ml/accelconv/internal/conv"
	"github.com/born-ml/accelconv/internal/device"
	"github.com/born-ml/accelconv/internal/tensor"
)

// Engine runs convolution forward passes on a borrowed Device.
type Engine = conv.Engine

// Options configures an Engine.
type Options = conv.Options

// Strategy selects the unroll+GEMM path or the direct kernel.
type Strategy = conv.Strategy

// Strategies.
const (
	Auto   Strategy = conv.Auto
	Unroll Strategy = conv.Unroll
	Direct Strategy = conv.Direct
)

// Params is the geometry of one forward pass.
type Params = conv.Params

// Device is the accelerator a pass runs on. See backend/cpu and backend/webgpu.
type Device = device.Context

// Error is a failed step of a forward pass.
type Error = conv.Error

// Kind classifies an accelerator failure.
type Kind = conv.Kind

// Failure kinds.
const (
	KindResource Kind = conv.KindResource
	KindTransfer Kind = conv.KindTransfer
	KindDispatch Kind = conv.KindDispatch
)

// Sentinel errors, matched with errors.Is.
var (
	ErrResource = conv.ErrResource
	ErrTransfer = conv.ErrTransfer
	ErrDispatch = conv.ErrDispatch
	ErrGeometry = conv.ErrGeometry
)

// New creates an engine.
//
// Example:
//
//	engine := conv.New(conv.DefaultOptions())
//	y, err := engine.Forward(cpu.New(), x, w, 2)
//	if errors.Is(err, conv.ErrResource) {
//	    // retry with conv.Direct
//	}
func New(opts Options) *Engine {
	return conv.New(opts)
}

// DefaultOptions returns the auto strategy with 16-wide tiles.
func DefaultOptions() Options {
	return conv.DefaultOptions()
}

// ParseStrategy parses "auto", "unroll" or "direct".
func ParseStrategy(s string) (Strategy, error) {
	return conv.ParseStrategy(s)
}

// ParamsFor derives the pass geometry from input [N, C, H, W] and weights
// [M, C, K, K].
func ParamsFor(input, weights tensor.Shape, stride int) (Params, error) {
	return conv.ParamsFor(input, weights, stride)
}
