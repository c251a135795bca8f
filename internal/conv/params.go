// Package conv implements the convolution forward-pass engine: buffer
// lifecycle on an injected device.Context, the unroll (im2col) transform,
// the batched matrix-multiply formulation and the direct convolution path.
package conv

import (
	"fmt"

	"github.com/born-ml/accelconv/internal/device"
	"github.com/born-ml/accelconv/internal/tensor"
)

// elementSize is the byte size of a device element (float32).
var elementSize = tensor.Float32.Size()

// Params is the geometry of one forward pass.
//
// Input is [Batch, InChannels, Height, Width], weights are
// [OutChannels, InChannels, Kernel, Kernel], output is
// [Batch, OutChannels, OutHeight(), OutWidth()].
type Params struct {
	Batch       int
	InChannels  int
	OutChannels int
	Height      int
	Width       int
	Kernel      int
	Stride      int
}

// ParamsFor derives the geometry from an input and weight shape.
func ParamsFor(input, weights tensor.Shape, stride int) (Params, error) {
	if len(input) != 4 {
		return Params{}, fmt.Errorf("%w: input must be 4D [N,C,H,W], got %v", ErrGeometry, input)
	}
	if len(weights) != 4 {
		return Params{}, fmt.Errorf("%w: weights must be 4D [M,C,K,K], got %v", ErrGeometry, weights)
	}
	if weights[2] != weights[3] {
		return Params{}, fmt.Errorf("%w: kernel must be square, got %dx%d", ErrGeometry, weights[2], weights[3])
	}
	if input[1] != weights[1] {
		return Params{}, fmt.Errorf("%w: input channels %d != weight channels %d", ErrGeometry, input[1], weights[1])
	}
	p := Params{
		Batch:       input[0],
		InChannels:  input[1],
		OutChannels: weights[0],
		Height:      input[2],
		Width:       input[3],
		Kernel:      weights[2],
		Stride:      stride,
	}
	return p, p.Validate()
}

// Validate rejects geometries with no valid output position.
func (p Params) Validate() error {
	switch {
	case p.Batch <= 0 || p.InChannels <= 0 || p.OutChannels <= 0:
		return fmt.Errorf("%w: batch %d, in channels %d, out channels %d must be positive",
			ErrGeometry, p.Batch, p.InChannels, p.OutChannels)
	case p.Height <= 0 || p.Width <= 0:
		return fmt.Errorf("%w: input extent %dx%d must be positive", ErrGeometry, p.Height, p.Width)
	case p.Kernel <= 0:
		return fmt.Errorf("%w: kernel size %d must be positive", ErrGeometry, p.Kernel)
	case p.Kernel > p.Height || p.Kernel > p.Width:
		return fmt.Errorf("%w: kernel %d larger than input %dx%d", ErrGeometry, p.Kernel, p.Height, p.Width)
	case p.Stride <= 0:
		return fmt.Errorf("%w: stride %d must be positive", ErrGeometry, p.Stride)
	}
	return nil
}

// OutHeight returns floor((H-K)/stride)+1.
func (p Params) OutHeight() int { return (p.Height-p.Kernel)/p.Stride + 1 }

// OutWidth returns floor((W-K)/stride)+1.
func (p Params) OutWidth() int { return (p.Width-p.Kernel)/p.Stride + 1 }

// OutputShape returns [Batch, OutChannels, OutHeight, OutWidth].
func (p Params) OutputShape() tensor.Shape {
	return tensor.Shape{p.Batch, p.OutChannels, p.OutHeight(), p.OutWidth()}
}

// UnrollRows is the row count of one unrolled matrix: InChannels*K*K.
func (p Params) UnrollRows() int { return p.InChannels * p.Kernel * p.Kernel }

// UnrollCols is the column count of one unrolled matrix: OutHeight*OutWidth.
func (p Params) UnrollCols() int { return p.OutHeight() * p.OutWidth() }

// InputBytes is the device size of the input tensor.
func (p Params) InputBytes() int {
	return p.Batch * p.InChannels * p.Height * p.Width * elementSize
}

// WeightBytes is the device size of the weight tensor.
func (p Params) WeightBytes() int {
	return p.OutChannels * p.UnrollRows() * elementSize
}

// UnrolledBytes is the device size of the unrolled input [B, C*K*K, HOut*WOut].
func (p Params) UnrolledBytes() int {
	return p.Batch * p.UnrollRows() * p.UnrollCols() * elementSize
}

// OutputBytes is batch * out_channels * HOut * WOut * element size.
func (p Params) OutputBytes() int {
	return p.Batch * p.OutChannels * p.UnrollCols() * elementSize
}

// String formats the geometry for diagnostics.
func (p Params) String() string {
	return fmt.Sprintf("B=%d M=%d C=%d H=%d W=%d K=%d stride=%d -> %dx%d",
		p.Batch, p.OutChannels, p.InChannels, p.Height, p.Width, p.Kernel, p.Stride, p.OutHeight(), p.OutWidth())
}

// im2colArgs builds the unroll kernel argument block.
func (p Params) im2colArgs(unrolled, input device.Buffer) device.Im2colArgs {
	return device.Im2colArgs{
		Unrolled: unrolled,
		Input:    input,
		Batch:    p.Batch,
		Channels: p.InChannels,
		Height:   p.Height,
		Width:    p.Width,
		Kernel:   p.Kernel,
		Stride:   p.Stride,
	}
}

// directArgs builds the direct kernel argument block.
func (p Params) directArgs(output, input, weights device.Buffer) device.DirectConvArgs {
	return device.DirectConvArgs{
		Output:      output,
		Input:       input,
		Weights:     weights,
		Batch:       p.Batch,
		OutChannels: p.OutChannels,
		InChannels:  p.InChannels,
		Height:      p.Height,
		Width:       p.Width,
		Kernel:      p.Kernel,
		Stride:      p.Stride,
	}
}
