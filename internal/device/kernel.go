package device

import "fmt"

// Kernel entry point names in the compiled program.
const (
	KernelIm2col     = "im2col"
	KernelDirectConv = "conv_forward_kernel"
)

// KernelArgs is the typed argument block for one kernel entry point.
// Each implementation names the kernel it belongs to, so a launch with the
// wrong argument struct is rejected instead of misbinding positional slots.
type KernelArgs interface {
	KernelName() string
	Validate() error
}

// Im2colArgs are the arguments of the unroll kernel.
//
// Input is [Batch, Channels, Height, Width]; Unrolled is
// [Batch, Channels*Kernel*Kernel, HOut*WOut].
type Im2colArgs struct {
	Unrolled Buffer
	Input    Buffer
	Batch    int
	Channels int
	Height   int
	Width    int
	Kernel   int
	Stride   int
}

// KernelName implements KernelArgs.
func (Im2colArgs) KernelName() string { return KernelIm2col }

// Validate implements KernelArgs.
func (a Im2colArgs) Validate() error {
	if a.Unrolled == nil || a.Input == nil {
		return fmt.Errorf("im2col: nil buffer argument")
	}
	if err := checkGeometry(a.Batch, a.Channels, a.Height, a.Width, a.Kernel, a.Stride); err != nil {
		return fmt.Errorf("im2col: %w", err)
	}
	hOut, wOut := OutputDims(a.Height, a.Width, a.Kernel, a.Stride)
	if need := 4 * a.Batch * a.Channels * a.Height * a.Width; a.Input.Size() < need {
		return fmt.Errorf("im2col: input buffer holds %d bytes, need %d", a.Input.Size(), need)
	}
	if need := 4 * a.Batch * a.Channels * a.Kernel * a.Kernel * hOut * wOut; a.Unrolled.Size() < need {
		return fmt.Errorf("im2col: unrolled buffer holds %d bytes, need %d", a.Unrolled.Size(), need)
	}
	return nil
}

// DirectConvArgs are the arguments of the direct convolution kernel.
//
// Input is [Batch, InChannels, Height, Width], Weights is
// [OutChannels, InChannels, Kernel, Kernel], Output is [Batch, OutChannels, HOut, WOut].
type DirectConvArgs struct {
	Output      Buffer
	Input       Buffer
	Weights     Buffer
	Batch       int
	OutChannels int
	InChannels  int
	Height      int
	Width       int
	Kernel      int
	Stride      int
}

// KernelName implements KernelArgs.
func (DirectConvArgs) KernelName() string { return KernelDirectConv }

// Validate implements KernelArgs.
func (a DirectConvArgs) Validate() error {
	if a.Output == nil || a.Input == nil || a.Weights == nil {
		return fmt.Errorf("conv: nil buffer argument")
	}
	if a.OutChannels <= 0 {
		return fmt.Errorf("conv: out channels must be positive, got %d", a.OutChannels)
	}
	if err := checkGeometry(a.Batch, a.InChannels, a.Height, a.Width, a.Kernel, a.Stride); err != nil {
		return fmt.Errorf("conv: %w", err)
	}
	hOut, wOut := OutputDims(a.Height, a.Width, a.Kernel, a.Stride)
	if need := 4 * a.Batch * a.InChannels * a.Height * a.Width; a.Input.Size() < need {
		return fmt.Errorf("conv: input buffer holds %d bytes, need %d", a.Input.Size(), need)
	}
	if need := 4 * a.OutChannels * a.InChannels * a.Kernel * a.Kernel; a.Weights.Size() < need {
		return fmt.Errorf("conv: weight buffer holds %d bytes, need %d", a.Weights.Size(), need)
	}
	if need := 4 * a.Batch * a.OutChannels * hOut * wOut; a.Output.Size() < need {
		return fmt.Errorf("conv: output buffer holds %d bytes, need %d", a.Output.Size(), need)
	}
	return nil
}

// OutputDims returns the valid-convolution output extent for an H x W input.
func OutputDims(height, width, kernel, stride int) (hOut, wOut int) {
	return (height-kernel)/stride + 1, (width-kernel)/stride + 1
}

func checkGeometry(batch, channels, height, width, kernel, stride int) error {
	switch {
	case batch <= 0 || channels <= 0 || height <= 0 || width <= 0:
		return fmt.Errorf("invalid input dimensions [%d,%d,%d,%d]", batch, channels, height, width)
	case kernel <= 0 || kernel > height || kernel > width:
		return fmt.Errorf("kernel %d does not fit input %dx%d", kernel, height, width)
	case stride <= 0:
		return fmt.Errorf("stride must be positive, got %d", stride)
	}
	return nil
}

// NDRange is a 3D launch configuration: Global work items, grouped Local.
// Global must be a multiple of Local in every dimension.
type NDRange struct {
	Global [3]int
	Local  [3]int
}

// Groups returns the number of work-groups per dimension.
func (r NDRange) Groups() [3]int {
	var g [3]int
	for i := range g {
		g[i] = r.Global[i] / r.Local[i]
	}
	return g
}

// Validate checks that the range is well formed and fits maxGroup items per group.
func (r NDRange) Validate(maxGroup int) error {
	groupSize := 1
	for i := 0; i < 3; i++ {
		if r.Local[i] <= 0 || r.Global[i] <= 0 {
			return &StatusError{Op: "ndrange", Status: StatusInvalidWorkGroupSize,
				Err: fmt.Errorf("non-positive extent in dim %d: global %d local %d", i, r.Global[i], r.Local[i])}
		}
		if r.Global[i]%r.Local[i] != 0 {
			return &StatusError{Op: "ndrange", Status: StatusInvalidGlobalWorkSize,
				Err: fmt.Errorf("global %d not a multiple of local %d in dim %d", r.Global[i], r.Local[i], i)}
		}
		groupSize *= r.Local[i]
	}
	if maxGroup > 0 && groupSize > maxGroup {
		return &StatusError{Op: "ndrange", Status: StatusInvalidWorkGroupSize,
			Err: fmt.Errorf("work-group of %d items exceeds device limit %d", groupSize, maxGroup)}
	}
	return nil
}

// RoundUp rounds n up to the next multiple of m.
func RoundUp(n, m int) int {
	return ((n + m - 1) / m) * m
}
