package conv

import (
	"github.com/born-ml/accelconv/internal/device"
)

// unrollRange partitions the im2col launch as (batch, channel, spatial):
// one work item per input cell, the spatial extent rounded up to a whole
// number of groups. Items past H*W return early in the kernel.
func unrollRange(p Params, groupSize int) device.NDRange {
	return device.NDRange{
		Global: [3]int{p.Batch, p.InChannels, device.RoundUp(p.Height*p.Width, groupSize)},
		Local:  [3]int{1, 1, groupSize},
	}
}

// unroll allocates the unrolled buffer and enqueues the im2col kernel that fills it.
//
// Unrolled row c*K*K + p*K + q, column rowOut*WOut + colOut holds
// input[c, rowOut*stride+p, colOut*stride+q].
func (e *Engine) unroll(res *resources, p Params, input device.Buffer) (device.Buffer, error) {
	unrolled, err := res.allocate("allocate unrolled", p.UnrolledBytes(), device.ReadWrite, nil)
	if err != nil {
		return nil, err
	}

	k, err := res.kernel(device.KernelIm2col)
	if err != nil {
		return nil, err
	}

	r := unrollRange(p, e.opts.TileWidth*e.opts.TileWidth)
	if err := res.dc.EnqueueKernel(k, p.im2colArgs(unrolled, input), r); err != nil {
		return nil, fail(KindDispatch, "enqueue im2col", err)
	}
	return unrolled, nil
}
