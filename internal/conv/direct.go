package conv

import (
	"github.com/born-ml/accelconv/internal/device"
)

// directRange tiles the output plane in TxT work-groups, one plane per
// (batch, out channel): global (WOut, HOut, B*M) rounded up to the tile.
func directRange(p Params, tile int) device.NDRange {
	return device.NDRange{
		Global: [3]int{
			device.RoundUp(p.OutWidth(), tile),
			device.RoundUp(p.OutHeight(), tile),
			p.Batch * p.OutChannels,
		},
		Local: [3]int{tile, tile, 1},
	}
}

// direct enqueues the direct convolution kernel writing straight into output.
func (e *Engine) direct(res *resources, p Params, input, weights, output device.Buffer) error {
	k, err := res.kernel(device.KernelDirectConv)
	if err != nil {
		return err
	}
	r := directRange(p, e.opts.TileWidth)
	if err := res.dc.EnqueueKernel(k, p.directArgs(output, input, weights), r); err != nil {
		return fail(KindDispatch, "enqueue direct conv", err)
	}
	return nil
}
