package conv

import (
	"errors"
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	"github.com/born-ml/accelconv/internal/device"
	"github.com/born-ml/accelconv/internal/tensor"
)

// Engine runs convolution forward passes on a borrowed device.Context.
// An Engine holds no per-pass state and may be shared between goroutines.
// Passes sharing a context that implements sync.Locker hold its lock, so
// their command sequences never interleave.
type Engine struct {
	opts Options
}

// New creates an engine. Zero-valued tile width and unroll limit fall back
// to DefaultOptions.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.TileWidth <= 0 {
		opts.TileWidth = def.TileWidth
	}
	if opts.UnrollLimitBytes == 0 {
		opts.UnrollLimitBytes = def.UnrollLimitBytes
	}
	return &Engine{opts: opts}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Forward computes the cross-correlation of input [N, C, H, W] with weights
// [M, C, K, K] at the given stride and returns [N, M, HOut, WOut].
//
// The pass allocates, uploads, dispatches, downloads and releases in strict
// order on dc's command stream. Any device failure aborts the pass with an
// *Error; every buffer and kernel created by the pass is released on all paths.
// dc itself is never closed.
func (e *Engine) Forward(dc device.Context, input, weights *tensor.Tensor, stride int) (out *tensor.Tensor, err error) {
	p, err := ParamsFor(input.Shape(), weights.Shape(), stride)
	if err != nil {
		return nil, err
	}
	strategy := e.opts.resolve(p, dc.Capabilities())
	klog.V(2).Infof("conv: forward on %s, %s, strategy %s", dc.Name(), p, strategy)

	if l, ok := dc.(sync.Locker); ok {
		l.Lock()
		defer l.Unlock()
	}

	res := newResources(dc)
	defer func() {
		if err != nil {
			// Drop whatever the failed pass left queued before its buffers go away.
			if derr := dc.Finish(); derr != nil {
				klog.V(2).Infof("conv: draining stream after failure: %v", derr)
			}
		}
		if rerr := res.release(); rerr != nil {
			out, err = nil, errors.Join(err, rerr)
		}
		if sr, ok := dc.(device.StatsReporter); ok {
			st := sr.Stats()
			klog.V(3).Infof("conv: %s holds %d buffers (%d bytes) and %d kernels after the pass",
				dc.Name(), st.ActiveBuffers(), st.ActiveBytes, st.ActiveKernels())
		}
	}()

	xBuf, wBuf, yBuf, err := e.allocate(res, p, input, weights)
	if err != nil {
		return nil, err
	}

	switch strategy {
	case Direct:
		err = e.direct(res, p, xBuf, wBuf, yBuf)
	case Unroll:
		var unrolled device.Buffer
		if unrolled, err = e.unroll(res, p, xBuf); err == nil {
			err = e.multiply(dc, p, wBuf, unrolled, yBuf)
		}
	default:
		err = fmt.Errorf("conv: unsupported strategy %s", strategy)
	}
	if err != nil {
		return nil, err
	}

	if err := dc.Finish(); err != nil {
		return nil, fail(KindDispatch, "finish "+strategy.String(), err)
	}

	out, err = tensor.New(p.OutputShape())
	if err != nil {
		return nil, err
	}
	if err := dc.EnqueueRead(yBuf, out.Data(), true); err != nil {
		return nil, fail(KindTransfer, "download output", err)
	}
	klog.V(2).Infof("conv: forward done, output %v", out.Shape())
	return out, nil
}

// allocate creates the input, weight and output buffers, uploading host data
// either at creation or through blocking writes.
func (e *Engine) allocate(res *resources, p Params, input, weights *tensor.Tensor) (x, w, y device.Buffer, err error) {
	var xInit, wInit []float32
	if e.opts.InitAtCreate {
		xInit, wInit = input.Data(), weights.Data()
	}

	if x, err = res.allocate("allocate input", p.InputBytes(), device.ReadOnly, xInit); err != nil {
		return nil, nil, nil, err
	}
	if w, err = res.allocate("allocate weights", p.WeightBytes(), device.ReadOnly, wInit); err != nil {
		return nil, nil, nil, err
	}
	if y, err = res.allocate("allocate output", p.OutputBytes(), device.WriteOnly, nil); err != nil {
		return nil, nil, nil, err
	}

	if !e.opts.InitAtCreate {
		if err := res.dc.EnqueueWrite(x, input.Data(), true); err != nil {
			return nil, nil, nil, fail(KindTransfer, "upload input", err)
		}
		if err := res.dc.EnqueueWrite(w, weights.Data(), true); err != nil {
			return nil, nil, nil, fail(KindTransfer, "upload weights", err)
		}
	}
	return x, w, y, nil
}
