package conv

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/born-ml/accelconv/internal/device"
)

// gemmArgs formulates the whole batch as one GEMM:
//
//	Output[b] = 1 * Weights x Unrolled[b] + 0 * Output[b]
//
// Weights [M, C*K*K] are shared (stride 0); Unrolled[b] [C*K*K, HOut*WOut]
// and Output[b] [M, HOut*WOut] advance by one matrix per batch element.
func gemmArgs(p Params, weights, unrolled, output device.Buffer) device.GemmArgs {
	m, k, n := p.OutChannels, p.UnrollRows(), p.UnrollCols()
	return device.GemmArgs{
		M:          m,
		N:          n,
		K:          k,
		Alpha:      1,
		Beta:       0,
		A:          weights,
		B:          unrolled,
		C:          output,
		StrideA:    0,
		StrideB:    k * n,
		StrideC:    m * n,
		BatchCount: p.Batch,
	}
}

// multiply enqueues the batched GEMM, falling back to one call per batch
// element when the device has no batched entry point.
func (e *Engine) multiply(dc device.Context, p Params, weights, unrolled, output device.Buffer) error {
	args := gemmArgs(p, weights, unrolled, output)

	if dc.Capabilities().BatchedGemm && !e.opts.PerBatchGemm {
		if err := dc.EnqueueGemm(args); err != nil {
			return fail(KindDispatch, "batched gemm", err)
		}
		return nil
	}

	klog.V(2).Infof("conv: per-batch gemm fallback (%d calls)", args.BatchCount)
	for b := 0; b < args.BatchCount; b++ {
		if err := dc.EnqueueGemm(args.Single(b)); err != nil {
			return fail(KindDispatch, fmt.Sprintf("gemm batch %d", b), err)
		}
	}
	return nil
}
