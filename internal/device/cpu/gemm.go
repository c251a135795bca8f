package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/accelconv/internal/device"
	"github.com/born-ml/accelconv/internal/parallel"
)

// EnqueueGemm appends a (batched) GEMM to the command stream.
func (c *Context) EnqueueGemm(args device.GemmArgs) error {
	const op = "enqueue gemm"
	if err := args.Validate(); err != nil {
		return &device.StatusError{Op: op, Status: device.StatusInvalidValue, Err: err}
	}
	if args.BatchCount > 1 && !c.cfg.BatchedGemm {
		return device.Errorf(op, device.StatusInvalidValue, "batched gemm not supported by this device")
	}
	if args.BatchCount > 1 && args.StrideC < args.M*args.N {
		return device.Errorf(op, device.StatusInvalidValue, "output stride %d overlaps %dx%d results", args.StrideC, args.M, args.N)
	}
	for _, buf := range []device.Buffer{args.A, args.B, args.C} {
		if _, err := c.lookup(op, buf); err != nil {
			return err
		}
	}

	c.enqueue("gemm", func() error { return c.runGemm(args) }, args.C)
	return nil
}

// runGemm executes every batch element through blas32.Gemm.
func (c *Context) runGemm(g device.GemmArgs) error {
	a, err := c.resolve("gemm", g.A, true, false)
	if err != nil {
		return err
	}
	b, err := c.resolve("gemm", g.B, true, false)
	if err != nil {
		return err
	}
	out, err := c.resolve("gemm", g.C, g.Beta != 0, true)
	if err != nil {
		return err
	}

	cfg := c.cfg.Parallel
	cfg.MinChunkSize = 1
	return parallel.ForErr(g.BatchCount, func(i int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = device.Errorf("gemm", device.StatusGemmFailed, "batch %d: %v", i, r)
			}
		}()
		offA := g.OffsetA + i*g.StrideA
		offB := g.OffsetB + i*g.StrideB
		offC := g.OffsetC + i*g.StrideC
		blas32.Gemm(blas.NoTrans, blas.NoTrans, g.Alpha,
			general(a[offA:offA+g.M*g.K], g.M, g.K),
			general(b[offB:offB+g.K*g.N], g.K, g.N),
			g.Beta,
			general(out[offC:offC+g.M*g.N], g.M, g.N),
		)
		return nil
	}, cfg)
}

// general views a row-major slice as a rows x cols BLAS matrix.
func general(data []float32, rows, cols int) blas32.General {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("gemm: %dx%d matrix over %d elements", rows, cols, len(data)))
	}
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}
