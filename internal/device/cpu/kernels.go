package cpu

import (
	"fmt"
	"sync"

	"github.com/born-ml/accelconv/internal/device"
	"github.com/born-ml/accelconv/internal/parallel"
)

// workItem is a kernel body executed once per global id.
type workItem func(gid [3]int)

// kernelImpl binds typed arguments to live buffers and returns the kernel body.
type kernelImpl func(c *Context, args device.KernelArgs) (workItem, error)

// kernel is a handle to an entry point of the compiled-in program.
type kernel struct {
	name  string
	owner *Context

	mu       sync.Mutex
	released bool
}

func (k *kernel) Name() string { return k.name }

// CreateKernel looks up an entry point by name.
func (c *Context) CreateKernel(name string) (device.Kernel, error) {
	if _, ok := c.program[name]; !ok {
		return nil, device.Errorf("create kernel", device.StatusInvalidKernelName, "no entry point %q", name)
	}
	c.mu.Lock()
	c.stats.KernelsCreated++
	c.mu.Unlock()
	return &kernel{name: name, owner: c}, nil
}

// ReleaseKernel frees a kernel handle.
func (c *Context) ReleaseKernel(k device.Kernel) error {
	kk, ok := k.(*kernel)
	if !ok || kk == nil || kk.owner != c {
		return device.Errorf("release kernel", device.StatusInvalidKernel, "kernel %T does not belong to this context", k)
	}
	kk.mu.Lock()
	defer kk.mu.Unlock()
	if kk.released {
		return device.Errorf("release kernel", device.StatusInvalidKernel, "kernel %q already released", kk.name)
	}
	kk.released = true

	c.mu.Lock()
	c.stats.KernelsReleased++
	c.mu.Unlock()
	return nil
}

// EnqueueKernel validates the launch and appends it to the command stream.
func (c *Context) EnqueueKernel(k device.Kernel, args device.KernelArgs, r device.NDRange) error {
	kk, ok := k.(*kernel)
	if !ok || kk == nil || kk.owner != c {
		return device.Errorf("enqueue kernel", device.StatusInvalidKernel, "kernel %T does not belong to this context", k)
	}
	op := "enqueue kernel " + kk.name

	kk.mu.Lock()
	released := kk.released
	kk.mu.Unlock()
	if released {
		return device.Errorf(op, device.StatusInvalidKernel, "kernel released")
	}
	if args == nil || args.KernelName() != kk.name {
		return device.Errorf(op, device.StatusInvalidKernelArgs, "argument block %T does not match kernel", args)
	}
	if err := args.Validate(); err != nil {
		return &device.StatusError{Op: op, Status: device.StatusInvalidKernelArgs, Err: err}
	}
	if err := r.Validate(c.cfg.MaxWorkGroupSize); err != nil {
		return err
	}

	impl := c.program[kk.name]
	c.enqueue(op, func() error {
		body, err := impl(c, args)
		if err != nil {
			return err
		}
		return c.runNDRange(kk.name, body, r)
	}, kernelOutputs(args)...)
	return nil
}

// kernelOutputs lists the buffers a launch writes.
func kernelOutputs(args device.KernelArgs) []device.Buffer {
	switch a := args.(type) {
	case device.Im2colArgs:
		return []device.Buffer{a.Unrolled}
	case device.DirectConvArgs:
		return []device.Buffer{a.Output}
	default:
		return nil
	}
}

// runNDRange executes body for every global id, one work-group per task.
func (c *Context) runNDRange(name string, body workItem, r device.NDRange) error {
	groups := r.Groups()
	total := groups[0] * groups[1] * groups[2]
	return parallel.ForErr(total, func(g int) error {
		group := [3]int{g % groups[0], (g / groups[0]) % groups[1], g / (groups[0] * groups[1])}
		return runGroup(name, body, group, r.Local)
	}, c.cfg.Parallel)
}

// runGroup executes one work-group. A panicking item (e.g. an out-of-range
// index) faults the whole launch.
func runGroup(name string, body workItem, group, local [3]int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = device.Errorf("kernel "+name, device.StatusKernelFault, "work-group %v: %v", group, r)
		}
	}()

	base := [3]int{group[0] * local[0], group[1] * local[1], group[2] * local[2]}
	for z := 0; z < local[2]; z++ {
		for y := 0; y < local[1]; y++ {
			for x := 0; x < local[0]; x++ {
				body([3]int{base[0] + x, base[1] + y, base[2] + z})
			}
		}
	}
	return nil
}

// im2colKernel unrolls [B, C, H, W] into [B, C*K*K, HOut*WOut].
//
// Global ids: (batch, channel, row*W+col). Each input cell scatters itself to
// every unrolled cell it contributes to, so every unrolled cell is written by
// exactly one input cell per kernel offset.
func im2colKernel(c *Context, args device.KernelArgs) (workItem, error) {
	a, ok := args.(device.Im2colArgs)
	if !ok {
		return nil, device.Errorf("kernel im2col", device.StatusInvalidKernelArgs, "got %T", args)
	}
	x, err := c.resolve("kernel im2col", a.Input, true, false)
	if err != nil {
		return nil, err
	}
	unrolled, err := c.resolve("kernel im2col", a.Unrolled, false, true)
	if err != nil {
		return nil, err
	}

	B, C, H, W, K, S := a.Batch, a.Channels, a.Height, a.Width, a.Kernel, a.Stride
	hOut, wOut := device.OutputDims(H, W, K, S)
	hUnroll := C * K * K
	wUnroll := hOut * wOut

	return func(gid [3]int) {
		b, ch := gid[0], gid[1]
		row, col := gid[2]/W, gid[2]%W
		if b >= B || ch >= C || row >= H || col >= W {
			return
		}
		v := x[((b*C+ch)*H+row)*W+col]

		for p := 0; p < K; p++ {
			dr := row - p
			if dr < 0 || dr%S != 0 || dr/S >= hOut {
				continue
			}
			rowO := dr / S
			for q := 0; q < K; q++ {
				dc := col - q
				if dc < 0 || dc%S != 0 || dc/S >= wOut {
					continue
				}
				colO := dc / S
				rowU := ch*K*K + p*K + q
				colU := rowO*wOut + colO
				unrolled[(b*hUnroll+rowU)*wUnroll+colU] = v
			}
		}
	}, nil
}

// directConvKernel computes one output element per work item.
//
// Global ids: (output col, output row, batch*M + out channel).
func directConvKernel(c *Context, args device.KernelArgs) (workItem, error) {
	a, ok := args.(device.DirectConvArgs)
	if !ok {
		return nil, device.Errorf("kernel "+device.KernelDirectConv, device.StatusInvalidKernelArgs, "got %T", args)
	}
	op := "kernel " + device.KernelDirectConv
	x, err := c.resolve(op, a.Input, true, false)
	if err != nil {
		return nil, err
	}
	w, err := c.resolve(op, a.Weights, true, false)
	if err != nil {
		return nil, err
	}
	y, err := c.resolve(op, a.Output, false, true)
	if err != nil {
		return nil, err
	}

	B, M, C, H, W, K, S := a.Batch, a.OutChannels, a.InChannels, a.Height, a.Width, a.Kernel, a.Stride
	hOut, wOut := device.OutputDims(H, W, K, S)

	return func(gid [3]int) {
		col, row := gid[0], gid[1]
		b, m := gid[2]/M, gid[2]%M
		if col >= wOut || row >= hOut || b >= B {
			return
		}

		var acc float32
		for ch := 0; ch < C; ch++ {
			xBase := (b*C + ch) * H * W
			wBase := (m*C + ch) * K * K
			for p := 0; p < K; p++ {
				xRow := xBase + (row*S+p)*W + col*S
				wRow := wBase + p*K
				for q := 0; q < K; q++ {
					acc += x[xRow+q] * w[wRow+q]
				}
			}
		}
		y[((b*M+m)*hOut+row)*wOut+col] = acc
	}, nil
}

// String is used in diagnostics.
func (k *kernel) String() string { return fmt.Sprintf("kernel(%s)", k.name) }
