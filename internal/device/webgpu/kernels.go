//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"k8s.io/klog/v2"

	"github.com/born-ml/accelconv/internal/device"
)

// kernel is a handle to an entry point. Pipelines are compiled per workgroup
// size on first launch and cached on the context.
type kernel struct {
	name  string
	owner *Context

	mu       sync.Mutex
	released bool
}

func (k *kernel) Name() string { return k.name }

// CreateKernel looks up an entry point of the program.
func (c *Context) CreateKernel(name string) (device.Kernel, error) {
	if name == gemmEntry {
		return nil, device.Errorf("create kernel", device.StatusInvalidKernelName, "%q is reserved for EnqueueGemm", name)
	}
	if _, ok := programSource[name]; !ok {
		return nil, device.Errorf("create kernel", device.StatusInvalidKernelName, "no entry point %q", name)
	}
	c.statsMu.Lock()
	c.stats.KernelsCreated++
	c.statsMu.Unlock()
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

	c.statsMu.Lock()
	c.stats.KernelsReleased++
	c.statsMu.Unlock()
	return nil
}

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the context's shaders map.
func (c *Context) compileShader(key, code string) *wgpu.ShaderModule {
	c.mu.RLock()
	if shader, exists := c.shaders[key]; exists {
		c.mu.RUnlock()
		return shader
	}
	c.mu.RUnlock()

	shader := c.device.CreateShaderModuleWGSL(code)

	c.mu.Lock()
	c.shaders[key] = shader
	c.mu.Unlock()

	return shader
}

// pipeline returns the cached ComputePipeline of an entry point for a workgroup size.
func (c *Context) pipeline(name string, workgroup [3]int) (*wgpu.ComputePipeline, error) {
	key := pipelineKey(name, workgroup)

	c.mu.RLock()
	if p, exists := c.pipelines[key]; exists {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	code, err := shaderSource(name, workgroup)
	if err != nil {
		return nil, err
	}
	shader := c.compileShader(key, code)
	p := c.device.CreateComputePipelineSimple(nil, shader, "main")
	klog.V(4).Infof("webgpu: compiled pipeline %s", key)

	c.mu.Lock()
	c.pipelines[key] = p
	c.mu.Unlock()

	return p, nil
}

// binding is one storage buffer argument of a dispatch.
type binding struct {
	buf         device.Buffer
	read, write bool
}

// EnqueueKernel validates the launch and encodes it into the command stream.
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
	l, err := toLaunch(r)
	if err != nil {
		return err
	}

	var (
		bindings []binding
		params   []byte
	)
	switch a := args.(type) {
	case device.Im2colArgs:
		bindings = []binding{{a.Input, true, false}, {a.Unrolled, false, true}}
		params = im2colParams(a)
	case device.DirectConvArgs:
		bindings = []binding{{a.Input, true, false}, {a.Weights, true, false}, {a.Output, false, true}}
		params = directParams(a)
	default:
		return device.Errorf(op, device.StatusInvalidKernelArgs, "unsupported argument block %T", args)
	}
	return c.dispatch(op, kk.name, l, bindings, params)
}

// EnqueueGemm encodes a (batched) GEMM into the command stream.
func (c *Context) EnqueueGemm(args device.GemmArgs) error {
	const op = "enqueue gemm"
	if err := args.Validate(); err != nil {
		return &device.StatusError{Op: op, Status: device.StatusInvalidValue, Err: err}
	}
	if args.BatchCount > 1 && args.StrideC < args.M*args.N {
		return device.Errorf(op, device.StatusInvalidValue, "output stride %d overlaps %dx%d results", args.StrideC, args.M, args.N)
	}
	l, err := gemmLaunch(args)
	if err != nil {
		return err
	}
	bindings := []binding{{args.A, true, false}, {args.B, true, false}, {args.C, args.Beta != 0, true}}
	return c.dispatch(op, gemmEntry, l, bindings, gemmParams(args))
}

// dispatch binds storage buffers plus a uniform block and encodes one compute pass.
func (c *Context) dispatch(op, entry string, l launch, bindings []binding, params []byte) (err error) {
	entries := make([]wgpu.BindGroupEntry, 0, len(bindings)+1)
	for i, bnd := range bindings {
		b, err := c.bind(op, bnd.buf, bnd.read, bnd.write)
		if err != nil {
			return err
		}
		//nolint:gosec // G115: binding index and size are small and positive.
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), b.buf, 0, uint64(b.size)))
	}
	defer recoverStatus(op, device.StatusKernelFault, &err)
	c.pushErrorScope()
	defer c.popErrorScope(op, device.StatusKernelFault, &err)

	pipeline, err := c.pipeline(entry, l.workgroup)
	if err != nil {
		return device.Errorf(op, device.StatusInvalidKernelName, "%w", err)
	}

	uniform := c.createMapped(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	//nolint:gosec // G115: binding count and uniform size are small.
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(bindings)), uniform, 0, uint64(len(params))))

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := c.device.CreateBindGroupSimple(bindGroupLayout, entries)

	encoder := c.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(l.groups[0], l.groups[1], l.groups[2])
	computePass.End()

	c.queueCommand(encoder.Finish(nil), uniform, bindGroup)
	klog.V(4).Infof("webgpu: %s workgroup %v groups %v", op, l.workgroup, l.groups)
	return nil
}
