//go:build windows

package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"k8s.io/klog/v2"

	"github.com/born-ml/accelconv/internal/device"
)

// Context is a WebGPU device implementing device.Context.
type Context struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfo

	// Shader and pipeline cache, keyed by pipelineKey.
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	statsMu sync.Mutex
	stats   device.Stats

	stream sync.Mutex // held by Lock

	// Command stream: encoded work waiting for Finish, the host copies to
	// perform once it has been submitted, and per-command handles to free.
	pendingMu sync.Mutex
	pending   []*wgpu.CommandBuffer
	readbacks []readback
	transient []releaser
}

type releaser interface{ Release() }

// New creates a WebGPU context on the high-performance adapter.
// Returns an error if WebGPU is not available or initialization fails.
func New() (ctx *Context, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = fmt.Errorf("%w: native library not available: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: failed to request adapter: %w", ErrUnavailable, adapterErr)
	}

	adapterInfo := adapter.GetInfo()

	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: failed to request device: %w", ErrUnavailable, deviceErr)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: failed to get queue", ErrUnavailable)
	}

	c := &Context{
		instance:    instance,
		adapter:     adapter,
		device:      dev,
		queue:       queue,
		adapterInfo: &adapterInfo,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
	}
	klog.V(2).Infof("webgpu: opened %s", c.Name())
	return c, nil
}

// Open creates a context for callers that only need the device.Context
// contract. The returned function releases the context.
func Open() (device.Context, func(), error) {
	c, err := New()
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// Close drains the command stream and releases every WebGPU object.
// Buffers and kernels still held by callers become invalid.
func (c *Context) Close() {
	if err := c.Finish(); err != nil {
		klog.Warningf("webgpu: finish on close: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.pipelines {
		p.Release()
	}
	c.pipelines = nil
	for _, s := range c.shaders {
		s.Release()
	}
	c.shaders = nil

	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}

// Name returns the adapter name.
func (c *Context) Name() string {
	if c.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", c.adapterInfo.Name, c.adapterInfo.VendorName)
	}
	return "WebGPU"
}

// Capabilities reports the device features.
func (c *Context) Capabilities() device.Capabilities {
	return device.Capabilities{
		BatchedGemm:      true,
		MaxWorkGroupSize: maxInvocations,
		MaxBufferBytes:   maxStorageBinding,
	}
}

// Lock reserves the command stream for one caller's command sequence.
func (c *Context) Lock() { c.stream.Lock() }

// Unlock releases the command stream.
func (c *Context) Unlock() { c.stream.Unlock() }

// buffer is a storage buffer usable as kernel argument and copy endpoint.
type buffer struct {
	owner    *Context
	buf      *wgpu.Buffer
	size     int
	mode     device.AccessMode
	released bool
}

func (b *buffer) Size() int               { return b.size }
func (b *buffer) Mode() device.AccessMode { return b.mode }

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// Allocate creates a storage buffer, optionally initialized through a mapping at creation.
func (c *Context) Allocate(size int, mode device.AccessMode, init []float32) (buf device.Buffer, err error) {
	switch {
	case size <= 0 || size%4 != 0:
		return nil, device.Errorf("allocate", device.StatusInvalidValue, "size %d is not a positive multiple of 4", size)
	case size > maxStorageBinding:
		return nil, device.Errorf("allocate", device.StatusOutOfResources, "%d bytes exceeds the %d byte binding limit", size, maxStorageBinding)
	case init != nil && len(init)*4 != size:
		return nil, device.Errorf("allocate", device.StatusInvalidValue, "init holds %d bytes, buffer is %d", len(init)*4, size)
	}
	defer recoverStatus("allocate", device.StatusOutOfResources, &err)

	var wb *wgpu.Buffer
	if init != nil {
		wb = c.createMapped(floatBytes(init), storageUsage)
	} else {
		//nolint:gosec // G115: size validated positive.
		wb = c.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: storageUsage, Size: uint64(size)})
	}
	if wb == nil {
		return nil, device.Errorf("allocate", device.StatusOutOfResources, "device returned no buffer for %d bytes", size)
	}

	c.statsMu.Lock()
	c.stats.BuffersAllocated++
	//nolint:gosec // G115: size validated positive.
	c.stats.ActiveBytes += uint64(size)
	c.stats.PeakBytes = max(c.stats.PeakBytes, c.stats.ActiveBytes)
	c.statsMu.Unlock()

	klog.V(4).Infof("webgpu: allocated %d bytes (%s)", size, mode)
	return &buffer{owner: c, buf: wb, size: size, mode: mode}, nil
}

// Release frees a buffer.
func (c *Context) Release(buf device.Buffer) error {
	b, err := c.lookup("release", buf)
	if err != nil {
		return err
	}
	c.statsMu.Lock()
	if b.released {
		c.statsMu.Unlock()
		return device.Errorf("release", device.StatusInvalidMemObject, "buffer already released")
	}
	b.released = true
	c.stats.BuffersReleased++
	//nolint:gosec // G115: size validated positive at allocation.
	c.stats.ActiveBytes -= uint64(b.size)
	c.statsMu.Unlock()

	b.buf.Release()
	return nil
}

// Stats returns a snapshot of resource accounting.
func (c *Context) Stats() device.Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// lookup converts a device.Buffer into this context's buffer.
func (c *Context) lookup(op string, buf device.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b == nil || b.owner != c {
		return nil, device.Errorf(op, device.StatusInvalidMemObject, "buffer %T does not belong to this context", buf)
	}
	return b, nil
}

// bind checks that buf is live and may be bound for the requested access.
func (c *Context) bind(op string, buf device.Buffer, read, write bool) (*buffer, error) {
	b, err := c.lookup(op, buf)
	if err != nil {
		return nil, err
	}
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	switch {
	case b.released:
		return nil, device.Errorf(op, device.StatusInvalidMemObject, "buffer used after release")
	case read && b.mode == device.WriteOnly:
		return nil, device.Errorf(op, device.StatusInvalidMemObject, "buffer is write-only")
	case write && b.mode == device.ReadOnly:
		return nil, device.Errorf(op, device.StatusInvalidMemObject, "buffer is read-only")
	}
	return b, nil
}

// createMapped creates a buffer holding data through a mapping at creation.
func (c *Context) createMapped(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// floatBytes views a float32 slice as raw little-endian bytes.
func floatBytes(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy conversion of float32 storage
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*4)
}

// recoverStatus turns a panic inside a wgpu call into a StatusError.
func recoverStatus(op string, status device.Status, err *error) {
	if r := recover(); r != nil {
		*err = device.Errorf(op, status, "%v", r)
	}
}
