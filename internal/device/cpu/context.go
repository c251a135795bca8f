// Package cpu implements device.Context on the host: buffers are Go slices,
// kernels run as work-groups on a goroutine pool and GEMM is delegated to
// gonum's BLAS.
package cpu

import (
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	"github.com/born-ml/accelconv/internal/device"
	"github.com/born-ml/accelconv/internal/parallel"
)

// Config controls the software device.
type Config struct {
	// Parallel schedules work-groups and GEMM batch elements.
	Parallel parallel.Config
	// BatchedGemm enables single-call batched GEMM. When false, EnqueueGemm
	// rejects BatchCount > 1 like a BLAS without a batched entry point.
	BatchedGemm bool
	// MaxWorkGroupSize bounds the number of items per work-group.
	MaxWorkGroupSize int
	// MaxAllocBytes caps a single allocation (0 = unlimited).
	MaxAllocBytes int
}

// DefaultConfig returns a configuration using every CPU.
func DefaultConfig() Config {
	p := parallel.DefaultConfig()
	p.MinChunkSize = 1 // Work-groups are already coarse.
	return Config{
		Parallel:         p,
		BatchedGemm:      true,
		MaxWorkGroupSize: 1024,
	}
}

// Context is a software accelerator implementing device.Context.
//
// Its methods are safe for concurrent use, but all callers share one in-order
// command stream. A caller issuing a dependent sequence of commands holds
// Lock for the whole sequence; conv.Engine does so for every forward pass.
// Without the lock a failure in one caller's command drops the others'
// queued work, which they observe as a lost-contents error when they read
// the affected buffers.
type Context struct {
	cfg     Config
	program map[string]kernelImpl

	stream sync.Mutex // held by Lock

	mu     sync.Mutex // guards nextID, stats and buffer state
	nextID uint64
	stats  device.Stats

	queueMu sync.Mutex // guards pending and command results
	pending []*command
}

// New creates a software device with the im2col and direct convolution
// kernels compiled in.
func New(cfg Config) *Context {
	if cfg.MaxWorkGroupSize <= 0 {
		cfg.MaxWorkGroupSize = DefaultConfig().MaxWorkGroupSize
	}
	return &Context{
		cfg: cfg,
		program: map[string]kernelImpl{
			device.KernelIm2col:     im2colKernel,
			device.KernelDirectConv: directConvKernel,
		},
	}
}

// Lock reserves the command stream for one caller's command sequence.
func (c *Context) Lock() { c.stream.Lock() }

// Unlock releases the command stream.
func (c *Context) Unlock() { c.stream.Unlock() }

// Name returns the device name.
func (c *Context) Name() string {
	return fmt.Sprintf("cpu (%d workers)", max(c.cfg.Parallel.NumWorkers, 1))
}

// Capabilities reports the device features.
func (c *Context) Capabilities() device.Capabilities {
	return device.Capabilities{
		BatchedGemm:      c.cfg.BatchedGemm,
		MaxWorkGroupSize: c.cfg.MaxWorkGroupSize,
	}
}

// buffer is a host-memory device allocation.
type buffer struct {
	id       uint64
	owner    *Context
	data     []float32
	mode     device.AccessMode
	released bool
	lost     error // why the contents are undefined, nil when valid
}

func (b *buffer) Size() int               { return len(b.data) * 4 }
func (b *buffer) Mode() device.AccessMode { return b.mode }

// Allocate creates a buffer, optionally initialized from host memory.
func (c *Context) Allocate(size int, mode device.AccessMode, init []float32) (device.Buffer, error) {
	switch {
	case size <= 0 || size%4 != 0:
		return nil, device.Errorf("allocate", device.StatusInvalidValue, "size %d is not a positive multiple of 4", size)
	case c.cfg.MaxAllocBytes > 0 && size > c.cfg.MaxAllocBytes:
		return nil, device.Errorf("allocate", device.StatusOutOfResources, "%d bytes exceeds limit %d", size, c.cfg.MaxAllocBytes)
	case init != nil && len(init)*4 != size:
		return nil, device.Errorf("allocate", device.StatusInvalidValue, "init holds %d bytes, buffer is %d", len(init)*4, size)
	}

	data := make([]float32, size/4)
	if init != nil {
		copy(data, init)
	}

	c.mu.Lock()
	c.nextID++
	buf := &buffer{id: c.nextID, owner: c, data: data, mode: mode}
	c.trackAllocationLocked(uint64(size))
	c.mu.Unlock()

	klog.V(4).Infof("cpu: allocated buffer #%d (%d bytes, %s)", buf.id, size, mode)
	return buf, nil
}

// Release frees a buffer.
func (c *Context) Release(buf device.Buffer) error {
	b, err := c.lookup("release", buf)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b.released {
		return device.Errorf("release", device.StatusInvalidMemObject, "buffer #%d already released", b.id)
	}
	b.released = true
	c.trackReleaseLocked(uint64(len(b.data) * 4))
	b.data = nil

	klog.V(4).Infof("cpu: released buffer #%d", b.id)
	return nil
}

// Stats returns a snapshot of resource accounting.
func (c *Context) Stats() device.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// trackAllocationLocked records a buffer allocation (must hold mu).
func (c *Context) trackAllocationLocked(size uint64) {
	c.stats.BuffersAllocated++
	c.stats.ActiveBytes += size
	if c.stats.ActiveBytes > c.stats.PeakBytes {
		c.stats.PeakBytes = c.stats.ActiveBytes
	}
}

// trackReleaseLocked records a buffer release (must hold mu).
func (c *Context) trackReleaseLocked(size uint64) {
	c.stats.BuffersReleased++
	if c.stats.ActiveBytes >= size {
		c.stats.ActiveBytes -= size
	}
}

// lookup converts a device.Buffer into this context's buffer.
func (c *Context) lookup(op string, buf device.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b == nil || b.owner != c {
		return nil, device.Errorf(op, device.StatusInvalidMemObject, "buffer %T does not belong to this context", buf)
	}
	return b, nil
}

// resolve returns the live backing slice of buf, checking it may be used as requested.
func (c *Context) resolve(op string, buf device.Buffer, read, write bool) ([]float32, error) {
	b, err := c.lookup(op, buf)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case b.released:
		return nil, device.Errorf(op, device.StatusInvalidMemObject, "buffer #%d used after release", b.id)
	case read && b.mode == device.WriteOnly:
		return nil, device.Errorf(op, device.StatusInvalidMemObject, "buffer #%d is write-only", b.id)
	case write && b.mode == device.ReadOnly:
		return nil, device.Errorf(op, device.StatusInvalidMemObject, "buffer #%d is read-only", b.id)
	case read && b.lost != nil:
		return nil, lostError(op, b)
	}
	return b.data, nil
}

// checkLost fails when the last producer of buf failed or was dropped.
func (c *Context) checkLost(op string, buf device.Buffer) error {
	b, err := c.lookup(op, buf)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.lost != nil {
		return lostError(op, b)
	}
	return nil
}

// lostError reports a read of undefined contents (must hold mu).
func lostError(op string, b *buffer) error {
	return &device.StatusError{
		Op:     op,
		Status: device.StatusOf(b.lost),
		Err:    fmt.Errorf("buffer #%d contents lost: %w", b.id, b.lost),
	}
}
