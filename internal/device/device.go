// Package device defines the compute-context contract the convolution engine
// runs against: buffer allocation, an in-order command stream, kernel dispatch
// with typed arguments, and batched matrix multiplication.
//
// Implementations live in subpackages (cpu, webgpu). The engine only ever
// borrows a Context; creating and closing it is the caller's business.
package device

import "fmt"

// AccessMode describes how kernels may touch a buffer.
type AccessMode int

// Buffer access modes.
const (
	ReadOnly AccessMode = iota
	WriteOnly
	ReadWrite
)

// String returns a human-readable access mode.
func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

// Buffer is an opaque accelerator-resident allocation.
type Buffer interface {
	// Size returns the allocation size in bytes.
	Size() int
	// Mode returns the access mode the buffer was created with.
	Mode() AccessMode
}

// Kernel is a handle to a compiled kernel entry point.
type Kernel interface {
	Name() string
}

// Capabilities reports optional features of a context.
type Capabilities struct {
	// BatchedGemm is true when EnqueueGemm honours BatchCount > 1 in a single call.
	BatchedGemm bool
	// MaxWorkGroupSize bounds the product of NDRange.Local.
	MaxWorkGroupSize int
	// MaxBufferBytes is the largest buffer a kernel can bind (0 = unlimited).
	MaxBufferBytes int
}

// Context is a pre-established accelerator handle with its command stream and
// compiled program. All Enqueue* calls go to one in-order stream; enqueued work
// is guaranteed complete only after Finish or a blocking transfer.
//
// A Context shared between callers may implement sync.Locker; Lock then
// reserves the stream for one caller's command sequence.
type Context interface {
	Name() string
	Capabilities() Capabilities

	// Allocate creates a buffer of size bytes. When init is non-nil the buffer
	// is initialized from it at creation and len(init)*4 must equal size.
	Allocate(size int, mode AccessMode, init []float32) (Buffer, error)
	// Release frees a buffer. Releasing twice is an error.
	Release(buf Buffer) error

	// EnqueueWrite copies src into buf. A blocking write returns after the data landed.
	EnqueueWrite(buf Buffer, src []float32, blocking bool) error
	// EnqueueRead copies buf into dst. dst is valid after a blocking read or after Finish.
	EnqueueRead(buf Buffer, dst []float32, blocking bool) error

	// CreateKernel looks up an entry point in the compiled program.
	CreateKernel(name string) (Kernel, error)
	// ReleaseKernel frees a kernel handle.
	ReleaseKernel(k Kernel) error
	// EnqueueKernel launches k over r with typed arguments.
	EnqueueKernel(k Kernel, args KernelArgs, r NDRange) error

	// EnqueueGemm enqueues C = alpha*A*B + beta*C, batched per args.
	EnqueueGemm(args GemmArgs) error

	// Finish blocks until every enqueued command completed and returns the
	// first error any of them produced.
	Finish() error
}

// StatsReporter is implemented by contexts that track resource usage.
type StatsReporter interface {
	Stats() Stats
}

// Stats is a snapshot of a context's resource accounting.
type Stats struct {
	BuffersAllocated int64
	BuffersReleased  int64
	KernelsCreated   int64
	KernelsReleased  int64
	// Bytes currently allocated and the high-water mark.
	ActiveBytes uint64
	PeakBytes   uint64
}

// ActiveBuffers returns the number of live buffers.
func (s Stats) ActiveBuffers() int64 { return s.BuffersAllocated - s.BuffersReleased }

// ActiveKernels returns the number of live kernel handles.
func (s Stats) ActiveKernels() int64 { return s.KernelsCreated - s.KernelsReleased }
