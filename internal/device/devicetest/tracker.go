// Package devicetest provides a device.Context decorator that records every
// call, tracks live buffers and kernels, and injects failures on demand.
package devicetest

import (
	"fmt"
	"sync"

	"github.com/born-ml/accelconv/internal/device"
)

// Op identifies a device.Context method.
type Op int

// Tracked operations.
const (
	OpAllocate Op = iota
	OpRelease
	OpWrite
	OpRead
	OpCreateKernel
	OpReleaseKernel
	OpEnqueueKernel
	OpGemm
	OpFinish
	numOps
)

var opNames = [...]string{
	OpAllocate:      "allocate",
	OpRelease:       "release",
	OpWrite:         "write",
	OpRead:          "read",
	OpCreateKernel:  "create-kernel",
	OpReleaseKernel: "release-kernel",
	OpEnqueueKernel: "enqueue-kernel",
	OpGemm:          "gemm",
	OpFinish:        "finish",
}

// String returns the operation name.
func (o Op) String() string {
	if o >= 0 && o < numOps {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Ops lists every tracked operation, in declaration order.
func Ops() []Op {
	ops := make([]Op, numOps)
	for i := range ops {
		ops[i] = Op(i)
	}
	return ops
}

type fault struct {
	nth    int
	status device.Status
}

// Tracker wraps a device.Context.
type Tracker struct {
	inner device.Context

	mu          sync.Mutex
	calls       [numOps]int
	faults      map[Op]fault
	liveBuffers map[device.Buffer]struct{}
	liveKernels map[device.Kernel]struct{}
	stats       device.Stats
	trace       []string
}

// Wrap decorates inner.
func Wrap(inner device.Context) *Tracker {
	return &Tracker{
		inner:       inner,
		faults:      make(map[Op]fault),
		liveBuffers: make(map[device.Buffer]struct{}),
		liveKernels: make(map[device.Kernel]struct{}),
	}
}

// FailAt makes the nth call (1-based) of op fail with status without reaching
// the wrapped context.
func (t *Tracker) FailAt(op Op, nth int, status device.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faults[op] = fault{nth: nth, status: status}
}

// Calls returns how many times op was invoked.
func (t *Tracker) Calls(op Op) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op]
}

// Trace returns the sequence of invoked operations.
func (t *Tracker) Trace() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.trace))
	copy(out, t.trace)
	return out
}

// Stats returns allocation accounting for calls that went through the tracker.
func (t *Tracker) Stats() device.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Leaked returns the number of buffers and kernels still alive.
func (t *Tracker) Leaked() (buffers, kernels int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.liveBuffers), len(t.liveKernels)
}

// record counts a call and returns the injected error, if any.
func (t *Tracker) record(op Op, detail string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[op]++
	if detail != "" {
		t.trace = append(t.trace, op.String()+":"+detail)
	} else {
		t.trace = append(t.trace, op.String())
	}
	if f, ok := t.faults[op]; ok && f.nth == t.calls[op] {
		return &device.StatusError{Op: "injected " + op.String(), Status: f.status}
	}
	return nil
}

// Name implements device.Context.
func (t *Tracker) Name() string { return "tracking(" + t.inner.Name() + ")" }

// Capabilities implements device.Context.
func (t *Tracker) Capabilities() device.Capabilities { return t.inner.Capabilities() }

// Allocate implements device.Context.
func (t *Tracker) Allocate(size int, mode device.AccessMode, init []float32) (device.Buffer, error) {
	if err := t.record(OpAllocate, mode.String()); err != nil {
		return nil, err
	}
	buf, err := t.inner.Allocate(size, mode, init)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.liveBuffers[buf] = struct{}{}
	t.stats.BuffersAllocated++
	t.stats.ActiveBytes += uint64(size)
	t.stats.PeakBytes = max(t.stats.PeakBytes, t.stats.ActiveBytes)
	t.mu.Unlock()
	return buf, nil
}

// Release implements device.Context. The buffer counts as released even when
// the fault injector fails the call, so a single failing release does not
// read as a leak; the error still reaches the caller.
func (t *Tracker) Release(buf device.Buffer) error {
	injected := t.record(OpRelease, "")

	t.mu.Lock()
	if _, ok := t.liveBuffers[buf]; ok {
		delete(t.liveBuffers, buf)
		t.stats.BuffersReleased++
		t.stats.ActiveBytes -= uint64(buf.Size())
	}
	t.mu.Unlock()

	err := t.inner.Release(buf)
	if injected != nil {
		return injected
	}
	return err
}

// EnqueueWrite implements device.Context.
func (t *Tracker) EnqueueWrite(buf device.Buffer, src []float32, blocking bool) error {
	if err := t.record(OpWrite, ""); err != nil {
		return err
	}
	return t.inner.EnqueueWrite(buf, src, blocking)
}

// EnqueueRead implements device.Context.
func (t *Tracker) EnqueueRead(buf device.Buffer, dst []float32, blocking bool) error {
	if err := t.record(OpRead, ""); err != nil {
		return err
	}
	return t.inner.EnqueueRead(buf, dst, blocking)
}

// CreateKernel implements device.Context.
func (t *Tracker) CreateKernel(name string) (device.Kernel, error) {
	if err := t.record(OpCreateKernel, name); err != nil {
		return nil, err
	}
	k, err := t.inner.CreateKernel(name)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.liveKernels[k] = struct{}{}
	t.stats.KernelsCreated++
	t.mu.Unlock()
	return k, nil
}

// ReleaseKernel implements device.Context.
func (t *Tracker) ReleaseKernel(k device.Kernel) error {
	injected := t.record(OpReleaseKernel, k.Name())

	t.mu.Lock()
	if _, ok := t.liveKernels[k]; ok {
		delete(t.liveKernels, k)
		t.stats.KernelsReleased++
	}
	t.mu.Unlock()

	err := t.inner.ReleaseKernel(k)
	if injected != nil {
		return injected
	}
	return err
}

// EnqueueKernel implements device.Context.
func (t *Tracker) EnqueueKernel(k device.Kernel, args device.KernelArgs, r device.NDRange) error {
	if err := t.record(OpEnqueueKernel, k.Name()); err != nil {
		return err
	}
	return t.inner.EnqueueKernel(k, args, r)
}

// EnqueueGemm implements device.Context.
func (t *Tracker) EnqueueGemm(args device.GemmArgs) error {
	if err := t.record(OpGemm, fmt.Sprintf("batch=%d", args.BatchCount)); err != nil {
		return err
	}
	return t.inner.EnqueueGemm(args)
}

// Finish implements device.Context.
func (t *Tracker) Finish() error {
	if err := t.record(OpFinish, ""); err != nil {
		// Drain the wrapped stream so a later pass starts clean.
		_ = t.inner.Finish()
		return err
	}
	return t.inner.Finish()
}

// Lock forwards to the wrapped context when it implements sync.Locker.
func (t *Tracker) Lock() {
	if l, ok := t.inner.(sync.Locker); ok {
		l.Lock()
	}
}

// Unlock forwards to the wrapped context when it implements sync.Locker.
func (t *Tracker) Unlock() {
	if l, ok := t.inner.(sync.Locker); ok {
		l.Unlock()
	}
}
