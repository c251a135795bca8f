//go:build windows

package webgpu

import (
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"k8s.io/klog/v2"

	"github.com/born-ml/accelconv/internal/device"
)

// readback copies a staging buffer into host memory once its copy was submitted.
type readback struct {
	staging *wgpu.Buffer
	dst     []float32
}

// queueCommand appends an encoded command buffer to the stream. Handles the
// command uses are freed after the next Finish.
func (c *Context) queueCommand(cmd *wgpu.CommandBuffer, transient ...releaser) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pending = append(c.pending, cmd)
	c.transient = append(c.transient, transient...)
}

// EnqueueWrite stages src in a mapped buffer and copies it into buf.
func (c *Context) EnqueueWrite(buf device.Buffer, src []float32, blocking bool) (err error) {
	const op = "write buffer"
	b, err := c.bind(op, buf, false, false)
	if err != nil {
		return err
	}
	if len(src)*4 != b.size {
		return device.Errorf(op, device.StatusInvalidValue, "host data holds %d bytes, buffer is %d", len(src)*4, b.size)
	}
	defer recoverStatus(op, device.StatusOutOfResources, &err)
	c.pushErrorScope()
	defer c.popErrorScope(op, device.StatusInvalidMemObject, &err)

	staging := c.createMapped(floatBytes(src), wgpu.BufferUsageCopySrc)
	encoder := c.device.CreateCommandEncoder(nil)
	//nolint:gosec // G115: size validated positive.
	encoder.CopyBufferToBuffer(staging, 0, b.buf, 0, uint64(b.size))
	c.queueCommand(encoder.Finish(nil), staging)

	if blocking {
		return c.Finish()
	}
	return nil
}

// EnqueueRead copies buf into a staging buffer; dst is filled at Finish.
func (c *Context) EnqueueRead(buf device.Buffer, dst []float32, blocking bool) (err error) {
	const op = "read buffer"
	b, err := c.bind(op, buf, false, false)
	if err != nil {
		return err
	}
	if len(dst)*4 != b.size {
		return device.Errorf(op, device.StatusInvalidValue, "host data holds %d bytes, buffer is %d", len(dst)*4, b.size)
	}
	defer recoverStatus(op, device.StatusOutOfResources, &err)
	c.pushErrorScope()
	defer c.popErrorScope(op, device.StatusInvalidMemObject, &err)

	//nolint:gosec // G115: size validated positive.
	size := uint64(b.size)
	staging := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	encoder := c.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(b.buf, 0, staging, 0, size)
	cmd := encoder.Finish(nil)

	c.pendingMu.Lock()
	c.pending = append(c.pending, cmd)
	c.readbacks = append(c.readbacks, readback{staging: staging, dst: dst})
	c.pendingMu.Unlock()

	if blocking {
		return c.Finish()
	}
	return nil
}

// Finish submits all pending command buffers in order, completes the pending
// reads and frees per-command handles. After a failure the remaining reads
// are dropped. Validation errors raised by the submission surface as
// StatusDeviceLost.
func (c *Context) Finish() (err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	cmds, reads, transient := c.pending, c.readbacks, c.transient
	c.pending, c.readbacks, c.transient = nil, nil, nil
	defer func() {
		for _, r := range reads {
			r.staging.Release()
		}
		for _, h := range transient {
			h.Release()
		}
	}()
	defer recoverStatus("finish", device.StatusDeviceLost, &err)

	if len(cmds) > 0 {
		if err := c.submit(cmds); err != nil {
			return err
		}
		klog.V(4).Infof("webgpu: submitted %d command buffers", len(cmds))
	}

	for _, r := range reads {
		size := uint64(len(r.dst) * 4)
		if err := r.staging.MapAsync(c.device, wgpu.MapModeRead, 0, size); err != nil {
			return device.Errorf("finish", device.StatusOutOfResources, "map staging buffer: %w", err)
		}
		mappedPtr := r.staging.GetMappedRange(0, size)
		//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
		mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
		copy(floatBytes(r.dst), mappedSlice)
		r.staging.Unmap()
	}
	return nil
}

// submit hands cmds to the queue inside an error scope.
func (c *Context) submit(cmds []*wgpu.CommandBuffer) (err error) {
	c.pushErrorScope()
	defer c.popErrorScope("finish", device.StatusDeviceLost, &err)
	c.queue.Submit(cmds...)
	return nil
}
