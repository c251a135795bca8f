//go:build windows

package webgpu

import (
	"testing"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/accelconv/internal/device"
)

func TestErrorScope(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Skipf("WebGPU not available: %v", err)
	}
	defer c.Close()

	copyBytes := func(size uint64) (err error) {
		defer recoverStatus("copy", device.StatusKernelFault, &err)
		c.pushErrorScope()
		defer c.popErrorScope("copy", device.StatusInvalidMemObject, &err)

		src := c.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: wgpu.BufferUsageCopySrc, Size: 8})
		defer src.Release()
		dst := c.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: wgpu.BufferUsageCopyDst, Size: 8})
		defer dst.Release()

		encoder := c.device.CreateCommandEncoder(nil)
		encoder.CopyBufferToBuffer(src, 0, dst, 0, size)
		c.queue.Submit(encoder.Finish(nil))
		return nil
	}

	require.NoError(t, copyBytes(8))

	// Copy sizes must be a multiple of 4.
	err = copyBytes(6)
	require.Error(t, err)
	assert.Equal(t, device.StatusInvalidMemObject, device.StatusOf(err))

	require.NoError(t, copyBytes(4), "a captured error does not leak into the next scope")
}
