package cpu

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/accelconv/internal/device"
)

func TestAllocate(t *testing.T) {
	c := New(DefaultConfig())

	buf, err := c.Allocate(16, device.ReadOnly, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 16, buf.Size())
	assert.Equal(t, device.ReadOnly, buf.Mode())

	got := make([]float32, 4)
	require.NoError(t, c.EnqueueRead(buf, got, true))
	assert.Equal(t, []float32{1, 2, 3, 4}, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.ActiveBuffers())
	assert.Equal(t, uint64(16), stats.ActiveBytes)

	require.NoError(t, c.Release(buf))
	assert.Zero(t, c.Stats().ActiveBuffers())
	assert.Zero(t, c.Stats().ActiveBytes)
	assert.Equal(t, uint64(16), c.Stats().PeakBytes)
}

func TestAllocate_Rejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAllocBytes = 64
	c := New(cfg)

	tests := []struct {
		name   string
		size   int
		init   []float32
		status device.Status
	}{
		{"zero size", 0, nil, device.StatusInvalidValue},
		{"unaligned", 6, nil, device.StatusInvalidValue},
		{"over limit", 128, nil, device.StatusOutOfResources},
		{"init mismatch", 16, []float32{1}, device.StatusInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Allocate(tt.size, device.ReadWrite, tt.init)
			require.Error(t, err)
			assert.Equal(t, tt.status, device.StatusOf(err))
		})
	}
	assert.Zero(t, c.Stats().BuffersAllocated)
}

func TestRelease_Twice(t *testing.T) {
	c := New(DefaultConfig())
	buf, err := c.Allocate(4, device.ReadWrite, nil)
	require.NoError(t, err)

	require.NoError(t, c.Release(buf))
	err = c.Release(buf)
	require.Error(t, err)
	assert.Equal(t, device.StatusInvalidMemObject, device.StatusOf(err))

	// Transfers on a released buffer fail when they execute.
	assert.Error(t, c.EnqueueWrite(buf, []float32{1}, true))
}

func TestForeignBuffer(t *testing.T) {
	a, b := New(DefaultConfig()), New(DefaultConfig())
	buf, err := a.Allocate(4, device.ReadWrite, nil)
	require.NoError(t, err)

	err = b.Release(buf)
	require.Error(t, err)
	assert.Equal(t, device.StatusInvalidMemObject, device.StatusOf(err))
	require.NoError(t, a.Release(buf))
}

func TestQueue_InOrder(t *testing.T) {
	c := New(DefaultConfig())
	buf, err := c.Allocate(8, device.ReadWrite, nil)
	require.NoError(t, err)
	defer c.Release(buf)

	first := make([]float32, 2)
	second := make([]float32, 2)
	require.NoError(t, c.EnqueueRead(buf, first, false))
	require.NoError(t, c.EnqueueWrite(buf, []float32{5, 6}, false))
	require.NoError(t, c.EnqueueRead(buf, second, false))

	// Nothing ran yet.
	assert.Equal(t, []float32{0, 0}, second)

	require.NoError(t, c.Finish())
	assert.Equal(t, []float32{0, 0}, first)
	assert.Equal(t, []float32{5, 6}, second)
}

func TestQueue_DropsAfterFailure(t *testing.T) {
	c := New(DefaultConfig())
	gone, err := c.Allocate(4, device.ReadWrite, nil)
	require.NoError(t, err)
	live, err := c.Allocate(4, device.ReadWrite, nil)
	require.NoError(t, err)
	defer c.Release(live)

	require.NoError(t, c.EnqueueWrite(gone, []float32{1}, false))
	require.NoError(t, c.Release(gone))
	require.NoError(t, c.EnqueueWrite(live, []float32{7}, false))

	require.Error(t, c.Finish())

	// The dropped write leaves live undefined; reading it reports why.
	got := make([]float32, 1)
	err = c.EnqueueRead(live, got, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrDropped)
	assert.Equal(t, device.StatusInvalidMemObject, device.StatusOf(err))
	assert.Equal(t, []float32{0}, got, "commands after the failure are dropped")

	// A completed write makes the buffer valid again.
	require.NoError(t, c.EnqueueWrite(live, []float32{7}, true))
	require.NoError(t, c.EnqueueRead(live, got, true))
	assert.Equal(t, []float32{7}, got)
}

func TestQueue_SharedStreamFailureReachesOwner(t *testing.T) {
	c := New(DefaultConfig())

	// Caller A: a direct convolution left queued.
	x := upload(t, c, device.ReadOnly, []float32{1, 2, 3, 4})
	w := upload(t, c, device.ReadOnly, []float32{3})
	y := scratch(t, c, device.WriteOnly, 4)
	k, err := c.CreateKernel(device.KernelDirectConv)
	require.NoError(t, err)
	defer c.ReleaseKernel(k)
	args := device.DirectConvArgs{
		Output: y, Input: x, Weights: w,
		Batch: 1, OutChannels: 1, InChannels: 1, Height: 2, Width: 2, Kernel: 1, Stride: 1,
	}
	require.NoError(t, c.EnqueueKernel(k, args, device.NDRange{Global: [3]int{2, 2, 1}, Local: [3]int{1, 1, 1}}))

	// Caller B: a write whose buffer is gone by the time it runs.
	gone, err := c.Allocate(4, device.ReadWrite, nil)
	require.NoError(t, err)
	require.NoError(t, c.EnqueueWrite(gone, []float32{1}, false))
	require.NoError(t, c.Release(gone))

	// A's kernel runs before B's write, so B's failure is B's alone.
	require.Error(t, c.Finish())
	assert.Equal(t, []float32{3, 6, 9, 12}, download(t, c, y))

	// Reversed order: B's failure drops A's kernel, and A finds out on read.
	gone, err = c.Allocate(4, device.ReadWrite, nil)
	require.NoError(t, err)
	require.NoError(t, c.EnqueueWrite(gone, []float32{1}, false))
	require.NoError(t, c.Release(gone))
	y2 := scratch(t, c, device.WriteOnly, 4)
	args.Output = y2
	require.NoError(t, c.EnqueueKernel(k, args, device.NDRange{Global: [3]int{2, 2, 1}, Local: [3]int{1, 1, 1}}))

	require.Error(t, c.Finish(), "B drains the stream")
	require.NoError(t, c.Finish(), "nothing left for A to run")

	got := make([]float32, 4)
	err = c.EnqueueRead(y2, got, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrDropped)
	assert.Contains(t, err.Error(), "contents lost")
	assert.Equal(t, []float32{0, 0, 0, 0}, got)
}

func TestQueue_LockSerializesSequences(t *testing.T) {
	c := New(DefaultConfig())
	var _ sync.Locker = c

	c.Lock()
	locked := make(chan struct{})
	go func() {
		c.Lock()
		close(locked)
		c.Unlock()
	}()
	select {
	case <-locked:
		t.Fatal("second Lock succeeded while the stream was held")
	case <-time.After(20 * time.Millisecond):
	}
	c.Unlock()
	<-locked
}

func TestTransfer_SizeMismatch(t *testing.T) {
	c := New(DefaultConfig())
	buf, err := c.Allocate(8, device.ReadWrite, nil)
	require.NoError(t, err)
	defer c.Release(buf)

	assert.Error(t, c.EnqueueWrite(buf, []float32{1, 2, 3}, true))
	assert.Error(t, c.EnqueueRead(buf, make([]float32, 1), true))
}

func TestName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parallel.NumWorkers = 4
	assert.Equal(t, "cpu (4 workers)", New(cfg).Name())
	assert.True(t, New(cfg).Capabilities().BatchedGemm)
}
