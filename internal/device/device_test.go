package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBuffer is a sized handle for argument validation tests.
type fakeBuffer int

func (b fakeBuffer) Size() int        { return int(b) }
func (b fakeBuffer) Mode() AccessMode { return ReadWrite }

func TestRoundUp(t *testing.T) {
	tests := []struct{ n, m, want int }{
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{9, 3, 9},
		{340, 256, 512},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundUp(tt.n, tt.m), "RoundUp(%d, %d)", tt.n, tt.m)
	}
}

func TestOutputDims(t *testing.T) {
	h, w := OutputDims(4, 4, 2, 1)
	assert.Equal(t, [2]int{3, 3}, [2]int{h, w})

	h, w = OutputDims(7, 5, 3, 2)
	assert.Equal(t, [2]int{3, 2}, [2]int{h, w})

	h, w = OutputDims(3, 3, 3, 4)
	assert.Equal(t, [2]int{1, 1}, [2]int{h, w})
}

func TestNDRange_Validate(t *testing.T) {
	ok := NDRange{Global: [3]int{32, 16, 4}, Local: [3]int{16, 16, 1}}
	require.NoError(t, ok.Validate(256))
	assert.Equal(t, [3]int{2, 1, 4}, ok.Groups())

	tests := []struct {
		name   string
		r      NDRange
		max    int
		status Status
	}{
		{"zero local", NDRange{Global: [3]int{16, 1, 1}, Local: [3]int{0, 1, 1}}, 0, StatusInvalidWorkGroupSize},
		{"zero global", NDRange{Global: [3]int{0, 1, 1}, Local: [3]int{1, 1, 1}}, 0, StatusInvalidWorkGroupSize},
		{"not a multiple", NDRange{Global: [3]int{17, 1, 1}, Local: [3]int{16, 1, 1}}, 0, StatusInvalidGlobalWorkSize},
		{"group too large", NDRange{Global: [3]int{32, 32, 1}, Local: [3]int{32, 32, 1}}, 256, StatusInvalidWorkGroupSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate(tt.max)
			require.Error(t, err)
			assert.Equal(t, tt.status, StatusOf(err))
		})
	}
}

func TestIm2colArgs_Validate(t *testing.T) {
	// 1x2x5x5 input, K=3 stride 2 -> 2x2 output, unrolled 18x4.
	args := Im2colArgs{
		Unrolled: fakeBuffer(4 * 18 * 4),
		Input:    fakeBuffer(4 * 2 * 25),
		Batch:    1, Channels: 2, Height: 5, Width: 5, Kernel: 3, Stride: 2,
	}
	require.NoError(t, args.Validate())
	assert.Equal(t, KernelIm2col, args.KernelName())

	short := args
	short.Unrolled = fakeBuffer(4*18*4 - 4)
	assert.Error(t, short.Validate())

	big := args
	big.Kernel = 6
	assert.Error(t, big.Validate())

	noStride := args
	noStride.Stride = 0
	assert.Error(t, noStride.Validate())

	missing := args
	missing.Input = nil
	assert.Error(t, missing.Validate())
}

func TestDirectConvArgs_Validate(t *testing.T) {
	args := DirectConvArgs{
		Output:  fakeBuffer(4 * 2 * 3 * 3 * 3),
		Input:   fakeBuffer(4 * 2 * 4 * 5 * 5),
		Weights: fakeBuffer(4 * 3 * 4 * 3 * 3),
		Batch:   2, OutChannels: 3, InChannels: 4, Height: 5, Width: 5, Kernel: 3, Stride: 1,
	}
	require.NoError(t, args.Validate())
	assert.Equal(t, KernelDirectConv, args.KernelName())

	noOut := args
	noOut.OutChannels = 0
	assert.Error(t, noOut.Validate())

	shortWeights := args
	shortWeights.Weights = fakeBuffer(4)
	assert.Error(t, shortWeights.Validate())

	shortOutput := args
	shortOutput.Output = fakeBuffer(4 * 9)
	assert.Error(t, shortOutput.Validate())
}

func TestGemmArgs_Validate(t *testing.T) {
	// Shared 2x6 A, three 6x4 B matrices, three 2x4 C matrices.
	g := GemmArgs{
		M: 2, N: 4, K: 6, Alpha: 1,
		A: fakeBuffer(4 * 12), B: fakeBuffer(4 * 72), C: fakeBuffer(4 * 24),
		StrideA: 0, StrideB: 24, StrideC: 8,
		BatchCount: 3,
	}
	require.NoError(t, g.Validate())

	tooMany := g
	tooMany.BatchCount = 4
	assert.Error(t, tooMany.Validate())

	offset := g
	offset.OffsetC = 1
	assert.Error(t, offset.Validate())

	negative := g
	negative.StrideB = -1
	assert.Error(t, negative.Validate())

	empty := g
	empty.BatchCount = 0
	assert.Error(t, empty.Validate())

	dims := g
	dims.K = 0
	assert.Error(t, dims.Validate())
}

func TestGemmArgs_Single(t *testing.T) {
	g := GemmArgs{
		M: 2, N: 4, K: 6,
		OffsetB: 3, StrideA: 0, StrideB: 24, StrideC: 8,
		BatchCount: 3,
	}
	s := g.Single(2)
	assert.Equal(t, 1, s.BatchCount)
	assert.Equal(t, 0, s.OffsetA)
	assert.Equal(t, 51, s.OffsetB)
	assert.Equal(t, 16, s.OffsetC)
	assert.Zero(t, s.StrideB)
}

func TestStatusError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &StatusError{Op: "allocate", Status: StatusOutOfResources, Err: cause})

	assert.Equal(t, StatusOutOfResources, StatusOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "OUT_OF_RESOURCES (-5)")

	assert.Equal(t, StatusSuccess, StatusOf(nil))
	assert.Equal(t, StatusInvalidValue, StatusOf(errors.New("plain")))
	assert.Equal(t, "STATUS(-9999)", Status(-9999).String())

	err = Errorf("enqueue gemm", StatusGemmFailed, "batch %d", 2)
	assert.Equal(t, "enqueue gemm failed: GEMM_FAILED (-1024): batch 2", err.Error())
}

func TestStats_Active(t *testing.T) {
	s := Stats{BuffersAllocated: 5, BuffersReleased: 3, KernelsCreated: 2, KernelsReleased: 2}
	assert.Equal(t, int64(2), s.ActiveBuffers())
	assert.Zero(t, s.ActiveKernels())
}

func TestAccessMode_String(t *testing.T) {
	assert.Equal(t, "read-only", ReadOnly.String())
	assert.Equal(t, "write-only", WriteOnly.String())
	assert.Equal(t, "read-write", ReadWrite.String())
	assert.Equal(t, "AccessMode(7)", AccessMode(7).String())
}
