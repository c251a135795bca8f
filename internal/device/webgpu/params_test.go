package webgpu

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/accelconv/internal/device"
)

func TestToLaunch_ReversesAxes(t *testing.T) {
	// Unroll launch: (batch, channel, spatial).
	l, err := toLaunch(device.NDRange{Global: [3]int{2, 3, 512}, Local: [3]int{1, 1, 256}})
	require.NoError(t, err)
	assert.Equal(t, [3]int{256, 1, 1}, l.workgroup)
	assert.Equal(t, [3]uint32{2, 3, 2}, l.groups)

	// Direct launch: (col, row, batch*M).
	l, err = toLaunch(device.NDRange{Global: [3]int{16, 32, 8}, Local: [3]int{16, 16, 1}})
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 16, 16}, l.workgroup)
	assert.Equal(t, [3]uint32{8, 2, 1}, l.groups)
}

func TestToLaunch_Limits(t *testing.T) {
	_, err := toLaunch(device.NDRange{Global: [3]int{512, 1, 1}, Local: [3]int{512, 1, 1}})
	assert.Equal(t, device.StatusInvalidWorkGroupSize, device.StatusOf(err), "too many invocations")

	_, err = toLaunch(device.NDRange{Global: [3]int{128, 1, 1}, Local: [3]int{128, 1, 1}})
	assert.Equal(t, device.StatusInvalidWorkGroupSize, device.StatusOf(err), "z axis is limited to 64")

	_, err = toLaunch(device.NDRange{Global: [3]int{70000, 1, 1}, Local: [3]int{1, 1, 1}})
	assert.Equal(t, device.StatusInvalidGlobalWorkSize, device.StatusOf(err), "too many groups")
}

func TestGemmLaunch(t *testing.T) {
	l, err := gemmLaunch(device.GemmArgs{M: 3, N: 17, K: 4, BatchCount: 5})
	require.NoError(t, err)
	assert.Equal(t, [3]int{8, 8, 1}, l.workgroup)
	assert.Equal(t, [3]uint32{3, 1, 5}, l.groups)
}

func TestUniformPacking(t *testing.T) {
	p := gemmParams(device.GemmArgs{
		M: 2, N: 3, K: 4, BatchCount: 5,
		OffsetB: 7, StrideB: 12, StrideC: 6,
		Alpha: 1, Beta: 0.5,
	})
	require.Len(t, p, 48)
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(p[4*i:]) }
	assert.Equal(t, []uint32{2, 3, 4, 5, 0, 7, 0, 0, 12, 6}, []uint32{
		word(0), word(1), word(2), word(3), word(4), word(5), word(6), word(7), word(8), word(9),
	})
	assert.Equal(t, float32(1), math.Float32frombits(word(10)))
	assert.Equal(t, float32(0.5), math.Float32frombits(word(11)))

	// Nine u32 fields pad to 48 bytes.
	d := directParams(device.DirectConvArgs{Batch: 1, OutChannels: 2, InChannels: 3, Height: 5, Width: 6, Kernel: 3, Stride: 2})
	require.Len(t, d, 48)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(d[28:]), "h_out")
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(d[32:]), "w_out")

	i := im2colParams(device.Im2colArgs{Batch: 1, Channels: 1, Height: 4, Width: 4, Kernel: 2, Stride: 1})
	assert.Len(t, i, 32)
}

func TestShaderSource(t *testing.T) {
	for name := range programSource {
		src, err := shaderSource(name, [3]int{64, 2, 1})
		require.NoError(t, err, name)
		assert.Contains(t, src, "@workgroup_size(64, 2, 1)", name)
		assert.False(t, strings.Contains(src, "{{"), name)
	}

	_, err := shaderSource("winograd", [3]int{1, 1, 1})
	assert.Error(t, err)
	assert.Equal(t, "im2col/256x1x1", pipelineKey(device.KernelIm2col, [3]int{256, 1, 1}))
}
