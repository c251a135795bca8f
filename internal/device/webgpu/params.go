package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/accelconv/internal/device"
)

// WebGPU default limits.
const (
	maxInvocations = 256
	maxWorkgroupXY = 256
	maxWorkgroupZ  = 64
	maxGroupsPerAx = 65535

	// maxStorageBufferBindingSize.
	maxStorageBinding = 128 << 20
)

// launch is a device.NDRange expressed on WGSL axes.
type launch struct {
	workgroup [3]int    // @workgroup_size(x, y, z)
	groups    [3]uint32 // DispatchWorkgroups(x, y, z)
}

// toLaunch maps range dimension d onto WGSL axis 2-d and checks the device limits.
func toLaunch(r device.NDRange) (launch, error) {
	if err := r.Validate(maxInvocations); err != nil {
		return launch{}, err
	}
	g := r.Groups()
	l := launch{
		workgroup: [3]int{r.Local[2], r.Local[1], r.Local[0]},
		//nolint:gosec // G115: group counts are bounded below.
		groups: [3]uint32{uint32(g[2]), uint32(g[1]), uint32(g[0])},
	}
	if l.workgroup[0] > maxWorkgroupXY || l.workgroup[1] > maxWorkgroupXY || l.workgroup[2] > maxWorkgroupZ {
		return launch{}, &device.StatusError{Op: "ndrange", Status: device.StatusInvalidWorkGroupSize,
			Err: fmt.Errorf("workgroup %v exceeds per-axis limits (%d, %d, %d)", l.workgroup, maxWorkgroupXY, maxWorkgroupXY, maxWorkgroupZ)}
	}
	for i, n := range g {
		if n > maxGroupsPerAx {
			return launch{}, &device.StatusError{Op: "ndrange", Status: device.StatusInvalidGlobalWorkSize,
				Err: fmt.Errorf("%d workgroups in dim %d exceeds %d", n, i, maxGroupsPerAx)}
		}
	}
	return l, nil
}

// gemmLaunch covers (N, M, batch) with gemmTile x gemmTile workgroups.
func gemmLaunch(g device.GemmArgs) (launch, error) {
	l := launch{
		workgroup: [3]int{gemmTile, gemmTile, 1},
		//nolint:gosec // G115: checked against maxGroupsPerAx below.
		groups: [3]uint32{
			uint32((g.N + gemmTile - 1) / gemmTile),
			uint32((g.M + gemmTile - 1) / gemmTile),
			uint32(g.BatchCount),
		},
	}
	for i, n := range l.groups {
		if n > maxGroupsPerAx {
			return launch{}, device.Errorf("enqueue gemm", device.StatusInvalidValue, "%d workgroups on axis %d exceeds %d", n, i, maxGroupsPerAx)
		}
	}
	return l, nil
}

// uniform packs little-endian u32/f32 fields into a 16-byte aligned block.
type uniform struct {
	data []byte
}

func (u *uniform) u32(v int) *uniform {
	//nolint:gosec // G115: geometry values are validated non-negative.
	u.data = binary.LittleEndian.AppendUint32(u.data, uint32(v))
	return u
}

func (u *uniform) f32(v float32) *uniform {
	u.data = binary.LittleEndian.AppendUint32(u.data, math.Float32bits(v))
	return u
}

// bytes returns the block padded to a multiple of 16 bytes.
func (u *uniform) bytes() []byte {
	out := make([]byte, (len(u.data)+15)&^15)
	copy(out, u.data)
	return out
}

func im2colParams(a device.Im2colArgs) []byte {
	hOut, wOut := device.OutputDims(a.Height, a.Width, a.Kernel, a.Stride)
	u := &uniform{}
	u.u32(a.Batch).u32(a.Channels).u32(a.Height).u32(a.Width).
		u32(a.Kernel).u32(a.Stride).u32(hOut).u32(wOut)
	return u.bytes()
}

func directParams(a device.DirectConvArgs) []byte {
	hOut, wOut := device.OutputDims(a.Height, a.Width, a.Kernel, a.Stride)
	u := &uniform{}
	u.u32(a.Batch).u32(a.OutChannels).u32(a.InChannels).u32(a.Height).u32(a.Width).
		u32(a.Kernel).u32(a.Stride).u32(hOut).u32(wOut)
	return u.bytes()
}

func gemmParams(g device.GemmArgs) []byte {
	u := &uniform{}
	u.u32(g.M).u32(g.N).u32(g.K).u32(g.BatchCount).
		u32(g.OffsetA).u32(g.OffsetB).u32(g.OffsetC).
		u32(g.StrideA).u32(g.StrideB).u32(g.StrideC).
		f32(g.Alpha).f32(g.Beta)
	return u.bytes()
}
