package webgpu

import (
	"fmt"
	"strings"

	"github.com/born-ml/accelconv/internal/device"
)

// gemmEntry is the pipeline name of the batched GEMM.
const gemmEntry = "gemm"

// gemmTile is the GEMM workgroup edge.
const gemmTile = 8

// im2colShader unrolls [B, C, H, W] into [B, C*K*K, HOut*WOut].
// Axes: x = row*W+col, y = channel, z = batch.
const im2colShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> unrolled: array<f32>;

struct Params {
    batch: u32,
    channels: u32,
    height: u32,
    width: u32,
    kernel: u32,
    stride: u32,
    h_out: u32,
    w_out: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size({{X}}, {{Y}}, {{Z}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let b = global_id.z;
    let ch = global_id.y;
    let row = global_id.x / params.width;
    let col = global_id.x % params.width;

    if (b >= params.batch || ch >= params.channels || row >= params.height) {
        return;
    }

    let k = params.kernel;
    let s = params.stride;
    let h_unroll = params.channels * k * k;
    let w_unroll = params.h_out * params.w_out;
    let v = x[((b * params.channels + ch) * params.height + row) * params.width + col];

    for (var p: u32 = 0u; p < k; p = p + 1u) {
        if (row < p) {
            continue;
        }
        let dr = row - p;
        if (dr % s != 0u || dr / s >= params.h_out) {
            continue;
        }
        for (var q: u32 = 0u; q < k; q = q + 1u) {
            if (col < q) {
                continue;
            }
            let dc = col - q;
            if (dc % s != 0u || dc / s >= params.w_out) {
                continue;
            }
            let row_u = ch * k * k + p * k + q;
            let col_u = (dr / s) * params.w_out + dc / s;
            unrolled[(b * h_unroll + row_u) * w_unroll + col_u] = v;
        }
    }
}
`

// directConvShader computes one output element per invocation.
// Axes: x = batch*M + out channel, y = output row, z = output col.
const directConvShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> w: array<f32>;
@group(0) @binding(2) var<storage, read_write> y: array<f32>;

struct Params {
    batch: u32,
    out_channels: u32,
    in_channels: u32,
    height: u32,
    width: u32,
    kernel: u32,
    stride: u32,
    h_out: u32,
    w_out: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{X}}, {{Y}}, {{Z}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let col = global_id.z;
    let row = global_id.y;
    let b = global_id.x / params.out_channels;
    let m = global_id.x % params.out_channels;

    if (col >= params.w_out || row >= params.h_out || b >= params.batch) {
        return;
    }

    let k = params.kernel;
    let s = params.stride;
    var acc: f32 = 0.0;
    for (var ch: u32 = 0u; ch < params.in_channels; ch = ch + 1u) {
        let x_base = (b * params.in_channels + ch) * params.height * params.width;
        let w_base = (m * params.in_channels + ch) * k * k;
        for (var p: u32 = 0u; p < k; p = p + 1u) {
            let x_row = x_base + (row * s + p) * params.width + col * s;
            let w_row = w_base + p * k;
            for (var q: u32 = 0u; q < k; q = q + 1u) {
                acc = acc + x[x_row + q] * w[w_row + q];
            }
        }
    }
    y[((b * params.out_channels + m) * params.h_out + row) * params.w_out + col] = acc;
}
`

// gemmShader performs C[i] = alpha * A[i] @ B[i] + beta * C[i] with element
// offsets and strides per operand. A stride of zero shares the operand.
const gemmShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> c: array<f32>;

struct Params {
    M: u32,
    N: u32,
    K: u32,
    batch: u32,
    offset_a: u32,
    offset_b: u32,
    offset_c: u32,
    stride_a: u32,
    stride_b: u32,
    stride_c: u32,
    alpha: f32,
    beta: f32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size({{X}}, {{Y}}, {{Z}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let batch_idx = global_id.z;
    let row = global_id.y;
    let col = global_id.x;

    if (batch_idx >= params.batch || row >= params.M || col >= params.N) {
        return;
    }

    let a_base = params.offset_a + batch_idx * params.stride_a;
    let b_base = params.offset_b + batch_idx * params.stride_b;
    let c_idx = params.offset_c + batch_idx * params.stride_c + row * params.N + col;

    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        sum = sum + a[a_base + row * params.K + k] * b[b_base + k * params.N + col];
    }

    if (params.beta == 0.0) {
        c[c_idx] = params.alpha * sum;
    } else {
        c[c_idx] = params.alpha * sum + params.beta * c[c_idx];
    }
}
`

// programSource maps entry point names to their WGSL template.
var programSource = map[string]string{
	device.KernelIm2col:     im2colShader,
	device.KernelDirectConv: directConvShader,
	gemmEntry:               gemmShader,
}

// shaderSource instantiates the template of entry point name for a workgroup
// of size (x, y, z).
func shaderSource(name string, workgroup [3]int) (string, error) {
	src, ok := programSource[name]
	if !ok {
		return "", fmt.Errorf("webgpu: no entry point %q", name)
	}
	return strings.NewReplacer(
		"{{X}}", fmt.Sprint(workgroup[0]),
		"{{Y}}", fmt.Sprint(workgroup[1]),
		"{{Z}}", fmt.Sprint(workgroup[2]),
	).Replace(src), nil
}

// pipelineKey names the pipeline compiled for an entry point and workgroup size.
func pipelineKey(name string, workgroup [3]int) string {
	return fmt.Sprintf("%s/%dx%dx%d", name, workgroup[0], workgroup[1], workgroup[2])
}
