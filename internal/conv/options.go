package conv

import (
	"fmt"
	"strings"

	"github.com/born-ml/accelconv/internal/device"
)

// Strategy selects how a pass computes the convolution.
type Strategy int

// Strategies.
const (
	// Auto picks Unroll unless the unrolled buffer exceeds Options.UnrollLimitBytes
	// or the device's largest bindable buffer.
	Auto Strategy = iota
	// Unroll runs im2col followed by one batched GEMM.
	Unroll
	// Direct accumulates each output element over its receptive field.
	Direct
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Auto:
		return "auto"
	case Unroll:
		return "unroll"
	case Direct:
		return "direct"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses "auto", "unroll" (alias "im2col", "gemm") or "direct".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "unroll", "im2col", "gemm":
		return Unroll, nil
	case "direct":
		return Direct, nil
	default:
		return Auto, fmt.Errorf("unknown strategy %q (want auto, unroll or direct)", s)
	}
}

// Options configures an Engine.
type Options struct {
	Strategy Strategy

	// TileWidth is the edge of the direct kernel's 2D work-group. The unroll
	// kernel uses TileWidth*TileWidth items per group.
	TileWidth int

	// InitAtCreate initializes read-only buffers from host memory when they
	// are allocated; otherwise they are uploaded with blocking writes.
	InitAtCreate bool

	// UnrollLimitBytes is the largest unrolled buffer Auto accepts. A negative
	// value leaves only the device limit.
	UnrollLimitBytes int

	// PerBatchGemm forces one GEMM call per batch element even when the
	// device supports batched GEMM.
	PerBatchGemm bool
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		Strategy:         Auto,
		TileWidth:        16,
		InitAtCreate:     true,
		UnrollLimitBytes: 256 << 20,
	}
}

// resolve picks the concrete strategy for p on a device with caps. Auto also
// falls back to Direct when the device cannot bind the unrolled buffer.
func (o Options) resolve(p Params, caps device.Capabilities) Strategy {
	if o.Strategy != Auto {
		return o.Strategy
	}
	limit := o.UnrollLimitBytes
	if caps.MaxBufferBytes > 0 && (limit <= 0 || caps.MaxBufferBytes < limit) {
		limit = caps.MaxBufferBytes
	}
	if limit > 0 && p.UnrolledBytes() > limit {
		return Direct
	}
	return Unroll
}
