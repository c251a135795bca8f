//go:build !windows

package webgpu

import (
	"fmt"
	"runtime"

	"github.com/born-ml/accelconv/internal/device"
)

// Open reports ErrUnavailable: the bindings are only built on Windows.
func Open() (device.Context, func(), error) {
	return nil, nil, fmt.Errorf("%w on %s", ErrUnavailable, runtime.GOOS)
}
