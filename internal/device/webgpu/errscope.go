//go:build windows

package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/accelconv/internal/device"
)

// pushErrorScope starts capturing validation errors of the calls that follow.
// Every push is matched by popErrorScope.
func (c *Context) pushErrorScope() {
	c.device.PushErrorScope(wgpu.ErrorFilterValidation)
}

// popErrorScope ends the innermost scope. A captured error becomes a
// StatusError with status unless *err already holds a failure.
func (c *Context) popErrorScope(op string, status device.Status, err *error) {
	typ, msg := c.device.PopErrorScope(c.instance)
	if typ == wgpu.ErrorTypeNoError || *err != nil {
		return
	}
	*err = device.Errorf(op, status, "%s", msg)
}
