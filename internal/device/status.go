package device

import (
	"errors"
	"fmt"
)

// ErrDropped marks a command that never ran because an earlier command in the
// same stream failed.
var ErrDropped = errors.New("command dropped after an earlier failure")

// Status is an accelerator status code. Values follow the OpenCL numbering so
// diagnostics read the same whichever backend produced them.
type Status int

// Status codes.
const (
	StatusSuccess               Status = 0
	StatusOutOfResources        Status = -5
	StatusOutOfHostMemory       Status = -6
	StatusInvalidValue          Status = -30
	StatusInvalidMemObject      Status = -38
	StatusInvalidKernelName     Status = -46
	StatusInvalidKernel         Status = -48
	StatusInvalidKernelArgs     Status = -52
	StatusInvalidWorkGroupSize  Status = -54
	StatusInvalidGlobalWorkSize Status = -63
	StatusGemmFailed            Status = -1024
	StatusKernelFault           Status = -1025
	StatusDeviceLost            Status = -1026
)

var statusNames = map[Status]string{
	StatusSuccess:               "SUCCESS",
	StatusOutOfResources:        "OUT_OF_RESOURCES",
	StatusOutOfHostMemory:       "OUT_OF_HOST_MEMORY",
	StatusInvalidValue:          "INVALID_VALUE",
	StatusInvalidMemObject:      "INVALID_MEM_OBJECT",
	StatusInvalidKernelName:     "INVALID_KERNEL_NAME",
	StatusInvalidKernel:         "INVALID_KERNEL",
	StatusInvalidKernelArgs:     "INVALID_KERNEL_ARGS",
	StatusInvalidWorkGroupSize:  "INVALID_WORK_GROUP_SIZE",
	StatusInvalidGlobalWorkSize: "INVALID_GLOBAL_WORK_SIZE",
	StatusGemmFailed:            "GEMM_FAILED",
	StatusKernelFault:           "KERNEL_FAULT",
	StatusDeviceLost:            "DEVICE_LOST",
}

// String returns the symbolic name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// StatusError is returned by contexts for any non-success device operation.
type StatusError struct {
	Op     string // Device operation, e.g. "allocate", "enqueue kernel im2col"
	Status Status
	Err    error // Optional underlying cause
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s (%d): %v", e.Op, e.Status, int(e.Status), e.Err)
	}
	return fmt.Sprintf("%s failed: %s (%d)", e.Op, e.Status, int(e.Status))
}

// Unwrap returns the underlying cause.
func (e *StatusError) Unwrap() error { return e.Err }

// Errorf builds a StatusError with a formatted cause.
func Errorf(op string, status Status, format string, args ...any) error {
	return &StatusError{Op: op, Status: status, Err: fmt.Errorf(format, args...)}
}

// StatusOf extracts the device status from err, or StatusSuccess when err is nil.
// Errors that carry no status report StatusInvalidValue.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusInvalidValue
}
