package conv

import (
	"errors"
	"fmt"

	"github.com/born-ml/accelconv/internal/device"
)

// Common errors. Every *Error matches exactly one of the first three via errors.Is.
var (
	ErrResource = errors.New("accelerator resource error")
	ErrTransfer = errors.New("accelerator transfer error")
	ErrDispatch = errors.New("accelerator dispatch error")
	ErrGeometry = errors.New("invalid convolution geometry")
)

// Kind classifies an accelerator failure.
type Kind int

// Failure kinds.
const (
	// KindResource covers buffer and kernel allocation or release.
	KindResource Kind = iota
	// KindTransfer covers host <-> device copies.
	KindTransfer
	// KindDispatch covers kernel launches, GEMM calls and queue completion.
	KindDispatch
)

func (k Kind) sentinel() error {
	switch k {
	case KindResource:
		return ErrResource
	case KindTransfer:
		return ErrTransfer
	default:
		return ErrDispatch
	}
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindTransfer:
		return "transfer"
	case KindDispatch:
		return "dispatch"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a failed step of a forward pass.
type Error struct {
	Op     string        // Engine step, e.g. "upload input", "batched gemm"
	Kind   Kind          // Failure class
	Status device.Status // Accelerator status code
	Err    error         // Underlying device error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("conv: %s failed with status %s (%d): %v", e.Op, e.Status, int(e.Status), e.Err)
}

// Unwrap returns the underlying device error.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error kind.
func (e *Error) Is(target error) bool { return target == e.Kind.sentinel() }

// fail wraps a device error as a pass failure.
func fail(kind Kind, op string, err error) error {
	return &Error{Op: op, Kind: kind, Status: device.StatusOf(err), Err: err}
}
