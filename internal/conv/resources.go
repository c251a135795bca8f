package conv

import (
	"errors"

	"k8s.io/klog/v2"

	"github.com/born-ml/accelconv/internal/device"
)

// resources owns every buffer and kernel handle created during one pass.
// release frees them all, whatever happened in between.
type resources struct {
	dc      device.Context
	buffers []device.Buffer
	kernels []device.Kernel
}

func newResources(dc device.Context) *resources {
	return &resources{dc: dc}
}

// allocate creates a buffer owned by the pass.
func (r *resources) allocate(op string, size int, mode device.AccessMode, init []float32) (device.Buffer, error) {
	buf, err := r.dc.Allocate(size, mode, init)
	if err != nil {
		return nil, fail(KindResource, op, err)
	}
	r.buffers = append(r.buffers, buf)
	return buf, nil
}

// kernel creates a kernel handle owned by the pass.
func (r *resources) kernel(name string) (device.Kernel, error) {
	k, err := r.dc.CreateKernel(name)
	if err != nil {
		return nil, fail(KindResource, "create kernel "+name, err)
	}
	r.kernels = append(r.kernels, k)
	return k, nil
}

// release frees kernels then buffers, newest first. Every handle is released
// even if some releases fail; the failures are joined.
func (r *resources) release() error {
	var errs []error
	for i := len(r.kernels) - 1; i >= 0; i-- {
		if err := r.dc.ReleaseKernel(r.kernels[i]); err != nil {
			errs = append(errs, fail(KindResource, "release kernel "+r.kernels[i].Name(), err))
		}
	}
	for i := len(r.buffers) - 1; i >= 0; i-- {
		if err := r.dc.Release(r.buffers[i]); err != nil {
			errs = append(errs, fail(KindResource, "release buffer", err))
		}
	}
	klog.V(3).Infof("conv: released %d buffers, %d kernels", len(r.buffers), len(r.kernels))
	r.kernels, r.buffers = nil, nil
	return errors.Join(errs...)
}
