package tensor

import "fmt"

// Tensor is a shape-tagged flat float32 buffer in row-major order.
//
// Tensors handed to the convolution engine are planar: input is
// [batch, channels, height, width], weights are [out_channels, in_channels, k, k].
type Tensor struct {
	shape Shape
	data  []float32
}

// New allocates a zero-filled tensor with the given shape.
func New(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &Tensor{
		shape: shape.Clone(),
		data:  make([]float32, shape.NumElements()),
	}, nil
}

// FromData wraps data as a tensor of the given shape. The slice is not copied.
func FromData(shape Shape, data []float32) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("tensor: shape %v needs %d elements, got %d", shape, shape.NumElements(), len(data))
	}
	return &Tensor{shape: shape.Clone(), data: data}, nil
}

// MustFromData is like FromData but panics on error. Intended for tests and literals.
func MustFromData(shape Shape, data []float32) *Tensor {
	t, err := FromData(shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

// Shape returns the tensor dimensions.
func (t *Tensor) Shape() Shape { return t.shape }

// Data returns the backing slice.
func (t *Tensor) Data() []float32 { return t.data }

// DType returns the element type. Device tensors are always float32.
func (t *Tensor) DType() DataType { return Float32 }

// NumElements returns the element count.
func (t *Tensor) NumElements() int { return len(t.data) }

// ByteSize returns the size of the backing data in bytes.
func (t *Tensor) ByteSize() int { return len(t.data) * Float32.Size() }

// At returns the element at the given multi-dimensional index.
func (t *Tensor) At(idx ...int) float32 {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: At expects %d indices, got %d", len(t.shape), len(idx)))
	}
	strides := t.shape.ComputeStrides()
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dim %d (size %d)", v, i, t.shape[i]))
		}
		off += v * strides[i]
	}
	return t.data[off]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{shape: t.shape.Clone(), data: data}
}

// Reshape returns a tensor sharing the same data with a new shape of equal size.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(t.data) {
		return nil, fmt.Errorf("tensor: cannot reshape %v into %v", t.shape, shape)
	}
	return FromData(shape, t.data)
}
