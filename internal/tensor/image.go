package tensor

import (
	"fmt"

	"github.com/born-ml/accelconv/internal/parallel"
)

// ImageChannels is the channel count of images read by the loader.
const ImageChannels = 3

// Image is a channel-interleaved (HWC) image as stored on disk.
// Element (r, c, ch) lives at Data[(r*Cols+c)*Channels+ch].
type Image struct {
	Rows     int
	Cols     int
	Channels int
	Data     []float32
}

// NewImage allocates a zero-filled image.
func NewImage(rows, cols, channels int) (*Image, error) {
	if err := (Shape{rows, cols, channels}).Validate(); err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return &Image{
		Rows:     rows,
		Cols:     cols,
		Channels: channels,
		Data:     make([]float32, rows*cols*channels),
	}, nil
}

// Shape returns [rows, cols, channels].
func (img *Image) Shape() Shape {
	return Shape{img.Rows, img.Cols, img.Channels}
}

// Planar converts the image into a [channels, rows, cols] tensor.
func (img *Image) Planar() *Tensor {
	plane := img.Rows * img.Cols
	out := make([]float32, len(img.Data))
	parallel.For(img.Rows, func(r int) {
		for p := r * img.Cols; p < (r+1)*img.Cols; p++ {
			for ch := 0; ch < img.Channels; ch++ {
				out[ch*plane+p] = img.Data[p*img.Channels+ch]
			}
		}
	}, parallel.DefaultConfig())
	return &Tensor{shape: Shape{img.Channels, img.Rows, img.Cols}, data: out}
}

// ImageFromPlanar interleaves a planar tensor back into an image.
// Accepted shapes are [C, H, W] and [C, 1, H, W].
func ImageFromPlanar(t *Tensor) (*Image, error) {
	s := t.Shape()
	var channels, rows, cols int
	switch {
	case len(s) == 3:
		channels, rows, cols = s[0], s[1], s[2]
	case len(s) == 4 && s[1] == 1:
		channels, rows, cols = s[0], s[2], s[3]
	default:
		return nil, fmt.Errorf("image: cannot interleave tensor of shape %v", s)
	}

	img, err := NewImage(rows, cols, channels)
	if err != nil {
		return nil, err
	}
	plane := rows * cols
	data := t.Data()
	parallel.For(rows, func(r int) {
		for p := r * cols; p < (r+1)*cols; p++ {
			for ch := 0; ch < channels; ch++ {
				img.Data[p*channels+ch] = data[ch*plane+p]
			}
		}
	}, parallel.DefaultConfig())
	return img, nil
}

// Matrix is a square filter of convolution weights.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// KernelSize returns the filter edge length. The matrix must be square.
func (m *Matrix) KernelSize() int { return m.Rows }

// Weights returns the filter as a [1, 1, K, K] weight tensor.
func (m *Matrix) Weights() (*Tensor, error) {
	if m.Rows != m.Cols {
		return nil, fmt.Errorf("matrix: filter must be square, got %dx%d", m.Rows, m.Cols)
	}
	k := m.KernelSize()
	return FromData(Shape{1, 1, k, k}, m.Data)
}
