// Package imageio reads and writes the plain-text image, filter and stride
// files the convolution CLI consumes.
//
// An image file holds a header "rows cols channels" followed by
// rows*cols*channels values in row-major, channel-interleaved order. A matrix
// file holds "rows cols" followed by rows*cols values. Values are separated by
// any whitespace.
package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/accelconv/internal/tensor"
)

// StrideFile is the name of the stride file next to the input image.
const StrideFile = "stride.raw"

// maxElements bounds the element count a header may declare.
const maxElements = 1 << 28

// ErrMalformed is returned for files that do not follow the expected layout.
var ErrMalformed = errors.New("malformed file")

// LoadImage reads an HWC image.
func LoadImage(path string) (*tensor.Image, error) {
	var img *tensor.Image
	err := readFile(path, func(s *scanner) error {
		rows, cols, channels, err := s.header3()
		if err != nil {
			return err
		}
		if img, err = tensor.NewImage(rows, cols, channels); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return s.values(img.Data)
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// LoadMatrix reads a square filter.
func LoadMatrix(path string) (*tensor.Matrix, error) {
	var m *tensor.Matrix
	err := readFile(path, func(s *scanner) error {
		rows, err := s.dim("rows")
		if err != nil {
			return err
		}
		cols, err := s.dim("cols")
		if err != nil {
			return err
		}
		if rows != cols {
			return fmt.Errorf("%w: filter must be square, got %dx%d", ErrMalformed, rows, cols)
		}
		if _, ok := elements(rows, cols); !ok {
			return fmt.Errorf("%w: %dx%d filter too large", ErrMalformed, rows, cols)
		}
		m = &tensor.Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
		return s.values(m.Data)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LoadStride reads the stride from StrideFile in dir.
func LoadStride(dir string) (int, error) {
	var stride int
	err := readFile(filepath.Join(dir, StrideFile), func(s *scanner) error {
		var err error
		stride, err = s.dim("stride")
		return err
	})
	if err != nil {
		return 0, err
	}
	return stride, nil
}

// SaveImage writes img in the LoadImage format. Integral values are written
// without a fractional part.
func SaveImage(path string, img *tensor.Image) (err error) {
	if len(img.Data) != img.Rows*img.Cols*img.Channels {
		return fmt.Errorf("imageio: image %v holds %d values", img.Shape(), len(img.Data))
	}

	//nolint:gosec // G304: output path comes from the command line
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("imageio: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("imageio: close %s: %w", path, cerr)
		}
	}()

	if err := WriteImage(f, img); err != nil {
		return fmt.Errorf("imageio: write %s: %w", path, err)
	}
	return nil
}

// WriteImage encodes img to w, one image row per line.
func WriteImage(w io.Writer, img *tensor.Image) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d\n", img.Rows, img.Cols, img.Channels)

	rowLen := img.Cols * img.Channels
	buf := make([]byte, 0, 16)
	for r := 0; r < img.Rows; r++ {
		for i, v := range img.Data[r*rowLen : (r+1)*rowLen] {
			if i > 0 {
				bw.WriteByte(' ')
			}
			bw.Write(formatValue(buf[:0], v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatValue(buf []byte, v float32) []byte {
	if v == float32(math.Trunc(float64(v))) && math.Abs(float64(v)) < 1<<53 {
		return strconv.AppendInt(buf, int64(v), 10)
	}
	return strconv.AppendFloat(buf, float64(v), 'g', -1, 32)
}

// readFile opens path and runs parse over its tokens. Missing files keep
// fs.ErrNotExist in the chain.
func readFile(path string, parse func(*scanner) error) error {
	//nolint:gosec // G304: input paths come from the command line
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("imageio: %w", err)
	}
	defer f.Close()

	if err := parse(newScanner(f)); err != nil {
		return fmt.Errorf("imageio: %s: %w", path, err)
	}
	return nil
}

// scanner tokenizes whitespace-separated numbers.
type scanner struct {
	sc  *bufio.Scanner
	pos int
}

func newScanner(r io.Reader) *scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)
	return &scanner{sc: sc}
}

func (s *scanner) next(what string) (string, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: unexpected end of file reading %s (token %d)", ErrMalformed, what, s.pos)
	}
	s.pos++
	return s.sc.Text(), nil
}

// dim reads a positive integer.
func (s *scanner) dim(what string) (int, error) {
	tok, err := s.next(what)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrMalformed, what, tok)
	}
	return n, nil
}

func (s *scanner) header3() (rows, cols, channels int, err error) {
	if rows, err = s.dim("rows"); err != nil {
		return
	}
	if cols, err = s.dim("cols"); err != nil {
		return
	}
	if channels, err = s.dim("channels"); err != nil {
		return
	}
	if _, ok := elements(rows, cols, channels); !ok {
		err = fmt.Errorf("%w: %dx%dx%d image too large", ErrMalformed, rows, cols, channels)
	}
	return
}

// elements multiplies positive dimensions, failing once the product would
// exceed maxElements. Checking before each step keeps the product from wrapping.
func elements(dims ...int) (int, bool) {
	n := 1
	for _, d := range dims {
		if d > maxElements/n {
			return 0, false
		}
		n *= d
	}
	return n, true
}

// values fills dst and rejects trailing tokens.
func (s *scanner) values(dst []float32) error {
	for i := range dst {
		tok, err := s.next("value")
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return fmt.Errorf("%w: value %d: %q is not a number", ErrMalformed, i, tok)
		}
		dst[i] = float32(v)
	}
	if s.sc.Scan() {
		return fmt.Errorf("%w: trailing data after %d values", ErrMalformed, len(dst))
	}
	return s.sc.Err()
}
