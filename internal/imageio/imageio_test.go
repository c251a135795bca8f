package imageio

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/accelconv/internal/tensor"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "input.raw", "2 2 3\n1 2 3 4 5 6\n7 8 9 10 11 12.5\n")

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2, 3}, img.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12.5}, img.Data)
}

func TestLoadImage_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadImage(filepath.Join(dir, "missing.raw"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	tests := map[string]string{
		"short":      "2 2 1\n1 2 3\n",
		"trailing":   "1 1 1\n1 2\n",
		"bad header": "2 x 1\n1 2\n",
		"zero dim":   "0 2 1\n",
		"not number": "1 2 1\n1 abc\n",
		"empty":      "",
		"wraps to 0": "8589934592 2147483648 1\n",
		"wraps":      "4294967297 4294967297 1\n1\n",
		"too large":  "65536 65536 3\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadImage(writeFile(t, dir, "bad.raw", content))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestLoadMatrix(t *testing.T) {
	dir := t.TempDir()

	m, err := LoadMatrix(writeFile(t, dir, "kernel.raw", "2 2\n0.5 1\n-1 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, m.KernelSize())
	assert.Equal(t, []float32{0.5, 1, -1, 2}, m.Data)

	_, err = LoadMatrix(writeFile(t, dir, "rect.raw", "2 3\n1 2 3 4 5 6\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	// 2^32 squared wraps to zero.
	_, err = LoadMatrix(writeFile(t, dir, "huge.raw", "4294967296 4294967296\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestElements(t *testing.T) {
	n, ok := elements(3, 4, 5)
	assert.True(t, ok)
	assert.Equal(t, 60, n)

	_, ok = elements(maxElements, 2)
	assert.False(t, ok)
	_, ok = elements(1<<33, 1<<31, 1)
	assert.False(t, ok)

	n, ok = elements(maxElements, 1)
	assert.True(t, ok)
	assert.Equal(t, maxElements, n)
}

func TestLoadStride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, StrideFile, "2\n")

	stride, err := LoadStride(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, stride)

	writeFile(t, dir, StrideFile, "0\n")
	_, err = LoadStride(dir)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = LoadStride(t.TempDir())
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestWriteImage_Format(t *testing.T) {
	img := &tensor.Image{Rows: 2, Cols: 1, Channels: 3, Data: []float32{10, 14, -3, 0.25, 2, 1e9}}

	var buf bytes.Buffer
	require.NoError(t, WriteImage(&buf, img))
	assert.Equal(t, "2 1 3\n10 14 -3\n0.25 2 1000000000\n", buf.String())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	img, err := tensor.NewImage(3, 4, tensor.ImageChannels)
	require.NoError(t, err)
	for i := range img.Data {
		img.Data[i] = float32(i*7%23) - 5
	}

	path := filepath.Join(t.TempDir(), "out.raw")
	require.NoError(t, SaveImage(path, img))

	back, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, img.Shape(), back.Shape())
	assert.Equal(t, img.Data, back.Data)
}

func TestSaveImage_Inconsistent(t *testing.T) {
	img := &tensor.Image{Rows: 2, Cols: 2, Channels: 3, Data: make([]float32, 5)}
	assert.Error(t, SaveImage(filepath.Join(t.TempDir(), "x.raw"), img))
}
