package verify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/accelconv/internal/tensor"
)

func image(rows, cols int, data ...float32) *tensor.Image {
	return &tensor.Image{Rows: rows, Cols: cols, Channels: 1, Data: data}
}

func TestCompare_Match(t *testing.T) {
	ref := image(1, 3, 10, 14, 18)
	res := Compare(ref, image(1, 3, 10, 14.00001, 18), DefaultTolerance())
	assert.True(t, res.Match())
	assert.NoError(t, res.Err())
	assert.Equal(t, 3, res.Compared)
}

func TestCompare_Mismatch(t *testing.T) {
	ref := image(2, 2, 1, 2, 3, 4)
	res := Compare(ref, image(2, 2, 1, 2.5, 3, 9), Exact())

	assert.False(t, res.Match())
	assert.Equal(t, 2, res.Mismatches)
	assert.Equal(t, 1, res.FirstIndex)
	assert.Equal(t, float32(2), res.Want)
	assert.Equal(t, float32(2.5), res.Got)
	assert.InDelta(t, 5.0, res.MaxAbsDiff, 1e-9)
	assert.ErrorIs(t, res.Err(), ErrMismatch)
}

func TestCompare_ShapeMismatch(t *testing.T) {
	res := Compare(image(2, 2, 1, 2, 3, 4), image(1, 4, 1, 2, 3, 4), DefaultTolerance())
	assert.False(t, res.ShapeMatch)
	require.Error(t, res.Err())
	assert.Contains(t, res.Err().Error(), "shape")
}

func TestCompare_RelativeTolerance(t *testing.T) {
	tol := Tolerance{Rel: 1e-3}
	assert.True(t, Compare(image(1, 1, 1000), image(1, 1, 1000.9), tol).Match())
	assert.False(t, Compare(image(1, 1, 1000), image(1, 1, 1001.1), tol).Match())
}

func TestCompare_NaN(t *testing.T) {
	res := Compare(image(1, 1, 1), image(1, 1, float32(math.NaN())), DefaultTolerance())
	assert.False(t, res.Match())
	assert.True(t, math.IsInf(res.MaxAbsDiff, 1))
}

func TestChecksum(t *testing.T) {
	a := image(1, 2, 1, 0)
	b := image(1, 2, 1, float32(math.Copysign(0, -1)))
	assert.Equal(t, Checksum(a), Checksum(b))
	assert.NotEqual(t, Checksum(a), Checksum(image(2, 1, 1, 0)), "shape is part of the digest")
	assert.NotEqual(t, Checksum(a), Checksum(image(1, 2, 1, 1)))
	assert.Len(t, Hex(Checksum(a)), 64)
}
