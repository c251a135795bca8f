//go:build !windows

package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpen_Unavailable(t *testing.T) {
	dc, release, err := Open()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, dc)
	assert.Nil(t, release)
}
