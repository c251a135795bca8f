package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/accelconv/internal/imageio"
	"github.com/born-ml/accelconv/internal/tensor"
)

// fixture writes a 4x4 three-channel image whose channel c holds (c+1)*i at
// pixel i, a 2x2 all-ones filter, stride 1 and the matching answer.
func fixture(t *testing.T, corruptAnswer bool) (dir string, args []string) {
	t.Helper()
	dir = t.TempDir()

	img, err := tensor.NewImage(4, 4, 3)
	require.NoError(t, err)
	for p := 0; p < 16; p++ {
		for c := 0; c < 3; c++ {
			img.Data[p*3+c] = float32((c + 1) * p)
		}
	}
	require.NoError(t, imageio.SaveImage(filepath.Join(dir, "input.raw"), img))

	sums := []float32{10, 14, 18, 26, 30, 34, 42, 46, 50}
	answer, err := tensor.NewImage(3, 3, 3)
	require.NoError(t, err)
	for p, s := range sums {
		for c := 0; c < 3; c++ {
			answer.Data[p*3+c] = float32(c+1) * s
		}
	}
	if corruptAnswer {
		answer.Data[5]++
	}
	require.NoError(t, imageio.SaveImage(filepath.Join(dir, "answer.raw"), answer))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "kernel.raw"), []byte("2 2\n1 1\n1 1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, imageio.StrideFile), []byte("1\n"), 0o600))

	return dir, []string{
		filepath.Join(dir, "input.raw"),
		filepath.Join(dir, "kernel.raw"),
		filepath.Join(dir, "answer.raw"),
		filepath.Join(dir, "output.raw"),
	}
}

func TestRun_Success(t *testing.T) {
	for _, strategy := range []string{"unroll", "direct", "auto"} {
		t.Run(strategy, func(t *testing.T) {
			dir, args := fixture(t, false)
			var stdout, stderr bytes.Buffer

			code := run(append([]string{"-strategy", strategy, "-workers", "2"}, args...), &stdout, &stderr)
			require.Equal(t, exitOK, code, stderr.String())
			assert.Contains(t, stdout.String(), "27 values match")

			out, err := imageio.LoadImage(filepath.Join(dir, "output.raw"))
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{3, 3, 3}, out.Shape())
			assert.Equal(t, []float32{10, 20, 30}, out.Data[:3])
		})
	}
}

func TestRun_MismatchStillSavesOutput(t *testing.T) {
	dir, args := fixture(t, true)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitMismatch, run(args, &stdout, &stderr))
	_, err := os.Stat(filepath.Join(dir, "output.raw"))
	assert.NoError(t, err)
}

func TestRun_Failures(t *testing.T) {
	dir, args := fixture(t, false)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitFailure, run(args[:3], &stdout, &stderr), "missing argument")
	assert.Equal(t, exitFailure, run(append([]string{"-strategy", "winograd"}, args...), &stdout, &stderr))
	assert.Equal(t, exitFailure, run(append([]string{"-device", "tpu"}, args...), &stdout, &stderr))

	require.NoError(t, os.Remove(filepath.Join(dir, imageio.StrideFile)))
	assert.Equal(t, exitFailure, run(args, &stdout, &stderr), "missing stride file")
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitOK, run([]string{"version"}, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stdout.String(), "conv2d v"))
}
