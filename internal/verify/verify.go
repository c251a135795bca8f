// Package verify compares a computed image with the reference answer.
package verify

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/accelconv/internal/tensor"
)

// ErrMismatch is returned by Result.Err when the images differ.
var ErrMismatch = errors.New("output does not match reference")

// Tolerance bounds the accepted per-element difference:
// |ref - got| <= Abs + Rel*|ref|.
type Tolerance struct {
	Abs float64
	Rel float64
}

// DefaultTolerance accepts the float32 rounding of the two convolution paths.
func DefaultTolerance() Tolerance {
	return Tolerance{Abs: 1e-3, Rel: 1e-3}
}

// Exact accepts only identical values.
func Exact() Tolerance { return Tolerance{} }

func (t Tolerance) accepts(ref, got float32) bool {
	diff := math.Abs(float64(ref) - float64(got))
	return diff <= t.Abs+t.Rel*math.Abs(float64(ref))
}

// Result summarizes a comparison.
type Result struct {
	ShapeMatch bool
	Compared   int
	Mismatches int

	// First differing element, valid when Mismatches > 0.
	FirstIndex int
	Want, Got  float32
	MaxAbsDiff float64
}

// Match reports whether shapes agree and every element is within tolerance.
func (r Result) Match() bool { return r.ShapeMatch && r.Mismatches == 0 }

// Err returns nil on a match and an error wrapping ErrMismatch otherwise.
func (r Result) Err() error {
	switch {
	case r.Match():
		return nil
	case !r.ShapeMatch:
		return fmt.Errorf("%w: shape differs", ErrMismatch)
	default:
		return fmt.Errorf("%w: %d of %d elements differ, first at %d (want %v, got %v), max diff %g",
			ErrMismatch, r.Mismatches, r.Compared, r.FirstIndex, r.Want, r.Got, r.MaxAbsDiff)
	}
}

// Compare checks got against ref element by element.
func Compare(ref, got *tensor.Image, tol Tolerance) Result {
	res := Result{ShapeMatch: ref.Shape().Equal(got.Shape()) && len(ref.Data) == len(got.Data)}
	if !res.ShapeMatch {
		return res
	}

	res.Compared = len(ref.Data)
	for i, want := range ref.Data {
		g := got.Data[i]
		diff := math.Abs(float64(want) - float64(g))
		if math.IsNaN(float64(g)) {
			diff = math.Inf(1)
		}
		res.MaxAbsDiff = max(res.MaxAbsDiff, diff)
		if tol.accepts(want, g) {
			continue
		}
		if res.Mismatches == 0 {
			res.FirstIndex, res.Want, res.Got = i, want, g
		}
		res.Mismatches++
	}
	return res
}
