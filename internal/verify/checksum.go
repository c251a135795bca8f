package verify

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/born-ml/accelconv/internal/tensor"
)

// Checksum computes a SHA-256 digest of the image shape and values.
// Values are hashed by their float32 bit pattern, so equal images hash equal.
func Checksum(img *tensor.Image) [32]byte {
	h := sha256.New()
	var word [4]byte
	for _, d := range img.Shape() {
		//nolint:gosec // G115: image dimensions are positive.
		binary.LittleEndian.PutUint32(word[:], uint32(d))
		h.Write(word[:])
	}
	for _, v := range img.Data {
		if v == 0 {
			v = 0 // -0 and +0 hash alike.
		}
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		h.Write(word[:])
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// Hex formats a checksum for logs.
func Hex(sum [32]byte) string { return hex.EncodeToString(sum[:]) }
