package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ToBytes encodes a float32 vector as little-endian bytes for blob storage.
func ToBytes(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

// FromBytes decodes a little-endian float32 vector. Returns an error if the
// byte length is not a multiple of 4 or does not match the expected dimension
// (expectedDim <= 0 skips the dimension check).
func FromBytes(b []byte, expectedDim int) ([]float32, error) {
	const size = 4
	if len(b)%size != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of %d", len(b), size)
	}
	n := len(b) / size
	if expectedDim > 0 && n != expectedDim {
		return nil, fmt.Errorf("vector dimension mismatch: blob has %d, expected %d", n, expectedDim)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out, nil
}
