package vector

import (
	"encoding/binary"
	"math"
)

// EncodeFloat32s serializes a vector as little-endian float32 bytes.
// Used for SQLite blob columns and the index file format.
func EncodeFloat32s(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

// DecodeFloat32s deserializes little-endian float32 bytes back to a vector.
// Trailing bytes that do not fill a full float32 are ignored.
func DecodeFloat32s(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
