package embed

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector converts a float32 slice to a little-endian blob.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector converts a blob written by EncodeVector back to a vector.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embed: vector blob of %d bytes is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// Norm computes the L2 norm of a vector.
func Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine computes cosine similarity with a pre-computed norm of a, so a
// query vector is normalized once per search. Mismatched lengths and zero
// vectors score 0.
func Cosine(a, b []float32, normA float64) float64 {
	if len(a) != len(b) || normA == 0 {
		return 0
	}
	var dot, sumB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		sumB += float64(b[i]) * float64(b[i])
	}
	if sumB == 0 {
		return 0
	}
	return dot / (normA * math.Sqrt(sumB))
}
