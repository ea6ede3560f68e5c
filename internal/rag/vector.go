package rag

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// MaxTopK is the largest result count any store returns for one search.
const MaxTopK = 50

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is all zeros.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// ClampK bounds k to [1, max]. A non-positive max means MaxTopK.
func ClampK(k, max int) int {
	if max <= 0 {
		max = MaxTopK
	}
	if k > max {
		return max
	}
	if k < 1 {
		return 1
	}
	return k
}

// RankHits sorts hits by descending score, breaking ties by chunk ID so
// results are deterministic, and truncates to k.
func RankHits(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// CheckDimensions returns an ErrStoreWrite wrapping ErrDimensionMismatch for
// the first row whose embedding length is not dim.
func CheckDimensions(op string, rows []EmbeddedChunk, dim int) error {
	for _, r := range rows {
		if len(r.Embedding) != dim {
			return Wrap(ErrStoreWrite, op, fmt.Errorf("%w: chunk %s has %d dimensions, store expects %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), dim))
		}
	}
	return nil
}

// EncodeVector serialises v as little-endian float32 values.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("rag: vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
