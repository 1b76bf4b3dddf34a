// Package numstream packs and unpacks sequences of signed integers as
// concatenated zigzag-varint bytes, the common currency passed between
// layers and the num_v1 codec.
package numstream

import "github.com/javanhut/gcc-ocf/internal/varint"

// Encode packs xs as concatenated varint(zigzag(n)) bytes.
func Encode(xs []int64) []byte {
	out := make([]byte, 0, len(xs)*2)
	for _, n := range xs {
		out = varint.Encode(out, varint.ZigZagEncode(n))
	}
	return out
}

// Decode unpacks a numeric-stream byte buffer into signed integers,
// reading until the buffer is exhausted. Trailing partial varints are a
// structural error.
func Decode(buf []byte) ([]int64, error) {
	var out []int64
	idx := 0
	for idx < len(buf) {
		u, next, err := varint.Decode(buf, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, varint.ZigZagDecode(u))
		idx = next
	}
	return out, nil
}
