// Package varint implements the unsigned LEB128 and signed zigzag integer
// primitives used by every wire format in this module, with a hard cap
// of 63 shift bits rather than Go's stdlib encoding/binary varint, which
// has no equivalent cap and different overflow semantics.
package varint

import "github.com/javanhut/gcc-ocf/internal/gccerr"

// Encode appends the unsigned LEB128 encoding of x to dst and returns it.
func Encode(dst []byte, x uint64) []byte {
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if x != 0 {
			dst = append(dst, b|0x80)
		} else {
			dst = append(dst, b)
			break
		}
	}
	return dst
}

// Decode reads one LEB128 value from buf starting at idx and returns the
// value along with the index just past it.
func Decode(buf []byte, idx int) (uint64, int, error) {
	var x uint64
	var shift uint
	for {
		if idx >= len(buf) {
			return 0, 0, gccerr.New(gccerr.CorruptPayload, "varint: truncated")
		}
		b := buf[idx]
		idx++
		x |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 63 {
			return 0, 0, gccerr.New(gccerr.CorruptPayload, "varint: too large")
		}
	}
	return x, idx, nil
}

// ZigZagEncode maps a signed int64 to its unsigned zigzag representation,
// matching the Python original's (n<<1) for n>=0 else ((-n<<1)-1).
func ZigZagEncode(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

// ZigZagDecode is the inverse of ZigZagEncode.
func ZigZagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
