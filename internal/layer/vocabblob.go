// Package layer implements the semantic layers: bytes, vc0, lines_dict,
// lines_rle, split_text_nums, tpl_lines_v0 and tpl_lines_shared_v0. Each
// layer reduces an input buffer to a set of named symbol streams behind
// a common interface, so the container dispatch logic can route any
// layer's output to the right bundle codec without knowing its internals.
package layer

import (
	"bytes"

	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/varint"
)

var vb2Magic = []byte("VB2\x00")

// PackVocab serializes a list of byte strings as VB2:
// "VB2\0" | varint(count) | count * (varint(len) | bytes).
func PackVocab(vocab [][]byte) []byte {
	out := append([]byte(nil), vb2Magic...)
	out = varint.Encode(out, uint64(len(vocab)))
	for _, v := range vocab {
		out = varint.Encode(out, uint64(len(v)))
		out = append(out, v...)
	}
	return out
}

// UnpackVocab parses either a VB2 blob or the legacy v1 form
// (u32 BE count, count * (u32 BE len + bytes)).
func UnpackVocab(buf []byte) ([][]byte, error) {
	if bytes.HasPrefix(buf, vb2Magic) {
		return unpackVB2(buf[len(vb2Magic):])
	}
	return unpackLegacyV1(buf)
}

func unpackVB2(buf []byte) ([][]byte, error) {
	idx := 0
	count, next, err := varint.Decode(buf, idx)
	if err != nil {
		return nil, err
	}
	idx = next
	out := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		ln, next2, err := varint.Decode(buf, idx)
		if err != nil {
			return nil, err
		}
		idx = next2
		if idx+int(ln) > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "vocab_blob: truncated entry")
		}
		out = append(out, append([]byte(nil), buf[idx:idx+int(ln)]...))
		idx += int(ln)
	}
	if idx != len(buf) {
		return nil, gccerr.New(gccerr.CorruptPayload, "vocab_blob: trailing bytes")
	}
	return out, nil
}

func be32(buf []byte, idx int) (uint32, error) {
	if idx+4 > len(buf) {
		return 0, gccerr.New(gccerr.CorruptPayload, "vocab_blob: truncated length")
	}
	return uint32(buf[idx])<<24 | uint32(buf[idx+1])<<16 | uint32(buf[idx+2])<<8 | uint32(buf[idx+3]), nil
}

func unpackLegacyV1(buf []byte) ([][]byte, error) {
	count, err := be32(buf, 0)
	if err != nil {
		return nil, err
	}
	idx := 4
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		ln, err := be32(buf, idx)
		if err != nil {
			return nil, err
		}
		idx += 4
		if idx+int(ln) > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "vocab_blob: truncated legacy entry")
		}
		out = append(out, append([]byte(nil), buf[idx:idx+int(ln)]...))
		idx += int(ln)
	}
	return out, nil
}
