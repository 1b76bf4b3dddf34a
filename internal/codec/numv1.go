package codec

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/numstream"
	"github.com/javanhut/gcc-ocf/internal/varint"
)

// num_v1 frame modes.
const (
	nv1ModeRaw    byte = 0
	nv1ModeDict   byte = 1
	nv1ModeShared byte = 2
)

var nv1Magic = []byte("NV1")

// dictCandidateK are the dictionary sizes tried during encode, in priority
// order.
var dictCandidateK = []int{8, 16, 32, 64, 128}

// SharedNumDict is a bucket-level shared numeric dictionary, the decoded
// form of the `num_dict_v1` resource.
type SharedNumDict struct {
	Tag    [8]byte
	Values []int64
	lookup map[int64]int
}

// NewSharedNumDict builds a SharedNumDict from its ordered dictionary
// values, computing its content tag.
func NewSharedNumDict(values []int64) *SharedNumDict {
	d := &SharedNumDict{Values: values, lookup: make(map[int64]int, len(values))}
	for i, v := range values {
		if _, ok := d.lookup[v]; !ok {
			d.lookup[v] = i + 1
		}
	}
	copy(d.Tag[:], DictTag8(values))
	return d
}

// DictTag8 computes sha256(encode_ints(dict_vals))[:8].
func DictTag8(values []int64) []byte {
	sum := sha256.Sum256(numstream.Encode(values))
	out := make([]byte, 8)
	copy(out, sum[:8])
	return out
}

// NumV1Codec implements the num_v1 numeric dictionary codec. Shared, when
// set, is used for SHARED-mode encode candidates and is required to decode
// SHARED-mode frames.
type NumV1Codec struct {
	Shared *SharedNumDict
}

func frameNV1(mode byte, payload []byte) []byte {
	out := make([]byte, 0, 4+len(payload))
	out = append(out, nv1Magic...)
	out = append(out, mode)
	out = append(out, payload...)
	return out
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func encodeCodeStream(dst []byte, ints []int64, lookup map[int64]int) []byte {
	for _, v := range ints {
		if code, ok := lookup[v]; ok {
			dst = varint.Encode(dst, uint64(code))
		} else {
			dst = varint.Encode(dst, 0)
			dst = varint.Encode(dst, varint.ZigZagEncode(v))
		}
	}
	return dst
}

func encodeDictCandidate(ints []int64, dictVals []int64) []byte {
	payload := varint.Encode(nil, uint64(len(dictVals)))
	for _, v := range dictVals {
		payload = varint.Encode(payload, varint.ZigZagEncode(v))
	}
	lookup := make(map[int64]int, len(dictVals))
	for i, v := range dictVals {
		if _, ok := lookup[v]; !ok {
			lookup[v] = i + 1
		}
	}
	payload = encodeCodeStream(payload, ints, lookup)
	return frameNV1(nv1ModeDict, payload)
}

func encodeSharedCandidate(ints []int64, shared *SharedNumDict) []byte {
	payload := append([]byte(nil), shared.Tag[:]...)
	payload = encodeCodeStream(payload, ints, shared.lookup)
	return frameNV1(nv1ModeShared, payload)
}

func smallest(cands [][]byte) []byte {
	best := cands[0]
	for _, c := range cands[1:] {
		if len(c) < len(best) {
			best = c
		}
	}
	return best
}

// Compress implements the RAW/DICT/SHARED candidate selection, keeping
// whichever mode produces the smallest frame.
func (c NumV1Codec) Compress(data []byte) ([]byte, error) {
	ints, err := numstream.Decode(data)
	if err != nil {
		return nil, err
	}

	raw := frameNV1(nv1ModeRaw, data)
	if len(ints) < 8 {
		return raw, nil
	}

	candidates := [][]byte{raw}
	if c.Shared != nil {
		candidates = append(candidates, encodeSharedCandidate(ints, c.Shared))
	}

	freq := make(map[int64]int)
	for _, v := range ints {
		freq[v]++
	}
	if len(freq) < 4 {
		return smallest(candidates), nil
	}

	uniq := make([]int64, 0, len(freq))
	for v := range freq {
		uniq = append(uniq, v)
	}
	sort.Slice(uniq, func(i, j int) bool {
		a, b := uniq[i], uniq[j]
		if freq[a] != freq[b] {
			return freq[a] > freq[b]
		}
		aa, ab := abs64(a), abs64(b)
		if aa != ab {
			return aa < ab
		}
		return a < b
	})

	for _, k := range dictCandidateK {
		if k < 4 || k > len(uniq) {
			continue
		}
		candidates = append(candidates, encodeDictCandidate(ints, uniq[:k]))
	}

	return smallest(candidates), nil
}

func decodeCodeStream(buf []byte, dictVals []int64) ([]int64, error) {
	var ints []int64
	idx := 0
	for idx < len(buf) {
		code, next, err := varint.Decode(buf, idx)
		if err != nil {
			return nil, err
		}
		idx = next
		if code == 0 {
			u, next2, err := varint.Decode(buf, idx)
			if err != nil {
				return nil, err
			}
			idx = next2
			ints = append(ints, varint.ZigZagDecode(u))
			continue
		}
		ci := int(code) - 1
		if ci < 0 || ci >= len(dictVals) {
			return nil, gccerr.New(gccerr.CorruptPayload, "num_v1: code out of range")
		}
		ints = append(ints, dictVals[ci])
	}
	return ints, nil
}

// Decompress implements num_v1 frame decoding for all three modes.
func (c NumV1Codec) Decompress(comp []byte, outSize int) ([]byte, error) {
	if len(comp) < 4 || !bytes.Equal(comp[:3], nv1Magic) {
		return nil, gccerr.New(gccerr.BadMagic, "num_v1: bad magic")
	}
	mode := comp[3]
	payload := comp[4:]

	var out []byte
	switch mode {
	case nv1ModeRaw:
		out = payload

	case nv1ModeDict:
		idx := 0
		k, next, err := varint.Decode(payload, idx)
		if err != nil {
			return nil, err
		}
		idx = next
		dictVals := make([]int64, k)
		for i := range dictVals {
			u, next2, err := varint.Decode(payload, idx)
			if err != nil {
				return nil, err
			}
			dictVals[i] = varint.ZigZagDecode(u)
			idx = next2
		}
		ints, err := decodeCodeStream(payload[idx:], dictVals)
		if err != nil {
			return nil, err
		}
		out = numstream.Encode(ints)

	case nv1ModeShared:
		if len(payload) < 8 {
			return nil, gccerr.New(gccerr.CorruptPayload, "num_v1: truncated shared tag")
		}
		if c.Shared == nil {
			return nil, gccerr.New(gccerr.MissingResource, "num_v1: no shared dict configured")
		}
		tag := payload[:8]
		if !bytes.Equal(tag, c.Shared.Tag[:]) {
			return nil, gccerr.New(gccerr.HashMismatch, "num_v1: shared dict tag mismatch")
		}
		ints, err := decodeCodeStream(payload[8:], c.Shared.Values)
		if err != nil {
			return nil, err
		}
		out = numstream.Encode(ints)

	default:
		return nil, gccerr.Newf(gccerr.CorruptPayload, "num_v1: bad mode %d", mode)
	}

	if outSize >= 0 && len(out) != outSize {
		return nil, gccerr.Newf(gccerr.CorruptPayload, "num_v1: length mismatch got=%d want=%d", len(out), outSize)
	}
	return out, nil
}
