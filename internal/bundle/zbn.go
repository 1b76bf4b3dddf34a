package bundle

import (
	"bytes"
	"encoding/binary"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/varint"
)

var (
	zbn2Magic  = []byte("ZBN2")
	zbn1Magic  = []byte("ZBN1")
	zraw1Magic = []byte("ZRAW1")
)

// ZBNStream is one named stream going into a ZBN2 bundle.
type ZBNStream struct {
	Name         string
	Kind         string // "bytes" or "ids"
	AlphabetSize uint32
	Symbols      []uint32
}

func kindByte(kind string) byte {
	if kind == "ids" {
		return 1
	}
	return 0
}

func packPlainVarints(vals []uint32) []byte {
	out := make([]byte, 0, len(vals)*2)
	for _, v := range vals {
		out = varint.Encode(out, uint64(v))
	}
	return out
}

func unpackPlainVarints(buf []byte, n int) ([]uint32, error) {
	out := make([]uint32, 0, n)
	idx := 0
	for idx < len(buf) {
		v, next, err := varint.Decode(buf, idx)
		if err != nil {
			return nil, err
		}
		idx = next
		out = append(out, uint32(v))
	}
	if len(out) != n {
		return nil, gccerr.New(gccerr.CorruptPayload, "zbn: id count mismatch")
	}
	return out, nil
}

func rawPayloadForZBN(kind string, symbols []uint32) []byte {
	if kind == "ids" {
		return packPlainVarints(symbols)
	}
	b := make([]byte, len(symbols))
	for i, s := range symbols {
		b[i] = byte(s)
	}
	return b
}

func symbolsFromRawZBN(kind string, payload []byte, n int) ([]uint32, error) {
	if kind == "ids" {
		return unpackPlainVarints(payload, n)
	}
	if len(payload) != n {
		return nil, gccerr.New(gccerr.CorruptPayload, "zbn: byte count mismatch")
	}
	out := make([]uint32, len(payload))
	for i, b := range payload {
		out[i] = uint32(b)
	}
	return out, nil
}

func packZBNInnerStream(s ZBNStream) []byte {
	out := []byte{byte(len(s.Name))}
	out = append(out, s.Name...)
	out = append(out, kindByte(s.Kind))
	var abuf [4]byte
	binary.BigEndian.PutUint32(abuf[:], s.AlphabetSize)
	out = append(out, abuf[:]...)
	binary.BigEndian.PutUint32(abuf[:], uint32(len(s.Symbols)))
	out = append(out, abuf[:]...)
	payload := rawPayloadForZBN(s.Kind, s.Symbols)
	out = varint.Encode(out, uint64(len(payload)))
	out = append(out, payload...)
	return out
}

func parseZBNInnerStream(buf []byte, idx int) (ZBNStream, int, error) {
	if idx >= len(buf) {
		return ZBNStream{}, 0, gccerr.New(gccerr.CorruptPayload, "zbn: truncated stream")
	}
	nameLen := int(buf[idx])
	idx++
	if idx+nameLen > len(buf) {
		return ZBNStream{}, 0, gccerr.New(gccerr.CorruptPayload, "zbn: truncated name")
	}
	name := string(buf[idx : idx+nameLen])
	idx += nameLen
	if idx+9 > len(buf) {
		return ZBNStream{}, 0, gccerr.New(gccerr.CorruptPayload, "zbn: truncated header")
	}
	kind := "bytes"
	if buf[idx] == 1 {
		kind = "ids"
	}
	idx++
	alphabetSize := binary.BigEndian.Uint32(buf[idx:])
	idx += 4
	n := binary.BigEndian.Uint32(buf[idx:])
	idx += 4
	l, next, err := varint.Decode(buf, idx)
	if err != nil {
		return ZBNStream{}, 0, err
	}
	idx = next
	if idx+int(l) > len(buf) {
		return ZBNStream{}, 0, gccerr.New(gccerr.CorruptPayload, "zbn: truncated payload")
	}
	symbols, err := symbolsFromRawZBN(kind, buf[idx:idx+int(l)], int(n))
	if err != nil {
		return ZBNStream{}, 0, err
	}
	idx += int(l)
	return ZBNStream{Name: name, Kind: kind, AlphabetSize: alphabetSize, Symbols: symbols}, idx, nil
}

func packZBN2Inner(streams []ZBNStream) []byte {
	out := varint.Encode(nil, uint64(len(streams)))
	for _, s := range streams {
		out = append(out, packZBNInnerStream(s)...)
	}
	return out
}

func unpackZBN2Inner(buf []byte) ([]ZBNStream, error) {
	idx := 0
	n, next, err := varint.Decode(buf, idx)
	if err != nil {
		return nil, err
	}
	idx = next
	out := make([]ZBNStream, 0, n)
	for i := uint64(0); i < n; i++ {
		s, next2, err := parseZBNInnerStream(buf, idx)
		if err != nil {
			return nil, err
		}
		idx = next2
		out = append(out, s)
	}
	if idx != len(buf) {
		return nil, gccerr.New(gccerr.CorruptPayload, "zbn2: trailing inner bytes")
	}
	return out, nil
}

// PackZBN2 concatenates all streams into one plaintext and applies a
// single Zstd frame.
func PackZBN2(streams []ZBNStream) ([]byte, error) {
	inner := packZBN2Inner(streams)
	comp, err := (codec.ZstdCodec{}).Compress(inner)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), zbn2Magic...)
	out = varint.Encode(out, uint64(len(inner)))
	out = append(out, comp...)
	return out, nil
}

func unpackZBN2(buf []byte) ([]ZBNStream, error) {
	idx := len(zbn2Magic)
	innerLen, next, err := varint.Decode(buf, idx)
	if err != nil {
		return nil, err
	}
	idx = next
	inner, err := (codec.ZstdCodec{}).Decompress(buf[idx:], int(innerLen))
	if err != nil {
		return nil, err
	}
	return unpackZBN2Inner(inner)
}

func unpackZBN1(buf []byte) ([]ZBNStream, error) {
	if len(buf) < 5 {
		return nil, gccerr.New(gccerr.CorruptPayload, "zbn1: truncated header")
	}
	count := int(buf[4])
	idx := 5
	out := make([]ZBNStream, 0, count)
	zc := codec.ZstdCodec{}
	for i := 0; i < count; i++ {
		if idx >= len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "zbn1: truncated stream")
		}
		nameLen := int(buf[idx])
		idx++
		if idx+nameLen > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "zbn1: truncated name")
		}
		name := string(buf[idx : idx+nameLen])
		idx += nameLen
		if idx+9 > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "zbn1: truncated header")
		}
		kind := "bytes"
		if buf[idx] == 1 {
			kind = "ids"
		}
		idx++
		alphabetSize := binary.BigEndian.Uint32(buf[idx:])
		idx += 4
		n := binary.BigEndian.Uint32(buf[idx:])
		idx += 4
		l, next, err := varint.Decode(buf, idx)
		if err != nil {
			return nil, err
		}
		idx = next
		if idx+int(l) > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "zbn1: truncated frame")
		}
		payload, err := zc.Decompress(buf[idx:idx+int(l)], -1)
		if err != nil {
			return nil, err
		}
		idx += int(l)
		symbols, err := symbolsFromRawZBN(kind, payload, int(n))
		if err != nil {
			return nil, err
		}
		out = append(out, ZBNStream{Name: name, Kind: kind, AlphabetSize: alphabetSize, Symbols: symbols})
	}
	return out, nil
}

// UnpackZBN parses either a ZBN2 or legacy ZBN1 bundle.
func UnpackZBN(buf []byte) ([]ZBNStream, error) {
	switch {
	case bytes.HasPrefix(buf, zbn2Magic):
		return unpackZBN2(buf)
	case bytes.HasPrefix(buf, zbn1Magic):
		return unpackZBN1(buf)
	default:
		return nil, gccerr.New(gccerr.BadMagic, "zbn: bad magic")
	}
}

// PackZRAW1 encodes a single anonymous main bytes stream with no meta.
func PackZRAW1(data []byte) ([]byte, error) {
	comp, err := (codec.ZstdCodec{}).Compress(data)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), zraw1Magic...)
	out = varint.Encode(out, uint64(len(data)))
	out = append(out, comp...)
	return out, nil
}

// UnpackZRAW1 decodes a ZRAW1 payload back to its raw bytes.
func UnpackZRAW1(buf []byte) ([]byte, error) {
	if !bytes.HasPrefix(buf, zraw1Magic) {
		return nil, gccerr.New(gccerr.BadMagic, "zraw1: bad magic")
	}
	idx := len(zraw1Magic)
	ulen, next, err := varint.Decode(buf, idx)
	if err != nil {
		return nil, err
	}
	idx = next
	return (codec.ZstdCodec{}).Decompress(buf[idx:], int(ulen))
}
