package bundle

import (
	"bytes"
	"encoding/binary"

	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/huffman"
	"github.com/javanhut/gcc-ocf/internal/numstream"
	"github.com/javanhut/gcc-ocf/internal/varint"
)

var (
	hbn2Magic = []byte("HBN2")
	hbn1Magic = []byte("HBN1")
)

const (
	hbnEncRaw     = 0
	hbnEncHuffman = 1

	hbnKindBytes = 0
	hbnKindIDs   = 1
)

// HBNStream is one named stream going into an HBN2 bundle.
type HBNStream struct {
	Name         string
	Kind         string // "bytes" or "ids"
	AlphabetSize uint32
	Symbols      []uint32
}

func kindFlag(kind string) byte {
	if kind == "ids" {
		return hbnKindIDs
	}
	return hbnKindBytes
}

func kindName(flag byte) string {
	if flag == hbnKindIDs {
		return "ids"
	}
	return "bytes"
}

func rawPayloadFor(kind string, symbols []uint32) []byte {
	if kind == "ids" {
		ints := make([]int64, len(symbols))
		for i, s := range symbols {
			ints[i] = int64(s)
		}
		return numstream.Encode(ints)
	}
	b := make([]byte, len(symbols))
	for i, s := range symbols {
		b[i] = byte(s)
	}
	return b
}

func symbolsFromRaw(kind string, payload []byte, n int) ([]uint32, error) {
	if kind == "ids" {
		ints, err := numstream.Decode(payload)
		if err != nil {
			return nil, err
		}
		if len(ints) != n {
			return nil, gccerr.New(gccerr.CorruptPayload, "hbn: raw ids count mismatch")
		}
		out := make([]uint32, len(ints))
		for i, v := range ints {
			out[i] = uint32(v)
		}
		return out, nil
	}
	if len(payload) != n {
		return nil, gccerr.New(gccerr.CorruptPayload, "hbn: raw bytes count mismatch")
	}
	out := make([]uint32, len(payload))
	for i, b := range payload {
		out[i] = uint32(b)
	}
	return out, nil
}

func packHuffmanPayload(enc huffman.Encoded) []byte {
	out := varint.Encode(nil, uint64(len(enc.FreqUsed)))
	var prev uint32
	for i, p := range enc.FreqUsed {
		var s uint64
		if i == 0 {
			s = uint64(p.Symbol)
		} else {
			s = uint64(p.Symbol - prev)
		}
		out = varint.Encode(out, s)
		out = varint.Encode(out, uint64(p.Freq))
		prev = p.Symbol
	}
	out = append(out, byte(enc.LastBits))
	out = varint.Encode(out, uint64(len(enc.Bitstream)))
	out = append(out, enc.Bitstream...)
	return out
}

func unpackHuffmanPayloadV2(buf []byte, n int) (huffman.Encoded, int, error) {
	idx := 0
	numUsed, next, err := varint.Decode(buf, idx)
	if err != nil {
		return huffman.Encoded{}, 0, err
	}
	idx = next
	pairs := make([]huffman.SymFreq, numUsed)
	var prev uint32
	for i := range pairs {
		delta, next2, err := varint.Decode(buf, idx)
		if err != nil {
			return huffman.Encoded{}, 0, err
		}
		idx = next2
		freq, next3, err := varint.Decode(buf, idx)
		if err != nil {
			return huffman.Encoded{}, 0, err
		}
		idx = next3
		var sym uint32
		if i == 0 {
			sym = uint32(delta)
		} else {
			sym = prev + uint32(delta)
		}
		pairs[i] = huffman.SymFreq{Symbol: sym, Freq: int(freq)}
		prev = sym
	}
	if idx >= len(buf) {
		return huffman.Encoded{}, 0, gccerr.New(gccerr.CorruptPayload, "hbn: truncated huffman record")
	}
	lastbits := int(buf[idx])
	idx++
	blen, next4, err := varint.Decode(buf, idx)
	if err != nil {
		return huffman.Encoded{}, 0, err
	}
	idx = next4
	if idx+int(blen) > len(buf) {
		return huffman.Encoded{}, 0, gccerr.New(gccerr.CorruptPayload, "hbn: truncated bitstream")
	}
	bitstream := buf[idx : idx+int(blen)]
	idx += int(blen)
	return huffman.Encoded{FreqUsed: pairs, LastBits: lastbits, Bitstream: bitstream, N: n}, idx, nil
}

// PackHBN2 encodes streams into an HBN2 bundle, choosing per stream
// between raw and Huffman encoding by whichever is smaller.
func PackHBN2(streams []HBNStream) ([]byte, error) {
	if len(streams) > 255 {
		return nil, gccerr.New(gccerr.Usage, "hbn2: too many streams")
	}
	out := append([]byte(nil), hbn2Magic...)
	out = append(out, byte(len(streams)))
	for _, s := range streams {
		if len(s.Name) > 255 {
			return nil, gccerr.New(gccerr.Usage, "hbn2: stream name too long")
		}
		rawPayload := rawPayloadFor(s.Kind, s.Symbols)
		rawRecord := varint.Encode(nil, uint64(len(rawPayload)))
		rawRecord = append(rawRecord, rawPayload...)

		var huffRecord []byte
		if len(s.Symbols) > 0 {
			enc, err := huffman.Encode(s.Symbols)
			if err != nil {
				return nil, err
			}
			huffRecord = packHuffmanPayload(enc)
		}

		encFlag := byte(hbnEncRaw)
		payload := rawRecord
		if huffRecord != nil && len(huffRecord) < len(rawRecord) {
			encFlag = hbnEncHuffman
			payload = huffRecord
		}

		rec := []byte{encFlag, kindFlag(s.Kind), byte(len(s.Name))}
		rec = append(rec, s.Name...)
		var abuf [4]byte
		binary.BigEndian.PutUint32(abuf[:], s.AlphabetSize)
		rec = append(rec, abuf[:]...)
		binary.BigEndian.PutUint32(abuf[:], uint32(len(s.Symbols)))
		rec = append(rec, abuf[:]...)
		rec = append(rec, payload...)

		out = varint.Encode(out, uint64(len(rec)))
		out = append(out, rec...)
	}
	return out, nil
}

func parseHBNStreamRecord(blob []byte) (HBNStream, error) {
	if len(blob) < 3 {
		return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn: truncated record")
	}
	encFlag := blob[0]
	kFlag := blob[1]
	nameLen := int(blob[2])
	pos := 3
	if pos+nameLen > len(blob) {
		return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn: truncated name")
	}
	name := string(blob[pos : pos+nameLen])
	pos += nameLen
	if pos+8 > len(blob) {
		return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn: truncated header")
	}
	alphabetSize := binary.BigEndian.Uint32(blob[pos:])
	pos += 4
	n := binary.BigEndian.Uint32(blob[pos:])
	pos += 4

	kind := kindName(kFlag)
	var symbols []uint32
	switch encFlag {
	case hbnEncRaw:
		l, next, err := varint.Decode(blob, pos)
		if err != nil {
			return HBNStream{}, err
		}
		pos = next
		if pos+int(l) > len(blob) {
			return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn: truncated raw payload")
		}
		syms, err := symbolsFromRaw(kind, blob[pos:pos+int(l)], int(n))
		if err != nil {
			return HBNStream{}, err
		}
		symbols = syms
	case hbnEncHuffman:
		enc, _, err := unpackHuffmanPayloadV2(blob[pos:], int(n))
		if err != nil {
			return HBNStream{}, err
		}
		syms, err := huffman.Decode(enc)
		if err != nil {
			return HBNStream{}, err
		}
		symbols = syms
	default:
		return HBNStream{}, gccerr.Newf(gccerr.CorruptPayload, "hbn: bad enc_flag %d", encFlag)
	}

	return HBNStream{Name: name, Kind: kind, AlphabetSize: alphabetSize, Symbols: symbols}, nil
}

// UnpackHBN parses either an HBN2 or legacy HBN1 bundle.
func UnpackHBN(buf []byte) ([]HBNStream, error) {
	switch {
	case bytes.HasPrefix(buf, hbn2Magic):
		return unpackHBN2(buf)
	case bytes.HasPrefix(buf, hbn1Magic):
		return unpackHBN1(buf)
	default:
		return nil, gccerr.New(gccerr.BadMagic, "hbn: bad magic")
	}
}

func unpackHBN2(buf []byte) ([]HBNStream, error) {
	if len(buf) < 5 {
		return nil, gccerr.New(gccerr.CorruptPayload, "hbn2: truncated header")
	}
	count := int(buf[4])
	idx := 5
	out := make([]HBNStream, 0, count)
	for i := 0; i < count; i++ {
		l, next, err := varint.Decode(buf, idx)
		if err != nil {
			return nil, err
		}
		idx = next
		if idx+int(l) > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "hbn2: truncated stream")
		}
		s, err := parseHBNStreamRecord(buf[idx : idx+int(l)])
		if err != nil {
			return nil, err
		}
		idx += int(l)
		out = append(out, s)
	}
	return out, nil
}

func unpackHBN1(buf []byte) ([]HBNStream, error) {
	if len(buf) < 5 {
		return nil, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated header")
	}
	count := int(buf[4])
	idx := 5
	out := make([]HBNStream, 0, count)
	for i := 0; i < count; i++ {
		if idx+4 > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated length")
		}
		l := int(binary.BigEndian.Uint32(buf[idx:]))
		idx += 4
		if idx+l > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated stream")
		}
		s, err := parseHBN1StreamRecord(buf[idx : idx+l])
		if err != nil {
			return nil, err
		}
		idx += l
		out = append(out, s)
	}
	return out, nil
}

func parseHBN1StreamRecord(blob []byte) (HBNStream, error) {
	if len(blob) < 3 {
		return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated record")
	}
	encFlag := blob[0]
	kFlag := blob[1]
	nameLen := int(blob[2])
	pos := 3
	if pos+nameLen > len(blob) {
		return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated name")
	}
	name := string(blob[pos : pos+nameLen])
	pos += nameLen
	if pos+8 > len(blob) {
		return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated header")
	}
	alphabetSize := binary.BigEndian.Uint32(blob[pos:])
	pos += 4
	n := binary.BigEndian.Uint32(blob[pos:])
	pos += 4

	kind := kindName(kFlag)
	var symbols []uint32
	switch encFlag {
	case hbnEncRaw:
		if pos+4 > len(blob) {
			return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated raw length")
		}
		l := int(binary.BigEndian.Uint32(blob[pos:]))
		pos += 4
		if pos+l > len(blob) {
			return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated raw payload")
		}
		syms, err := symbolsFromRaw(kind, blob[pos:pos+l], int(n))
		if err != nil {
			return HBNStream{}, err
		}
		symbols = syms
	case hbnEncHuffman:
		if pos+4 > len(blob) {
			return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated num_used")
		}
		numUsed := int(binary.BigEndian.Uint32(blob[pos:]))
		pos += 4
		pairs := make([]huffman.SymFreq, numUsed)
		for i := range pairs {
			if pos+8 > len(blob) {
				return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated freq pair")
			}
			sym := binary.BigEndian.Uint32(blob[pos:])
			freq := binary.BigEndian.Uint32(blob[pos+4:])
			pos += 8
			pairs[i] = huffman.SymFreq{Symbol: sym, Freq: int(freq)}
		}
		if pos >= len(blob) {
			return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated lastbits")
		}
		lastbits := int(blob[pos])
		pos++
		if pos+4 > len(blob) {
			return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated bitstream length")
		}
		blen := int(binary.BigEndian.Uint32(blob[pos:]))
		pos += 4
		if pos+blen > len(blob) {
			return HBNStream{}, gccerr.New(gccerr.CorruptPayload, "hbn1: truncated bitstream")
		}
		bitstream := blob[pos : pos+blen]
		enc := huffman.Encoded{FreqUsed: pairs, LastBits: lastbits, Bitstream: bitstream, N: int(n)}
		syms, err := huffman.Decode(enc)
		if err != nil {
			return HBNStream{}, err
		}
		symbols = syms
	default:
		return HBNStream{}, gccerr.Newf(gccerr.CorruptPayload, "hbn1: bad enc_flag %d", encFlag)
	}

	return HBNStream{Name: name, Kind: kind, AlphabetSize: alphabetSize, Symbols: symbols}, nil
}
