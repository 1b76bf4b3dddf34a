// Package bundle implements the multi-stream envelope formats a layer's
// output streams are packed into: MBN (codec-tagged multi-stream),
// HBN2/HBN1 (Huffman multi-stream), ZBN2/ZBN1 (Zstd multi-stream) and
// ZRAW1 (single Zstd stream shortcut).
package bundle

import (
	"bytes"

	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/varint"
)

// Stream type codes.
const (
	StreamMain   = 0
	StreamMask   = 1
	StreamVowels = 2
	StreamCons   = 3
	StreamText   = 10
	StreamNums   = 11
	StreamTpl    = 20
	StreamIDs    = 21
	StreamMeta   = 250
)

// maxMBNStreams is the sanity cap on record count.
const maxMBNStreams = 10000

var mbnMagic = []byte("MBN")

// MBNRecord is one stream entry in an MBN envelope.
type MBNRecord struct {
	StreamType uint8
	Codec      uint8
	ULen       uint64
	Comp       []byte
	Meta       []byte
}

// PackMBN serializes records as "MBN" | varint(n) | records.
func PackMBN(records []MBNRecord) ([]byte, error) {
	if len(records) > maxMBNStreams {
		return nil, gccerr.New(gccerr.Usage, "mbn: too many streams")
	}
	out := append([]byte(nil), mbnMagic...)
	out = varint.Encode(out, uint64(len(records)))
	for _, r := range records {
		out = append(out, r.StreamType, r.Codec)
		out = varint.Encode(out, r.ULen)
		out = varint.Encode(out, uint64(len(r.Comp)))
		out = varint.Encode(out, uint64(len(r.Meta)))
		out = append(out, r.Meta...)
		out = append(out, r.Comp...)
	}
	return out, nil
}

// UnpackMBN parses an MBN envelope.
func UnpackMBN(buf []byte) ([]MBNRecord, error) {
	if !bytes.HasPrefix(buf, mbnMagic) {
		return nil, gccerr.New(gccerr.BadMagic, "mbn: bad magic")
	}
	idx := len(mbnMagic)
	n, next, err := varint.Decode(buf, idx)
	if err != nil {
		return nil, err
	}
	idx = next
	if n > maxMBNStreams {
		return nil, gccerr.New(gccerr.CorruptPayload, "mbn: too many streams (sanity)")
	}
	out := make([]MBNRecord, 0, n)
	for i := uint64(0); i < n; i++ {
		if idx+2 > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "mbn: truncated record header")
		}
		stype, codec := buf[idx], buf[idx+1]
		idx += 2
		ulen, next2, err := varint.Decode(buf, idx)
		if err != nil {
			return nil, err
		}
		idx = next2
		clen, next3, err := varint.Decode(buf, idx)
		if err != nil {
			return nil, err
		}
		idx = next3
		mlen, next4, err := varint.Decode(buf, idx)
		if err != nil {
			return nil, err
		}
		idx = next4
		if idx+int(mlen) > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "mbn: truncated meta")
		}
		meta := buf[idx : idx+int(mlen)]
		idx += int(mlen)
		if idx+int(clen) > len(buf) {
			return nil, gccerr.New(gccerr.CorruptPayload, "mbn: truncated comp")
		}
		comp := buf[idx : idx+int(clen)]
		idx += int(clen)
		out = append(out, MBNRecord{StreamType: stype, Codec: codec, ULen: ulen, Comp: comp, Meta: meta})
	}
	return out, nil
}
