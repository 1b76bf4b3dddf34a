// Package codec implements the byte codecs a compressed stream can be
// wrapped in: raw (no compression), zlib, zstd (with a "tight" framing
// variant that omits the frame checksum), the canonical Huffman
// coder, and the numeric dictionary codec num_v1.
package codec

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/javanhut/gcc-ocf/internal/gccerr"
)

// ID identifies a byte codec, matching the frozen codec_code table used
// by the container format.
type ID uint8

const (
	Huffman    ID = 0
	Zstd       ID = 1
	ZstdTight  ID = 2
	Raw        ID = 3
	MBNCodec   ID = 4
	NumV0      ID = 5
	Zlib       ID = 6
	NumV1      ID = 7
)

// Name returns the CLI/pipeline-spec string form of a codec id.
func (c ID) Name() string {
	switch c {
	case Huffman:
		return "huffman"
	case Zstd:
		return "zstd"
	case ZstdTight:
		return "zstd_tight"
	case Raw:
		return "raw"
	case MBNCodec:
		return "mbn"
	case NumV0:
		return "num_v0"
	case Zlib:
		return "zlib"
	case NumV1:
		return "num_v1"
	default:
		return "unknown"
	}
}

// ByName resolves the CLI/pipeline-spec string form back to an ID.
func ByName(name string) (ID, error) {
	switch name {
	case "huffman":
		return Huffman, nil
	case "zstd":
		return Zstd, nil
	case "zstd_tight":
		return ZstdTight, nil
	case "raw":
		return Raw, nil
	case "mbn":
		return MBNCodec, nil
	case "num_v0":
		return NumV0, nil
	case "zlib":
		return Zlib, nil
	case "num_v1":
		return NumV1, nil
	default:
		return 0, gccerr.Newf(gccerr.Usage, "unknown codec %q", name)
	}
}

// ByteCodec is a reversible byte-to-byte transform.
type ByteCodec interface {
	Compress(data []byte) ([]byte, error)
	// Decompress decompresses comp. outSize, if >= 0, is the expected
	// decoded length; codecs that can cheaply validate it must do so.
	Decompress(comp []byte, outSize int) ([]byte, error)
}

// RawCodec is the identity codec.
type RawCodec struct{}

func (RawCodec) Compress(data []byte) ([]byte, error) { return data, nil }

func (RawCodec) Decompress(comp []byte, outSize int) ([]byte, error) {
	if outSize >= 0 && len(comp) != outSize {
		return nil, gccerr.Newf(gccerr.CorruptPayload, "raw: length mismatch got=%d want=%d", len(comp), outSize)
	}
	return comp, nil
}

// ZlibCodec is DEFLATE at level 9.
type ZlibCodec struct{}

func (ZlibCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ZlibCodec) Decompress(comp []byte, outSize int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(comp))
	if err != nil {
		return nil, gccerr.Wrap(gccerr.CorruptPayload, "zlib: bad stream", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, gccerr.Wrap(gccerr.CorruptPayload, "zlib: read failed", err)
	}
	return out, nil
}

// ZstdCodec wraps klauspost/compress/zstd. Tight omits the frame checksum
// and caps the window at 1 MiB for a smaller frame envelope.
type ZstdCodec struct{ Tight bool }

func (c ZstdCodec) Compress(data []byte) ([]byte, error) {
	opts := []zstd.EOption{zstd.WithEncoderLevel(zstd.SpeedDefault)}
	if c.Tight {
		opts = append(opts,
			zstd.WithEncoderCRC(false),
			zstd.WithWindowSize(1<<20),
		)
	}
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ZstdCodec) Decompress(comp []byte, outSize int) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(comp))
	if err != nil {
		return nil, gccerr.Wrap(gccerr.CorruptPayload, "zstd: bad frame", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, gccerr.Wrap(gccerr.CorruptPayload, "zstd: read failed", err)
	}
	if outSize >= 0 && len(out) != outSize {
		return nil, gccerr.Newf(gccerr.CorruptPayload, "zstd: length mismatch got=%d want=%d", len(out), outSize)
	}
	return out, nil
}

// ForID returns the ByteCodec implementation for a codec ID: the plain
// byte codecs plus num_v1 (implemented in numv1.go). huffman/mbn are
// structural codecs handled by their own packages and have no adapter.
func ForID(id ID) (ByteCodec, error) {
	switch id {
	case Raw:
		return RawCodec{}, nil
	case Zlib:
		return ZlibCodec{}, nil
	case Zstd:
		return ZstdCodec{Tight: false}, nil
	case ZstdTight:
		return ZstdCodec{Tight: true}, nil
	case NumV1:
		return NumV1Codec{}, nil
	default:
		return nil, gccerr.Newf(gccerr.Usage, "codec %d has no byte-codec adapter", id)
	}
}

// ResolveUnavailableZstd maps a Zstd codec id to Zlib when Zstd is
// unavailable; Zstd is always available via klauspost/compress in this
// build, so this is a no-op kept for parity with the candidate-pool
// contract that assumes codecs can be substituted at runtime.
func ResolveUnavailableZstd(id ID) ID {
	return id
}
