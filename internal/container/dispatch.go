package container

import (
	"bytes"

	"github.com/javanhut/gcc-ocf/internal/bundle"
	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/layer"
	"github.com/javanhut/gcc-ocf/internal/numstream"
)

// Resources bundles the archive-local shared dictionaries a container
// payload may need. Both are nil for an ordinary standalone file: no
// bucket, no shared resource.
type Resources struct {
	Num *codec.SharedNumDict
	Tpl *layer.BaseTemplateDict
}

// EncodeFile builds a complete v6 container for data, choosing the
// bundle encoding: a single-stream layer coded with huffman, zstd or
// zstd_tight goes through HBN2/ZBN2/ZRAW1; every other case
// (multi-stream layers, the zlib/raw/num_v1/mbn codecs, or any
// per-stream override passed to EncodeFilePlan) goes through MBN.
func EncodeFile(layerID layer.ID, codecID codec.ID, data []byte, res Resources) ([]byte, error) {
	return EncodeFilePlan(layerID, codecID, nil, data, res)
}

// EncodeFilePlan is EncodeFile with an explicit per-stream codec
// override, keyed by a layer's canonical stream name ("text", "nums",
// "ids", "tpl", ...). A stream absent from streamCodecs falls back to
// codecID (or, when codecID is codec.MBNCodec, to defaultCodecFor; when
// codecID is codec.NumV1, a non-numeric stream falls back to zlib).
// This is what autopick plans compress through for their per-stream
// codec assignment.
func EncodeFilePlan(layerID layer.ID, codecID codec.ID, streamCodecs map[string]codec.ID, data []byte, res Resources) ([]byte, error) {
	enc, err := layer.EncodeByID(layerID, data, res.Tpl)
	if err != nil {
		return nil, err
	}

	var payload []byte
	bundleable := codecID == codec.Huffman || codecID == codec.Zstd || codecID == codec.ZstdTight
	if len(enc.Streams) == 1 && bundleable && len(streamCodecs) == 0 {
		payload, err = encodeSingleStream(enc.Streams[0], codecID)
	} else {
		payload, err = encodeMulti(enc.Streams, codecID, streamCodecs, res.Num)
	}
	if err != nil {
		return nil, err
	}

	c := Container{LayerCode: byte(layerID), CodecCode: byte(codecID), Meta: enc.Meta, Payload: payload}
	return Pack(c), nil
}

// DecodeFile parses a v6 container and reassembles the original bytes.
func DecodeFile(buf []byte, res Resources) ([]byte, error) {
	c, err := Unpack(buf)
	if err != nil {
		return nil, err
	}
	layerID := layer.ID(c.LayerCode)
	codecID := codec.ID(c.CodecCode)

	streams, err := decodePayload(c.Payload, codecID, res.Num)
	if err != nil {
		return nil, err
	}
	return layer.DecodeByID(layerID, streams, c.Meta, res.Tpl)
}

func symbolsOfStream(s layer.Stream) []uint32 {
	if s.Kind == "ids" {
		out := make([]uint32, len(s.IDs))
		for i, v := range s.IDs {
			out[i] = uint32(v)
		}
		return out
	}
	out := make([]uint32, len(s.Bytes))
	for i, b := range s.Bytes {
		out[i] = uint32(b)
	}
	return out
}

func streamFromSymbols(name, kind string, alphabetSize int, symbols []uint32) layer.Stream {
	if kind == "ids" {
		ids := make([]int64, len(symbols))
		for i, v := range symbols {
			ids[i] = int64(v)
		}
		return layer.Stream{Name: name, Kind: kind, AlphabetSize: alphabetSize, IDs: ids}
	}
	b := make([]byte, len(symbols))
	for i, v := range symbols {
		b[i] = byte(v)
	}
	return layer.Stream{Name: name, Kind: kind, AlphabetSize: alphabetSize, Bytes: b}
}

func encodeSingleStream(s layer.Stream, codecID codec.ID) ([]byte, error) {
	switch codecID {
	case codec.Huffman:
		hs := bundle.HBNStream{Name: s.Name, Kind: s.Kind, AlphabetSize: uint32(s.AlphabetSize), Symbols: symbolsOfStream(s)}
		return bundle.PackHBN2([]bundle.HBNStream{hs})
	case codec.Zstd, codec.ZstdTight:
		if s.Kind == "bytes" {
			return bundle.PackZRAW1(s.Bytes)
		}
		zs := bundle.ZBNStream{Name: s.Name, Kind: s.Kind, AlphabetSize: uint32(s.AlphabetSize), Symbols: symbolsOfStream(s)}
		return bundle.PackZBN2([]bundle.ZBNStream{zs})
	default:
		return nil, gccerr.Newf(gccerr.Usage, "container: codec %d has no single-stream bundle", codecID)
	}
}

// mbnStreamType maps a layer's canonical stream name to the MBN
// stream_type tag, and back.
func mbnStreamType(name string) uint8 {
	switch name {
	case "main":
		return bundle.StreamMain
	case "mask":
		return bundle.StreamMask
	case "vowels":
		return bundle.StreamVowels
	case "cons":
		return bundle.StreamCons
	case "text":
		return bundle.StreamText
	case "nums":
		return bundle.StreamNums
	case "tpl":
		return bundle.StreamTpl
	case "ids":
		return bundle.StreamIDs
	default:
		return bundle.StreamMeta
	}
}

func mbnStreamName(stype uint8) (name, kind string) {
	switch stype {
	case bundle.StreamMain:
		return "main", "bytes"
	case bundle.StreamMask:
		return "mask", "bytes"
	case bundle.StreamVowels:
		return "vowels", "bytes"
	case bundle.StreamCons:
		return "cons", "bytes"
	case bundle.StreamText:
		return "text", "bytes"
	case bundle.StreamNums:
		return "nums", "bytes"
	case bundle.StreamTpl:
		return "tpl", "bytes"
	case bundle.StreamIDs:
		return "ids", "ids"
	default:
		return "meta", "bytes"
	}
}

func rawBytesOfStream(s layer.Stream) []byte {
	if s.Kind == "ids" {
		return numstream.Encode(s.IDs)
	}
	return s.Bytes
}

// isNumericStream reports whether a stream already holds a
// numstream-encoded int sequence, the only shape num_v1 can compress.
func isNumericStream(s layer.Stream) bool {
	return s.Kind == "ids" || s.Name == "nums"
}

// defaultCodecFor resolves the "let each stream use its natural codec"
// policy selected when the container's codec_code is mbn: numeric
// streams get num_v1, everything else gets zlib.
func defaultCodecFor(s layer.Stream) codec.ID {
	if isNumericStream(s) {
		return codec.NumV1
	}
	return codec.Zlib
}

// compressRawWithCodec applies codec id to a serialized stream blob.
// Huffman has no plain ByteCodec adapter (it operates on a symbol
// stream, not an opaque blob), so it is routed through a single-stream
// HBN2 envelope here instead.
func compressRawWithCodec(raw []byte, id codec.ID, numDict *codec.SharedNumDict) ([]byte, error) {
	if id == codec.Huffman {
		symbols := make([]uint32, len(raw))
		for i, b := range raw {
			symbols[i] = uint32(b)
		}
		return bundle.PackHBN2([]bundle.HBNStream{{Name: "main", Kind: "bytes", AlphabetSize: 256, Symbols: symbols}})
	}
	if id == codec.NumV1 {
		return (codec.NumV1Codec{Shared: numDict}).Compress(raw)
	}
	bc, err := codec.ForID(id)
	if err != nil {
		return nil, err
	}
	return bc.Compress(raw)
}

func decompressRawWithCodec(comp []byte, id codec.ID, ulen int, numDict *codec.SharedNumDict) ([]byte, error) {
	if id == codec.Huffman {
		hstreams, err := bundle.UnpackHBN(comp)
		if err != nil {
			return nil, err
		}
		if len(hstreams) != 1 {
			return nil, gccerr.Newf(gccerr.CorruptPayload, "mbn: expected single huffman stream, got %d", len(hstreams))
		}
		out := make([]byte, len(hstreams[0].Symbols))
		for i, sym := range hstreams[0].Symbols {
			out[i] = byte(sym)
		}
		return out, nil
	}
	if id == codec.NumV1 {
		return (codec.NumV1Codec{Shared: numDict}).Decompress(comp, ulen)
	}
	bc, err := codec.ForID(id)
	if err != nil {
		return nil, err
	}
	return bc.Decompress(comp, ulen)
}

func encodeMulti(streams []layer.Stream, codecID codec.ID, streamCodecs map[string]codec.ID, numDict *codec.SharedNumDict) ([]byte, error) {
	records := make([]bundle.MBNRecord, 0, len(streams))
	for _, s := range streams {
		raw := rawBytesOfStream(s)

		chosen := codecID
		if override, ok := streamCodecs[s.Name]; ok {
			chosen = override
		} else {
			switch {
			case codecID == codec.MBNCodec:
				chosen = defaultCodecFor(s)
			case codecID == codec.NumV1 && !isNumericStream(s):
				chosen = codec.Zlib
			}
		}

		comp, err := compressRawWithCodec(raw, chosen, numDict)
		if err != nil {
			return nil, err
		}

		records = append(records, bundle.MBNRecord{
			StreamType: mbnStreamType(s.Name),
			Codec:      byte(chosen),
			ULen:       uint64(len(raw)),
			Comp:       comp,
		})
	}
	return bundle.PackMBN(records)
}

func decodePayload(payload []byte, codecID codec.ID, numDict *codec.SharedNumDict) ([]layer.Stream, error) {
	switch {
	case bytes.HasPrefix(payload, []byte("ZRAW1")):
		raw, err := bundle.UnpackZRAW1(payload)
		if err != nil {
			return nil, err
		}
		return []layer.Stream{{Name: "main", Kind: "bytes", AlphabetSize: 256, Bytes: raw}}, nil

	case bytes.HasPrefix(payload, []byte("HBN2")), bytes.HasPrefix(payload, []byte("HBN1")):
		hstreams, err := bundle.UnpackHBN(payload)
		if err != nil {
			return nil, err
		}
		out := make([]layer.Stream, len(hstreams))
		for i, h := range hstreams {
			out[i] = streamFromSymbols(h.Name, h.Kind, int(h.AlphabetSize), h.Symbols)
		}
		return out, nil

	case bytes.HasPrefix(payload, []byte("ZBN1")), bytes.HasPrefix(payload, []byte("ZBN2")):
		zstreams, err := bundle.UnpackZBN(payload)
		if err != nil {
			return nil, err
		}
		out := make([]layer.Stream, len(zstreams))
		for i, z := range zstreams {
			out[i] = streamFromSymbols(z.Name, z.Kind, int(z.AlphabetSize), z.Symbols)
		}
		return out, nil

	case bytes.HasPrefix(payload, []byte("MBN")):
		records, err := bundle.UnpackMBN(payload)
		if err != nil {
			return nil, err
		}
		out := make([]layer.Stream, 0, len(records))
		for _, r := range records {
			name, kind := mbnStreamName(r.StreamType)
			raw, err := decompressRawWithCodec(r.Comp, codec.ID(r.Codec), int(r.ULen), numDict)
			if err != nil {
				return nil, err
			}
			if kind == "ids" {
				ids, derr := numstream.Decode(raw)
				if derr != nil {
					return nil, derr
				}
				out = append(out, layer.Stream{Name: name, Kind: kind, IDs: ids})
			} else {
				out = append(out, layer.Stream{Name: name, Kind: kind, Bytes: raw})
			}
		}
		return out, nil

	default:
		return nil, gccerr.New(gccerr.BadMagic, "container: unrecognized payload magic (legacy v1-v5 not supported)")
	}
}
