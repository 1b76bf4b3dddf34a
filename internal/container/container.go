// Package container implements the v6 container format: a compact
// self-describing header wrapping one payload, plus the dispatch logic
// that routes the payload to the right bundle codec and semantic layer.
// The per-stream bundle formats it dispatches to live in internal/bundle.
package container

import (
	"bytes"

	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/varint"
)

var magic = []byte("GCC")

// Version is the only container version this build writes.
const Version = 6

// Header flag bits.
const (
	FlagHasMeta       = 0x01
	FlagHasPayloadLen = 0x02
	FlagKindExtract   = 0x80
)

// Container is the parsed form of a v6 header plus its payload.
type Container struct {
	Flags     uint8
	LayerCode uint8
	CodecCode uint8
	Meta      []byte
	Payload   []byte
}

// Pack serializes c as "GCC" | 0x06 | flags | layer_code | codec_code |
// [varint meta_len | meta] | [varint payload_len |] payload.
func Pack(c Container) []byte {
	flags := c.Flags
	if len(c.Meta) > 0 {
		flags |= FlagHasMeta
	}
	out := append([]byte(nil), magic...)
	out = append(out, Version, flags, c.LayerCode, c.CodecCode)
	if flags&FlagHasMeta != 0 {
		out = varint.Encode(out, uint64(len(c.Meta)))
		out = append(out, c.Meta...)
	}
	if flags&FlagHasPayloadLen != 0 {
		out = varint.Encode(out, uint64(len(c.Payload)))
	}
	out = append(out, c.Payload...)
	return out
}

// Unpack parses a v6 container header and splits off its payload.
func Unpack(buf []byte) (Container, error) {
	if !bytes.HasPrefix(buf, magic) {
		return Container{}, gccerr.New(gccerr.BadMagic, "container: bad magic")
	}
	if len(buf) < 7 {
		return Container{}, gccerr.New(gccerr.CorruptPayload, "container: truncated header")
	}
	version := buf[3]
	if version != Version {
		return Container{}, gccerr.Newf(gccerr.UnsupportedVersion, "container: version %d unsupported", version)
	}
	flags := buf[4]
	layerCode := buf[5]
	codecCode := buf[6]
	idx := 7

	var meta []byte
	if flags&FlagHasMeta != 0 {
		l, next, err := varint.Decode(buf, idx)
		if err != nil {
			return Container{}, err
		}
		idx = next
		if idx+int(l) > len(buf) {
			return Container{}, gccerr.New(gccerr.CorruptPayload, "container: truncated meta")
		}
		meta = buf[idx : idx+int(l)]
		idx += int(l)
	}

	var payload []byte
	if flags&FlagHasPayloadLen != 0 {
		l, next, err := varint.Decode(buf, idx)
		if err != nil {
			return Container{}, err
		}
		idx = next
		if idx+int(l) > len(buf) {
			return Container{}, gccerr.New(gccerr.CorruptPayload, "container: truncated payload")
		}
		payload = buf[idx : idx+int(l)]
	} else {
		payload = buf[idx:]
	}

	return Container{Flags: flags, LayerCode: layerCode, CodecCode: codecCode, Meta: meta, Payload: payload}, nil
}
