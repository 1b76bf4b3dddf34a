package container

import (
	"bytes"
	"testing"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/layer"
)

func TestScenario1BytesZlib(t *testing.T) {
	data := []byte("HELLO 123\n")
	buf, err := EncodeFile(layer.Bytes, codec.Zlib, data, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x47, 0x43, 0x43, 0x06}
	if !bytes.Equal(buf[:4], want) {
		t.Fatalf("got % x want % x", buf[:4], want)
	}
	out, err := DecodeFile(buf, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestRoundTripBytesHuffman(t *testing.T) {
	data := []byte("aaaaaabbbbbccccd")
	buf, err := EncodeFile(layer.Bytes, codec.Huffman, data, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeFile(buf, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestRoundTripBytesZstd(t *testing.T) {
	data := bytes.Repeat([]byte("repeat me please "), 20)
	for _, id := range []codec.ID{codec.Zstd, codec.ZstdTight} {
		buf, err := EncodeFile(layer.Bytes, id, data, Resources{})
		if err != nil {
			t.Fatal(err)
		}
		out, err := DecodeFile(buf, Resources{})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("codec %v: got %q want %q", id, out, data)
		}
	}
}

func TestRoundTripVC0Multi(t *testing.T) {
	data := []byte("Hello World 123!")
	for _, id := range []codec.ID{codec.Zlib, codec.Zstd, codec.Raw} {
		buf, err := EncodeFile(layer.VC0, id, data, Resources{})
		if err != nil {
			t.Fatal(err)
		}
		out, err := DecodeFile(buf, Resources{})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("codec %v: got %q want %q", id, out, data)
		}
	}
}

func TestRoundTripLinesDict(t *testing.T) {
	data := []byte("HELLO 123\nHELLO 123\nBYE\n")
	buf, err := EncodeFile(layer.LinesDict, codec.Huffman, data, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeFile(buf, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestRoundTripLinesRLE(t *testing.T) {
	data := []byte("A\nA\nA\nB\nA\n")
	buf, err := EncodeFile(layer.LinesRLE, codec.Zstd, data, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeFile(buf, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestRoundTripSplitTextNums(t *testing.T) {
	data := []byte("FATTURA 1001\nRIGA ARTICOLO: vite M3 qty=10 prezzo=1.20\nTOTALE 12.00\n")
	buf, err := EncodeFile(layer.SplitTextNums, codec.NumV1, data, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeFile(buf, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestRoundTripTplLinesV0(t *testing.T) {
	data := []byte("row 1 val 10\nrow 2 val 20\nrow 3 val 30\n")
	buf, err := EncodeFile(layer.TplLinesV0, codec.MBNCodec, data, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeFile(buf, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestRoundTripTplLinesSharedV0WithBase(t *testing.T) {
	baseData := []byte("row 1 val 10\nrow 2 val 20\n")
	baseEnc := layer.TplLinesV0Layer{}.Encode(baseData)
	base := &layer.BaseTemplateDict{Templates: baseEnc.Templates}
	copy(base.Tag[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})

	data := []byte("row 1 val 10\nrow 2 val 20\nrow 99 val 7\n")
	buf, err := EncodeFile(layer.TplLinesSharedV0, codec.MBNCodec, data, Resources{Tpl: base})
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeFile(buf, Resources{Tpl: base})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestEncodeFilePlanPerStreamOverride(t *testing.T) {
	data := []byte("FATTURA 1001\nRIGA ARTICOLO: vite M3 qty=10 prezzo=1.20\nTOTALE 12.00\n")
	streamCodecs := map[string]codec.ID{"text": codec.Huffman, "nums": codec.NumV1}
	buf, err := EncodeFilePlan(layer.SplitTextNums, codec.Zlib, streamCodecs, data, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeFile(buf, Resources{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	if _, err := DecodeFile([]byte("nope"), Resources{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	buf := []byte{0x47, 0x43, 0x43, 0x05, 0x00, 0x00, 0x00}
	if _, err := DecodeFile(buf, Resources{}); err == nil {
		t.Fatal("expected unsupported version error")
	}
}

func TestHeaderRoundTripWithMetaAndPayloadLen(t *testing.T) {
	c := Container{
		Flags:     FlagHasPayloadLen,
		LayerCode: 4,
		CodecCode: 6,
		Meta:      []byte("vocab-blob"),
		Payload:   []byte("payload-bytes"),
	}
	buf := Pack(c)
	got, err := Unpack(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.LayerCode != 4 || got.CodecCode != 6 {
		t.Fatalf("got %+v", got)
	}
	if !bytes.Equal(got.Meta, c.Meta) {
		t.Fatalf("meta got %q want %q", got.Meta, c.Meta)
	}
	if !bytes.Equal(got.Payload, c.Payload) {
		t.Fatalf("payload got %q want %q", got.Payload, c.Payload)
	}
}
