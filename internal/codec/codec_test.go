package codec

import (
	"bytes"
	"testing"

	"github.com/javanhut/gcc-ocf/internal/numstream"
)

func TestRawRoundTrip(t *testing.T) {
	data := []byte("hello world")
	c := RawCodec{}
	comp, err := c.Compress(data)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decompress(comp, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestZlibRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("abcabc123"), 100)
	c := ZlibCodec{}
	comp, err := c.Compress(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(comp) >= len(data) {
		t.Fatalf("expected compression, got %d >= %d", len(comp), len(data))
	}
	out, err := c.Decompress(comp, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("roundtrip mismatch")
	}
}

func TestZstdRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox "), 200)
	for _, tight := range []bool{false, true} {
		c := ZstdCodec{Tight: tight}
		comp, err := c.Compress(data)
		if err != nil {
			t.Fatal(err)
		}
		out, err := c.Decompress(comp, len(data))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("tight=%v roundtrip mismatch", tight)
		}
	}
}

func TestNumV1Scenario5(t *testing.T) {
	ints := []int64{0, 1, -1, 2, -2, 127, -128}
	input := numstream.Encode(ints)
	c := NumV1Codec{}
	comp, err := c.Compress(input)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x4e, 0x56, 0x31, 0x00, 0x00, 0x02, 0x01, 0x04, 0x03, 0xfe, 0x01, 0xff, 0x01}
	if !bytes.Equal(comp, want) {
		t.Fatalf("got % x want % x", comp, want)
	}
	out, err := c.Decompress(comp, len(input))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, input) {
		t.Fatal("roundtrip mismatch")
	}
}

func TestNumV1DictRoundTrip(t *testing.T) {
	ints := make([]int64, 0, 200)
	for i := 0; i < 200; i++ {
		ints = append(ints, int64(i%8)*1000)
	}
	input := numstream.Encode(ints)
	c := NumV1Codec{}
	comp, err := c.Compress(input)
	if err != nil {
		t.Fatal(err)
	}
	if comp[3] != nv1ModeDict {
		t.Fatalf("expected DICT mode, got %d", comp[3])
	}
	out, err := c.Decompress(comp, len(input))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, input) {
		t.Fatal("roundtrip mismatch")
	}
}

func TestNumV1SharedRoundTrip(t *testing.T) {
	dictVals := []int64{1, 2, 3, 4}
	shared := NewSharedNumDict(dictVals)
	ints := []int64{1, 2, 3, 4, 1, 2, 3, 4, 1, 2}
	input := numstream.Encode(ints)
	enc := NumV1Codec{Shared: shared}
	comp, err := enc.Compress(input)
	if err != nil {
		t.Fatal(err)
	}

	dec := NumV1Codec{Shared: shared}
	out, err := dec.Decompress(comp, len(input))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, input) {
		t.Fatal("roundtrip mismatch")
	}

	noShared := NumV1Codec{}
	if comp[3] == nv1ModeShared {
		if _, err := noShared.Decompress(comp, len(input)); err == nil {
			t.Fatal("expected MissingResource error")
		}
	}
}
