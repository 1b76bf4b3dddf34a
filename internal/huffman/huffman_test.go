package huffman

import "testing"

func toSyms(b []byte) []uint32 {
	out := make([]uint32, len(b))
	for i, x := range b {
		out[i] = uint32(x)
	}
	return out
}

func eqSyms(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRoundTripVarious(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("A"),
		[]byte("AAAAAA"),
		[]byte("AB"),
		[]byte("hello world, hello huffman!"),
		[]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}
	for _, c := range cases {
		syms := toSyms(c)
		enc, err := Encode(syms)
		if err != nil {
			t.Fatalf("encode %q: %v", c, err)
		}
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode %q: %v", c, err)
		}
		if !eqSyms(dec, syms) {
			t.Fatalf("roundtrip mismatch for %q: got %v", c, dec)
		}
	}
}

func TestEmptyLastBits(t *testing.T) {
	enc, err := Encode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if enc.LastBits != 0 || enc.N != 0 || len(enc.Bitstream) != 0 {
		t.Fatalf("unexpected empty encoding: %+v", enc)
	}
}

func TestCorruptTruncatedBitstream(t *testing.T) {
	enc, err := Encode(toSyms([]byte("abcabcabc")))
	if err != nil {
		t.Fatal(err)
	}
	enc.Bitstream = enc.Bitstream[:len(enc.Bitstream)-1]
	if _, err := Decode(enc); err == nil {
		t.Fatal("expected error on truncated bitstream")
	}
}
