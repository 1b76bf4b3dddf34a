package bundle

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestHBN2RoundTripBytes(t *testing.T) {
	data := []byte("aaaaaabbbbcccd")
	symbols := make([]uint32, len(data))
	for i, b := range data {
		symbols[i] = uint32(b)
	}
	streams := []HBNStream{
		{Name: "main", Kind: "bytes", AlphabetSize: 256, Symbols: symbols},
	}
	buf, err := PackHBN2(streams)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf, hbn2Magic) {
		t.Fatalf("missing HBN2 magic")
	}
	got, err := UnpackHBN(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d streams", len(got))
	}
	out := make([]byte, len(got[0].Symbols))
	for i, s := range got[0].Symbols {
		out[i] = byte(s)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestHBN2RoundTripIDs(t *testing.T) {
	symbols := []uint32{0, 0, 1, 2, 2, 2, 3, 4, 0}
	streams := []HBNStream{
		{Name: "ids", Kind: "ids", AlphabetSize: 5, Symbols: symbols},
	}
	buf, err := PackHBN2(streams)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnpackHBN(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !equalU32(got[0].Symbols, symbols) {
		t.Fatalf("got %+v want %+v", got, symbols)
	}
}

func TestHBN2MultiStreamMixedSelection(t *testing.T) {
	// Skewed stream should prefer Huffman; uniform-random-like stream
	// of few symbols should still round-trip regardless of which
	// encoding PackHBN2 picks.
	skewed := make([]uint32, 0, 200)
	for i := 0; i < 190; i++ {
		skewed = append(skewed, 1)
	}
	for i := 0; i < 10; i++ {
		skewed = append(skewed, 2)
	}
	flat := []uint32{7, 8}

	streams := []HBNStream{
		{Name: "skewed", Kind: "bytes", AlphabetSize: 256, Symbols: skewed},
		{Name: "flat", Kind: "bytes", AlphabetSize: 256, Symbols: flat},
	}
	buf, err := PackHBN2(streams)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnpackHBN(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d streams", len(got))
	}
	if !equalU32(got[0].Symbols, skewed) {
		t.Fatalf("skewed mismatch")
	}
	if !equalU32(got[1].Symbols, flat) {
		t.Fatalf("flat mismatch")
	}
}

func TestHBN2Empty(t *testing.T) {
	streams := []HBNStream{
		{Name: "empty", Kind: "bytes", AlphabetSize: 256, Symbols: nil},
	}
	buf, err := PackHBN2(streams)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnpackHBN(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(got[0].Symbols) != 0 {
		t.Fatalf("expected empty stream, got %+v", got)
	}
}

func TestHBNBadMagic(t *testing.T) {
	if _, err := UnpackHBN([]byte("NOPE")); err == nil {
		t.Fatal("expected bad magic error")
	}
}

// buildHBN1 hand-constructs a legacy HBN1 buffer with one raw-encoded
// bytes stream, exercising the u32-BE stream and raw-payload length
// prefixes of the legacy format (no Huffman freq pairs are involved).
func buildHBN1(t *testing.T, name string, kind byte, alphabetSize, n uint32, rawPayload []byte) []byte {
	t.Helper()
	rec := []byte{hbnEncRaw, kind, byte(len(name))}
	rec = append(rec, name...)
	var abuf [4]byte
	binary.BigEndian.PutUint32(abuf[:], alphabetSize)
	rec = append(rec, abuf[:]...)
	binary.BigEndian.PutUint32(abuf[:], n)
	rec = append(rec, abuf[:]...)
	binary.BigEndian.PutUint32(abuf[:], uint32(len(rawPayload)))
	rec = append(rec, abuf[:]...)
	rec = append(rec, rawPayload...)

	buf := append([]byte(nil), hbn1Magic...)
	buf = append(buf, byte(1))
	var lbuf [4]byte
	binary.BigEndian.PutUint32(lbuf[:], uint32(len(rec)))
	buf = append(buf, lbuf[:]...)
	buf = append(buf, rec...)
	return buf
}

func TestHBN1LegacyDecode(t *testing.T) {
	data := []byte("xyz")
	buf := buildHBN1(t, "main", hbnKindBytes, 256, uint32(len(data)), data)
	got, err := UnpackHBN(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d streams", len(got))
	}
	out := make([]byte, len(got[0].Symbols))
	for i, s := range got[0].Symbols {
		out[i] = byte(s)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func equalU32(a, b []uint32) bool {
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
