package numstream

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	xs := []int64{0, 1, -1, 2, -2, 127, -128, 1000000, -1000000}
	enc := Encode(xs)
	dec, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if len(dec) != len(xs) {
		t.Fatalf("len mismatch: %d vs %d", len(dec), len(xs))
	}
	for i := range xs {
		if dec[i] != xs[i] {
			t.Fatalf("at %d: got %d want %d", i, dec[i], xs[i])
		}
	}
}

func TestScenario5Bytes(t *testing.T) {
	xs := []int64{0, 1, -1, 2, -2, 127, -128}
	got := Encode(xs)
	want := []byte{0x00, 0x02, 0x01, 0x04, 0x03, 0xfe, 0x01, 0xff, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestEmpty(t *testing.T) {
	dec, err := Decode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(dec) != 0 {
		t.Fatalf("expected empty, got %v", dec)
	}
}
