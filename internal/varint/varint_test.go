package varint

import "testing"

func TestRoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<63 - 1}
	for _, v := range vals {
		buf := Encode(nil, v)
		got, idx, err := Decode(buf, 0)
		if err != nil {
			t.Fatalf("decode(%d): %v", v, err)
		}
		if idx != len(buf) {
			t.Fatalf("decode(%d): idx=%d want %d", v, idx, len(buf))
		}
		if got != v {
			t.Fatalf("decode(%d) = %d", v, got)
		}
	}
}

func TestTruncated(t *testing.T) {
	if _, _, err := Decode([]byte{0x80}, 0); err == nil {
		t.Fatal("expected error on truncated varint")
	}
}

func TestOverflow(t *testing.T) {
	buf := make([]byte, 10)
	for i := range buf {
		buf[i] = 0xff
	}
	buf[9] = 0x01
	if _, _, err := Decode(buf, 0); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestZigZag(t *testing.T) {
	vals := []int64{0, 1, -1, 2, -2, 127, -128, 1<<62 - 1, -(1 << 62)}
	for _, n := range vals {
		if got := ZigZagDecode(ZigZagEncode(n)); got != n {
			t.Fatalf("zigzag round trip %d -> %d", n, got)
		}
	}
}
