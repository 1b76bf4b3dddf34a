package layer

import (
	"bytes"
	"testing"

	"github.com/javanhut/gcc-ocf/internal/numstream"
)

func TestSplitLinesBoundaries(t *testing.T) {
	in := []byte("a\nb\r\nc")
	got := SplitLines(in)
	want := [][]byte{[]byte("a\n"), []byte("b\r\n"), []byte("c")}
	if len(got) != len(want) {
		t.Fatalf("got %d lines want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("line %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestSplitLinesEmpty(t *testing.T) {
	if got := SplitLines(nil); len(got) != 0 {
		t.Fatalf("expected no lines, got %v", got)
	}
}

func TestVC0RoundTrip(t *testing.T) {
	data := []byte("Hello World 123!")
	streams := VC0Layer{}.Encode(data)
	out := VC0Layer{}.Decode(streams)
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestLinesDictRoundTrip(t *testing.T) {
	data := []byte("HELLO 123\nHELLO 123\nBYE\n")
	r := LinesDictLayer{}.Encode(data)
	out, err := LinesDictLayer{}.Decode(r.IDs, r.Vocab)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
	if len(r.Vocab) != 2 {
		t.Fatalf("expected 2 unique lines, got %d", len(r.Vocab))
	}
}

func TestLinesRLERoundTrip(t *testing.T) {
	data := []byte("A\nA\nA\nB\nA\n")
	r := LinesRLELayer{}.Encode(data)
	out, err := LinesRLELayer{}.Decode(r.Payload, r.Vocab)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestSplitTextNumsRoundTrip(t *testing.T) {
	cases := []string{
		"FATTURA 1001\nRIGA ARTICOLO: vite M3 qty=10 prezzo=1.20\nTOTALE 12.00\n",
		"00007 +42 2024-01-01",
		"",
		"no numbers here",
	}
	for _, c := range cases {
		data := []byte(c)
		r := SplitTextNumsLayer{}.Encode(data)
		out, err := SplitTextNumsLayer{}.Decode(r.Text, r.Nums, splitTextNumsFmt)
		if err != nil {
			t.Fatalf("%q: %v", c, err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("got %q want %q", out, data)
		}
	}
}

func TestSplitTextNumsLeadingZeroAndSign(t *testing.T) {
	data := []byte("00007 +42")
	r := SplitTextNumsLayer{}.Encode(data)
	out, err := SplitTextNumsLayer{}.Decode(r.Text, r.Nums, splitTextNumsFmt)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "00007 +42" {
		t.Fatalf("got %q", out)
	}
}

func TestSplitTextNumsDateNotNegative(t *testing.T) {
	data := []byte("2024-01-01")
	r := SplitTextNumsLayer{}.Encode(data)
	out, err := SplitTextNumsLayer{}.Decode(r.Text, r.Nums, splitTextNumsFmt)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestTplLinesV0RoundTrip(t *testing.T) {
	cases := []string{
		"row 1 val 10\nrow 2 val 20\nrow 3 val 30\n",
		"",
		"single line no trailing newline",
	}
	for _, c := range cases {
		data := []byte(c)
		r := TplLinesV0Layer{}.Encode(data)
		out, err := TplLinesV0Layer{}.Decode(PackTemplates(r.Templates), numstream.Encode(r.IDs), r.Nums, tplFmtVersion)
		if err != nil {
			t.Fatalf("%q: %v", c, err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("got %q want %q", out, data)
		}
	}
}

func TestTplLinesSharedV0RoundTrip(t *testing.T) {
	baseData := []byte("row 1 val 10\nrow 2 val 20\n")
	baseRes := TplLinesV0Layer{}.Encode(baseData)
	base := &BaseTemplateDict{Templates: baseRes.Templates}
	copy(base.Tag[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})

	data := []byte("row 1 val 10\nrow 2 val 20\nrow 99 val 7\n")
	r := TplLinesSharedV0Layer{}.Encode(data, base)
	out, err := TplLinesSharedV0Layer{}.Decode(PackTemplates(r.DeltaTemplates), numstream.Encode(r.IDs), r.Nums, r.Meta, base)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}
