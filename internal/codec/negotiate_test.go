package codec

import "testing"

func TestNegotiateNamePrefersFirstSupportedPreference(t *testing.T) {
	got := NegotiateName([]string{"zlib", "zstd"}, []string{"zstd", "zlib"})
	if got != "zstd" {
		t.Fatalf("got %q", got)
	}
}

func TestNegotiateNameFallsBackToZlib(t *testing.T) {
	got := NegotiateName([]string{"zlib"}, []string{"zstd", "zlib"})
	if got != "zlib" {
		t.Fatalf("got %q", got)
	}
}

func TestNegotiateNameFallsBackToAnySupportedWhenNoZlib(t *testing.T) {
	got := NegotiateName([]string{"huffman"}, []string{"zstd", "zlib"})
	if got != "huffman" {
		t.Fatalf("got %q", got)
	}
}

func TestNegotiateNameDefaultsToZlibWhenNothingSupported(t *testing.T) {
	got := NegotiateName(nil, []string{"zstd", "zlib"})
	if got != "zlib" {
		t.Fatalf("got %q", got)
	}
}
