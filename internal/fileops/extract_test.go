package fileops

import "testing"

func TestExtractNumbersOnlyRoundTripsNumbers(t *testing.T) {
	src := []byte("order 12 shipped on day -7, total 3000 units")
	blob, err := ExtractNumbersOnly(src)
	if err != nil {
		t.Fatal(err)
	}

	result, err := ExtractShow(blob)
	if err != nil {
		t.Fatal(err)
	}

	want := []int64{12, -7, 3000}
	if len(result.Nums) != len(want) {
		t.Fatalf("got %v want %v", result.Nums, want)
	}
	for i, v := range want {
		if result.Nums[i] != v {
			t.Fatalf("got %v want %v", result.Nums, want)
		}
	}
	if result.Meta.Extractor != "numbers_only" {
		t.Fatalf("meta.Extractor = %q", result.Meta.Extractor)
	}
	if result.Meta.Count != 3 {
		t.Fatalf("meta.Count = %d", result.Meta.Count)
	}
	if result.Meta.SrcBytes != len(src) {
		t.Fatalf("meta.SrcBytes = %d want %d", result.Meta.SrcBytes, len(src))
	}
}

func TestExtractNumbersOnlyEmptyInput(t *testing.T) {
	blob, err := ExtractNumbersOnly([]byte("no digits here"))
	if err != nil {
		t.Fatal(err)
	}
	result, err := ExtractShow(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Nums) != 0 {
		t.Fatalf("got %v, want empty", result.Nums)
	}
}

func TestExtractShowRejectsNonExtractContainer(t *testing.T) {
	blob, err := ExtractNumbersOnly([]byte("5 apples"))
	if err != nil {
		t.Fatal(err)
	}
	blob[4] &^= 0x80 // clear FlagKindExtract bit directly on the packed header
	if _, err := ExtractShow(blob); err == nil {
		t.Fatal("expected error for non-EXTRACT container")
	}
}
