package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func mustWrite(t *testing.T, path string) *Writer {
	t.Helper()
	w, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bucket.gca1")

	w := mustWrite(t, path)
	e1, err := w.Append("a/one.txt", []byte("hello world"), map[string]any{"in_size": 11, "ver": "v6"})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := w.Append("b/two.txt", []byte("goodbye"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if len(r.Entries) != 2 {
		t.Fatalf("got %d entries want 2", len(r.Entries))
	}
	if r.Entries[0].Rel != e1.Rel || r.Entries[0].Offset != e1.Offset || r.Entries[0].Length != e1.Length {
		t.Fatalf("entry 0 mismatch: %+v vs %+v", r.Entries[0], e1)
	}
	if r.Entries[0].Extra["in_size"] == nil || r.Entries[0].Extra["ver"] != "v6" {
		t.Fatalf("entry 0 extra lost: %+v", r.Entries[0].Extra)
	}
	if r.Entries[1].Rel != e2.Rel {
		t.Fatalf("entry 1 mismatch: %+v", r.Entries[1])
	}

	blob0, err := r.ReadBlob(r.Entries[0].Offset, r.Entries[0].Length)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob0, []byte("hello world")) {
		t.Fatalf("got %q", blob0)
	}
	blob1, err := r.ReadBlob(r.Entries[1].Offset, r.Entries[1].Length)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob1, []byte("goodbye")) {
		t.Fatalf("got %q", blob1)
	}

	sha, crc, err := r.StreamSHA256CRC32(r.Entries[0].Offset, r.Entries[0].Length, 4)
	if err != nil {
		t.Fatal(err)
	}
	if sha != e1.BlobSHA256 || crc != e1.BlobCRC32 {
		t.Fatalf("stream digest mismatch: %s/%d vs %s/%d", sha, crc, e1.BlobSHA256, e1.BlobCRC32)
	}
}

func TestAppendResourceUsesReservedPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bucket.gca1")
	w := mustWrite(t, path)
	e, err := w.AppendResource("num_dict_v1", []byte("dict-bytes"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if e.Rel != "__res__/num_dict_v1" {
		t.Fatalf("got rel %q", e.Rel)
	}
	if e.Kind != "resource" {
		t.Fatalf("got kind %q", e.Kind)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.Entries[0].Kind != "resource" || r.Entries[0].Rel != "__res__/num_dict_v1" {
		t.Fatalf("got %+v", r.Entries[0])
	}
}

func TestEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.gca1")
	w := mustWrite(t, path)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if len(r.Entries) != 0 {
		t.Fatalf("got %d entries want 0", len(r.Entries))
	}
}

func TestOpenRejectsBadTrailerMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.gca1")
	if err := os.WriteFile(path, make([]byte, 32), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenDetectsCorruptIndexCRC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.gca1")
	w := mustWrite(t, path)
	if _, err := w.Append("x.txt", []byte("payload"), nil); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a byte inside the zlib-compressed index region, just before
	// the fixed trailer, without touching the trailer's own recorded
	// length/CRC fields.
	corruptAt := len(buf) - trailerSize - 1
	buf[corruptAt] ^= 0xFF
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected CRC mismatch error")
	}
}

func TestDeterministicIndexBytes(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "a.gca1")
	path2 := filepath.Join(dir, "b.gca1")

	build := func(path string) {
		w := mustWrite(t, path)
		if _, err := w.Append("one.txt", []byte("abc"), map[string]any{"ver": "v6", "in_size": 3}); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Append("two.txt", []byte("def"), map[string]any{"ver": "v6", "in_size": 3}); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}
	build(path1)
	build(path2)

	b1, err := os.ReadFile(path1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := os.ReadFile(path2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatal("expected byte-identical archives for identical inputs")
	}
}
