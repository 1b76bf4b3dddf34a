package dirpack

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/javanhut/gcc-ocf/internal/autopick"
)

func writeFile(t *testing.T, dir, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func sampleTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < 6; i++ {
		writeFile(t, dir, filepath.Join("invoices", "inv"+string(rune('0'+i))+".txt"),
			[]byte("FATTURA 100"+string(rune('0'+i))+"\nTOTALE "+string(rune('0'+i))+"00\n"))
	}
	writeFile(t, dir, "bin/blob.dat", []byte{0, 1, 2, 0, 3, 0, 4, 5, 0, 6, 0, 7})
	writeFile(t, dir, "empty.txt", nil)
	return dir
}

func baseOptions() Options {
	opts := DefaultOptions()
	opts.Buckets = 4
	opts.TopDB = autopick.NewTopDB()
	opts.Refresh = true
	return opts
}

func TestPackDirThenUnpackDirRoundTrips(t *testing.T) {
	src := sampleTree(t)
	out := t.TempDir()
	restore := t.TempDir()

	stats, err := PackDir(src, out, baseOptions())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesFail != 0 {
		t.Fatalf("unexpected failures: %d", stats.FilesFail)
	}
	if stats.FilesOK == 0 {
		t.Fatal("expected at least one file packed")
	}

	if _, err := os.Stat(filepath.Join(out, ManifestName)); err != nil {
		t.Fatal(err)
	}

	ustats, err := UnpackDir(out, restore)
	if err != nil {
		t.Fatal(err)
	}
	if ustats.FilesFail != 0 {
		t.Fatalf("unexpected unpack failures: %d", ustats.FilesFail)
	}

	err = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(src, path)
		want, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		got, err := os.ReadFile(filepath.Join(restore, rel))
		if err != nil {
			t.Fatalf("missing restored file %s: %v", rel, err)
		}
		if !bytes.Equal(want, got) {
			t.Fatalf("content mismatch for %s", rel)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPackDirWithoutArchiveWritesLegacyFiles(t *testing.T) {
	src := sampleTree(t)
	out := t.TempDir()
	restore := t.TempDir()

	opts := baseOptions()
	opts.UseArchive = false

	stats, err := PackDir(src, out, opts)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesOK == 0 {
		t.Fatal("expected files")
	}

	if _, err := UnpackDir(out, restore); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(restore, "invoices", "inv0.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("expected restored content")
	}
}

func TestPackDirManifestHasBucketSummaries(t *testing.T) {
	src := sampleTree(t)
	out := t.TempDir()

	if _, err := PackDir(src, out, baseOptions()); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(out, ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sawSummary := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatal(err)
		}
		if m["kind"] == "bucket_summary" {
			sawSummary = true
			if _, ok := m["bucket_type"]; !ok {
				t.Fatal("bucket_summary missing bucket_type")
			}
		}
	}
	if !sawSummary {
		t.Fatal("expected at least one bucket_summary line")
	}
}

func TestPackDirEmptyFileRestoresWithoutDecode(t *testing.T) {
	src := sampleTree(t)
	out := t.TempDir()
	restore := t.TempDir()

	if _, err := PackDir(src, out, baseOptions()); err != nil {
		t.Fatal(err)
	}
	if _, err := UnpackDir(out, restore); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(restore, "empty.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty file, got %d bytes", len(got))
	}
}
