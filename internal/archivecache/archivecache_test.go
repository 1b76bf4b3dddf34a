package archivecache

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir string, lines []string) {
	t.Helper()
	path := filepath.Join(dir, "manifest.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureBuiltIndexesFileRecords(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, []string{
		`{"kind":"file","rel":"a.txt","archive":"bucket_00.gca"}`,
		`{"kind":"file","rel":"b.txt","archive":"bucket_01.gca"}`,
		`{"kind":"bucket_summary","bucket":0,"archive":"bucket_00.gca"}`,
		`{"kind":"file","rel":"bad.txt","error":"some failure"}`,
	})

	cachePath := filepath.Join(t.TempDir(), "cache.bolt")
	c, err := EnsureBuilt(dir, cachePath)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	name, found, err := c.ArchiveForRel("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !found || name != "bucket_00.gca" {
		t.Fatalf("got name=%q found=%v", name, found)
	}

	_, found, err = c.ArchiveForRel("bad.txt")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected errored record not to be indexed")
	}

	_, found, err = c.ArchiveForRel("nonexistent.txt")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected no entry for unknown rel")
	}
}

func TestEnsureBuiltRebuildsOnManifestChange(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, []string{
		`{"kind":"file","rel":"a.txt","archive":"bucket_00.gca"}`,
	})
	cachePath := filepath.Join(t.TempDir(), "cache.bolt")

	c1, err := EnsureBuilt(dir, cachePath)
	if err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c1.ArchiveForRel("a.txt"); !found {
		t.Fatal("expected a.txt indexed on first build")
	}
	c1.Close()

	writeManifest(t, dir, []string{
		`{"kind":"file","rel":"a.txt","archive":"bucket_05.gca"}`,
		`{"kind":"file","rel":"c.txt","archive":"bucket_05.gca"}`,
	})

	c2, err := EnsureBuilt(dir, cachePath)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	name, found, err := c2.ArchiveForRel("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !found || name != "bucket_05.gca" {
		t.Fatalf("expected rebuilt index to reflect new manifest, got name=%q found=%v", name, found)
	}
	if _, found, _ := c2.ArchiveForRel("c.txt"); !found {
		t.Fatal("expected c.txt indexed after rebuild")
	}
}

func TestEnsureBuiltSkipsRebuildWhenManifestUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, []string{
		`{"kind":"file","rel":"a.txt","archive":"bucket_00.gca"}`,
	})
	cachePath := filepath.Join(t.TempDir(), "cache.bolt")

	c1, err := EnsureBuilt(dir, cachePath)
	if err != nil {
		t.Fatal(err)
	}
	if err := c1.PutArchiveForRel("manual.txt", "bucket_99.gca"); err != nil {
		t.Fatal(err)
	}
	c1.Close()

	c2, err := EnsureBuilt(dir, cachePath)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	if _, found, _ := c2.ArchiveForRel("manual.txt"); !found {
		t.Fatal("expected manually-inserted entry to survive when manifest fingerprint is unchanged (no rebuild)")
	}
}
