package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/javanhut/gcc-ocf/internal/autopick"
	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/container"
	"github.com/javanhut/gcc-ocf/internal/dirpack"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/layer"
)

func writeContainerFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	blob, err := container.EncodeFilePlan(layer.Bytes, codec.Zlib, nil, data, container.Resources{})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVerifyContainerFileLightAndFull(t *testing.T) {
	dir := t.TempDir()
	path := writeContainerFile(t, dir, "f.gcc", []byte("hello world, this is a test payload"))

	if err := VerifyContainerFile(path, false); err != nil {
		t.Fatal(err)
	}
	if err := VerifyContainerFile(path, true); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyContainerFileRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.gcc")
	if err := os.WriteFile(path, []byte("not a container at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyContainerFile(path, false); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestVerifyContainerFileDetectsTamperInFullMode(t *testing.T) {
	dir := t.TempDir()
	path := writeContainerFile(t, dir, "f.gcc", []byte("the quick brown fox jumps over the lazy dog repeatedly"))

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(blob) < 20 {
		t.Fatal("blob too short to tamper")
	}
	blob[len(blob)-1] ^= 0xFF
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := VerifyContainerFile(path, true); err == nil {
		t.Fatal("expected tamper to be detected under full verify")
	}
}

func packSampleDir(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	out := t.TempDir()
	for i := 0; i < 5; i++ {
		name := filepath.Join(src, "inv"+string(rune('0'+i))+".txt")
		if err := os.WriteFile(name, []byte("FATTURA 100"+string(rune('0'+i))+"\nTOTALE "+string(rune('0'+i))+"00\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	opts := dirpack.DefaultOptions()
	opts.Buckets = 2
	opts.TopDB = autopick.NewTopDB()
	opts.Refresh = true
	if _, err := dirpack.PackDir(src, out, opts); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestVerifyPackedDirLightAndFull(t *testing.T) {
	out := packSampleDir(t)
	if err := VerifyPackedDir(out, false, 0); err != nil {
		t.Fatal(err)
	}
	if err := VerifyPackedDir(out, true, 0); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyPackedDirMissingManifestIsCorruptPayload(t *testing.T) {
	dir := t.TempDir()
	err := VerifyPackedDir(dir, false, 0)
	if err == nil {
		t.Fatal("expected error for missing manifest")
	}
	if k := gccerr.KindOf(err); k != gccerr.CorruptPayload {
		t.Fatalf("got kind %v want CorruptPayload: %v", k, err)
	}
}

func TestVerifyPackedDirDetectsArchiveTamper(t *testing.T) {
	out := packSampleDir(t)

	matches, err := filepath.Glob(filepath.Join(out, "bucket_*.gca"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one archive")
	}
	blob, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(blob) < 40 {
		t.Fatal("archive too short to tamper")
	}
	blob[len(blob)/2] ^= 0xFF
	if err := os.WriteFile(matches[0], blob, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := VerifyPackedDir(out, true, 0); err == nil {
		t.Fatal("expected tamper to be detected under full verify")
	}
}
