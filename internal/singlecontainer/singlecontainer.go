// Package singlecontainer implements two single-container directory
// modes: pack a whole directory's files into one (or, for mixed
// content, two) container(s) instead of per-bucket archives, trading
// the ability to mix binary data for a single blob a caller can move
// around as one artifact. Both modes dispatch through the same
// container format internal/dirpack's per-file compression uses, just
// without per-bucket archiving.
package singlecontainer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/container"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/layer"
	"github.com/javanhut/gcc-ocf/internal/verify"
)

// Text-only mode constants.
const (
	SchemaID   = "gcc-ocf.single-container.v1"
	BundleName = "bundle.gcc"
	IndexName  = "bundle_index.json"
)

// Mixed mode constants.
const (
	MixedSchemaID   = "gcc-ocf.dir_bundle_index.v1"
	BundleTextGCC   = "bundle_text.gcc"
	BundleTextIndex = "bundle_text_index.json"
	BundleBinGCC    = "bundle_bin.gcc"
	BundleBinIndex  = "bundle_bin_index.json"
)

// BundleEntry is one file's slice of a concatenated blob: a per-file
// index record of {rel, offset, length, sha256}.
type BundleEntry struct {
	Rel    string `json:"rel"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	SHA256 string `json:"sha256"`
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// walkFilesSorted enumerates every regular file under root, returning
// paths ordered by relative POSIX path for deterministic enumeration.
func walkFilesSorted(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		ri, _ := filepath.Rel(root, files[i])
		rj, _ := filepath.Rel(root, files[j])
		return filepath.ToSlash(ri) < filepath.ToSlash(rj)
	})
	return files, nil
}

// IsSingleContainerDir reports whether dir looks like a text-only
// single-container packed directory.
func IsSingleContainerDir(dir string) bool {
	return fileExists(filepath.Join(dir, BundleName)) && fileExists(filepath.Join(dir, IndexName))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type bundleIndexJSON struct {
	Spec       string        `json:"spec"`
	Bundle     string        `json:"bundle"`
	ConcatSize int64         `json:"concat_size"`
	Pipeline   pipelineMeta  `json:"pipeline"`
	Files      []BundleEntry `json:"files"`
}

type pipelineMeta struct {
	Layer        string            `json:"layer"`
	Codec        string            `json:"codec"`
	StreamCodecs map[string]string `json:"stream_codecs"`
	MBN          bool              `json:"mbn"`
}

// PackTextOnly packs inputDir into outputDir as one bundle.gcc plus a
// bundle_index.json. Any non-UTF-8 file is rejected outright (spec.md
// §4.13: "use normal dir pack instead").
func PackTextOnly(inputDir, outputDir string) error {
	files, err := walkFilesSorted(inputDir)
	if err != nil {
		return gccerr.Wrap(gccerr.Usage, "single-container: walk failed", err)
	}
	if len(files) == 0 {
		return gccerr.Newf(gccerr.Usage, "single-container: empty directory: %s", inputDir)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	var concat []byte
	var entries []BundleEntry
	var off int64

	for _, p := range files {
		rel, err := filepath.Rel(inputDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if !utf8.Valid(data) {
			return gccerr.Newf(gccerr.Usage, "single-container: not UTF-8/binary: %s (use normal dir pack instead)", rel)
		}
		concat = append(concat, data...)
		entries = append(entries, BundleEntry{Rel: rel, Offset: off, Length: int64(len(data)), SHA256: sha256Hex(data)})
		off += int64(len(data))
	}

	blob, err := container.EncodeFilePlan(layer.SplitTextNums, codec.Zlib,
		map[string]codec.ID{"nums": codec.NumV1}, concat, container.Resources{})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outputDir, BundleName), blob, 0o644); err != nil {
		return err
	}

	index := bundleIndexJSON{
		Spec:       SchemaID,
		Bundle:     BundleName,
		ConcatSize: off,
		Pipeline: pipelineMeta{
			Layer:        "split_text_nums",
			Codec:        "zlib",
			StreamCodecs: map[string]string{"nums": "num_v1"},
			MBN:          true,
		},
		Files: entries,
	}
	return writeIndexJSON(filepath.Join(outputDir, IndexName), index)
}

func writeIndexJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	return os.WriteFile(path, raw, 0o644)
}

func loadIndex(path, expectSchema string) (bundleIndexJSON, error) {
	var idx bundleIndexJSON
	raw, err := os.ReadFile(path)
	if err != nil {
		return idx, gccerr.Newf(gccerr.CorruptPayload, "single-container: index not found: %s", path)
	}
	if err := json.Unmarshal(raw, &idx); err != nil {
		return idx, gccerr.Wrap(gccerr.CorruptPayload, "single-container: invalid index JSON", err)
	}
	if idx.Spec != expectSchema {
		return idx, gccerr.Newf(gccerr.CorruptPayload, "single-container: unsupported index spec: %q", idx.Spec)
	}
	return idx, nil
}

func decodeBundle(path string) ([]byte, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, gccerr.Newf(gccerr.CorruptPayload, "single-container: bundle not found: %s", path)
	}
	return container.DecodeFile(blob, container.Resources{})
}

// VerifyTextOnly validates a text-only single-container directory.
// Light mode checks container structure; full mode decodes the bundle
// and cross-checks every file's sha256 against the index.
func VerifyTextOnly(dir string, full bool) error {
	indexPath := filepath.Join(dir, IndexName)
	bundlePath := filepath.Join(dir, BundleName)
	if !fileExists(indexPath) {
		return gccerr.Newf(gccerr.CorruptPayload, "single-container: index not found: %s", indexPath)
	}
	if !fileExists(bundlePath) {
		return gccerr.Newf(gccerr.CorruptPayload, "single-container: bundle not found: %s", bundlePath)
	}
	idx, err := loadIndex(indexPath, SchemaID)
	if err != nil {
		return err
	}
	if err := verify.VerifyContainerFile(bundlePath, full); err != nil {
		return err
	}
	if !full {
		return nil
	}

	data, err := decodeBundle(bundlePath)
	if err != nil {
		return err
	}
	return checkEntries(idx.Files, data)
}

func checkEntries(entries []BundleEntry, data []byte) error {
	n := int64(len(data))
	for _, e := range entries {
		if e.Rel == "" || e.Offset < 0 || e.Length < 0 {
			return gccerr.Newf(gccerr.CorruptPayload, "single-container: invalid index entry: %+v", e)
		}
		if e.Offset+e.Length > n {
			return gccerr.Newf(gccerr.CorruptPayload, "single-container: out-of-range bounds for %s", e.Rel)
		}
		chunk := data[e.Offset : e.Offset+e.Length]
		if got := sha256Hex(chunk); got != e.SHA256 {
			return gccerr.Newf(gccerr.HashMismatch, "single-container: sha256 mismatch for %s", e.Rel)
		}
	}
	return nil
}

// UnpackTextOnly restores every original file from a text-only
// single-container packed directory.
func UnpackTextOnly(dir, restoreDir string) error {
	indexPath := filepath.Join(dir, IndexName)
	bundlePath := filepath.Join(dir, BundleName)
	if !fileExists(indexPath) {
		return gccerr.Newf(gccerr.CorruptPayload, "single-container: index not found: %s", indexPath)
	}
	if !fileExists(bundlePath) {
		return gccerr.Newf(gccerr.CorruptPayload, "single-container: bundle not found: %s", bundlePath)
	}
	idx, err := loadIndex(indexPath, SchemaID)
	if err != nil {
		return err
	}
	data, err := decodeBundle(bundlePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(restoreDir, 0o755); err != nil {
		return err
	}
	return restoreEntries(idx.Files, data, restoreDir)
}

func restoreEntries(entries []BundleEntry, data []byte, restoreDir string) error {
	n := int64(len(data))
	for _, e := range entries {
		if e.Rel == "" || e.Offset < 0 || e.Length < 0 || e.Offset+e.Length > n {
			return gccerr.Newf(gccerr.CorruptPayload, "single-container: invalid index entry for %s", e.Rel)
		}
		chunk := data[e.Offset : e.Offset+e.Length]
		if e.SHA256 != "" {
			if got := sha256Hex(chunk); got != e.SHA256 {
				return gccerr.Newf(gccerr.HashMismatch, "single-container: sha256 mismatch for %s", e.Rel)
			}
		}
		dst := filepath.Join(restoreDir, filepath.FromSlash(e.Rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, chunk, 0o644); err != nil {
			return err
		}
	}
	return nil
}
