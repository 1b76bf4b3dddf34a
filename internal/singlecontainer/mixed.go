package singlecontainer

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/container"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/layer"
	"github.com/javanhut/gcc-ocf/internal/verify"
)

// mixedIndexJSON is one of bundle_text_index.json / bundle_bin_index.json,
// the mixed-mode index (schema gcc-ocf.dir_bundle_index.v1).
type mixedIndexJSON struct {
	Spec             string            `json:"spec"`
	Root             string            `json:"root"`
	Kind             string            `json:"kind"`
	Count            int               `json:"count"`
	Files            []BundleEntry     `json:"files"`
	ConcatSHA256     string            `json:"concat_sha256"`
	LayerUsed        string            `json:"layer_used"`
	CodecUsed        string            `json:"codec_used"`
	StreamCodecsUsed map[string]string `json:"stream_codecs_used,omitempty"`
}

// isTextishUTF8 classifies a file as text for mixed-mode bucketing: no
// NUL byte and a valid UTF-8 decoding.
func isTextishUTF8(data []byte) bool {
	if bytes.IndexByte(data, 0) >= 0 {
		return false
	}
	return utf8.Valid(data)
}

// PackMixed splits inputDir's files into a text bucket and a binary
// bucket by content (isTextishUTF8), compresses each bucket into its
// own bundle with the pipeline suited to its content, and writes both
// bundles' indexes. haveZstd selects zstd for the binary bundle when
// true, falling back to zlib otherwise (mirrors autopick.ResolveCodecID).
func PackMixed(inputDir, outputDir string, haveZstd bool) error {
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

	var textConcat, binConcat []byte
	var textEntries, binEntries []BundleEntry
	var textOff, binOff int64

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
		entry := BundleEntry{Rel: rel, Length: int64(len(data)), SHA256: sha256Hex(data)}
		if isTextishUTF8(data) {
			entry.Offset = textOff
			textConcat = append(textConcat, data...)
			textOff += int64(len(data))
			textEntries = append(textEntries, entry)
		} else {
			entry.Offset = binOff
			binConcat = append(binConcat, data...)
			binOff += int64(len(data))
			binEntries = append(binEntries, entry)
		}
	}

	if len(textEntries) > 0 {
		blob, err := container.EncodeFilePlan(layer.SplitTextNums, codec.Zlib,
			map[string]codec.ID{"nums": codec.NumV1}, textConcat, container.Resources{})
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(outputDir, BundleTextGCC), blob, 0o644); err != nil {
			return err
		}
		idx := mixedIndexJSON{
			Spec: MixedSchemaID, Root: inputDir, Kind: "text",
			Count: len(textEntries), Files: textEntries,
			ConcatSHA256:     sha256Hex(textConcat),
			LayerUsed:        "split_text_nums",
			CodecUsed:        "zlib",
			StreamCodecsUsed: map[string]string{"nums": "num_v1"},
		}
		if err := writeIndexJSON(filepath.Join(outputDir, BundleTextIndex), idx); err != nil {
			return err
		}
	}

	if len(binEntries) > 0 {
		binCodecName := chooseBinCodecName(haveZstd)
		binCodec, err := codec.ByName(binCodecName)
		if err != nil {
			return err
		}
		blob, err := container.EncodeFilePlan(layer.Bytes, binCodec, nil, binConcat, container.Resources{})
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(outputDir, BundleBinGCC), blob, 0o644); err != nil {
			return err
		}
		idx := mixedIndexJSON{
			Spec: MixedSchemaID, Root: inputDir, Kind: "bin",
			Count: len(binEntries), Files: binEntries,
			ConcatSHA256: sha256Hex(binConcat),
			LayerUsed:    "bytes",
			CodecUsed:    binCodecName,
		}
		if err := writeIndexJSON(filepath.Join(outputDir, BundleBinIndex), idx); err != nil {
			return err
		}
	}

	return nil
}

// chooseBinCodecName negotiates the binary bundle's codec: zstd when
// the environment supports it, zlib otherwise.
func chooseBinCodecName(haveZstd bool) string {
	supported := []string{"zlib"}
	if haveZstd {
		supported = append(supported, "zstd")
	}
	return codec.NegotiateName(supported, []string{"zstd", "zlib"})
}

// IsSingleContainerMixedDir reports whether dir looks like a mixed
// single-container packed directory (at least one of the two bundles
// present with its index).
func IsSingleContainerMixedDir(dir string) bool {
	hasText := fileExists(filepath.Join(dir, BundleTextGCC)) && fileExists(filepath.Join(dir, BundleTextIndex))
	hasBin := fileExists(filepath.Join(dir, BundleBinGCC)) && fileExists(filepath.Join(dir, BundleBinIndex))
	return hasText || hasBin
}

func loadMixedIndex(path string) (mixedIndexJSON, error) {
	var idx mixedIndexJSON
	raw, err := os.ReadFile(path)
	if err != nil {
		return idx, gccerr.Newf(gccerr.CorruptPayload, "single-container: index not found: %s", path)
	}
	if err := json.Unmarshal(raw, &idx); err != nil {
		return idx, gccerr.Wrap(gccerr.CorruptPayload, "single-container: invalid index JSON", err)
	}
	if idx.Spec != MixedSchemaID {
		return idx, gccerr.Newf(gccerr.CorruptPayload, "single-container: unsupported index spec: %q", idx.Spec)
	}
	return idx, nil
}

// VerifyMixed validates a mixed single-container directory. Under
// full mode, any decode failure on either bundle is reported as a
// HashMismatch (tamper detected) rather than propagating the finer
// container-level error kind, matching the treat-corruption-as-tamper
// stance the reference implementation takes for this mode.
func VerifyMixed(dir string, full bool) error {
	foundAny := false
	for _, half := range []struct {
		gcc, idx, kind string
	}{
		{BundleTextGCC, BundleTextIndex, "text"},
		{BundleBinGCC, BundleBinIndex, "bin"},
	} {
		gccPath := filepath.Join(dir, half.gcc)
		idxPath := filepath.Join(dir, half.idx)
		if !fileExists(gccPath) && !fileExists(idxPath) {
			continue
		}
		foundAny = true
		if !fileExists(gccPath) || !fileExists(idxPath) {
			return gccerr.Newf(gccerr.CorruptPayload, "single-container: incomplete %s bundle in %s", half.kind, dir)
		}
		idx, err := loadMixedIndex(idxPath)
		if err != nil {
			return err
		}
		if idx.Kind != half.kind {
			return gccerr.Newf(gccerr.CorruptPayload, "single-container: index kind mismatch: got %q want %q", idx.Kind, half.kind)
		}
		if err := verify.VerifyContainerFile(gccPath, full); err != nil {
			if full {
				return gccerr.Newf(gccerr.HashMismatch, "single-container: tamper detected in %s bundle: %v", half.kind, err)
			}
			return err
		}
		if !full {
			continue
		}
		data, err := decodeBundle(gccPath)
		if err != nil {
			return gccerr.Newf(gccerr.HashMismatch, "single-container: tamper detected in %s bundle: %v", half.kind, err)
		}
		if got := sha256Hex(data); idx.ConcatSHA256 != "" && got != idx.ConcatSHA256 {
			return gccerr.Newf(gccerr.HashMismatch, "single-container: concat_sha256 mismatch in %s bundle", half.kind)
		}
		if err := checkEntries(idx.Files, data); err != nil {
			return gccerr.Newf(gccerr.HashMismatch, "single-container: tamper detected in %s bundle: %v", half.kind, err)
		}
	}
	if !foundAny {
		return gccerr.Newf(gccerr.CorruptPayload, "single-container: no bundles found in %s", dir)
	}
	return nil
}

// UnpackMixed restores every original file from a mixed
// single-container packed directory.
func UnpackMixed(dir, restoreDir string) error {
	if err := os.MkdirAll(restoreDir, 0o755); err != nil {
		return err
	}
	foundAny := false
	for _, half := range []struct{ gcc, idx string }{
		{BundleTextGCC, BundleTextIndex},
		{BundleBinGCC, BundleBinIndex},
	} {
		gccPath := filepath.Join(dir, half.gcc)
		idxPath := filepath.Join(dir, half.idx)
		if !fileExists(gccPath) || !fileExists(idxPath) {
			continue
		}
		foundAny = true
		idx, err := loadMixedIndex(idxPath)
		if err != nil {
			return err
		}
		data, err := decodeBundle(gccPath)
		if err != nil {
			return err
		}
		if err := restoreEntries(idx.Files, data, restoreDir); err != nil {
			return err
		}
	}
	if !foundAny {
		return gccerr.Newf(gccerr.CorruptPayload, "single-container: no bundles found in %s", dir)
	}
	return nil
}
