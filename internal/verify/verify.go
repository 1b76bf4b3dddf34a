// Package verify implements a light/full verify protocol: structural
// and cryptographic validation for a single v6 container file, a GCA1
// archive, and a whole packed directory (manifest.jsonl plus its
// archives). The GCA1 reader it drives is internal/archive, whose Open
// already performs the trailer-CRC and index_body_sha256 checks.
package verify

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/javanhut/gcc-ocf/internal/archive"
	"github.com/javanhut/gcc-ocf/internal/container"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
)

// ChunkSizeDefault is the streaming chunk size used when recomputing
// digests under a full verify, to keep memory use bounded regardless of
// file size.
const ChunkSizeDefault = 256 * 1024

// VerifyContainerFile validates a single v6 container file. Light mode
// parses the header only; full mode fully decodes it.
func VerifyContainerFile(path string, full bool) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return gccerr.Newf(gccerr.CorruptPayload, "verify: file not found: %s", path)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return gccerr.Wrap(gccerr.CorruptPayload, "verify: read failed", err)
	}
	if _, err := container.Unpack(blob); err != nil {
		return err
	}
	if full {
		if _, err := container.DecodeFile(blob, container.Resources{}); err != nil {
			return err
		}
	}
	return nil
}

func isHexSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// VerifyGCA validates one GCA1 archive: its trailer/index integrity is
// already checked by archive.Open; this additionally validates every
// entry's blob_sha256 shape and, under full, recomputes and compares
// each blob's sha256/crc32.
func VerifyGCA(path string, full bool, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = ChunkSizeDefault
	}
	rd, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer rd.Close()

	for _, e := range rd.Entries {
		if e.Length <= 0 {
			continue
		}
		if e.BlobSHA256 != "" && !isHexSHA256(e.BlobSHA256) {
			return gccerr.Newf(gccerr.CorruptPayload, "gca1: malformed blob_sha256 for %s", e.Rel)
		}
		if !full {
			continue
		}
		gotSHA, gotCRC, err := rd.StreamSHA256CRC32(e.Offset, e.Length, chunkSize)
		if err != nil {
			return gccerr.Wrap(gccerr.CorruptPayload, "gca1: blob read failed", err)
		}
		if e.BlobSHA256 != "" && gotSHA != e.BlobSHA256 {
			return gccerr.Newf(gccerr.HashMismatch, "gca1: blob hash mismatch for %s", e.Rel)
		}
		if gotCRC != e.BlobCRC32 {
			return gccerr.Newf(gccerr.HashMismatch, "gca1: blob crc32 mismatch for %s", e.Rel)
		}
	}
	return nil
}

type manifestRecord struct {
	Kind                string                    `json:"kind"`
	Rel                 string                    `json:"rel"`
	Error               string                    `json:"error"`
	Bucket              int                       `json:"bucket"`
	Archive             string                    `json:"archive"`
	ArchiveOffset       int64                     `json:"archive_offset"`
	ArchiveLength       int64                     `json:"archive_length"`
	BlobSHA256          string                    `json:"blob_sha256"`
	BucketResources     []string                  `json:"bucket_resources"`
	BucketResourcesMeta map[string]map[string]any `json:"bucket_resources_meta"`
}

func readManifestRecords(path string) ([]manifestRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, gccerr.Newf(gccerr.CorruptPayload, "verify: manifest not found: %s", path)
	}
	defer f.Close()

	var out []manifestRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec manifestRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, gccerr.Wrap(gccerr.CorruptPayload, "verify: manifest read failed", err)
	}
	return out, nil
}

// VerifyPackedDir validates a directory produced by dirpack.PackDir:
// every archive's structural integrity, every manifest file record
// against its archive's index, and every bucket-declared shared
// resource's presence and hash.
func VerifyPackedDir(dir string, full bool, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = ChunkSizeDefault
	}
	manifestPath := filepath.Join(dir, "manifest.jsonl")
	records, err := readManifestRecords(manifestPath)
	if err != nil {
		return err
	}

	var fileRecs []manifestRecord
	bucketSummaries := make(map[int]manifestRecord)
	neededArchives := make(map[string][]manifestRecord)

	for _, rec := range records {
		if rec.Kind == "bucket_summary" {
			bucketSummaries[rec.Bucket] = rec
			continue
		}
		if rec.Rel == "" || rec.Error != "" {
			continue
		}
		fileRecs = append(fileRecs, rec)
		if rec.Archive != "" {
			neededArchives[rec.Archive] = append(neededArchives[rec.Archive], rec)
		}
	}

	archNames := make([]string, 0, len(neededArchives))
	for a := range neededArchives {
		archNames = append(archNames, a)
	}
	sort.Strings(archNames)

	for _, a := range archNames {
		if err := VerifyGCA(filepath.Join(dir, a), full, chunkSize); err != nil {
			return err
		}
	}

	for _, a := range archNames {
		if err := crossCheckArchive(dir, a, neededArchives[a], bucketSummaries, full, chunkSize); err != nil {
			return err
		}
	}

	return nil
}

func crossCheckArchive(dir, archiveName string, recs []manifestRecord, bucketSummaries map[int]manifestRecord, full bool, chunkSize int) error {
	rd, err := archive.Open(filepath.Join(dir, archiveName))
	if err != nil {
		return err
	}
	defer rd.Close()

	byRel := make(map[string]archive.Entry, len(rd.Entries))
	for _, e := range rd.Entries {
		if e.Kind == "trailer" {
			continue
		}
		byRel[e.Rel] = e
	}

	for _, rec := range recs {
		e, ok := byRel[rec.Rel]
		if !ok {
			return gccerr.Newf(gccerr.CorruptPayload, "verify: manifest references missing entry in %s: %s", archiveName, rec.Rel)
		}
		if rec.BlobSHA256 != "" && e.BlobSHA256 != "" && rec.BlobSHA256 != e.BlobSHA256 {
			return gccerr.Newf(gccerr.HashMismatch, "verify: manifest/blob_sha256 mismatch: %s", rec.Rel)
		}
		if full {
			gotSHA, gotCRC, err := rd.StreamSHA256CRC32(rec.ArchiveOffset, rec.ArchiveLength, chunkSize)
			if err != nil {
				return gccerr.Wrap(gccerr.CorruptPayload, "verify: blob read failed", err)
			}
			if e.BlobSHA256 != "" && gotSHA != e.BlobSHA256 {
				return gccerr.Newf(gccerr.HashMismatch, "verify: blob hash mismatch: %s", rec.Rel)
			}
			if gotCRC != e.BlobCRC32 {
				return gccerr.Newf(gccerr.HashMismatch, "verify: blob crc32 mismatch: %s", rec.Rel)
			}
		}
	}

	buckets := make(map[int]bool)
	for _, rec := range recs {
		buckets[rec.Bucket] = true
	}
	bucketIDs := make([]int, 0, len(buckets))
	for b := range buckets {
		bucketIDs = append(bucketIDs, b)
	}
	sort.Ints(bucketIDs)

	for _, b := range bucketIDs {
		bs, ok := bucketSummaries[b]
		if !ok {
			continue
		}
		for _, name := range bs.BucketResources {
			resEntry, ok := byRel["__res__/"+name]
			if !ok {
				return gccerr.Newf(gccerr.MissingResource, "verify: resource missing in %s: bucket=%d name=%s", archiveName, b, name)
			}
			expSHA := ""
			if meta, ok := bs.BucketResourcesMeta[name]; ok {
				if s, ok := meta["blob_sha256"].(string); ok {
					expSHA = s
				}
			}
			if expSHA != "" && resEntry.BlobSHA256 != "" && expSHA != resEntry.BlobSHA256 {
				return gccerr.Newf(gccerr.HashMismatch, "verify: resource sha mismatch: %s %s", archiveName, name)
			}
			if full && expSHA != "" {
				gotSHA, gotCRC, err := rd.StreamSHA256CRC32(resEntry.Offset, resEntry.Length, chunkSize)
				if err != nil {
					return gccerr.Wrap(gccerr.CorruptPayload, "verify: resource blob read failed", err)
				}
				if gotSHA != expSHA {
					return gccerr.Newf(gccerr.HashMismatch, "verify: resource blob hash mismatch: %s %s", archiveName, name)
				}
				if gotCRC != resEntry.BlobCRC32 {
					return gccerr.Newf(gccerr.HashMismatch, "verify: resource blob crc32 mismatch: %s %s", archiveName, name)
				}
			}
		}
	}

	return nil
}
