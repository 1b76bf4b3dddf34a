// Package archive implements the GCA1 per-bucket archive format:
// sequential blob storage followed by a zlib-compressed JSONL index and
// a 16-byte fixed trailer.
package archive

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"github.com/javanhut/gcc-ocf/internal/gccerr"
)

var magic = []byte("GCA1")

const trailerSize = 16 // "GCA1"(4) + index_len u64LE(8) + index_crc32 u32LE(4)

// resourceDir is the reserved relative-path prefix for shared resources.
const resourceDir = "__res__/"

// Entry is one JSONL index line describing a stored blob.
type Entry struct {
	Rel        string
	Offset     int64
	Length     int64
	Kind       string // "file" or "resource"
	BlobSHA256 string
	BlobCRC32  uint32
	Extra      map[string]any
}

func blobHashes(blob []byte) (string, uint32) {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), crc32.ChecksumIEEE(blob)
}

func (e Entry) marshalMap() map[string]any {
	m := make(map[string]any, len(e.Extra)+5)
	for k, v := range e.Extra {
		m[k] = v
	}
	m["rel"] = e.Rel
	m["offset"] = e.Offset
	m["length"] = e.Length
	if e.Kind != "" {
		m["kind"] = e.Kind
	}
	m["blob_sha256"] = e.BlobSHA256
	m["blob_crc32"] = e.BlobCRC32
	return m
}

func entryFromMap(m map[string]any) Entry {
	e := Entry{Extra: make(map[string]any)}
	for k, v := range m {
		switch k {
		case "rel":
			e.Rel, _ = v.(string)
		case "offset":
			e.Offset = int64(toFloat(v))
		case "length":
			e.Length = int64(toFloat(v))
		case "kind":
			e.Kind, _ = v.(string)
		case "blob_sha256":
			e.BlobSHA256, _ = v.(string)
		case "blob_crc32":
			e.BlobCRC32 = uint32(toFloat(v))
		default:
			e.Extra[k] = v
		}
	}
	return e
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// Writer appends blobs sequentially to a GCA1 archive file.
type Writer struct {
	f       *os.File
	offset  int64
	entries []Entry
	closed  bool
}

// Create opens path for writing as a fresh GCA1 archive.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f}, nil
}

func (w *Writer) appendBlob(rel, kind string, blob []byte, meta map[string]any) (Entry, error) {
	if w.closed {
		return Entry{}, gccerr.New(gccerr.Usage, "archive: writer already closed")
	}
	n, err := w.f.Write(blob)
	if err != nil {
		return Entry{}, err
	}
	sha, crc := blobHashes(blob)
	e := Entry{Rel: rel, Offset: w.offset, Length: int64(n), Kind: kind, BlobSHA256: sha, BlobCRC32: crc, Extra: map[string]any{}}
	for k, v := range meta {
		switch k {
		case "blob_sha256":
			if s, ok := v.(string); ok && s != "" {
				e.BlobSHA256 = s
			}
		case "blob_crc32":
			if n, ok := v.(uint32); ok {
				e.BlobCRC32 = n
			}
		default:
			e.Extra[k] = v
		}
	}
	w.offset += int64(n)
	w.entries = append(w.entries, e)
	return e, nil
}

// Append stores blob under rel with kind "file".
func (w *Writer) Append(rel string, blob []byte, meta map[string]any) (Entry, error) {
	return w.appendBlob(rel, "file", blob, meta)
}

// AppendResource stores blob under "__res__/<name>" with kind
// "resource". Resources must be appended before any file blob in the
// same bucket's archive.
func (w *Writer) AppendResource(name string, blob []byte, meta map[string]any) (Entry, error) {
	return w.appendBlob(resourceDir+name, "resource", blob, meta)
}

// Close serializes the JSONL index, appends an authenticating trailer
// line, zlib-compresses the whole index, and writes the 16-byte fixed
// trailer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range w.entries {
		if err := enc.Encode(sortedMap(e.marshalMap())); err != nil {
			w.f.Close()
			return err
		}
	}
	bodySum := sha256.Sum256(body.Bytes())
	trailerLine := map[string]any{
		"kind":              "trailer",
		"index_body_sha256": hex.EncodeToString(bodySum[:]),
		"entries":           len(w.entries),
	}
	if err := enc.Encode(sortedMap(trailerLine)); err != nil {
		w.f.Close()
		return err
	}

	var zbuf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&zbuf, zlib.BestCompression)
	if err != nil {
		w.f.Close()
		return err
	}
	if _, err := zw.Write(body.Bytes()); err != nil {
		w.f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		w.f.Close()
		return err
	}

	if _, err := w.f.Write(zbuf.Bytes()); err != nil {
		w.f.Close()
		return err
	}

	var trailer [trailerSize]byte
	copy(trailer[:4], magic)
	binary.LittleEndian.PutUint64(trailer[4:12], uint64(zbuf.Len()))
	binary.LittleEndian.PutUint32(trailer[12:16], crc32.ChecksumIEEE(zbuf.Bytes()))
	if _, err := w.f.Write(trailer[:]); err != nil {
		w.f.Close()
		return err
	}

	return w.f.Close()
}

// sortedMap is a map[string]any that marshals its keys in sorted order,
// so index JSON is byte-for-byte deterministic across runs.
type sortedMap map[string]any

func (m sortedMap) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Reader opens a GCA1 archive for random-access blob reads.
type Reader struct {
	f       *os.File
	Entries []Entry
}

// Open validates the trailer and index, parsing every entry.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{f: f}
	if err := r.load(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) load() error {
	info, err := r.f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < trailerSize {
		return gccerr.New(gccerr.CorruptPayload, "gca1: file too short for trailer")
	}
	var trailer [trailerSize]byte
	if _, err := r.f.ReadAt(trailer[:], info.Size()-trailerSize); err != nil {
		return err
	}
	if !bytes.Equal(trailer[:4], magic) {
		return gccerr.New(gccerr.BadMagic, "gca1: bad trailer magic")
	}
	idxLen := binary.LittleEndian.Uint64(trailer[4:12])
	idxCRC := binary.LittleEndian.Uint32(trailer[12:16])

	idxStart := info.Size() - trailerSize - int64(idxLen)
	if idxStart < 0 {
		return gccerr.New(gccerr.CorruptPayload, "gca1: index_len exceeds file size")
	}
	zblob := make([]byte, idxLen)
	if _, err := r.f.ReadAt(zblob, idxStart); err != nil {
		return err
	}
	if crc32.ChecksumIEEE(zblob) != idxCRC {
		return gccerr.New(gccerr.HashMismatch, "gca1: index CRC32 mismatch")
	}

	zr, err := zlib.NewReader(bytes.NewReader(zblob))
	if err != nil {
		return gccerr.Wrap(gccerr.CorruptPayload, "gca1: bad index zlib stream", err)
	}
	defer zr.Close()
	body, err := io.ReadAll(zr)
	if err != nil {
		return gccerr.Wrap(gccerr.CorruptPayload, "gca1: index read failed", err)
	}

	lines := bytes.Split(bytes.TrimRight(body, "\n"), []byte("\n"))
	if len(lines) == 0 {
		return gccerr.New(gccerr.CorruptPayload, "gca1: empty index")
	}
	trailerRaw := lines[len(lines)-1]
	entryLines := lines[:len(lines)-1]

	var tl map[string]any
	if err := json.Unmarshal(trailerRaw, &tl); err != nil {
		return gccerr.Wrap(gccerr.CorruptPayload, "gca1: bad trailer line", err)
	}
	if tl["kind"] != "trailer" {
		return gccerr.New(gccerr.CorruptPayload, "gca1: missing trailer line")
	}
	wantSum, _ := tl["index_body_sha256"].(string)
	indexBody := bytes.Join(entryLines, []byte("\n"))
	if len(entryLines) > 0 {
		indexBody = append(indexBody, '\n')
	}
	gotSum := sha256.Sum256(indexBody)
	if hex.EncodeToString(gotSum[:]) != wantSum {
		return gccerr.New(gccerr.HashMismatch, "gca1: index_body_sha256 mismatch")
	}

	entries := make([]Entry, 0, len(entryLines))
	for _, line := range entryLines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			return gccerr.Wrap(gccerr.CorruptPayload, "gca1: bad index entry", err)
		}
		entries = append(entries, entryFromMap(m))
	}
	r.Entries = entries
	return nil
}

// ReadBlob reads length bytes at offset off without loading the rest of
// the archive.
func (r *Reader) ReadBlob(off, length int64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := r.f.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// StreamSHA256CRC32 computes sha256 and crc32 of the blob at (off,
// length) by reading it in chunkSize pieces, never materializing the
// full blob when the caller only needs its digests.
func (r *Reader) StreamSHA256CRC32(off, length int64, chunkSize int) (string, uint32, error) {
	if chunkSize <= 0 {
		chunkSize = 1 << 16
	}
	h := sha256.New()
	crc := crc32.NewIEEE()
	reader := io.NewSectionReader(r.f, off, length)
	buf := bufio.NewReaderSize(reader, chunkSize)
	mw := io.MultiWriter(h, crc)
	if _, err := io.CopyBuffer(mw, buf, make([]byte, chunkSize)); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), crc.Sum32(), nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
