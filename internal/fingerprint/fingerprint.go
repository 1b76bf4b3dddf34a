// Package fingerprint computes a deterministic bucketing fingerprint for
// a file's leading bytes: a 64-bit SimHash over tokens for textish
// input, or over 4-byte shingles for binary input, plus the default
// bucket_for modulo bucketizer that turns a fingerprint into a bucket
// index.
package fingerprint

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
)

// DefaultAnalyzeMaxBytes is the default per-file read cap for
// fingerprinting ("analyze_max_bytes").
const DefaultAnalyzeMaxBytes = 256 * 1024

var tokenRE = regexp.MustCompile(`[A-Za-z0-9_]{2,}`)

// Fingerprint is the result of fingerprinting one file's leading bytes.
type Fingerprint struct {
	Algo       string
	SimHash64  uint64
	IsText     bool
	TokenCount int
}

// h64 hashes data to 64 bits via BLAKE2b with an 8-byte digest.
func h64(data []byte) uint64 {
	h, err := blake2b.New(8, nil)
	if err != nil {
		panic(err) // 8-byte digest is always a valid blake2b size
	}
	h.Write(data)
	out := h.Sum(nil)
	var v uint64
	for _, b := range out {
		v = v<<8 | uint64(b)
	}
	return v
}

type weightedHash struct {
	h uint64
	w int
}

// simHash64 combines weighted 64-bit hashes into one SimHash fingerprint:
// per bit, a weighted sum across all inputs, with the sign deciding the
// output bit.
func simHash64(hashes []weightedHash) uint64 {
	var acc [64]int64
	for _, wh := range hashes {
		for i := 0; i < 64; i++ {
			bit := (wh.h >> uint(i)) & 1
			if bit == 1 {
				acc[i] += int64(wh.w)
			} else {
				acc[i] -= int64(wh.w)
			}
		}
	}
	var out uint64
	for i, v := range acc {
		if v >= 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// isTextByte mirrors the printable/whitespace test: printable ASCII
// (0x20-0x7e) or tab/LF/CR.
func isTextByte(b byte) bool {
	return (b >= 32 && b <= 126) || b == 9 || b == 10 || b == 13
}

// decodeUTF8Lossy decodes b as UTF-8, dropping invalid byte sequences
// (Python's errors="ignore"), then lowercases the result.
func decodeUTF8Lossy(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			b = b[1:]
			continue
		}
		sb.WriteRune(r)
		b = b[size:]
	}
	return strings.ToLower(sb.String())
}

// FingerprintBytes computes the deterministic fingerprint of data,
// reading at most maxBytes. maxBytes<=0 selects DefaultAnalyzeMaxBytes.
func FingerprintBytes(data []byte, maxBytes int) Fingerprint {
	if maxBytes <= 0 {
		maxBytes = DefaultAnalyzeMaxBytes
	}
	b := data
	if len(b) > maxBytes {
		b = b[:maxBytes]
	}
	if len(b) == 0 {
		return Fingerprint{Algo: "simhash64:text", SimHash64: 0, IsText: true, TokenCount: 0}
	}

	printable := 0
	for _, x := range b {
		if isTextByte(x) {
			printable++
		}
	}
	isText := float64(printable)/float64(len(b)) >= 0.85

	if isText {
		txt := decodeUTF8Lossy(b)
		toks := tokenRE.FindAllString(txt, -1)
		if len(toks) == 0 {
			lines := strings.Split(txt, "\n")
			chunks := make([]string, 0, len(lines))
			for _, l := range lines {
				if strings.TrimSpace(l) != "" {
					chunks = append(chunks, l)
				}
			}
			limit := len(chunks)
			if limit > 5000 {
				limit = 5000
			}
			wh := make([]weightedHash, 0, limit)
			for _, c := range chunks[:limit] {
				wh = append(wh, weightedHash{h: h64([]byte(c)), w: 1})
			}
			return Fingerprint{Algo: "simhash64:lines", SimHash64: simHash64(wh), IsText: true, TokenCount: len(chunks)}
		}

		freq := make(map[string]int, len(toks))
		for _, t := range toks {
			n := freq[t] + 1
			if n > 20 {
				n = 20
			}
			freq[t] = n
		}
		wh := make([]weightedHash, 0, len(freq))
		for k, v := range freq {
			wh = append(wh, weightedHash{h: h64([]byte(k)), w: v})
		}
		return Fingerprint{Algo: "simhash64:tokens", SimHash64: simHash64(wh), IsText: true, TokenCount: len(toks)}
	}

	const step = 4
	const shingleCap = 200_000
	limit := len(b)
	if limit > shingleCap {
		limit = shingleCap
	}
	var wh []weightedHash
	for i := 0; i+step <= limit; i += step {
		wh = append(wh, weightedHash{h: h64(b[i : i+step]), w: 1})
	}
	return Fingerprint{Algo: "simhash64:bin4", SimHash64: simHash64(wh), IsText: false, TokenCount: len(wh)}
}

// Bucketizer computes a bucket index in [0, buckets) for a fingerprint.
// A plugin whose result falls outside that range is ignored in favor of
// the default modulo bucketizer.
type Bucketizer func(fp uint64, buckets int) int

// BucketFor resolves a bucket index for fp, preferring plugin if it is
// non-nil and returns an in-range value.
func BucketFor(fp uint64, buckets int, plugin Bucketizer) int {
	if buckets <= 0 {
		return 0
	}
	if plugin != nil {
		if idx := plugin(fp, buckets); idx >= 0 && idx < buckets {
			return idx
		}
	}
	return int(fp % uint64(buckets))
}
