// Package resources builds the bucket-level shared dictionaries:
// num_dict_v1 (a top-K numeric value dictionary feeding
// codec.SharedNumDict) and tpl_dict_v0 (a top-K template dictionary
// feeding layer.BaseTemplateDict).
package resources

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/layer"
	"github.com/javanhut/gcc-ocf/internal/numstream"
)

// DefaultNumDictK / DefaultTplDictK are the top-K sizes used when a
// directory pipeline spec doesn't override them.
const (
	DefaultNumDictK = 64
	DefaultTplDictK = 128
)

// minDictEntries is the "keep only meaningful dicts" cutoff: a dict
// with fewer than 4 entries isn't worth shipping.
const minDictEntries = 4

func findStream(streams []layer.Stream, name string) (layer.Stream, bool) {
	for _, s := range streams {
		if s.Name == name {
			return s, true
		}
	}
	return layer.Stream{}, false
}

// extractNumInts pulls the raw int64 sequence out of a file's numeric
// streams for the given layer: split_text_nums' NUMS stream, or
// tpl_lines_v0/tpl_lines_shared_v0's IDS (when wantIDs, i.e. IDS itself
// is num_v1-coded) and NUMS streams concatenated. It takes the streams'
// already-decoded ints verbatim, not just the "numbers" embedded in
// them.
func extractNumInts(layerID layer.ID, data []byte, wantIDs bool) ([]int64, error) {
	enc, err := layer.EncodeByID(layerID, data, nil)
	if err != nil {
		return nil, nil
	}

	switch layerID {
	case layer.SplitTextNums:
		nums, ok := findStream(enc.Streams, "nums")
		if !ok {
			return nil, nil
		}
		return numstream.Decode(nums.Bytes)

	case layer.TplLinesV0, layer.TplLinesSharedV0:
		var out []int64
		if wantIDs {
			if ids, ok := findStream(enc.Streams, "ids"); ok {
				out = append(out, ids.IDs...)
			}
		}
		if nums, ok := findStream(enc.Streams, "nums"); ok {
			n, err := numstream.Decode(nums.Bytes)
			if err != nil {
				return nil, err
			}
			out = append(out, n...)
		}
		return out, nil

	default:
		return nil, nil
	}
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// BuildNumDict computes a deterministic top-K numeric dictionary over
// the ints of every file's numeric streams (see extractNumInts), keyed by (-frequency, |value|, value), and
// returns nil when fewer than minDictEntries distinct values survive.
// wantIDs must be true when the bucket's chosen plan num_v1-codes the
// IDS stream too.
func BuildNumDict(layerID layer.ID, files [][]byte, wantIDs bool, k int) (*codec.SharedNumDict, error) {
	if k <= 0 {
		k = DefaultNumDictK
	}
	freq := make(map[int64]int)
	for _, data := range files {
		ints, err := extractNumInts(layerID, data, wantIDs)
		if err != nil {
			return nil, err
		}
		for _, v := range ints {
			freq[v]++
		}
	}
	if len(freq) == 0 {
		return nil, nil
	}

	uniq := make([]int64, 0, len(freq))
	for v := range freq {
		uniq = append(uniq, v)
	}
	sort.Slice(uniq, func(i, j int) bool {
		a, b := uniq[i], uniq[j]
		if freq[a] != freq[b] {
			return freq[a] > freq[b]
		}
		aa, ab := abs64(a), abs64(b)
		if aa != ab {
			return aa < ab
		}
		return a < b
	})
	if k > len(uniq) {
		k = len(uniq)
	}
	dictVals := append([]int64(nil), uniq[:k]...)
	if len(dictVals) < minDictEntries {
		return nil, nil
	}
	return codec.NewSharedNumDict(dictVals), nil
}

var tpldMagic = []byte("TPLD")

const tpldVersion = 1

// PackTplDictResource serializes a template dictionary's blob:
// "TPLD" | ver(u8=1) | fmt(u8) | tok(u8) | reserved(u8=0) | packed templates.
func PackTplDictResource(templates [][][]byte, fmtVer, tok int) []byte {
	hdr := append([]byte(nil), tpldMagic...)
	hdr = append(hdr, byte(tpldVersion), byte(fmtVer), byte(tok), 0)
	return append(hdr, layer.PackTemplates(templates)...)
}

// UnpackTplDictResource parses a tpl_dict_v0 resource blob back into its
// template table.
func UnpackTplDictResource(blob []byte) ([][][]byte, error) {
	if len(blob) < 8 || !bytes.Equal(blob[:4], tpldMagic) {
		return nil, gccerr.New(gccerr.BadMagic, "tpl_dict_v0: bad magic")
	}
	if blob[4] != tpldVersion {
		return nil, gccerr.Newf(gccerr.UnsupportedVersion, "tpl_dict_v0: unsupported version %d", blob[4])
	}
	return layer.UnpackTemplates(blob[8:])
}

// templateKey joins a template's chunks for use as a frequency-map key.
func templateKey(chunks [][]byte) string {
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.WriteByte(0)
		buf.Write(c)
	}
	return buf.String()
}

// BuildTplDict runs tpl_lines_v0 over every file, counts per-line
// template usage, and keeps the top-K templates by
// (-frequency, length, prefix bytes). Returns nil when fewer than
// minDictEntries templates survive.
func BuildTplDict(files [][]byte, k int) (*layer.BaseTemplateDict, error) {
	if k <= 0 {
		k = DefaultTplDictK
	}
	freq := make(map[string]int)
	chunksOf := make(map[string][][]byte)

	for _, data := range files {
		r := layer.TplLinesV0Layer{}.Encode(data)
		for _, tid := range r.IDs {
			if tid < 0 || int(tid) >= len(r.Templates) {
				continue
			}
			chunks := r.Templates[tid]
			key := templateKey(chunks)
			freq[key]++
			if _, ok := chunksOf[key]; !ok {
				chunksOf[key] = chunks
			}
		}
	}
	if len(freq) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(freq))
	for key := range freq {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if freq[a] != freq[b] {
			return freq[a] > freq[b]
		}
		la, lb := len(chunksOf[a]), len(chunksOf[b])
		if la != lb {
			return la < lb
		}
		return a < b
	})
	if k > len(keys) {
		k = len(keys)
	}
	if k < minDictEntries {
		return nil, nil
	}

	templates := make([][][]byte, 0, k)
	for _, key := range keys[:k] {
		templates = append(templates, chunksOf[key])
	}

	base := &layer.BaseTemplateDict{Templates: templates}
	blob := PackTplDictResource(templates, 1, 1)
	sum := sha256.Sum256(blob)
	copy(base.Tag[:], sum[:8])
	return base, nil
}
