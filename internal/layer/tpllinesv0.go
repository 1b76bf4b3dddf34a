package layer

import (
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/numstream"
	"github.com/javanhut/gcc-ocf/internal/varint"
)

// TplLinesV0Layer mines per-line templates: the static text chunks around
// each line's numbers, deduplicated into a template table, plus a
// per-line template id and the number metadata.
type TplLinesV0Layer struct{}

const (
	tplFmtVersion = 1
	tplTokRules   = 1
)

type TplLinesV0Result struct {
	Templates [][][]byte
	IDs       []int64
	Nums      []byte // numstream-encoded
	Empty     bool
}

// packTemplateKey serializes one template's chunks for use as a dedup map
// key (same shape as a single packed-template entry).
func packTemplateKey(chunks [][]byte) string {
	out := varint.Encode(nil, uint64(len(chunks)))
	for _, c := range chunks {
		out = varint.Encode(out, uint64(len(c)))
		out = append(out, c...)
	}
	return string(out)
}

// PackTemplates serializes the TPL stream: varint(n_templates), per
// template varint(n_chunks) + per chunk varint(len)+bytes.
func PackTemplates(templates [][][]byte) []byte {
	out := varint.Encode(nil, uint64(len(templates)))
	for _, chunks := range templates {
		out = varint.Encode(out, uint64(len(chunks)))
		for _, c := range chunks {
			out = varint.Encode(out, uint64(len(c)))
			out = append(out, c...)
		}
	}
	return out
}

// UnpackTemplates parses a TPL stream back into templates.
func UnpackTemplates(raw []byte) ([][][]byte, error) {
	idx := 0
	n, next, err := varint.Decode(raw, idx)
	if err != nil {
		return nil, err
	}
	idx = next
	if n > 1_000_000 {
		return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_v0: too many templates")
	}
	out := make([][][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		nChunks, next2, err := varint.Decode(raw, idx)
		if err != nil {
			return nil, err
		}
		idx = next2
		if nChunks < 1 || nChunks > 1_000_000 {
			return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_v0: invalid n_chunks")
		}
		chunks := make([][]byte, 0, nChunks)
		for j := uint64(0); j < nChunks; j++ {
			ln, next3, err := varint.Decode(raw, idx)
			if err != nil {
				return nil, err
			}
			idx = next3
			if idx+int(ln) > len(raw) {
				return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_v0: truncated chunk")
			}
			chunks = append(chunks, append([]byte(nil), raw[idx:idx+int(ln)]...))
			idx += int(ln)
		}
		out = append(out, chunks)
	}
	if idx != len(raw) {
		return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_v0: trailing bytes in TPL stream")
	}
	return out, nil
}

func (TplLinesV0Layer) Encode(data []byte) TplLinesV0Result {
	lines := SplitLines(data)
	if len(lines) == 0 && len(data) == 0 {
		return TplLinesV0Result{
			Templates: [][][]byte{{[]byte{}}},
			IDs:       []int64{0},
			Nums:      numstream.Encode([]int64{1, 0}),
			Empty:     true,
		}
	}

	var templates [][][]byte
	tplIndex := make(map[string]int64)
	ids := make([]int64, 0, len(lines))
	numsInts := make([]int64, 0, 1+len(lines)*2)
	numsInts = append(numsInts, int64(len(lines)))

	for _, line := range lines {
		chunks, nums := SplitLine(line)
		key := packTemplateKey(chunks)
		tid, ok := tplIndex[key]
		if !ok {
			tid = int64(len(templates))
			tplIndex[key] = tid
			templates = append(templates, chunks)
		}
		ids = append(ids, tid)

		numsInts = append(numsInts, int64(len(nums)))
		for _, num := range nums {
			numsInts = append(numsInts, int64(num.Sign), int64(num.DigitsLen), num.Magnitude)
		}
	}

	return TplLinesV0Result{Templates: templates, IDs: ids, Nums: numstream.Encode(numsInts)}
}

func (TplLinesV0Layer) Decode(tplRaw []byte, idsRaw, numsRaw []byte, fmtVer int) ([]byte, error) {
	if fmtVer != tplFmtVersion {
		return nil, gccerr.Newf(gccerr.UnsupportedVersion, "tpl_lines_v0: unsupported fmt %d", fmtVer)
	}
	templates, err := UnpackTemplates(tplRaw)
	if err != nil {
		return nil, err
	}
	ids, err := numstream.Decode(idsRaw)
	if err != nil {
		return nil, err
	}
	nums, err := numstream.Decode(numsRaw)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_v0: empty NUMS stream")
	}

	idx := 0
	nLines := int(nums[idx])
	idx++
	if nLines != len(ids) {
		return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_v0: mismatch n_lines vs IDS")
	}

	var out []byte
	for li := 0; li < nLines; li++ {
		if idx >= len(nums) {
			return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_v0: NUMS truncated")
		}
		nNums := int(nums[idx])
		idx++

		tid := ids[li]
		if tid < 0 || int(tid) >= len(templates) {
			return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_v0: template id out of range")
		}
		chunks := templates[tid]
		expected := len(chunks) - 1
		if expected < 0 {
			expected = 0
		}
		if nNums != expected {
			return nil, gccerr.Newf(gccerr.CorruptPayload, "tpl_lines_v0: n_nums mismatch got=%d want=%d", nNums, expected)
		}

		out = append(out, chunks[0]...)
		for ni := 0; ni < nNums; ni++ {
			if idx+3 > len(nums) {
				return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_v0: NUMS truncated (triple)")
			}
			sign := int(nums[idx])
			digitsLen := int(nums[idx+1])
			magnitude := nums[idx+2]
			idx += 3
			switch sign {
			case SignPlus:
				out = append(out, '+')
			case SignMinus:
				out = append(out, '-')
			case SignNone:
			default:
				return nil, gccerr.Newf(gccerr.CorruptPayload, "tpl_lines_v0: invalid sign code %d", sign)
			}
			out = append(out, formatDigits(magnitude, digitsLen)...)
			out = append(out, chunks[ni+1]...)
		}
	}
	if idx != len(nums) {
		return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_v0: trailing data in NUMS stream")
	}
	return out, nil
}
