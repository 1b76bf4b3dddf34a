package layer

import (
	"bytes"

	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/numstream"
	"github.com/javanhut/gcc-ocf/internal/varint"
)

// TplLinesSharedV0Layer is tpl_lines_v0 with an optional bucket-shared base
// template dictionary: only templates not already in the base are emitted,
// and per-line ids are remapped into base+delta id space.
type TplLinesSharedV0Layer struct{}

const tplSharedFlagEmpty = 0x01

// BaseTemplateDict is the decoded form of the tpl_dict_v0 resource,
// shared read-only across a bucket's files.
type BaseTemplateDict struct {
	Tag       [8]byte
	Templates [][][]byte
}

type TplLinesSharedV0Result struct {
	DeltaTemplates [][][]byte
	IDs            []int64
	Nums           []byte
	Meta           []byte
}

func packSharedMeta(fmt, tok, flags int, baseN int, baseTag []byte) []byte {
	out := []byte{byte(fmt), byte(tok), byte(flags)}
	out = varint.Encode(out, uint64(baseN))
	if baseN > 0 {
		out = append(out, baseTag...)
	}
	return out
}

type sharedMeta struct {
	fmt, tok, flags int
	baseN           int
	baseTag         []byte
}

func unpackSharedMeta(meta []byte) (sharedMeta, error) {
	if len(meta) < 3 {
		return sharedMeta{}, gccerr.New(gccerr.CorruptPayload, "tpl_lines_shared_v0: meta too short")
	}
	m := sharedMeta{fmt: int(meta[0]), tok: int(meta[1]), flags: int(meta[2])}
	baseN, idx, err := varint.Decode(meta, 3)
	if err != nil {
		return sharedMeta{}, err
	}
	m.baseN = int(baseN)
	if m.baseN > 0 {
		if idx+8 > len(meta) {
			return sharedMeta{}, gccerr.New(gccerr.CorruptPayload, "tpl_lines_shared_v0: truncated base tag")
		}
		m.baseTag = meta[idx : idx+8]
		idx += 8
	}
	if idx != len(meta) {
		return sharedMeta{}, gccerr.New(gccerr.CorruptPayload, "tpl_lines_shared_v0: trailing meta bytes")
	}
	return m, nil
}

func (TplLinesSharedV0Layer) Encode(data []byte, base *BaseTemplateDict) TplLinesSharedV0Result {
	v0 := (TplLinesV0Layer{}).Encode(data)

	baseIndex := make(map[string]int64)
	baseN := 0
	var baseTag []byte
	if base != nil {
		baseN = len(base.Templates)
		for i, t := range base.Templates {
			baseIndex[packTemplateKey(t)] = int64(i)
		}
		baseTag = base.Tag[:]
	}

	deltaIndex := make(map[string]int64)
	var deltaTemplates [][][]byte
	remapped := make([]int64, len(v0.IDs))

	for li, tid := range v0.IDs {
		chunks := v0.Templates[tid]
		key := packTemplateKey(chunks)
		if bi, ok := baseIndex[key]; ok {
			remapped[li] = bi
			continue
		}
		di, ok := deltaIndex[key]
		if !ok {
			di = int64(len(deltaTemplates))
			deltaIndex[key] = di
			deltaTemplates = append(deltaTemplates, chunks)
		}
		remapped[li] = int64(baseN) + di
	}

	flags := 0
	if v0.Empty {
		flags |= tplSharedFlagEmpty
	}
	meta := packSharedMeta(tplFmtVersion, tplTokRules, flags, baseN, baseTag)

	return TplLinesSharedV0Result{
		DeltaTemplates: deltaTemplates,
		IDs:            remapped,
		Nums:           v0.Nums,
		Meta:           meta,
	}
}

func (TplLinesSharedV0Layer) Decode(tplRaw, idsRaw, numsRaw, meta []byte, base *BaseTemplateDict) ([]byte, error) {
	m, err := unpackSharedMeta(meta)
	if err != nil {
		return nil, err
	}
	if m.fmt != tplFmtVersion {
		return nil, gccerr.Newf(gccerr.UnsupportedVersion, "tpl_lines_shared_v0: unsupported fmt %d", m.fmt)
	}

	var allTemplates [][][]byte
	if m.baseN > 0 {
		if base == nil {
			return nil, gccerr.New(gccerr.MissingResource, "tpl_lines_shared_v0: base template dict required but absent")
		}
		if !bytes.Equal(base.Tag[:], m.baseTag) {
			return nil, gccerr.New(gccerr.HashMismatch, "tpl_lines_shared_v0: base dict tag mismatch")
		}
		allTemplates = append(allTemplates, base.Templates...)
	}

	deltaTemplates, err := UnpackTemplates(tplRaw)
	if err != nil {
		return nil, err
	}
	allTemplates = append(allTemplates, deltaTemplates...)

	ids, err := numstream.Decode(idsRaw)
	if err != nil {
		return nil, err
	}
	nums, err := numstream.Decode(numsRaw)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_shared_v0: empty NUMS stream")
	}

	idx := 0
	nLines := int(nums[idx])
	idx++
	if nLines != len(ids) {
		return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_shared_v0: mismatch n_lines vs IDS")
	}

	var out []byte
	for li := 0; li < nLines; li++ {
		if idx >= len(nums) {
			return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_shared_v0: NUMS truncated")
		}
		nNums := int(nums[idx])
		idx++

		tid := ids[li]
		if tid < 0 || int(tid) >= len(allTemplates) {
			return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_shared_v0: template id out of range")
		}
		chunks := allTemplates[tid]
		expected := len(chunks) - 1
		if expected < 0 {
			expected = 0
		}
		if nNums != expected {
			return nil, gccerr.Newf(gccerr.CorruptPayload, "tpl_lines_shared_v0: n_nums mismatch got=%d want=%d", nNums, expected)
		}

		out = append(out, chunks[0]...)
		for ni := 0; ni < nNums; ni++ {
			if idx+3 > len(nums) {
				return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_shared_v0: NUMS truncated (triple)")
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
				return nil, gccerr.Newf(gccerr.CorruptPayload, "tpl_lines_shared_v0: invalid sign code %d", sign)
			}
			out = append(out, formatDigits(magnitude, digitsLen)...)
			out = append(out, chunks[ni+1]...)
		}
	}
	if idx != len(nums) {
		return nil, gccerr.New(gccerr.CorruptPayload, "tpl_lines_shared_v0: trailing data in NUMS stream")
	}
	return out, nil
}
