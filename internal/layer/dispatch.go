package layer

import (
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/numstream"
)

// EncodeResult is the canonical container-ready form every layer reduces
// to: a list of named symbol streams plus layer-specific sidecar bytes
// (vocabularies, format versions, shared-dict tags) that the container
// format carries in its own meta field.
type EncodeResult struct {
	Streams []Stream
	Meta    []byte
}

func findStream(streams []Stream, name string) (Stream, error) {
	for _, s := range streams {
		if s.Name == name {
			return s, nil
		}
	}
	return Stream{}, gccerr.Newf(gccerr.CorruptPayload, "missing %q stream", name)
}

// EncodeByID runs the layer identified by id over data, reducing its
// layer-specific result shape to the canonical stream+meta form consumed
// by container dispatch. base is only consulted for
// tpl_lines_shared_v0; pass nil otherwise.
func EncodeByID(id ID, data []byte, base *BaseTemplateDict) (EncodeResult, error) {
	switch id {
	case Bytes:
		return EncodeResult{Streams: BytesLayer{}.Encode(data)}, nil

	case VC0:
		return EncodeResult{Streams: VC0Layer{}.Encode(data)}, nil

	case LinesDict:
		r := LinesDictLayer{}.Encode(data)
		return EncodeResult{
			Streams: []Stream{{Name: "ids", Kind: "ids", AlphabetSize: len(r.Vocab), IDs: r.IDs}},
			Meta:    PackVocab(r.Vocab),
		}, nil

	case LinesRLE:
		r := LinesRLELayer{}.Encode(data)
		return EncodeResult{
			Streams: []Stream{{Name: "main", Kind: "bytes", AlphabetSize: 256, Bytes: r.Payload}},
			Meta:    PackVocab(r.Vocab),
		}, nil

	case SplitTextNums:
		r := SplitTextNumsLayer{}.Encode(data)
		return EncodeResult{
			Streams: []Stream{
				{Name: "text", Kind: "bytes", AlphabetSize: 256, Bytes: r.Text},
				{Name: "nums", Kind: "bytes", AlphabetSize: 256, Bytes: r.Nums},
			},
			Meta: PackSplitTextNumsMeta(),
		}, nil

	case TplLinesV0:
		r := TplLinesV0Layer{}.Encode(data)
		alphabet := len(r.Templates)
		if alphabet == 0 {
			alphabet = 1
		}
		return EncodeResult{
			Streams: []Stream{
				{Name: "tpl", Kind: "bytes", AlphabetSize: 256, Bytes: PackTemplates(r.Templates)},
				{Name: "ids", Kind: "ids", AlphabetSize: alphabet, IDs: r.IDs},
				{Name: "nums", Kind: "bytes", AlphabetSize: 256, Bytes: r.Nums},
			},
			Meta: []byte{tplFmtVersion},
		}, nil

	case TplLinesSharedV0:
		r := TplLinesSharedV0Layer{}.Encode(data, base)
		baseN := 0
		if base != nil {
			baseN = len(base.Templates)
		}
		return EncodeResult{
			Streams: []Stream{
				{Name: "tpl", Kind: "bytes", AlphabetSize: 256, Bytes: PackTemplates(r.DeltaTemplates)},
				{Name: "ids", Kind: "ids", AlphabetSize: baseN + len(r.DeltaTemplates) + 1, IDs: r.IDs},
				{Name: "nums", Kind: "bytes", AlphabetSize: 256, Bytes: r.Nums},
			},
			Meta: r.Meta,
		}, nil

	default:
		return EncodeResult{}, gccerr.Newf(gccerr.Usage, "layer %d has no encode adapter", id)
	}
}

// DecodeByID reassembles the original bytes from streams (as recovered
// from a container payload) plus the container's meta bytes. base is
// only consulted for tpl_lines_shared_v0.
func DecodeByID(id ID, streams []Stream, meta []byte, base *BaseTemplateDict) ([]byte, error) {
	switch id {
	case Bytes:
		return BytesLayer{}.Decode(streams), nil

	case VC0:
		return VC0Layer{}.Decode(streams), nil

	case LinesDict:
		ids, err := findStream(streams, "ids")
		if err != nil {
			return nil, err
		}
		vocab, err := UnpackVocab(meta)
		if err != nil {
			return nil, err
		}
		return LinesDictLayer{}.Decode(ids.IDs, vocab)

	case LinesRLE:
		main, err := findStream(streams, "main")
		if err != nil {
			return nil, err
		}
		vocab, err := UnpackVocab(meta)
		if err != nil {
			return nil, err
		}
		return LinesRLELayer{}.Decode(main.Bytes, vocab)

	case SplitTextNums:
		text, err := findStream(streams, "text")
		if err != nil {
			return nil, err
		}
		nums, err := findStream(streams, "nums")
		if err != nil {
			return nil, err
		}
		fmtVer, _, err := UnpackSplitTextNumsMeta(meta)
		if err != nil {
			return nil, err
		}
		return SplitTextNumsLayer{}.Decode(text.Bytes, nums.Bytes, fmtVer)

	case TplLinesV0:
		tpl, err := findStream(streams, "tpl")
		if err != nil {
			return nil, err
		}
		ids, err := findStream(streams, "ids")
		if err != nil {
			return nil, err
		}
		nums, err := findStream(streams, "nums")
		if err != nil {
			return nil, err
		}
		fmtVer := tplFmtVersion
		if len(meta) > 0 {
			fmtVer = int(meta[0])
		}
		return TplLinesV0Layer{}.Decode(tpl.Bytes, numstream.Encode(ids.IDs), nums.Bytes, fmtVer)

	case TplLinesSharedV0:
		tpl, err := findStream(streams, "tpl")
		if err != nil {
			return nil, err
		}
		ids, err := findStream(streams, "ids")
		if err != nil {
			return nil, err
		}
		nums, err := findStream(streams, "nums")
		if err != nil {
			return nil, err
		}
		return TplLinesSharedV0Layer{}.Decode(tpl.Bytes, numstream.Encode(ids.IDs), nums.Bytes, meta, base)

	default:
		return nil, gccerr.Newf(gccerr.Usage, "layer %d has no decode adapter", id)
	}
}
