package layer

import "github.com/javanhut/gcc-ocf/internal/gccerr"

// Stream is a typed symbol stream: either a byte stream or an ID stream
// over a bounded alphabet.
type Stream struct {
	Name         string
	Kind         string // "bytes" or "ids"
	AlphabetSize int
	Bytes        []byte
	IDs          []int64
}

// ID identifies a layer, matching the frozen layer_code table.
type ID uint8

const (
	Bytes               ID = 0
	SyllablesIt         ID = 1 // reserved, not implemented
	WordsIt             ID = 2 // reserved, not implemented
	VC0                 ID = 3
	LinesDict           ID = 4
	LinesRLE            ID = 5
	SplitTextNums       ID = 6
	TplLinesV0          ID = 7
	TplLinesSharedV0    ID = 8
)

func (l ID) Name() string {
	switch l {
	case Bytes:
		return "bytes"
	case SyllablesIt:
		return "syllables_it"
	case WordsIt:
		return "words_it"
	case VC0:
		return "vc0"
	case LinesDict:
		return "lines_dict"
	case LinesRLE:
		return "lines_rle"
	case SplitTextNums:
		return "split_text_nums"
	case TplLinesV0:
		return "tpl_lines_v0"
	case TplLinesSharedV0:
		return "tpl_lines_shared_v0"
	default:
		return "unknown"
	}
}

// ByName resolves the CLI/pipeline-spec layer name back to an ID.
func ByName(name string) (ID, error) {
	switch name {
	case "bytes":
		return Bytes, nil
	case "syllables_it":
		return SyllablesIt, nil
	case "words_it":
		return WordsIt, nil
	case "vc0":
		return VC0, nil
	case "lines_dict":
		return LinesDict, nil
	case "lines_rle":
		return LinesRLE, nil
	case "split_text_nums":
		return SplitTextNums, nil
	case "tpl_lines_v0":
		return TplLinesV0, nil
	case "tpl_lines_shared_v0":
		return TplLinesSharedV0, nil
	default:
		return 0, gccerr.Newf(gccerr.Usage, "unknown layer %q", name)
	}
}
