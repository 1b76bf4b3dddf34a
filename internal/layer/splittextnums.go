package layer

import (
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/numstream"
)

// SplitTextNumsLayer separates digit-run/unary-signed numbers from
// surrounding text over the whole input buffer.
type SplitTextNumsLayer struct{}

const (
	splitTextNumsFmt = 1
	splitTextNumsTok = 1
)

type SplitTextNumsResult struct {
	Text []byte
	Nums []byte // numstream-encoded
}

func (SplitTextNumsLayer) Encode(data []byte) SplitTextNumsResult {
	chunks, nums := SplitLine(data)

	var text []byte
	ints := make([]int64, 0, 1+len(chunks)+3*len(nums))
	ints = append(ints, int64(len(nums)))
	for _, c := range chunks {
		ints = append(ints, int64(len(c)))
		text = append(text, c...)
	}
	for _, num := range nums {
		ints = append(ints, int64(num.Sign), int64(num.DigitsLen), num.Magnitude)
	}
	return SplitTextNumsResult{Text: text, Nums: numstream.Encode(ints)}
}

// PackSplitTextNumsMeta always returns the (fmt, tok) byte pair.
// UnpackSplitTextNumsMeta reads an empty meta as fmt=0, tok=0.
func PackSplitTextNumsMeta() []byte {
	return []byte{splitTextNumsFmt, splitTextNumsTok}
}

func UnpackSplitTextNumsMeta(meta []byte) (fmt, tok int, err error) {
	if len(meta) == 0 {
		return 0, 0, nil
	}
	if len(meta) < 2 {
		return 0, 0, gccerr.New(gccerr.CorruptPayload, "split_text_nums: meta too short")
	}
	return int(meta[0]), int(meta[1]), nil
}

func (SplitTextNumsLayer) Decode(text, numsRaw []byte, fmtVer int) ([]byte, error) {
	if fmtVer != 0 && fmtVer != splitTextNumsFmt {
		return nil, gccerr.Newf(gccerr.UnsupportedVersion, "split_text_nums: unsupported fmt %d", fmtVer)
	}
	ints, err := numstream.Decode(numsRaw)
	if err != nil {
		return nil, err
	}
	if len(ints) < 1 {
		return nil, gccerr.New(gccerr.CorruptPayload, "split_text_nums: empty NUMS stream")
	}
	idx := 0
	nNumbers := int(ints[idx])
	idx++
	nChunks := nNumbers + 1
	if idx+nChunks > len(ints) {
		return nil, gccerr.New(gccerr.CorruptPayload, "split_text_nums: truncated chunk lengths")
	}
	chunkLens := ints[idx : idx+nChunks]
	idx += nChunks

	var out []byte
	textPos := 0
	for ci := 0; ci < nChunks; ci++ {
		l := int(chunkLens[ci])
		if l < 0 || textPos+l > len(text) {
			return nil, gccerr.New(gccerr.CorruptPayload, "split_text_nums: text stream truncated")
		}
		out = append(out, text[textPos:textPos+l]...)
		textPos += l
		if ci == nChunks-1 {
			break
		}
		if idx+3 > len(ints) {
			return nil, gccerr.New(gccerr.CorruptPayload, "split_text_nums: truncated number triple")
		}
		sign := int(ints[idx])
		digitsLen := int(ints[idx+1])
		magnitude := ints[idx+2]
		idx += 3
		switch sign {
		case SignPlus:
			out = append(out, '+')
		case SignMinus:
			out = append(out, '-')
		case SignNone:
		default:
			return nil, gccerr.Newf(gccerr.CorruptPayload, "split_text_nums: bad sign code %d", sign)
		}
		out = append(out, formatDigits(magnitude, digitsLen)...)
	}
	if idx != len(ints) {
		return nil, gccerr.New(gccerr.CorruptPayload, "split_text_nums: trailing NUMS data")
	}
	if textPos != len(text) {
		return nil, gccerr.New(gccerr.CorruptPayload, "split_text_nums: trailing TEXT data")
	}
	return out, nil
}
