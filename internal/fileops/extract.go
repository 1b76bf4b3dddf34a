// Package fileops implements lossy semantic extractors that sit
// alongside the lossless container/bundle stack: `file extract
// numbers_only` and `file extract-show`. Both operate on the container's
// EXTRACT flag (internal/container.FlagKindExtract), which marks a file
// as non-roundtrippable so the ordinary decompress path refuses it.
package fileops

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/javanhut/gcc-ocf/internal/bundle"
	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/container"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/numstream"
)

var intPattern = regexp.MustCompile(`-?\d+`)

// ExtractMeta is the JSON meta object stored alongside the numeric
// stream in an EXTRACT container.
type ExtractMeta struct {
	Extractor string `json:"extractor"`
	Count     int    `json:"count"`
	SrcBytes  int    `json:"src_bytes"`
}

// ExtractNumbersOnly scans src for integer substrings (the same
// `-?\d+` pattern the reference extractor uses), keeps only the
// numbers, and writes an EXTRACT container holding them plus a small
// JSON meta record. The result cannot be decompressed back into src;
// it can only be inspected with ExtractShow.
func ExtractNumbersOnly(src []byte) ([]byte, error) {
	matches := intPattern.FindAllString(string(src), -1)
	nums := make([]int64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		nums = append(nums, v)
	}

	rawNums := numstream.Encode(nums)
	compNums, err := (codec.NumV1Codec{}).Compress(rawNums)
	if err != nil {
		return nil, gccerr.Wrap(gccerr.Usage, "extract numbers_only: compress nums", err)
	}

	meta := ExtractMeta{Extractor: "numbers_only", Count: len(nums), SrcBytes: len(src)}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	records := []bundle.MBNRecord{
		{StreamType: bundle.StreamNums, Codec: uint8(codec.NumV1), ULen: uint64(len(rawNums)), Comp: compNums},
		{StreamType: bundle.StreamMeta, Codec: uint8(codec.Raw), ULen: uint64(len(metaBytes)), Comp: metaBytes},
	}
	payload, err := bundle.PackMBN(records)
	if err != nil {
		return nil, err
	}

	c := container.Container{Flags: container.FlagKindExtract, Payload: payload}
	return container.Pack(c), nil
}

// ExtractResult is what ExtractShow recovers from an EXTRACT container:
// the numbers themselves plus the meta record written alongside them.
type ExtractResult struct {
	Meta ExtractMeta
	Nums []int64
}

// ExtractShow parses an EXTRACT container written by ExtractNumbersOnly
// and returns its numbers and meta record. It rejects containers that
// do not carry the EXTRACT flag, so a lossless file is never mistaken
// for a lossy one.
func ExtractShow(blob []byte) (ExtractResult, error) {
	var result ExtractResult

	c, err := container.Unpack(blob)
	if err != nil {
		return result, err
	}
	if c.Flags&container.FlagKindExtract == 0 {
		return result, gccerr.New(gccerr.Usage, "extract-show: file is not an EXTRACT container")
	}

	records, err := bundle.UnpackMBN(c.Payload)
	if err != nil {
		return result, gccerr.Wrap(gccerr.CorruptPayload, "extract-show: invalid MBN payload", err)
	}

	for _, rec := range records {
		switch rec.StreamType {
		case bundle.StreamMeta:
			if err := json.Unmarshal(rec.Comp, &result.Meta); err != nil {
				return result, gccerr.Wrap(gccerr.CorruptPayload, "extract-show: invalid meta JSON", err)
			}
		case bundle.StreamNums:
			raw, err := (codec.NumV1Codec{}).Decompress(rec.Comp, int(rec.ULen))
			if err != nil {
				return result, gccerr.Wrap(gccerr.CorruptPayload, "extract-show: decompress nums", err)
			}
			nums, err := numstream.Decode(raw)
			if err != nil {
				return result, gccerr.Wrap(gccerr.CorruptPayload, "extract-show: decode nums", err)
			}
			result.Nums = nums
		}
	}

	return result, nil
}
