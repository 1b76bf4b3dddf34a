package layer

import "github.com/javanhut/gcc-ocf/internal/varint"

// LinesRLELayer shares lines_dict's vocabulary construction but emits a
// run-length-encoded (id, run_length) byte stream instead of a bare IDs
// stream.
type LinesRLELayer struct{}

type LinesRLEResult struct {
	Payload []byte // varint pairs (id, run_length)
	NLines  int
	Vocab   [][]byte
}

func (LinesRLELayer) Encode(data []byte) LinesRLEResult {
	lines := SplitLines(data)
	index := make(map[string]int64)
	var vocab [][]byte
	var payload []byte

	var curID int64 = -1
	var run uint64
	flush := func() {
		if run > 0 {
			payload = varint.Encode(payload, uint64(curID))
			payload = varint.Encode(payload, run)
		}
	}
	for _, ln := range lines {
		key := string(ln)
		j, ok := index[key]
		if !ok {
			j = int64(len(vocab))
			vocab = append(vocab, ln)
			index[key] = j
		}
		if j == curID {
			run++
		} else {
			flush()
			curID = j
			run = 1
		}
	}
	flush()

	return LinesRLEResult{Payload: payload, NLines: len(lines), Vocab: vocab}
}

func (LinesRLELayer) Decode(payload []byte, vocab [][]byte) ([]byte, error) {
	var out []byte
	idx := 0
	for idx < len(payload) {
		id, next, err := varint.Decode(payload, idx)
		if err != nil {
			return nil, err
		}
		idx = next
		run, next2, err := varint.Decode(payload, idx)
		if err != nil {
			return nil, err
		}
		idx = next2
		if int(id) >= len(vocab) {
			return nil, errIDOutOfRange("lines_rle")
		}
		for i := uint64(0); i < run; i++ {
			out = append(out, vocab[id]...)
		}
	}
	return out, nil
}
