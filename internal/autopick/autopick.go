// Package autopick implements a bucket-level mini autopick: classify a
// bucket's byte shape, score a small candidate pool of (layer, codec,
// per-stream codec) plans against a sample, and persist the
// best-observed plans to a TOP-K database so later runs can skip
// straight to what already works.
package autopick

import (
	"math"
	"os"
	"sort"
	"unicode/utf8"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/container"
	"github.com/javanhut/gcc-ocf/internal/layer"
	"github.com/javanhut/gcc-ocf/internal/resources"
)

// Plan is one candidate pipeline: a layer plus the codec used for its
// text-ish streams and any per-stream overrides.
type Plan struct {
	LayerID      layer.ID
	CodecText    codec.ID
	StreamCodecs map[string]codec.ID
	Note         string
}

// BucketType classifies a bucket's byte shape.
type BucketType string

const (
	Textish        BucketType = "textish"
	MixedTextNums  BucketType = "mixed_text_nums"
	Binaryish      BucketType = "binaryish"
)

// Record is the subset of a directory-walk entry autopick needs: enough
// to read and rank sample files without depending on the directory
// pipeline package itself.
type Record struct {
	Path string
	Rel  string
	Size int64
}

// BucketMetrics are the byte-level signals _bucket_type scores against.
type BucketMetrics struct {
	Entropy         float64
	NullRatio       float64
	PrintableRatio  float64
	DigitRatio      float64
	NewlineDensity  float64
	UTF8OK          bool
}

const (
	bucketMetricsMaxFiles   = 4
	bucketMetricsMaxPerFile = 65536
)

func shannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	n := float64(len(data))
	h := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

func isPrintableByte(b byte) bool {
	return b == 9 || b == 10 || b == 13 || (b >= 32 && b <= 126)
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

// ComputeBucketMetrics samples up to the largest bucketMetricsMaxFiles
// files (bucketMetricsMaxPerFile bytes each, largest-first, tie-broken by
// rel path) and computes the entropy/null/printable/digit/utf8 signals
// _bucket_type classifies on.
func ComputeBucketMetrics(records []Record) (BucketMetrics, error) {
	ok := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Size > 0 {
			ok = append(ok, r)
		}
	}
	sort.Slice(ok, func(i, j int) bool {
		if ok[i].Size != ok[j].Size {
			return ok[i].Size > ok[j].Size
		}
		return ok[i].Rel < ok[j].Rel
	})
	if len(ok) > bucketMetricsMaxFiles {
		ok = ok[:bucketMetricsMaxFiles]
	}

	var buf []byte
	for _, r := range ok {
		data, err := os.ReadFile(r.Path)
		if err != nil {
			continue
		}
		if len(data) > bucketMetricsMaxPerFile {
			data = data[:bucketMetricsMaxPerFile]
		}
		buf = append(buf, data...)
	}
	if len(buf) == 0 {
		return BucketMetrics{}, nil
	}

	var nul, digit, printable, nl int
	for _, b := range buf {
		switch {
		case b == 0:
			nul++
		case b >= '0' && b <= '9':
			digit++
		}
		if isPrintableByte(b) {
			printable++
		}
		if b == 10 {
			nl++
		}
	}
	n := float64(len(buf))
	return BucketMetrics{
		Entropy:        shannonEntropy(buf),
		NullRatio:      float64(nul) / n,
		PrintableRatio: float64(printable) / n,
		DigitRatio:     float64(digit) / n,
		NewlineDensity: float64(nl) / n,
		UTF8OK:         isValidUTF8(buf),
	}, nil
}

// ClassifyBucket runs the v2 bucket-type decision: null bytes or
// high-entropy-and-not-texty mean binaryish, a meaningful digit density
// means mixed_text_nums, otherwise textish.
func ClassifyBucket(records []Record) (BucketType, BucketMetrics, error) {
	m, err := ComputeBucketMetrics(records)
	if err != nil {
		return "", BucketMetrics{}, err
	}
	if m.NullRatio > 0.01 {
		return Binaryish, m, nil
	}
	if m.Entropy > 6.6 && m.PrintableRatio < 0.65 && !m.UTF8OK {
		return Binaryish, m, nil
	}
	if m.DigitRatio >= 0.10 {
		return MixedTextNums, m, nil
	}
	return Textish, m, nil
}

// ResolveCodecID maps zstd/zstd_tight to zlib when zstd is unavailable.
// klauspost/compress/zstd is an unconditional dependency in this port (no
// optional import to fall back from, unlike the Python original's
// try/except zstandard), so real callers always pass haveZstd=true; this
// stays a real function, not a no-op, so a caller simulating a
// zstd-less environment (e.g. to keep a TOP-K db portable) still works.
func ResolveCodecID(id codec.ID, haveZstd bool) codec.ID {
	if !haveZstd && (id == codec.Zstd || id == codec.ZstdTight) {
		return codec.Zlib
	}
	return id
}

// ResolveStreamCodecs applies ResolveCodecID to every value in sc.
func ResolveStreamCodecs(sc map[string]codec.ID, haveZstd bool) map[string]codec.ID {
	if len(sc) == 0 {
		return nil
	}
	out := make(map[string]codec.ID, len(sc))
	for name, id := range sc {
		out[name] = ResolveCodecID(id, haveZstd)
	}
	return out
}

func resolvedPlan(p Plan, haveZstd bool) Plan {
	return Plan{
		LayerID:      p.LayerID,
		CodecText:    ResolveCodecID(p.CodecText, haveZstd),
		StreamCodecs: ResolveStreamCodecs(p.StreamCodecs, haveZstd),
		Note:         p.Note,
	}
}

// usesNumV1 reports whether a plan sends any stream through num_v1,
// explicitly or as one of the layers that always does.
func usesNumV1(p Plan) bool {
	for _, id := range p.StreamCodecs {
		if id == codec.NumV1 {
			return true
		}
	}
	switch p.LayerID {
	case layer.SplitTextNums, layer.TplLinesV0, layer.TplLinesSharedV0:
		return true
	}
	return false
}

// CPUPenalty is a small deterministic tie-break favoring cheaper layers,
// penalizing zstd_tight's extra CPU cost and any num_v1 usage.
func CPUPenalty(p Plan) float64 {
	layerPenalty := map[layer.ID]float64{
		layer.Bytes:            0.000,
		layer.VC0:              0.010,
		layer.SplitTextNums:    0.020,
		layer.TplLinesV0:       0.030,
		layer.TplLinesSharedV0: 0.030,
	}
	pen, ok := layerPenalty[p.LayerID]
	if !ok {
		pen = 0.015
	}
	if p.CodecText == codec.ZstdTight {
		pen += 0.005
	}
	if usesNumV1(p) {
		pen += 0.005
	}
	return pen
}

// BootstrapPlans returns the small fixed candidate set used when a
// bucket type has no TOP-K history yet.
func BootstrapPlans(bucketType BucketType, haveZstd bool) []Plan {
	codecID := codec.Zlib
	if haveZstd {
		codecID = codec.ZstdTight
	}

	switch bucketType {
	case Binaryish:
		return []Plan{{LayerID: layer.Bytes, CodecText: codecID, Note: "bootstrap:bytes"}}

	case Textish:
		return []Plan{
			{
				LayerID:      layer.SplitTextNums,
				CodecText:    codecID,
				StreamCodecs: map[string]codec.ID{"text": codecID, "nums": codec.NumV1},
				Note:         "bootstrap:split_text_nums",
			},
			{LayerID: layer.Bytes, CodecText: codecID, Note: "bootstrap:bytes"},
		}

	default: // MixedTextNums
		return []Plan{
			{
				LayerID:      layer.TplLinesSharedV0,
				CodecText:    codecID,
				StreamCodecs: map[string]codec.ID{"tpl": codecID, "ids": codec.NumV1, "nums": codec.NumV1},
				Note:         "bootstrap:tpl_lines_shared_v0",
			},
			{
				LayerID:      layer.TplLinesV0,
				CodecText:    codecID,
				StreamCodecs: map[string]codec.ID{"tpl": codecID, "ids": codec.NumV1, "nums": codec.NumV1},
				Note:         "bootstrap:tpl_lines_v0",
			},
		}
	}
}

// CandidatePlans is the full refresh-mode candidate pool: every plan
// worth trying for a bucket, deduplicated by (layer, codec, stream
// codecs).
func CandidatePlans(textish bool, haveZstd bool) []Plan {
	var plans []Plan
	plans = append(plans, Plan{LayerID: layer.Bytes, CodecText: codec.Zlib, Note: "bytes+zlib"})
	if haveZstd {
		plans = append(plans, Plan{LayerID: layer.Bytes, CodecText: codec.ZstdTight, Note: "bytes+zstd_tight"})
	}

	if textish {
		textCodec := codec.Zlib
		if haveZstd {
			textCodec = codec.ZstdTight
		}
		plans = append(plans, Plan{LayerID: layer.VC0, CodecText: codec.Zlib, Note: "vc0+zlib"})
		if haveZstd {
			plans = append(plans, Plan{LayerID: layer.VC0, CodecText: codec.ZstdTight, Note: "vc0+zstd_tight"})
		}
		plans = append(plans, Plan{
			LayerID:      layer.SplitTextNums,
			CodecText:    textCodec,
			StreamCodecs: map[string]codec.ID{"text": textCodec, "nums": codec.NumV1},
			Note:         "split_text_nums+(TEXT codec)+num_v1",
		})
		plans = append(plans, Plan{
			LayerID:      layer.TplLinesSharedV0,
			CodecText:    textCodec,
			StreamCodecs: map[string]codec.ID{"tpl": textCodec, "ids": codec.NumV1, "nums": codec.NumV1},
			Note:         "tpl_lines_shared_v0+(TPL codec)+num_v1",
		})
		plans = append(plans, Plan{
			LayerID:      layer.TplLinesV0,
			CodecText:    textCodec,
			StreamCodecs: map[string]codec.ID{"tpl": textCodec, "ids": codec.NumV1, "nums": codec.NumV1},
			Note:         "tpl_lines_v0+(TPL codec)+num_v1",
		})
	}

	seen := make(map[string]bool, len(plans))
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		sig := PlanSig(p)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, p)
	}
	return out
}

// PlanSig is a dedup/diversity key over (layer, codec_text, stream
// codecs); note is excluded since it carries no semantic weight.
func PlanSig(p Plan) string {
	names := make([]string, 0, len(p.StreamCodecs))
	for name := range p.StreamCodecs {
		names = append(names, name)
	}
	sort.Strings(names)
	sig := p.LayerID.Name() + "|" + p.CodecText.Name() + "|"
	for _, name := range names {
		sig += name + "=" + p.StreamCodecs[name].Name() + ","
	}
	return sig
}

// DivRank scores how different b is from a: different layer beats
// different stream codecs beats different text codec beats identical.
func DivRank(a, b Plan) int {
	if a.LayerID != b.LayerID {
		return 3
	}
	if !streamCodecsEqual(a.StreamCodecs, b.StreamCodecs) {
		return 2
	}
	if a.CodecText != b.CodecText {
		return 1
	}
	return 0
}

func streamCodecsEqual(a, b map[string]codec.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// PickTopDiverse keeps plansSorted[0] and, from the remainder, the plan
// with the highest diversity rank against it (earliest on ties), so a
// TOP-2 pick isn't two near-identical pipelines.
func PickTopDiverse(plansSorted []Plan, topK int) []Plan {
	if len(plansSorted) == 0 {
		return nil
	}
	if topK <= 1 || len(plansSorted) == 1 {
		return []Plan{plansSorted[0]}
	}

	first := plansSorted[0]
	var best *Plan
	bestRank := -1
	for i := 1; i < len(plansSorted); i++ {
		r := DivRank(first, plansSorted[i])
		if r > bestRank {
			bestRank = r
			p := plansSorted[i]
			best = &p
			if r == 3 {
				break
			}
		}
	}
	if best == nil {
		best = &plansSorted[1]
	}
	out := []Plan{first, *best}
	if topK < len(out) {
		out = out[:topK]
	}
	return out
}

// SampleRecordsForAutopick keeps the n largest non-empty records,
// largest first (overhead dominates on tiny files).
func SampleRecordsForAutopick(records []Record, n int) []Record {
	ok := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Size > 0 {
			ok = append(ok, r)
		}
	}
	sort.SliceStable(ok, func(i, j int) bool { return ok[i].Size > ok[j].Size })
	if n < len(ok) {
		ok = ok[:n]
	}
	return ok
}

// TryPlan compresses every sample record through plan and returns the
// total input/output byte counts.
func TryPlan(sample []Record, plan Plan, res container.Resources) (inTotal, outTotal int64, err error) {
	for _, r := range sample {
		data, rerr := os.ReadFile(r.Path)
		if rerr != nil {
			return 0, 0, rerr
		}
		inTotal += int64(len(data))
		buf, eerr := container.EncodeFilePlan(plan.LayerID, plan.CodecText, plan.StreamCodecs, data, res)
		if eerr != nil {
			return 0, 0, eerr
		}
		outTotal += int64(len(buf))
	}
	return inTotal, outTotal, nil
}

// ScoreEntry is one candidate's scored outcome, kept for reporting.
type ScoreEntry struct {
	Plan     Plan
	Ratio    float64
	Penalty  float64
	Score    float64
	InTotal  int64
	OutTotal int64
	OK       bool
	Err      string
}

// Options configures ChoosePlanForBucket. Candidates, when non-nil,
// overrides the TOP-K/bootstrap/refresh pool selection entirely (the
// directory-pipeline-spec candidate_pools override).
type Options struct {
	BucketType     BucketType
	Records        []Record
	TopDB          *TopDB
	TopK           int
	TopDBMax       int
	HaveZstd       bool
	Candidates     []Plan
	Refresh        bool
	SampleN        int
	UseArchive     bool
	TplDictEnabled bool
	TplDictK       int
}

func loadAll(records []Record) ([][]byte, error) {
	out := make([][]byte, 0, len(records))
	for _, r := range records {
		data, err := os.ReadFile(r.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func heuristicPlan(haveZstd bool) Plan {
	codecID := codec.Zlib
	if haveZstd {
		codecID = codec.ZstdTight
	}
	return Plan{LayerID: layer.Bytes, CodecText: codecID, Note: "heuristic:bytes"}
}

// ChoosePlanForBucket scores a candidate pool against a size-biased
// sample and returns the winning plan, a diverse runner-up, and the
// full per-candidate report. The TOP-K db (if given) is updated in
// place with the winning plan's observed score.
func ChoosePlanForBucket(opts Options) (Plan, *Plan, []ScoreEntry, error) {
	sampleN := opts.SampleN
	if sampleN <= 0 {
		sampleN = 3
	}
	if sampleN > 8 {
		sampleN = 8
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = TopKDefault
	}
	topDBMax := opts.TopDBMax
	if topDBMax <= 0 {
		topDBMax = TopDBMaxDefault
	}

	candidates := opts.Candidates
	if candidates == nil {
		if opts.Refresh {
			candidates = CandidatePlans(opts.BucketType != Binaryish, opts.HaveZstd)
		} else {
			candidates = TopCandidates(opts.TopDB, opts.BucketType, opts.HaveZstd, topK, topDBMax)
		}
	}

	sample := SampleRecordsForAutopick(opts.Records, sampleN)
	if len(sample) == 0 {
		p := resolvedPlan(heuristicPlan(opts.HaveZstd), opts.HaveZstd)
		return p, nil, nil, nil
	}

	report := make([]ScoreEntry, 0, len(candidates))
	type scored struct {
		score, ratio, penalty float64
		plan                  Plan
	}
	var okScored []scored

	for _, p := range candidates {
		pRes := resolvedPlan(p, opts.HaveZstd)

		res := container.Resources{}
		if opts.UseArchive && opts.TplDictEnabled && pRes.LayerID == layer.TplLinesSharedV0 && len(sample) >= 2 {
			files, ferr := loadAll(sample)
			if ferr == nil {
				if dict, derr := resources.BuildTplDict(files, opts.TplDictK); derr == nil && dict != nil {
					res.Tpl = dict
				}
			}
		}

		inTotal, outTotal, err := TryPlan(sample, pRes, res)
		if err != nil || inTotal <= 0 {
			errMsg := "try_plan failed"
			if err != nil {
				errMsg = err.Error()
			}
			report = append(report, ScoreEntry{Plan: pRes, Err: errMsg})
			continue
		}
		ratio := float64(outTotal) / float64(inTotal)
		penalty := CPUPenalty(pRes)
		score := ratio + penalty
		report = append(report, ScoreEntry{
			Plan: pRes, Ratio: ratio, Penalty: penalty, Score: score,
			InTotal: inTotal, OutTotal: outTotal, OK: true,
		})
		okScored = append(okScored, scored{score: score, ratio: ratio, penalty: penalty, plan: pRes})
	}

	if len(okScored) == 0 {
		p := resolvedPlan(heuristicPlan(opts.HaveZstd), opts.HaveZstd)
		return p, nil, report, nil
	}

	sort.SliceStable(okScored, func(i, j int) bool {
		if okScored[i].score != okScored[j].score {
			return okScored[i].score < okScored[j].score
		}
		return okScored[i].ratio < okScored[j].ratio
	})

	plansSorted := make([]Plan, len(okScored))
	for i, s := range okScored {
		plansSorted[i] = s.plan
	}
	picked := PickTopDiverse(plansSorted, topK)
	chosen := picked[0]
	var runner *Plan
	if len(picked) > 1 {
		r := picked[1]
		runner = &r
	}

	if opts.TopDB != nil {
		UpdateTopDB(opts.TopDB, opts.BucketType, chosen, okScored[0].score, topDBMax)
	}
	return chosen, runner, report, nil
}
