// Package dirpack implements directory pack/unpack orchestration: walk
// an input tree, bucket files by content fingerprint, run bucket-level
// mini autopick, optionally build bucket-level shared dictionaries, and
// write either one compressed file per input file or a per-bucket GCA1
// archive, plus a manifest.jsonl describing every file and bucket.
package dirpack

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/javanhut/gcc-ocf/internal/archive"
	"github.com/javanhut/gcc-ocf/internal/autopick"
	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/container"
	"github.com/javanhut/gcc-ocf/internal/fingerprint"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/layer"
	"github.com/javanhut/gcc-ocf/internal/numstream"
	"github.com/javanhut/gcc-ocf/internal/resources"
)

// Well-known names and defaults.
const (
	ManifestName = "manifest.jsonl"
	// EmptySHA256 is sha256 of the empty byte string; unpackdir restores
	// any file carrying it without touching the codec stack.
	EmptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	ArchivePrefix = "bucket_"
	ArchiveSuffix = ".gca"

	DefaultBuckets         = 16
	DefaultAnalyzeMaxBytes = fingerprint.DefaultAnalyzeMaxBytes
	DefaultSpoolThreshold  = 4 * 1024 * 1024

	NumDictName = "num_dict_v1"
	TplDictName = "tpl_dict_v0"
)

// Options configures a PackDir run. PackDir replaces every zero or
// negative numeric field with its DefaultOptions value; the boolean
// fields (UseArchive, HaveZstd, NumDictEnabled, TplDictEnabled) are used
// as given, so a zero-value Options turns all of them off.
type Options struct {
	Buckets         int
	UseArchive      bool
	Jobs            int
	AnalyzeMaxBytes int
	SpoolThreshold  int64

	HaveZstd bool
	TopDB    *autopick.TopDB
	TopK     int
	TopDBMax int
	Refresh  bool
	SampleN  int

	NumDictEnabled bool
	NumDictK       int
	TplDictEnabled bool
	TplDictK       int

	// Candidates overrides the TOP-K/bootstrap/refresh candidate pool
	// per bucket type, mirroring a directory-pipeline-spec
	// candidate_pools override.
	Candidates map[autopick.BucketType][]autopick.Plan
	Bucketizer fingerprint.Bucketizer
}

// DefaultOptions returns the packdir() defaults (archive on, zstd
// available, 16 buckets, num/tpl dicts enabled).
func DefaultOptions() Options {
	return Options{
		Buckets:         DefaultBuckets,
		UseArchive:      true,
		Jobs:            1,
		AnalyzeMaxBytes: DefaultAnalyzeMaxBytes,
		SpoolThreshold:  DefaultSpoolThreshold,
		HaveZstd:        true,
		TopK:            autopick.TopKDefault,
		TopDBMax:        autopick.TopDBMaxDefault,
		SampleN:         3,
		NumDictEnabled:  true,
		NumDictK:        resources.DefaultNumDictK,
		TplDictEnabled:  true,
		TplDictK:        resources.DefaultTplDictK,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Buckets <= 0 {
		o.Buckets = d.Buckets
	}
	if o.Jobs <= 0 {
		o.Jobs = d.Jobs
	}
	if o.AnalyzeMaxBytes <= 0 {
		o.AnalyzeMaxBytes = d.AnalyzeMaxBytes
	}
	if o.SpoolThreshold <= 0 {
		o.SpoolThreshold = d.SpoolThreshold
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.TopDBMax <= 0 {
		o.TopDBMax = d.TopDBMax
	}
	if o.SampleN <= 0 {
		o.SampleN = d.SampleN
	}
	if o.NumDictK <= 0 {
		o.NumDictK = d.NumDictK
	}
	if o.TplDictK <= 0 {
		o.TplDictK = d.TplDictK
	}
	return o
}

// fileRecord is one walked input file plus its fingerprint and bucket.
type fileRecord struct {
	Path      string
	Rel       string
	Size      int64
	SimHash64 uint64
	Bucket    int
	err       error
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// walkFiles enumerates every regular file under root in deterministic
// (lexical, directory-by-directory) order, mirroring iter_files'
// rglob("*") traversal closely enough for reproducible bucketing.
func walkFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type().IsRegular() {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func analyzeFile(root, path string, analyzeMaxBytes int) fileRecord {
	rel, _ := filepath.Rel(root, path)
	rec := fileRecord{Path: path, Rel: filepath.ToSlash(rel)}

	info, err := os.Stat(path)
	if err != nil {
		rec.err = err
		return rec
	}
	rec.Size = info.Size()

	var data []byte
	if analyzeMaxBytes > 0 && rec.Size > int64(analyzeMaxBytes) {
		f, ferr := os.Open(path)
		if ferr != nil {
			rec.err = ferr
			return rec
		}
		defer f.Close()
		buf := make([]byte, analyzeMaxBytes)
		n, rerr := f.Read(buf)
		if rerr != nil && n == 0 {
			rec.err = rerr
			return rec
		}
		data = buf[:n]
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			rec.err = err
			return rec
		}
	}

	fp := fingerprint.FingerprintBytes(data, analyzeMaxBytes)
	rec.SimHash64 = fp.SimHash64
	return rec
}

// bucketSummary is one manifest.jsonl "bucket_summary" line.
type bucketSummary struct {
	Kind                string                    `json:"kind"`
	Bucket              int                       `json:"bucket"`
	BucketType          string                    `json:"bucket_type"`
	Metrics             map[string]float64         `json:"metrics"`
	Chosen              *planJSON                  `json:"chosen"`
	RunnerUp            *planJSON                  `json:"runner_up"`
	BucketResources     []string                   `json:"bucket_resources"`
	BucketResourcesMeta map[string]map[string]any  `json:"bucket_resources_meta,omitempty"`
}

type planJSON struct {
	LayerID      string            `json:"layer_id"`
	CodecText    string            `json:"codec_text"`
	StreamCodecs map[string]string `json:"stream_codecs,omitempty"`
	Note         string            `json:"note,omitempty"`
}

func planToJSON(p *autopick.Plan) *planJSON {
	if p == nil {
		return nil
	}
	var sc map[string]string
	if len(p.StreamCodecs) > 0 {
		sc = make(map[string]string, len(p.StreamCodecs))
		for name, id := range p.StreamCodecs {
			sc[name] = id.Name()
		}
	}
	return &planJSON{LayerID: p.LayerID.Name(), CodecText: p.CodecText.Name(), StreamCodecs: sc, Note: p.Note}
}

func metricsToMap(m autopick.BucketMetrics) map[string]float64 {
	utf8ok := 0.0
	if m.UTF8OK {
		utf8ok = 1.0
	}
	return map[string]float64{
		"entropy":         m.Entropy,
		"null_ratio":      m.NullRatio,
		"printable_ratio": m.PrintableRatio,
		"digit_ratio":     m.DigitRatio,
		"newline_density": m.NewlineDensity,
		"utf8_ok":         utf8ok,
	}
}

// manifestFileRecord is one manifest.jsonl per-file line.
type manifestFileRecord struct {
	Rel             string   `json:"rel"`
	Bucket          int      `json:"bucket"`
	BucketType      string   `json:"bucket_type"`
	LayerID         string   `json:"layer_id"`
	CodecText       string   `json:"codec_text"`
	StreamCodecs    map[string]string `json:"stream_codecs,omitempty"`
	PlanNote        string   `json:"plan_note,omitempty"`
	RunnerUp        *planJSON `json:"runner_up"`
	BucketResources []string `json:"bucket_resources"`
	OutRel          *string  `json:"out_rel"`
	Archive         *string  `json:"archive"`
	ArchiveOffset   *int64   `json:"archive_offset"`
	ArchiveLength   *int64   `json:"archive_length"`
	InSize          int64    `json:"in_size"`
	OutSize         int64    `json:"out_size"`
	SHA256          string   `json:"sha256"`
	InSHA256        string   `json:"in_sha256"`
	BlobSHA256      *string  `json:"blob_sha256,omitempty"`
	Ver             int      `json:"ver"`
}

type manifestErrorRecord struct {
	Rel    string `json:"rel,omitempty"`
	Bucket int    `json:"bucket,omitempty"`
	Error  string `json:"error"`
}

// BucketReport is the scored-candidate report for one bucket, returned
// in Stats.Buckets; this package does not write it to disk.
type BucketReport struct {
	Bucket          int
	BucketType      autopick.BucketType
	Metrics         autopick.BucketMetrics
	Chosen          *autopick.Plan
	RunnerUp        *autopick.Plan
	Candidates      []autopick.ScoreEntry
	BucketResources []string
}

// Stats summarizes a completed PackDir run.
type Stats struct {
	FilesOK   int
	FilesFail int
	InTotal   int64
	OutTotal  int64
	Buckets   map[int]*BucketReport
}

// planUsesNumV1 mirrors autopick's usesNumV1: explicit num_v1 on any
// stream, or one of the layers that always num_v1-codes its numeric
// stream.
func planUsesNumV1(p autopick.Plan) bool {
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

func loadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// PackDir walks inputDir, buckets its files, runs bucket-level autopick,
// and writes output (either per-bucket .gca archives or one .gcc6 file
// per input file) plus manifest.jsonl under outputDir. No
// autopick_report.json is written; the per-bucket reports are returned
// in Stats.Buckets.
func PackDir(inputDir, outputDir string, opts Options) (*Stats, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}

	paths, err := walkFiles(inputDir)
	if err != nil {
		return nil, err
	}

	records := make([]fileRecord, 0, len(paths))
	for _, p := range paths {
		records = append(records, analyzeFile(inputDir, p, opts.AnalyzeMaxBytes))
	}

	byBucket := make(map[int][]fileRecord)
	for _, r := range records {
		if r.err != nil {
			continue
		}
		b := fingerprint.BucketFor(r.SimHash64, opts.Buckets, opts.Bucketizer)
		byBucket[b] = append(byBucket[b], r)
	}

	bucketIDs := make([]int, 0, len(byBucket))
	for b := range byBucket {
		bucketIDs = append(bucketIDs, b)
	}
	sort.Ints(bucketIDs)

	plans := make(map[int]autopick.Plan, len(bucketIDs))
	runners := make(map[int]*autopick.Plan, len(bucketIDs))
	bucketTypes := make(map[int]autopick.BucketType, len(bucketIDs))
	bucketMetrics := make(map[int]autopick.BucketMetrics, len(bucketIDs))
	reports := make(map[int]*BucketReport, len(bucketIDs))

	for _, b := range bucketIDs {
		recs := byBucket[b]
		arecs := make([]autopick.Record, len(recs))
		for i, r := range recs {
			arecs[i] = autopick.Record{Path: r.Path, Rel: r.Rel, Size: r.Size}
		}

		btype, met, err := autopick.ClassifyBucket(arecs)
		if err != nil {
			return nil, err
		}
		bucketTypes[b] = btype
		bucketMetrics[b] = met

		chosen, runner, report, err := autopick.ChoosePlanForBucket(autopick.Options{
			BucketType:     btype,
			Records:        arecs,
			TopDB:          opts.TopDB,
			TopK:           opts.TopK,
			TopDBMax:       opts.TopDBMax,
			HaveZstd:       opts.HaveZstd,
			Candidates:     opts.Candidates[btype],
			Refresh:        opts.Refresh,
			SampleN:        opts.SampleN,
			UseArchive:     opts.UseArchive,
			TplDictEnabled: opts.TplDictEnabled,
			TplDictK:       opts.TplDictK,
		})
		if err != nil {
			return nil, err
		}
		plans[b] = chosen
		runners[b] = runner
		reports[b] = &BucketReport{Bucket: b, BucketType: btype, Metrics: met, Chosen: &chosen, RunnerUp: runner, Candidates: report}
	}

	// Bucket-level shared dictionaries, archive mode only.
	bucketNumDict := make(map[int]*codec.SharedNumDict)
	bucketNumBlob := make(map[int][]byte)
	bucketTplDict := make(map[int]*layer.BaseTemplateDict)
	bucketTplBlob := make(map[int][]byte)

	if opts.UseArchive {
		if opts.NumDictEnabled {
			for _, b := range bucketIDs {
				plan := plans[b]
				recs := byBucket[b]
				if len(recs) < 2 || !planUsesNumV1(plan) {
					continue
				}
				files := make([][]byte, 0, len(recs))
				for _, r := range recs {
					data, ferr := loadFile(r.Path)
					if ferr != nil {
						continue
					}
					files = append(files, data)
				}
				wantIDs := plan.StreamCodecs["ids"] == codec.NumV1
				dict, derr := resources.BuildNumDict(plan.LayerID, files, wantIDs, opts.NumDictK)
				if derr != nil || dict == nil {
					continue
				}
				bucketNumDict[b] = dict
				bucketNumBlob[b] = append(append([]byte(nil), dict.Tag[:]...), numstream.Encode(dict.Values)...)
				reports[b].BucketResources = append(reports[b].BucketResources, NumDictName)
			}
		}

		if opts.TplDictEnabled {
			for _, b := range bucketIDs {
				chosen, runner := plans[b], runners[b]
				uses := chosen.LayerID == layer.TplLinesSharedV0 || (runner != nil && runner.LayerID == layer.TplLinesSharedV0)
				recs := byBucket[b]
				if !uses || len(recs) < 2 {
					continue
				}
				files := make([][]byte, 0, len(recs))
				for _, r := range recs {
					data, ferr := loadFile(r.Path)
					if ferr != nil {
						continue
					}
					files = append(files, data)
				}
				dict, derr := resources.BuildTplDict(files, opts.TplDictK)
				if derr != nil || dict == nil {
					continue
				}
				bucketTplDict[b] = dict
				bucketTplBlob[b] = resources.PackTplDictResource(dict.Templates, 1, 1)
				reports[b].BucketResources = append(reports[b].BucketResources, TplDictName)
			}
		}
	}

	resourcesFor := func(b int) container.Resources {
		return container.Resources{Num: bucketNumDict[b], Tpl: bucketTplDict[b]}
	}

	manifestPath := filepath.Join(outputDir, ManifestName)
	mf, err := os.Create(manifestPath)
	if err != nil {
		return nil, err
	}
	defer mf.Close()
	w := bufio.NewWriter(mf)
	defer w.Flush()

	writeLine := func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		_, err = w.WriteString("\n")
		return err
	}

	for _, b := range bucketIDs {
		if reports[b].BucketResources == nil {
			reports[b].BucketResources = []string{}
		}
		rm := make(map[string]map[string]any)
		if blob, ok := bucketNumBlob[b]; ok {
			dict := bucketNumDict[b]
			rm[NumDictName] = map[string]any{
				"blob_sha256": sha256Hex(blob),
				"k":           len(dict.Values),
				"tag8_hex":    hex.EncodeToString(dict.Tag[:]),
			}
		}
		if blob, ok := bucketTplBlob[b]; ok {
			dict := bucketTplDict[b]
			rm[TplDictName] = map[string]any{
				"blob_sha256": sha256Hex(blob),
				"k":           len(dict.Templates),
				"tag8_hex":    hex.EncodeToString(dict.Tag[:]),
			}
		}
		sum := bucketSummary{
			Kind:                "bucket_summary",
			Bucket:              b,
			BucketType:          string(bucketTypes[b]),
			Metrics:             metricsToMap(bucketMetrics[b]),
			Chosen:              planToJSON(ptr(plans[b])),
			RunnerUp:            planToJSON(runners[b]),
			BucketResources:     reports[b].BucketResources,
			BucketResourcesMeta: rm,
		}
		if err := writeLine(sum); err != nil {
			return nil, err
		}
	}

	var (
		nOK, nFail       int
		inTotal, outTotal int64
		writers           = make(map[int]*archive.Writer)
		resWritten        = make(map[int]bool)
	)

	for _, b := range bucketIDs {
		recs := byBucket[b]
		plan := plans[b]
		res := resourcesFor(b)

		var small, large []fileRecord
		for _, r := range recs {
			if opts.Jobs > 1 && opts.SpoolThreshold > 0 && r.Size > 0 && r.Size <= opts.SpoolThreshold {
				small = append(small, r)
			} else {
				large = append(large, r)
			}
		}

		type outcome struct {
			rec  fileRecord
			data []byte
			blob []byte
			err  error
		}
		results := make(map[string]outcome, len(recs))
		var mu sync.Mutex

		compressOne := func(r fileRecord) outcome {
			data, err := loadFile(r.Path)
			if err != nil {
				return outcome{rec: r, err: err}
			}
			blob, err := container.EncodeFilePlan(plan.LayerID, plan.CodecText, plan.StreamCodecs, data, res)
			if err != nil {
				return outcome{rec: r, err: err}
			}
			return outcome{rec: r, data: data, blob: blob}
		}

		if opts.Jobs > 1 && len(small) > 1 {
			sem := make(chan struct{}, opts.Jobs)
			var wg sync.WaitGroup
			for _, r := range small {
				r := r
				wg.Add(1)
				sem <- struct{}{}
				go func() {
					defer wg.Done()
					defer func() { <-sem }()
					o := compressOne(r)
					mu.Lock()
					results[r.Rel] = o
					mu.Unlock()
				}()
			}
			wg.Wait()
		} else {
			for _, r := range small {
				results[r.Rel] = compressOne(r)
			}
		}
		for _, r := range large {
			results[r.Rel] = compressOne(r)
		}

		for _, r := range recs {
			o, ok := results[r.Rel]
			if !ok {
				continue
			}
			if o.err != nil {
				nFail++
				if err := writeLine(manifestErrorRecord{Rel: r.Rel, Bucket: b, Error: fmt.Sprintf("compress: %v", o.err)}); err != nil {
					return nil, err
				}
				continue
			}

			inSHA := sha256Hex(o.data)
			blobSHA := sha256Hex(o.blob)
			outRelName := r.Rel + ".gcc6"

			rec := manifestFileRecord{
				Rel: r.Rel, Bucket: b, BucketType: string(bucketTypes[b]),
				LayerID: plan.LayerID.Name(), CodecText: plan.CodecText.Name(),
				PlanNote:        plan.Note,
				RunnerUp:        planToJSON(runners[b]),
				BucketResources: reports[b].BucketResources,
				InSize:          int64(len(o.data)), OutSize: int64(len(o.blob)),
				SHA256: inSHA, InSHA256: inSHA, Ver: 6,
			}
			if len(plan.StreamCodecs) > 0 {
				sc := make(map[string]string, len(plan.StreamCodecs))
				for name, id := range plan.StreamCodecs {
					sc[name] = id.Name()
				}
				rec.StreamCodecs = sc
			}

			if opts.UseArchive {
				archiveRel := fmt.Sprintf("%s%02d%s", ArchivePrefix, b, ArchiveSuffix)
				aw, ok := writers[b]
				if !ok {
					aw, err = archive.Create(filepath.Join(outputDir, archiveRel))
					if err != nil {
						return nil, err
					}
					writers[b] = aw
				}
				if !resWritten[b] {
					if blob, ok := bucketNumBlob[b]; ok {
						dict := bucketNumDict[b]
						if _, err := aw.AppendResource(NumDictName, blob, map[string]any{
							"codec": "num_v1", "k": len(dict.Values),
							"tag8_hex": hex.EncodeToString(dict.Tag[:]), "blob_sha256": sha256Hex(blob),
						}); err != nil {
							return nil, err
						}
					}
					if blob, ok := bucketTplBlob[b]; ok {
						dict := bucketTplDict[b]
						if _, err := aw.AppendResource(TplDictName, blob, map[string]any{
							"layer": "tpl_lines_shared_v0", "k": len(dict.Templates),
							"tag8_hex": hex.EncodeToString(dict.Tag[:]), "blob_sha256": sha256Hex(blob),
						}); err != nil {
							return nil, err
						}
					}
					resWritten[b] = true
				}
				ent, err := aw.Append(r.Rel, o.blob, map[string]any{
					"bucket": b, "bucket_type": string(bucketTypes[b]),
					"layer_id": plan.LayerID.Name(), "codec_text": plan.CodecText.Name(),
					"plan_note": plan.Note, "in_size": len(o.data), "out_size": len(o.blob),
					"blob_sha256": blobSHA,
				})
				if err != nil {
					nFail++
					if werr := writeLine(manifestErrorRecord{Rel: r.Rel, Bucket: b, Error: fmt.Sprintf("write: %v", err)}); werr != nil {
						return nil, werr
					}
					continue
				}
				off, ln := ent.Offset, ent.Length
				rec.Archive = &archiveRel
				rec.ArchiveOffset = &off
				rec.ArchiveLength = &ln
				rec.BlobSHA256 = &blobSHA
			} else {
				outPath := filepath.Join(outputDir, outRelName)
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return nil, err
				}
				if err := os.WriteFile(outPath, o.blob, 0o644); err != nil {
					nFail++
					if werr := writeLine(manifestErrorRecord{Rel: r.Rel, Bucket: b, Error: fmt.Sprintf("write: %v", err)}); werr != nil {
						return nil, werr
					}
					continue
				}
				rec.OutRel = &outRelName
			}

			if err := writeLine(rec); err != nil {
				return nil, err
			}
			nOK++
			inTotal += int64(len(o.data))
			outTotal += int64(len(o.blob))
		}
	}

	bNums := make([]int, 0, len(writers))
	for b := range writers {
		bNums = append(bNums, b)
	}
	sort.Ints(bNums)
	for _, b := range bNums {
		if err := writers[b].Close(); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	return &Stats{FilesOK: nOK, FilesFail: nFail, InTotal: inTotal, OutTotal: outTotal, Buckets: reports}, nil
}

func ptr(p autopick.Plan) *autopick.Plan { return &p }

// UnpackStats summarizes a completed UnpackDir run.
type UnpackStats struct {
	FilesOK   int
	FilesFail int
}

// manifestLine is the superset of fields UnpackDir reads from a
// manifest.jsonl line; "kind" or "error" present (non-bucket-summary)
// routes a line to the skip/restore paths.
type manifestLine struct {
	Kind          string `json:"kind"`
	Rel           string `json:"rel"`
	Error         string `json:"error"`
	Bucket        int    `json:"bucket"`
	InSize        int64  `json:"in_size"`
	SHA256        string `json:"sha256"`
	InSHA256      string `json:"in_sha256"`
	Archive       string `json:"archive"`
	ArchiveOffset int64  `json:"archive_offset"`
	ArchiveLength int64  `json:"archive_length"`
	OutRel        string `json:"out_rel"`
}

// UnpackDir restores every file described by outputDir/manifest.jsonl
// into restoreDir, reading per-bucket .gca archives (or legacy per-file
// .gcc6 blobs) and reconstructing bucket-level shared dictionaries from
// each archive's embedded resources.
func UnpackDir(outputDir, restoreDir string) (*UnpackStats, error) {
	if err := os.MkdirAll(restoreDir, 0o755); err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(outputDir, ManifestName)
	mf, err := os.Open(manifestPath)
	if err != nil {
		return nil, gccerr.Wrap(gccerr.Usage, "unpackdir: manifest not found", err)
	}
	defer mf.Close()

	readers := make(map[string]*archive.Reader)
	archiveRes := make(map[string]container.Resources)
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	var nOK, nFail int

	sc := bufio.NewScanner(mf)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec manifestLine
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Kind == "bucket_summary" || rec.Rel == "" || rec.Error != "" {
			continue
		}

		dst := filepath.Join(restoreDir, filepath.FromSlash(rec.Rel))

		if rec.InSize == 0 && (rec.SHA256 == EmptySHA256 || rec.InSHA256 == EmptySHA256) {
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(dst, nil, 0o644); err != nil {
				nFail++
				continue
			}
			nOK++
			continue
		}

		var blob []byte
		var res container.Resources
		if rec.Archive != "" {
			if rec.ArchiveLength <= 0 {
				nFail++
				continue
			}
			rd, ok := readers[rec.Archive]
			if !ok {
				rd, err = archive.Open(filepath.Join(outputDir, rec.Archive))
				if err != nil {
					nFail++
					continue
				}
				readers[rec.Archive] = rd
				archiveRes[rec.Archive] = loadArchiveResources(rd)
			}
			blob, err = rd.ReadBlob(rec.ArchiveOffset, rec.ArchiveLength)
			if err != nil {
				nFail++
				continue
			}
			res = archiveRes[rec.Archive]
		} else {
			if rec.OutRel == "" {
				nFail++
				continue
			}
			blob, err = os.ReadFile(filepath.Join(outputDir, rec.OutRel))
			if err != nil {
				nFail++
				continue
			}
		}

		data, err := container.DecodeFile(blob, res)
		if err != nil {
			nFail++
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			nFail++
			continue
		}
		nOK++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return &UnpackStats{FilesOK: nOK, FilesFail: nFail}, nil
}

// loadArchiveResources scans rd's resource entries and reconstructs any
// num_dict_v1 / tpl_dict_v0 shared dictionary they hold.
func loadArchiveResources(rd *archive.Reader) container.Resources {
	var res container.Resources
	for _, e := range rd.Entries {
		if e.Kind != "resource" {
			continue
		}
		name := e.Rel
		if idx := lastSlash(name); idx >= 0 {
			name = name[idx+1:]
		}
		blob, err := rd.ReadBlob(e.Offset, e.Length)
		if err != nil {
			continue
		}
		switch name {
		case NumDictName:
			if len(blob) < 8 {
				continue
			}
			values, derr := numstream.Decode(blob[8:])
			if derr != nil {
				continue
			}
			dict := codec.NewSharedNumDict(values)
			copy(dict.Tag[:], blob[:8])
			res.Num = dict
		case TplDictName:
			templates, terr := resources.UnpackTplDictResource(blob)
			if terr != nil {
				continue
			}
			base := &layer.BaseTemplateDict{Templates: templates}
			sum := sha256.Sum256(blob)
			copy(base.Tag[:], sum[:8])
			res.Tpl = base
		}
	}
	return res
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
