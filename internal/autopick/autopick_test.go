package autopick

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/container"
	"github.com/javanhut/gcc-ocf/internal/layer"
)

func writeTemp(t *testing.T, dir, name string, data []byte) Record {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return Record{Path: path, Rel: name, Size: int64(len(data))}
}

func TestClassifyBucketBinaryishOnNulBytes(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 200)
	for i := range data {
		data[i] = byte(i % 7)
	}
	data[10] = 0
	data[20] = 0
	data[30] = 0
	r := writeTemp(t, dir, "a.bin", data)

	bt, _, err := ClassifyBucket([]Record{r})
	if err != nil {
		t.Fatal(err)
	}
	if bt != Binaryish {
		t.Fatalf("got %v want binaryish", bt)
	}
}

func TestClassifyBucketTextish(t *testing.T) {
	dir := t.TempDir()
	r := writeTemp(t, dir, "a.txt", []byte("the quick brown fox jumps over the lazy dog, again and again.\n"))
	bt, _, err := ClassifyBucket([]Record{r})
	if err != nil {
		t.Fatal(err)
	}
	if bt != Textish {
		t.Fatalf("got %v want textish", bt)
	}
}

func TestClassifyBucketMixedTextNums(t *testing.T) {
	dir := t.TempDir()
	r := writeTemp(t, dir, "a.txt", []byte("1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16 17 18 19 20\n"))
	bt, _, err := ClassifyBucket([]Record{r})
	if err != nil {
		t.Fatal(err)
	}
	if bt != MixedTextNums {
		t.Fatalf("got %v want mixed_text_nums", bt)
	}
}

func TestResolveCodecIDFallsBackWithoutZstd(t *testing.T) {
	if got := ResolveCodecID(codec.ZstdTight, false); got != codec.Zlib {
		t.Fatalf("got %v want zlib", got)
	}
	if got := ResolveCodecID(codec.ZstdTight, true); got != codec.ZstdTight {
		t.Fatalf("got %v want zstd_tight", got)
	}
	if got := ResolveCodecID(codec.Huffman, false); got != codec.Huffman {
		t.Fatalf("got %v want huffman unchanged", got)
	}
}

func TestBootstrapPlansByBucketType(t *testing.T) {
	if p := BootstrapPlans(Binaryish, true); len(p) != 1 || p[0].LayerID != layer.Bytes {
		t.Fatalf("got %+v", p)
	}
	if p := BootstrapPlans(Textish, true); len(p) != 2 || p[0].LayerID != layer.SplitTextNums {
		t.Fatalf("got %+v", p)
	}
	if p := BootstrapPlans(MixedTextNums, true); len(p) != 2 || p[0].LayerID != layer.TplLinesSharedV0 {
		t.Fatalf("got %+v", p)
	}
}

func TestCandidatePlansDeduped(t *testing.T) {
	plans := CandidatePlans(true, true)
	seen := make(map[string]bool)
	for _, p := range plans {
		sig := PlanSig(p)
		if seen[sig] {
			t.Fatalf("duplicate candidate plan signature %q", sig)
		}
		seen[sig] = true
	}
	if len(plans) < 5 {
		t.Fatalf("expected a rich textish candidate pool, got %d", len(plans))
	}
}

func TestDivRankLayerDiffersIsHighest(t *testing.T) {
	a := Plan{LayerID: layer.Bytes, CodecText: codec.Zlib}
	b := Plan{LayerID: layer.VC0, CodecText: codec.Zlib}
	if DivRank(a, b) != 3 {
		t.Fatalf("got %d want 3", DivRank(a, b))
	}
	c := Plan{LayerID: layer.Bytes, CodecText: codec.Zstd}
	if DivRank(a, c) != 1 {
		t.Fatalf("got %d want 1", DivRank(a, c))
	}
	if DivRank(a, a) != 0 {
		t.Fatalf("got %d want 0", DivRank(a, a))
	}
}

func TestPickTopDiversePrefersDifferentLayer(t *testing.T) {
	plans := []Plan{
		{LayerID: layer.Bytes, CodecText: codec.Zlib},
		{LayerID: layer.Bytes, CodecText: codec.Zstd},
		{LayerID: layer.VC0, CodecText: codec.Zlib},
	}
	picked := PickTopDiverse(plans, 2)
	if len(picked) != 2 {
		t.Fatalf("got %d plans", len(picked))
	}
	if picked[1].LayerID != layer.VC0 {
		t.Fatalf("expected the diverse-layer plan, got %+v", picked[1])
	}
}

func TestSampleRecordsForAutopickPrefersLargest(t *testing.T) {
	records := []Record{
		{Path: "a", Size: 10},
		{Path: "b", Size: 1000},
		{Path: "c", Size: 0},
		{Path: "d", Size: 500},
	}
	sample := SampleRecordsForAutopick(records, 2)
	if len(sample) != 2 || sample[0].Path != "b" || sample[1].Path != "d" {
		t.Fatalf("got %+v", sample)
	}
}

func TestUpdateTopDBKeepsBestScore(t *testing.T) {
	db := NewTopDB()
	plan := Plan{LayerID: layer.Bytes, CodecText: codec.Zlib, Note: "x"}
	UpdateTopDB(db, Textish, plan, 0.5, 12)
	UpdateTopDB(db, Textish, plan, 0.3, 12)
	UpdateTopDB(db, Textish, plan, 0.9, 12)

	got := TopCandidates(db, Textish, true, 2, 12)
	if len(got) == 0 {
		t.Fatal("expected at least one candidate")
	}
	if got[0].LayerID != layer.Bytes {
		t.Fatalf("got %+v", got[0])
	}
	if s := db.entries[Textish][0].Score; s != 0.3 {
		t.Fatalf("got score %v want 0.3", s)
	}
}

func TestTopDBSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "top_pipelines.json")

	db := NewTopDB()
	UpdateTopDB(db, Textish, Plan{
		LayerID:      layer.SplitTextNums,
		CodecText:    codec.ZstdTight,
		StreamCodecs: map[string]codec.ID{"text": codec.ZstdTight, "nums": codec.NumV1},
		Note:         "t",
	}, 0.42, 12)

	if err := SaveTopDB(path, db); err != nil {
		t.Fatal(err)
	}
	loaded := LoadTopDB(path)
	got := TopCandidates(loaded, Textish, true, 2, 12)
	if len(got) != 1 {
		t.Fatalf("got %d candidates", len(got))
	}
	if got[0].LayerID != layer.SplitTextNums || got[0].StreamCodecs["nums"] != codec.NumV1 {
		t.Fatalf("got %+v", got[0])
	}
}

func TestLoadTopDBMissingFileIsEmpty(t *testing.T) {
	db := LoadTopDB(filepath.Join(t.TempDir(), "missing.json"))
	if got := TopCandidates(db, Textish, true, 2, 12); len(got) == 0 {
		t.Fatal("expected a bootstrap fallback, got none")
	}
}

func TestChoosePlanForBucketPicksACheapWinner(t *testing.T) {
	dir := t.TempDir()
	var records []Record
	for i := 0; i < 3; i++ {
		data := []byte("invoice number 100" + string(rune('0'+i)) + " total amount due is forty dollars\n")
		records = append(records, writeTemp(t, dir, "f"+string(rune('0'+i))+".txt", data))
	}

	chosen, runner, report, err := ChoosePlanForBucket(Options{
		BucketType: Textish,
		Records:    records,
		TopDB:      NewTopDB(),
		HaveZstd:   true,
		Refresh:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report) == 0 {
		t.Fatal("expected a scored report")
	}
	foundOK := false
	for _, e := range report {
		if e.Plan.LayerID == chosen.LayerID && e.OK {
			foundOK = true
		}
	}
	if !foundOK {
		t.Fatalf("chosen plan %+v not found among successfully scored candidates", chosen)
	}
	_ = runner
}

func TestTryPlanRoundTripsThroughContainer(t *testing.T) {
	dir := t.TempDir()
	r := writeTemp(t, dir, "f.txt", []byte("FATTURA 1001\nTOTALE 12.00\n"))
	plan := Plan{
		LayerID:      layer.SplitTextNums,
		CodecText:    codec.Zlib,
		StreamCodecs: map[string]codec.ID{"text": codec.Zlib, "nums": codec.NumV1},
	}
	in, out, err := TryPlan([]Record{r}, plan, container.Resources{})
	if err != nil {
		t.Fatal(err)
	}
	if in == 0 || out == 0 {
		t.Fatalf("got in=%d out=%d", in, out)
	}
}
