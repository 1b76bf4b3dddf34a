package pipelinespec

import (
	"testing"

	"github.com/javanhut/gcc-ocf/internal/autopick"
	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/dirpack"
	"github.com/javanhut/gcc-ocf/internal/layer"
)

func TestLoadDirPipelineSpecMinimal(t *testing.T) {
	spec, err := LoadDirPipelineSpec(`{"spec":"gcc-ocf.dir_pipeline.v1","buckets":8,"archive":false}`)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Buckets == nil || *spec.Buckets != 8 {
		t.Fatalf("got buckets %+v", spec.Buckets)
	}
	if spec.Archive == nil || *spec.Archive != false {
		t.Fatalf("got archive %+v", spec.Archive)
	}
}

func TestLoadDirPipelineSpecRejectsWrongSchema(t *testing.T) {
	if _, err := LoadDirPipelineSpec(`{"spec":"nope"}`); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadDirPipelineSpecRejectsUnknownTopLevelKey(t *testing.T) {
	_, err := LoadDirPipelineSpec(`{"spec":"gcc-ocf.dir_pipeline.v1","bogus":true}`)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadDirPipelineSpecValidatesSampleNRange(t *testing.T) {
	_, err := LoadDirPipelineSpec(`{"spec":"gcc-ocf.dir_pipeline.v1","autopick":{"sample_n":20}}`)
	if err == nil {
		t.Fatal("expected error for out-of-range sample_n")
	}
}

func TestLoadDirPipelineSpecWithCandidatePools(t *testing.T) {
	raw := `{
		"spec":"gcc-ocf.dir_pipeline.v1",
		"candidate_pools":{
			"textish":[{"layer":"split_text_nums","codec":"zlib","stream_codecs":{"nums":"num_v1"},"note":"x"}]
		},
		"resources":{"num_dict_v1":{"enabled":true,"k":32}}
	}`
	spec, err := LoadDirPipelineSpec(raw)
	if err != nil {
		t.Fatal(err)
	}
	pools := spec.CandidatePools[autopick.Textish]
	if len(pools) != 1 || pools[0].Layer != "split_text_nums" || pools[0].Note != "x" {
		t.Fatalf("got %+v", pools)
	}
	if spec.NumDictV1.Enabled == nil || !*spec.NumDictV1.Enabled || spec.NumDictV1.K == nil || *spec.NumDictV1.K != 32 {
		t.Fatalf("got %+v", spec.NumDictV1)
	}

	resolved, err := spec.ResolveCandidates()
	if err != nil {
		t.Fatal(err)
	}
	got := resolved[autopick.Textish]
	if len(got) != 1 || got[0].LayerID != layer.SplitTextNums || got[0].StreamCodecs["nums"] != codec.NumV1 {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadDirPipelineSpecRejectsUnknownBucketType(t *testing.T) {
	_, err := LoadDirPipelineSpec(`{"spec":"gcc-ocf.dir_pipeline.v1","candidate_pools":{"weird":[]}}`)
	if err == nil {
		t.Fatal("expected error for unknown bucket type")
	}
}

func TestApplyToOverlaysOntoDefaults(t *testing.T) {
	spec, err := LoadDirPipelineSpec(`{"spec":"gcc-ocf.dir_pipeline.v1","buckets":32,"archive":false,"autopick":{"top_k":3}}`)
	if err != nil {
		t.Fatal(err)
	}
	opts, err := spec.ApplyTo(dirpack.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if opts.Buckets != 32 {
		t.Fatalf("got buckets %d", opts.Buckets)
	}
	if opts.UseArchive {
		t.Fatal("expected archive disabled")
	}
	if opts.TopK != 3 {
		t.Fatalf("got top_k %d", opts.TopK)
	}
	if opts.Jobs != dirpack.DefaultOptions().Jobs {
		t.Fatalf("expected unset field to keep default, got %d", opts.Jobs)
	}
}
