package pipelinespec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/layer"
)

func TestLoadPipelineSpecInline(t *testing.T) {
	spec, err := LoadPipelineSpec(`{"spec":"gcc-ocf.pipeline.v1","layer":"split_text_nums","codec":"zlib","stream_codecs":{"nums":"num_v1"}}`)
	if err != nil {
		t.Fatal(err)
	}
	if spec.LayerID != layer.SplitTextNums {
		t.Fatalf("got layer %v", spec.LayerID)
	}
	if spec.StreamCodecs["nums"] != codec.NumV1 {
		t.Fatalf("got stream codecs %+v", spec.StreamCodecs)
	}
	if spec.Name != "pipeline" {
		t.Fatalf("expected default name, got %q", spec.Name)
	}
}

func TestLoadPipelineSpecFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.json")
	if err := os.WriteFile(path, []byte(`{"spec":"gcc-ocf.pipeline.v1","name":"x","layer":"bytes","codec":"zstd_tight"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	spec, err := LoadPipelineSpec("@" + path)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Name != "x" || spec.LayerID != layer.Bytes || spec.CodecText != codec.ZstdTight {
		t.Fatalf("got %+v", spec)
	}
}

func TestLoadPipelineSpecRejectsUnknownKeys(t *testing.T) {
	_, err := LoadPipelineSpec(`{"spec":"gcc-ocf.pipeline.v1","layer":"bytes","codec":"zlib","bogus":1}`)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadPipelineSpecRejectsWrongSchema(t *testing.T) {
	_, err := LoadPipelineSpec(`{"spec":"not-it","layer":"bytes","codec":"zlib"}`)
	if err == nil {
		t.Fatal("expected error for wrong schema id")
	}
}

func TestLoadPipelineSpecRejectsUnknownLayer(t *testing.T) {
	_, err := LoadPipelineSpec(`{"spec":"gcc-ocf.pipeline.v1","layer":"no_such_layer","codec":"zlib"}`)
	if err == nil {
		t.Fatal("expected error for unknown layer")
	}
}

func TestStreamCodecsSpecIsSortedDeterministic(t *testing.T) {
	spec := PipelineSpecV1{
		StreamCodecs: map[string]codec.ID{"nums": codec.NumV1, "text": codec.Zlib},
	}
	if got := spec.StreamCodecsSpec(); got != "nums:num_v1,text:zlib" {
		t.Fatalf("got %q", got)
	}
}
