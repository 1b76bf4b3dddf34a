// Package pipelinespec loads and validates two JSON spec documents: a
// single-file PipelineSpecV1 (one layer/codec/stream_codecs plan) and a
// DirPipelineSpec (bucketing + autopick + candidate pools +
// shared-resource knobs for directory mode).
//
// Both accept either an inline JSON object or an "@path.json" reference,
// and both reject unknown keys outright so a typo never silently falls
// back to a default.
package pipelinespec

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/layer"
)

// SchemaIDV1 is the required "spec" field of a single-file pipeline spec.
const SchemaIDV1 = "gcc-ocf.pipeline.v1"

// DirSchemaID is the required "spec" field of a directory pipeline spec.
const DirSchemaID = "gcc-ocf.dir_pipeline.v1"

// streamNames are the stream keys a pipeline spec's stream_codecs map
// may use, matching the lowercase stream names internal/layer assigns
// ("text", "nums", "ids", "tpl", ...).
var streamNames = map[string]bool{
	"main": true, "text": true, "nums": true, "ids": true,
	"tpl": true, "meta": true, "cons": true, "vowels": true, "mask": true,
}

func readArg(arg string) (string, error) {
	s := strings.TrimSpace(arg)
	if s == "" {
		return "", gccerr.New(gccerr.Usage, "pipeline spec: empty input")
	}
	if strings.HasPrefix(s, "@") {
		path := strings.TrimSpace(s[1:])
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", gccerr.Wrap(gccerr.Usage, fmt.Sprintf("pipeline spec: file not found: %s", path), err)
		}
		return string(raw), nil
	}
	return s, nil
}

// PipelineSpecV1 is a single lossless encode plan.
type PipelineSpecV1 struct {
	Name         string
	LayerID      layer.ID
	CodecText    codec.ID
	StreamCodecs map[string]codec.ID
}

// StreamCodecsSpec renders the legacy "nums:num_v1,text:zlib" string in
// deterministic (sorted) key order, for logging and manifest notes.
func (p PipelineSpecV1) StreamCodecsSpec() string {
	if len(p.StreamCodecs) == 0 {
		return ""
	}
	names := make([]string, 0, len(p.StreamCodecs))
	for name := range p.StreamCodecs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+":"+p.StreamCodecs[name].Name())
	}
	return strings.Join(parts, ",")
}

type pipelineSpecJSON struct {
	Spec         string            `json:"spec"`
	Name         string            `json:"name"`
	Layer        string            `json:"layer"`
	Codec        string            `json:"codec"`
	StreamCodecs map[string]string `json:"stream_codecs"`
	MBN          *bool             `json:"mbn"`
	Note         string            `json:"note"`
}

var pipelineSpecAllowed = map[string]bool{
	"spec": true, "name": true, "layer": true, "codec": true,
	"stream_codecs": true, "mbn": true,
}

// LoadPipelineSpec parses and validates a single-file pipeline spec from
// either an inline JSON object or an "@file.json" reference.
func LoadPipelineSpec(arg string) (PipelineSpecV1, error) {
	text, err := readArg(arg)
	if err != nil {
		return PipelineSpecV1{}, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return PipelineSpecV1{}, gccerr.Wrap(gccerr.Usage, "pipeline spec: invalid JSON", err)
	}
	if extra := unknownKeys(raw, pipelineSpecAllowed); len(extra) > 0 {
		return PipelineSpecV1{}, gccerr.Newf(gccerr.Usage, "pipeline spec: unsupported keys: %s", strings.Join(extra, ", "))
	}

	var j pipelineSpecJSON
	if err := json.Unmarshal([]byte(text), &j); err != nil {
		return PipelineSpecV1{}, gccerr.Wrap(gccerr.Usage, "pipeline spec: invalid JSON", err)
	}
	if j.Spec != SchemaIDV1 {
		return PipelineSpecV1{}, gccerr.Newf(gccerr.Usage, "pipeline spec: spec must be %q, got %q", SchemaIDV1, j.Spec)
	}

	name := strings.TrimSpace(j.Name)
	if name == "" {
		name = "pipeline"
	}

	layerName := strings.TrimSpace(j.Layer)
	if layerName == "" {
		return PipelineSpecV1{}, gccerr.New(gccerr.Usage, "pipeline spec: field 'layer' is required")
	}
	layerID, err := layer.ByName(layerName)
	if err != nil {
		return PipelineSpecV1{}, gccerr.Wrap(gccerr.Usage, fmt.Sprintf("pipeline spec: unknown layer %q", layerName), err)
	}

	codecName := strings.TrimSpace(j.Codec)
	if codecName == "" {
		codecName = "zlib"
	}
	codecID, err := codec.ByName(codecName)
	if err != nil {
		return PipelineSpecV1{}, gccerr.Wrap(gccerr.Usage, fmt.Sprintf("pipeline spec: unknown codec %q", codecName), err)
	}

	streamCodecs, err := parseStreamCodecs(j.StreamCodecs)
	if err != nil {
		return PipelineSpecV1{}, err
	}

	return PipelineSpecV1{
		Name:         name,
		LayerID:      layerID,
		CodecText:    codecID,
		StreamCodecs: streamCodecs,
	}, nil
}

func parseStreamCodecs(raw map[string]string) (map[string]codec.ID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]codec.ID, len(raw))
	for name, codecName := range raw {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return nil, gccerr.New(gccerr.Usage, "pipeline spec: stream_codecs has an empty key")
		}
		if !streamNames[key] {
			return nil, gccerr.Newf(gccerr.Usage, "pipeline spec: unsupported stream name: %s", name)
		}
		cname := strings.TrimSpace(codecName)
		if cname == "" {
			return nil, gccerr.Newf(gccerr.Usage, "pipeline spec: empty codec for stream %s", key)
		}
		cid, err := codec.ByName(cname)
		if err != nil {
			return nil, gccerr.Wrap(gccerr.Usage, fmt.Sprintf("pipeline spec: unknown codec %q for stream %s", cname, key), err)
		}
		out[key] = cid
	}
	return out, nil
}

// unknownKeys reports keys present in raw that aren't in allowed, sorted.
func unknownKeys(raw map[string]json.RawMessage, allowed map[string]bool) []string {
	var extra []string
	for k := range raw {
		if !allowed[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}
