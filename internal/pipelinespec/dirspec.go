package pipelinespec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/javanhut/gcc-ocf/internal/autopick"
	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/layer"
)

// DirAutopick carries the optional autopick overrides a directory
// pipeline spec may set; a nil pointer field means "use the packer's
// default" rather than a zero value.
type DirAutopick struct {
	Enabled    *bool
	SampleN    *int
	TopK       *int
	TopDBMax   *int
	RefreshTop *bool
}

// DirResourceDict carries the optional enabled/k overrides for one of
// the two bucket-level shared-resource dictionaries.
type DirResourceDict struct {
	Enabled *bool
	K       *int
}

// DirPlan is one candidate plan as it appears inside a directory
// pipeline spec's candidate_pools, before it's resolved against the
// layer/codec registries.
type DirPlan struct {
	Layer        string
	Codec        string
	StreamCodecs map[string]string
	Note         string
}

// Resolve turns a DirPlan's string fields into a real autopick.Plan.
func (p DirPlan) Resolve() (autopick.Plan, error) {
	spec := pipelineSpecJSON{Layer: p.Layer, Codec: p.Codec, StreamCodecs: p.StreamCodecs}
	single, err := resolvePlanFields(spec)
	if err != nil {
		return autopick.Plan{}, err
	}
	return autopick.Plan{
		LayerID:      single.LayerID,
		CodecText:    single.CodecText,
		StreamCodecs: single.StreamCodecs,
		Note:         p.Note,
	}, nil
}

func resolvePlanFields(j pipelineSpecJSON) (PipelineSpecV1, error) {
	layerName := strings.TrimSpace(j.Layer)
	if layerName == "" {
		return PipelineSpecV1{}, gccerr.New(gccerr.Usage, "dir pipeline spec: plan.layer is required")
	}
	layerID, err := layer.ByName(layerName)
	if err != nil {
		return PipelineSpecV1{}, gccerr.Wrap(gccerr.Usage, fmt.Sprintf("dir pipeline spec: unknown layer %q", layerName), err)
	}
	codecName := strings.TrimSpace(j.Codec)
	if codecName == "" {
		return PipelineSpecV1{}, gccerr.New(gccerr.Usage, "dir pipeline spec: plan.codec is required")
	}
	codecID, err := codec.ByName(codecName)
	if err != nil {
		return PipelineSpecV1{}, gccerr.Wrap(gccerr.Usage, fmt.Sprintf("dir pipeline spec: unknown codec %q", codecName), err)
	}
	streamCodecs, err := parseStreamCodecs(j.StreamCodecs)
	if err != nil {
		return PipelineSpecV1{}, err
	}
	return PipelineSpecV1{LayerID: layerID, CodecText: codecID, StreamCodecs: streamCodecs}, nil
}

// DirPipelineSpec is a directory pipeline spec: bucketing, autopick,
// per-bucket-type candidate pool overrides, and shared-resource knobs
// (schema id gcc-ocf.dir_pipeline.v1).
type DirPipelineSpec struct {
	Buckets        *int
	Archive        *bool
	Autopick       DirAutopick
	CandidatePools map[autopick.BucketType][]DirPlan
	NumDictV1      DirResourceDict
	TplDictV0      DirResourceDict
}

type dirPipelineSpecJSON struct {
	Spec           string                       `json:"spec"`
	Buckets        *int                         `json:"buckets"`
	Archive        *bool                        `json:"archive"`
	Autopick       *dirAutopickJSON             `json:"autopick"`
	CandidatePools map[string][]pipelineSpecJSON `json:"candidate_pools"`
	Resources      *dirResourcesJSON            `json:"resources"`
}

type dirAutopickJSON struct {
	Enabled    *bool `json:"enabled"`
	SampleN    *int  `json:"sample_n"`
	TopK       *int  `json:"top_k"`
	TopDBMax   *int  `json:"top_db_max"`
	RefreshTop *bool `json:"refresh_top"`
}

type dirResourceDictJSON struct {
	Enabled *bool `json:"enabled"`
	K       *int  `json:"k"`
}

type dirResourcesJSON struct {
	NumDictV1 *dirResourceDictJSON `json:"num_dict_v1"`
	TplDictV0 *dirResourceDictJSON `json:"tpl_dict_v0"`
}

var dirPipelineSpecAllowed = map[string]bool{
	"spec": true, "buckets": true, "archive": true,
	"autopick": true, "candidate_pools": true, "resources": true,
}

var dirAutopickAllowed = map[string]bool{
	"enabled": true, "sample_n": true, "top_k": true, "top_db_max": true, "refresh_top": true,
}

var dirResourcesAllowed = map[string]bool{
	"num_dict_v1": true, "tpl_dict_v0": true,
}

var dirResourceDictAllowed = map[string]bool{
	"enabled": true, "k": true,
}

var dirPlanAllowed = map[string]bool{
	"layer": true, "codec": true, "stream_codecs": true, "note": true,
}

var bucketTypeNames = map[string]autopick.BucketType{
	string(autopick.Textish):       autopick.Textish,
	string(autopick.MixedTextNums): autopick.MixedTextNums,
	string(autopick.Binaryish):     autopick.Binaryish,
}

// LoadDirPipelineSpec parses and validates a directory pipeline spec
// from either an inline JSON object or an "@file.json" reference.
func LoadDirPipelineSpec(arg string) (DirPipelineSpec, error) {
	text, err := readArg(arg)
	if err != nil {
		return DirPipelineSpec{}, err
	}

	var rootRaw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &rootRaw); err != nil {
		return DirPipelineSpec{}, gccerr.Wrap(gccerr.Usage, "dir pipeline spec: invalid JSON", err)
	}
	if extra := unknownKeys(rootRaw, dirPipelineSpecAllowed); len(extra) > 0 {
		return DirPipelineSpec{}, gccerr.Newf(gccerr.Usage, "dir pipeline spec: unsupported keys: %s", strings.Join(extra, ", "))
	}

	var j dirPipelineSpecJSON
	if err := json.Unmarshal([]byte(text), &j); err != nil {
		return DirPipelineSpec{}, gccerr.Wrap(gccerr.Usage, "dir pipeline spec: invalid JSON", err)
	}
	if j.Spec != DirSchemaID {
		return DirPipelineSpec{}, gccerr.Newf(gccerr.Usage, "dir pipeline spec: spec must be %q, got %q", DirSchemaID, j.Spec)
	}
	if j.Buckets != nil && *j.Buckets <= 0 {
		return DirPipelineSpec{}, gccerr.New(gccerr.Usage, "dir pipeline spec: buckets must be > 0")
	}

	autopickOut, err := parseDirAutopick(rootRaw["autopick"], j.Autopick)
	if err != nil {
		return DirPipelineSpec{}, err
	}

	resourcesOut, err := parseDirResources(rootRaw["resources"], j.Resources)
	if err != nil {
		return DirPipelineSpec{}, err
	}

	pools, err := parseCandidatePools(rootRaw["candidate_pools"], j.CandidatePools)
	if err != nil {
		return DirPipelineSpec{}, err
	}

	return DirPipelineSpec{
		Buckets:        j.Buckets,
		Archive:        j.Archive,
		Autopick:       autopickOut,
		CandidatePools: pools,
		NumDictV1:      resourcesOut[0],
		TplDictV0:      resourcesOut[1],
	}, nil
}

func parseDirAutopick(raw json.RawMessage, j *dirAutopickJSON) (DirAutopick, error) {
	if j == nil {
		return DirAutopick{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return DirAutopick{}, gccerr.Wrap(gccerr.Usage, "dir pipeline spec: invalid autopick", err)
	}
	if extra := unknownKeys(fields, dirAutopickAllowed); len(extra) > 0 {
		return DirAutopick{}, gccerr.Newf(gccerr.Usage, "dir pipeline spec: unsupported keys in autopick: %s", strings.Join(extra, ", "))
	}
	if j.SampleN != nil && (*j.SampleN < 1 || *j.SampleN > 8) {
		return DirAutopick{}, gccerr.New(gccerr.Usage, "dir pipeline spec: autopick.sample_n must be between 1 and 8")
	}
	if j.TopDBMax != nil && *j.TopDBMax < 1 {
		return DirAutopick{}, gccerr.New(gccerr.Usage, "dir pipeline spec: autopick.top_db_max must be >= 1")
	}
	return DirAutopick{
		Enabled:    j.Enabled,
		SampleN:    j.SampleN,
		TopK:       j.TopK,
		TopDBMax:   j.TopDBMax,
		RefreshTop: j.RefreshTop,
	}, nil
}

func parseDirResources(raw json.RawMessage, j *dirResourcesJSON) ([2]DirResourceDict, error) {
	var out [2]DirResourceDict
	if j == nil {
		return out, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out, gccerr.Wrap(gccerr.Usage, "dir pipeline spec: invalid resources", err)
	}
	if extra := unknownKeys(fields, dirResourcesAllowed); len(extra) > 0 {
		return out, gccerr.Newf(gccerr.Usage, "dir pipeline spec: unsupported keys in resources: %s", strings.Join(extra, ", "))
	}
	nd, err := parseDictOverride("resources.num_dict_v1", fields["num_dict_v1"], j.NumDictV1)
	if err != nil {
		return out, err
	}
	td, err := parseDictOverride("resources.tpl_dict_v0", fields["tpl_dict_v0"], j.TplDictV0)
	if err != nil {
		return out, err
	}
	out[0], out[1] = nd, td
	return out, nil
}

func parseDictOverride(name string, raw json.RawMessage, j *dirResourceDictJSON) (DirResourceDict, error) {
	if j == nil {
		return DirResourceDict{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return DirResourceDict{}, gccerr.Wrap(gccerr.Usage, fmt.Sprintf("dir pipeline spec: invalid %s", name), err)
	}
	if extra := unknownKeys(fields, dirResourceDictAllowed); len(extra) > 0 {
		return DirResourceDict{}, gccerr.Newf(gccerr.Usage, "dir pipeline spec: unsupported keys in %s: %s", name, strings.Join(extra, ", "))
	}
	if j.K != nil && *j.K < 0 {
		return DirResourceDict{}, gccerr.Newf(gccerr.Usage, "dir pipeline spec: %s.k must be >= 0", name)
	}
	return DirResourceDict{Enabled: j.Enabled, K: j.K}, nil
}

func parseCandidatePools(raw json.RawMessage, j map[string][]pipelineSpecJSON) (map[autopick.BucketType][]DirPlan, error) {
	if j == nil {
		return nil, nil
	}
	var rawPools map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &rawPools); err != nil {
		return nil, gccerr.Wrap(gccerr.Usage, "dir pipeline spec: invalid candidate_pools", err)
	}

	out := make(map[autopick.BucketType][]DirPlan, len(j))
	btNames := make([]string, 0, len(j))
	for bt := range j {
		btNames = append(btNames, bt)
	}
	sort.Strings(btNames)

	for _, btName := range btNames {
		bt, ok := bucketTypeNames[btName]
		if !ok {
			return nil, gccerr.Newf(gccerr.Usage, "dir pipeline spec: unknown bucket type in candidate_pools: %s", btName)
		}
		plans := make([]DirPlan, 0, len(j[btName]))
		for i, raw := range rawPools[btName] {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, gccerr.Wrap(gccerr.Usage, fmt.Sprintf("dir pipeline spec: invalid plan candidate_pools[%s][%d]", btName, i), err)
			}
			if extra := unknownKeys(fields, dirPlanAllowed); len(extra) > 0 {
				return nil, gccerr.Newf(gccerr.Usage, "dir pipeline spec: unsupported keys in plan: %s", strings.Join(extra, ", "))
			}
			p := j[btName][i]
			if strings.TrimSpace(p.Layer) == "" {
				return nil, gccerr.New(gccerr.Usage, "dir pipeline spec: plan.layer is required")
			}
			if strings.TrimSpace(p.Codec) == "" {
				return nil, gccerr.New(gccerr.Usage, "dir pipeline spec: plan.codec is required")
			}
			plans = append(plans, DirPlan{
				Layer:        strings.TrimSpace(p.Layer),
				Codec:        strings.TrimSpace(p.Codec),
				StreamCodecs: p.StreamCodecs,
				Note:         p.Note,
			})
		}
		out[bt] = plans
	}
	return out, nil
}
