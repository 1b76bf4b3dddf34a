package pipelinespec

import (
	"github.com/javanhut/gcc-ocf/internal/autopick"
	"github.com/javanhut/gcc-ocf/internal/dirpack"
)

// ResolveCandidates resolves every DirPlan in CandidatePools into a real
// autopick.Plan, suitable for dirpack.Options.Candidates.
func (s DirPipelineSpec) ResolveCandidates() (map[autopick.BucketType][]autopick.Plan, error) {
	if len(s.CandidatePools) == 0 {
		return nil, nil
	}
	out := make(map[autopick.BucketType][]autopick.Plan, len(s.CandidatePools))
	for bt, plans := range s.CandidatePools {
		resolved := make([]autopick.Plan, 0, len(plans))
		for _, p := range plans {
			rp, err := p.Resolve()
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, rp)
		}
		out[bt] = resolved
	}
	return out, nil
}

// ApplyTo overlays this spec's overrides onto base, leaving any field
// the spec left unset at base's existing value. base is normally
// dirpack.DefaultOptions() or a caller's already-tuned Options.
func (s DirPipelineSpec) ApplyTo(base dirpack.Options) (dirpack.Options, error) {
	opts := base

	if s.Buckets != nil {
		opts.Buckets = *s.Buckets
	}
	if s.Archive != nil {
		opts.UseArchive = *s.Archive
	}

	if s.Autopick.TopK != nil {
		opts.TopK = *s.Autopick.TopK
	}
	if s.Autopick.TopDBMax != nil {
		opts.TopDBMax = *s.Autopick.TopDBMax
	}
	if s.Autopick.SampleN != nil {
		opts.SampleN = *s.Autopick.SampleN
	}
	if s.Autopick.RefreshTop != nil {
		opts.Refresh = *s.Autopick.RefreshTop
	}

	if s.NumDictV1.Enabled != nil {
		opts.NumDictEnabled = *s.NumDictV1.Enabled
	}
	if s.NumDictV1.K != nil {
		opts.NumDictK = *s.NumDictV1.K
	}
	if s.TplDictV0.Enabled != nil {
		opts.TplDictEnabled = *s.TplDictV0.Enabled
	}
	if s.TplDictV0.K != nil {
		opts.TplDictK = *s.TplDictV0.K
	}

	candidates, err := s.ResolveCandidates()
	if err != nil {
		return dirpack.Options{}, err
	}
	if candidates != nil {
		opts.Candidates = candidates
	}

	return opts, nil
}
