package config

import "github.com/javanhut/gcc-ocf/internal/dirpack"

// ApplyToOptions overlays every set field of cfg onto base, the same
// overlay shape pipelinespec.DirPipelineSpec.ApplyTo uses. Config sits
// below a pipeline spec file in precedence: callers should apply a
// pipeline spec's ApplyTo after this one so an explicit spec file wins
// over an environment/config default. Autopick.Enabled is not applied:
// dirpack.Options has no field for it.
func (cfg *Config) ApplyToOptions(base dirpack.Options) dirpack.Options {
	opts := base
	if cfg.Archive != nil {
		opts.UseArchive = *cfg.Archive
	}
	if cfg.Autopick.TopK != nil {
		opts.TopK = *cfg.Autopick.TopK
	}
	if cfg.Autopick.TopDBMax != nil {
		opts.TopDBMax = *cfg.Autopick.TopDBMax
	}
	if cfg.Autopick.SampleN != nil {
		opts.SampleN = *cfg.Autopick.SampleN
	}
	if cfg.Autopick.RefreshTop != nil {
		opts.Refresh = *cfg.Autopick.RefreshTop
	}
	if cfg.Resources.NumDictK != nil {
		opts.NumDictK = *cfg.Resources.NumDictK
	}
	if cfg.Resources.TplDictK != nil {
		opts.TplDictK = *cfg.Resources.TplDictK
	}
	return opts
}
