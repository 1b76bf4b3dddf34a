// Package config implements gcc-ocf's configuration layer: a JSON config
// file, loaded global-then-repo-local with repo winning, plus process
// environment variables that take precedence over both. Every field
// here is a pointer so "unset" is distinguishable from "set to the zero
// value" — these overrides must never change deterministic output when
// unset.
//
// The merge shape (global + repo-local, two-space-indented JSON save
// format, dotted-key Get/Set surface) covers the autopick/archive/
// resource-dictionary knobs this package exposes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the overridable knobs spec.md's Environment section
// lists: autopick toggle, sample size, top_k, top_db_max, refresh_top,
// the archive-vs-loose toggle, and the two shared-dictionary K values.
type Config struct {
	Autopick  AutopickConfig  `json:"autopick"`
	Archive   *bool           `json:"archive,omitempty"`
	Resources ResourcesConfig `json:"resources"`
}

// AutopickConfig mirrors the autopick fields of the dir pipeline spec
// (spec.md's "gcc-ocf.dir_pipeline.v1" schema).
type AutopickConfig struct {
	Enabled    *bool `json:"enabled,omitempty"`
	SampleN    *int  `json:"sample_n,omitempty"`
	TopK       *int  `json:"top_k,omitempty"`
	TopDBMax   *int  `json:"top_db_max,omitempty"`
	RefreshTop *bool `json:"refresh_top,omitempty"`
}

// ResourcesConfig mirrors the resources.num_dict_v1/tpl_dict_v0 "k"
// fields of the dir pipeline spec.
type ResourcesConfig struct {
	NumDictK *int `json:"num_dict_k,omitempty"`
	TplDictK *int `json:"tpl_dict_k,omitempty"`
}

// DefaultConfig returns an all-unset config: every field nil, so
// applying it changes nothing.
func DefaultConfig() *Config {
	return &Config{}
}

// globalConfigPath returns the path to the global config file.
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".gccocfconfig"), nil
}

// repoConfigPath returns the path to the working-directory-local config
// file override.
func repoConfigPath() string {
	return filepath.Join(".gccocf", "config")
}

// LoadConfig loads configuration from the global and local config
// files, if present. Local config fields override global ones. It does
// not apply environment overrides; call Load for that.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if globalPath, err := globalConfigPath(); err == nil {
		if data, err := os.ReadFile(globalPath); err == nil {
			var globalCfg Config
			if err := json.Unmarshal(data, &globalCfg); err == nil {
				mergeConfig(cfg, &globalCfg)
			}
		}
	}

	if data, err := os.ReadFile(repoConfigPath()); err == nil {
		var localCfg Config
		if err := json.Unmarshal(data, &localCfg); err == nil {
			mergeConfig(cfg, &localCfg)
		}
	}

	return cfg, nil
}

// SaveGlobalConfig saves configuration to the global config file.
func SaveGlobalConfig(cfg *Config) error {
	globalPath, err := globalConfigPath()
	if err != nil {
		return err
	}
	return writeConfigJSON(globalPath, cfg)
}

// SaveRepoConfig saves configuration to the working-directory-local
// config file.
func SaveRepoConfig(cfg *Config) error {
	repoPath := repoConfigPath()
	if err := os.MkdirAll(filepath.Dir(repoPath), 0o755); err != nil {
		return fmt.Errorf("failed to create .gccocf directory: %w", err)
	}
	return writeConfigJSON(repoPath, cfg)
}

func writeConfigJSON(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// mergeConfig overlays every set field of src onto dst.
func mergeConfig(dst, src *Config) {
	if src.Autopick.Enabled != nil {
		dst.Autopick.Enabled = src.Autopick.Enabled
	}
	if src.Autopick.SampleN != nil {
		dst.Autopick.SampleN = src.Autopick.SampleN
	}
	if src.Autopick.TopK != nil {
		dst.Autopick.TopK = src.Autopick.TopK
	}
	if src.Autopick.TopDBMax != nil {
		dst.Autopick.TopDBMax = src.Autopick.TopDBMax
	}
	if src.Autopick.RefreshTop != nil {
		dst.Autopick.RefreshTop = src.Autopick.RefreshTop
	}
	if src.Archive != nil {
		dst.Archive = src.Archive
	}
	if src.Resources.NumDictK != nil {
		dst.Resources.NumDictK = src.Resources.NumDictK
	}
	if src.Resources.TplDictK != nil {
		dst.Resources.TplDictK = src.Resources.TplDictK
	}
}

func envBool(name string, dst **bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return
	}
	*dst = &v
}

func envInt(name string, dst **int) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return
	}
	*dst = &v
}

// ApplyEnv overlays process environment variables onto cfg, returning a
// new Config. Env always wins over file-based config (global or repo),
// the usual flag > env > file > default precedence order. Unparseable
// or absent variables are left alone rather than erroring, so a typo'd
// env var silently falls back to file/default instead of aborting the
// run.
func ApplyEnv(cfg *Config) *Config {
	out := *cfg
	envBool("GCC_OCF_AUTOPICK", &out.Autopick.Enabled)
	envInt("GCC_OCF_SAMPLE_N", &out.Autopick.SampleN)
	envInt("GCC_OCF_TOP_K", &out.Autopick.TopK)
	envInt("GCC_OCF_TOP_DB_MAX", &out.Autopick.TopDBMax)
	envBool("GCC_OCF_REFRESH_TOP", &out.Autopick.RefreshTop)
	envBool("GCC_OCF_ARCHIVE", &out.Archive)
	envInt("GCC_OCF_NUM_DICT_K", &out.Resources.NumDictK)
	envInt("GCC_OCF_TPL_DICT_K", &out.Resources.TplDictK)
	return &out
}

// Load reads global+repo config and applies environment overrides on
// top; this is the entry point CLI commands should call.
func Load() (*Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return ApplyEnv(cfg), nil
}

// GetValue retrieves a configuration value by dotted key, e.g.
// "autopick.top_k" or "archive".
func GetValue(key string) (string, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return "", err
	}
	return getField(cfg, key)
}

func getField(cfg *Config, key string) (string, error) {
	switch key {
	case "autopick.enabled":
		return formatBoolPtr(cfg.Autopick.Enabled), nil
	case "autopick.sample_n":
		return formatIntPtr(cfg.Autopick.SampleN), nil
	case "autopick.top_k":
		return formatIntPtr(cfg.Autopick.TopK), nil
	case "autopick.top_db_max":
		return formatIntPtr(cfg.Autopick.TopDBMax), nil
	case "autopick.refresh_top":
		return formatBoolPtr(cfg.Autopick.RefreshTop), nil
	case "archive":
		return formatBoolPtr(cfg.Archive), nil
	case "resources.num_dict_k":
		return formatIntPtr(cfg.Resources.NumDictK), nil
	case "resources.tpl_dict_k":
		return formatIntPtr(cfg.Resources.TplDictK), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

func formatBoolPtr(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// SetValue sets a configuration value by dotted key and persists it to
// either the global or the repo-local config file.
func SetValue(key, value string, global bool) error {
	var cfg *Config
	if global {
		globalPath, _ := globalConfigPath()
		cfg = readOrDefault(globalPath)
	} else {
		cfg = readOrDefault(repoConfigPath())
	}

	if err := setField(cfg, key, value); err != nil {
		return err
	}

	if global {
		return SaveGlobalConfig(cfg)
	}
	return SaveRepoConfig(cfg)
}

func readOrDefault(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig()
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return DefaultConfig()
	}
	return cfg
}

func setField(cfg *Config, key, value string) error {
	switch key {
	case "autopick.enabled":
		return setBoolField(&cfg.Autopick.Enabled, value)
	case "autopick.sample_n":
		return setIntField(&cfg.Autopick.SampleN, value)
	case "autopick.top_k":
		return setIntField(&cfg.Autopick.TopK, value)
	case "autopick.top_db_max":
		return setIntField(&cfg.Autopick.TopDBMax, value)
	case "autopick.refresh_top":
		return setBoolField(&cfg.Autopick.RefreshTop, value)
	case "archive":
		return setBoolField(&cfg.Archive, value)
	case "resources.num_dict_k":
		return setIntField(&cfg.Resources.NumDictK, value)
	case "resources.tpl_dict_k":
		return setIntField(&cfg.Resources.TplDictK, value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
}

func setBoolField(dst **bool, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid bool value %q: %w", value, err)
	}
	*dst = &v
	return nil
}

func setIntField(dst **int, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid int value %q: %w", value, err)
	}
	*dst = &v
	return nil
}
