package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/javanhut/gcc-ocf/internal/dirpack"
)

func TestDefaultConfigIsAllUnset(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Autopick.Enabled != nil || cfg.Autopick.TopK != nil || cfg.Archive != nil {
		t.Fatalf("expected all-nil default config, got %+v", cfg)
	}
}

func TestSetAndGetValueRepoLocal(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	if err := SetValue("autopick.top_k", "5", false); err != nil {
		t.Fatal(err)
	}
	got, err := GetValue("autopick.top_k")
	if err != nil {
		t.Fatal(err)
	}
	if got != "5" {
		t.Fatalf("got %q", got)
	}

	if _, err := os.Stat(filepath.Join(dir, ".gccocf", "config")); err != nil {
		t.Fatalf("expected repo config file to exist: %v", err)
	}
}

func TestSetValueRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	if err := SetValue("bogus.key", "1", false); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestApplyEnvOverridesFileConfig(t *testing.T) {
	os.Setenv("GCC_OCF_TOP_K", "9")
	defer os.Unsetenv("GCC_OCF_TOP_K")

	cfg := DefaultConfig()
	topK := 2
	cfg.Autopick.TopK = &topK

	out := ApplyEnv(cfg)
	if out.Autopick.TopK == nil || *out.Autopick.TopK != 9 {
		t.Fatalf("expected env to win, got %+v", out.Autopick.TopK)
	}
}

func TestApplyEnvIgnoresUnparseableValue(t *testing.T) {
	os.Setenv("GCC_OCF_TOP_K", "not-a-number")
	defer os.Unsetenv("GCC_OCF_TOP_K")

	cfg := DefaultConfig()
	topK := 2
	cfg.Autopick.TopK = &topK

	out := ApplyEnv(cfg)
	if out.Autopick.TopK == nil || *out.Autopick.TopK != 2 {
		t.Fatalf("expected unparseable env var to be ignored, got %+v", out.Autopick.TopK)
	}
}

func TestApplyToOptionsOverlaysOntoDefaults(t *testing.T) {
	cfg := DefaultConfig()
	archiveOff := false
	topK := 7
	cfg.Archive = &archiveOff
	cfg.Autopick.TopK = &topK

	opts := cfg.ApplyToOptions(dirpack.DefaultOptions())
	if opts.UseArchive {
		t.Fatal("expected archive disabled")
	}
	if opts.TopK != 7 {
		t.Fatalf("got top_k %d", opts.TopK)
	}
	if opts.Jobs != dirpack.DefaultOptions().Jobs {
		t.Fatalf("expected unset field to keep default, got %d", opts.Jobs)
	}
}
