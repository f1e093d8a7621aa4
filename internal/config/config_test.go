package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveModel(t *testing.T) {
	for alias, want := range map[string]Family{"claude": FamilyClaude, "gpt": FamilyGPT, "gemini": FamilyGemini} {
		got, err := ResolveModel(alias)
		if err != nil {
			t.Fatalf("ResolveModel(%q): %v", alias, err)
		}
		if got != want {
			t.Errorf("ResolveModel(%q) = %q, want %q", alias, got, want)
		}
	}

	if _, err := ResolveModel("not-a-model"); err == nil {
		t.Error("expected an error for an unknown model alias")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HardLimit != DefaultHardLimit {
		t.Errorf("HardLimit = %d, want %d", cfg.HardLimit, DefaultHardLimit)
	}
	if cfg.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, dir)
	}
}

func TestLoad_YAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := "model: gpt\nhard_limit: 5000\n"
	if err := os.WriteFile(filepath.Join(dir, "popilot.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write popilot.yaml: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gpt" {
		t.Errorf("Model = %q, want %q", cfg.Model, "gpt")
	}
	if cfg.HardLimit != 5000 {
		t.Errorf("HardLimit = %d, want %d", cfg.HardLimit, 5000)
	}
}

func TestSessionsDirAndPolicyDir(t *testing.T) {
	dir := "/tmp/workspace"
	if got, want := SessionsDir(dir), filepath.Join(dir, ".popilot", "sessions"); got != want {
		t.Errorf("SessionsDir = %q, want %q", got, want)
	}
	if got, want := PolicyDir(dir), filepath.Join(dir, ".popilot", "policy"); got != want {
		t.Errorf("PolicyDir = %q, want %q", got, want)
	}
}
