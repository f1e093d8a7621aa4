// Package config loads the process-wide settings the command-line
// surface and its collaborators need: the model alias, the workspace
// root, color output, and the request transformer's tuning knobs. It is
// deliberately narrow — credential storage and its prompt UI are a named
// out-of-scope collaborator, so this package only ever reads an API key
// already present in the environment, never solicits or persists one.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Environment variable names this process reads.
const (
	EnvConfigDir = "POPILOT_CONFIG_DIR"

	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
)

// Family is a model alias resolved to its backend family (spec §6.1:
// "claude", "gpt", "gemini").
type Family string

const (
	FamilyClaude Family = "claude"
	FamilyGPT    Family = "gpt"
	FamilyGemini Family = "gemini"
)

var modelAliases = map[string]Family{
	"claude": FamilyClaude,
	"gpt":    FamilyGPT,
	"gemini": FamilyGemini,
}

// ResolveModel maps a --model value to its backend family. Anything not
// in the known alias set is rejected (spec §6.1: "exit code 1 on invalid
// model").
func ResolveModel(id string) (Family, error) {
	f, ok := modelAliases[id]
	if !ok {
		return "", fmt.Errorf("unknown model %q: supported aliases are claude, gpt, gemini", id)
	}
	return f, nil
}

// Config is the full set of process settings (spec §6.1/§6.2).
type Config struct {
	Model   string `mapstructure:"model"`
	Dir     string `mapstructure:"dir"`
	NoColor bool   `mapstructure:"no_color"`

	HardLimit     int `mapstructure:"hard_limit"`
	MaxTextLength int `mapstructure:"max_text_length"`
	MaxToolOutput int `mapstructure:"max_tool_output"`
	KeepRecent    int `mapstructure:"keep_recent"`
}

// Defaults mirror the transformer-tuning flags' positive-integer
// defaults; they only take effect when a flag is left unset.
const (
	DefaultHardLimit     = 200_000
	DefaultMaxTextLength = 20_000
	DefaultMaxToolOutput = 4_000
	DefaultKeepRecent    = 20
)

// Load builds a Config from defaults, an optional YAML file
// (popilot.yaml, searched in $POPILOT_CONFIG_DIR, the workspace root, and
// $HOME/.config/popilot), and POPILOT_-prefixed environment overrides.
// Flags passed to cobra are layered on top by the caller via Apply*.
func Load(workDir string) (*Config, error) {
	v := viper.New()
	v.SetDefault("model", "claude")
	v.SetDefault("dir", workDir)
	v.SetDefault("no_color", false)
	v.SetDefault("hard_limit", DefaultHardLimit)
	v.SetDefault("max_text_length", DefaultMaxTextLength)
	v.SetDefault("max_tool_output", DefaultMaxToolOutput)
	v.SetDefault("keep_recent", DefaultKeepRecent)

	v.SetConfigName("popilot")
	v.SetConfigType("yaml")
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(workDir)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "popilot"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read popilot config: %w", err)
		}
	}

	v.SetEnvPrefix("POPILOT")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse popilot config: %w", err)
	}
	return &cfg, nil
}

// APIKey returns the environment-provided credential for family, or ""
// if none is set (the caller surfaces the absence, per spec §4.6 step 2:
// "on no token, warn and continue without attachments").
func APIKey(family Family) string {
	switch family {
	case FamilyClaude:
		return os.Getenv(EnvAnthropicAPIKey)
	case FamilyGPT:
		return os.Getenv(EnvOpenAIAPIKey)
	case FamilyGemini:
		return os.Getenv(EnvGeminiAPIKey)
	}
	return ""
}

// PopilotDir is the workspace-scoped directory backing the Session Store
// and Policy Engine's decision store (<dir>/.popilot).
func PopilotDir(workDir string) string {
	return filepath.Join(workDir, ".popilot")
}

// SessionsDir is the Session Store's root (spec §4.8).
func SessionsDir(workDir string) string {
	return filepath.Join(PopilotDir(workDir), "sessions")
}

// PolicyDir is the Policy Engine's rule-file and decision-store root.
func PolicyDir(workDir string) string {
	return filepath.Join(PopilotDir(workDir), "policy")
}
