package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the `[settings]` table of a policy TOML file (spec §6.5).
type Settings struct {
	Mode              string `toml:"mode"`
	RememberDecisions bool   `toml:"remember_decisions"`
}

type tomlRule struct {
	Tool            string   `toml:"tool"`
	Decision        string   `toml:"decision"`
	Priority        *int     `toml:"priority"`
	Modes           []string `toml:"modes"`
	ArgsPattern     string   `toml:"args_pattern"`
	DecisionIfMatch string   `toml:"decision_if_match"`
	Description     string   `toml:"description"`
}

type tomlFile struct {
	Settings Settings   `toml:"settings"`
	Rules    []tomlRule `toml:"rules"`
}

// LoadDir reads every *.toml file in dir in alphabetical order and
// returns the merged rule set plus the merged settings (later files'
// settings fields win when both set them). Files loaded later are given
// a smaller priority offset so they take precedence over earlier files
// when priorities would otherwise tie, per spec §4.5's rule-load order.
func LoadDir(dir string) ([]Rule, Settings, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Settings{}, nil
		}
		return nil, Settings{}, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var rules []Rule
	var settings Settings
	// Each subsequent file's rules get a smaller priority offset so,
	// all else equal, a later-loaded file's rule outranks an earlier one.
	offset := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, Settings{}, err
		}
		var tf tomlFile
		if err := toml.Unmarshal(data, &tf); err != nil {
			return nil, Settings{}, fmt.Errorf("parsing policy file %s: %w", name, err)
		}
		if tf.Settings.Mode != "" {
			settings.Mode = tf.Settings.Mode
		}
		// A second decode tells an explicit remember_decisions = false
		// apart from an absent key, so a later file can override either way.
		var present struct {
			Settings struct {
				RememberDecisions *bool `toml:"remember_decisions"`
			} `toml:"settings"`
		}
		_ = toml.Unmarshal(data, &present)
		if present.Settings.RememberDecisions != nil {
			settings.RememberDecisions = *present.Settings.RememberDecisions
		}

		for _, tr := range tf.Rules {
			decision, ok := parseDecision(tr.Decision)
			if !ok {
				return nil, Settings{}, fmt.Errorf("policy file %s: invalid decision %q", name, tr.Decision)
			}
			priority := 500 - offset
			if tr.Priority != nil {
				priority = *tr.Priority - offset
			}
			var modes []Mode
			for _, m := range tr.Modes {
				pm, ok := parseMode(m)
				if !ok {
					return nil, Settings{}, fmt.Errorf("policy file %s: invalid mode %q", name, m)
				}
				modes = append(modes, pm)
			}
			var decisionIfMatch Decision
			if tr.DecisionIfMatch != "" {
				decisionIfMatch, ok = parseDecision(tr.DecisionIfMatch)
				if !ok {
					return nil, Settings{}, fmt.Errorf("policy file %s: invalid decision_if_match %q", name, tr.DecisionIfMatch)
				}
			}
			rules = append(rules, Rule{
				ToolPattern:     tr.Tool,
				Decision:        decision,
				Priority:        priority,
				Modes:           modes,
				ArgsPattern:     tr.ArgsPattern,
				DecisionIfMatch: decisionIfMatch,
				Description:     tr.Description,
			})
		}
		offset += 10
	}

	return rules, settings, nil
}
