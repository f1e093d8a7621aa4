package policy

import (
	"encoding/json"
	"sort"
	"sync"
)

// Engine evaluates tool calls against a priority-ordered rule set plus
// remembered decisions, per spec §4.5.
type Engine struct {
	mu        sync.RWMutex
	mode      Mode
	rules     []Rule
	compiled  map[string]compiledPattern
	decisions *DecisionStore
}

// DefaultRules are the built-in baseline, applied before any TOML file
// is layered on top. Priorities leave headroom (steps of 100) so loaded
// files can interleave without collision.
func DefaultRules() []Rule {
	return []Rule{
		{ToolPattern: "file.read", Decision: Allow, Priority: 100},
		{ToolPattern: "read_file", Decision: Allow, Priority: 100},
		{ToolPattern: "file.search", Decision: Allow, Priority: 100},
		{ToolPattern: "list_directory", Decision: Allow, Priority: 100},
		{ToolPattern: "tree", Decision: Allow, Priority: 100},
		{ToolPattern: "find_files", Decision: Allow, Priority: 100},
		{ToolPattern: "git.status", Decision: Allow, Priority: 100},
		{ToolPattern: "git.diff", Decision: Allow, Priority: 100},
		{ToolPattern: "git.log", Decision: Allow, Priority: 100},
		{ToolPattern: "git.show", Decision: Allow, Priority: 100},
		{ToolPattern: "file.applyTextEdits", Decision: Ask, Priority: 200},
		{ToolPattern: "create_new_file", Decision: Ask, Priority: 200},
		{ToolPattern: "edit_file", Decision: Ask, Priority: 200},
		{ToolPattern: "run_terminal_command", Decision: Ask, Priority: 200},
		{ToolPattern: "git.restore", Decision: Ask, Priority: 200},
		{ToolPattern: "*", Decision: Ask, Priority: 1000},
	}
}

// New builds an Engine from the built-in defaults plus any supplied
// rules (e.g. loaded from TOML files), starting in ModeDefault.
func New(extra []Rule, decisions *DecisionStore) (*Engine, error) {
	e := &Engine{
		mode:      ModeDefault,
		decisions: decisions,
		compiled:  map[string]compiledPattern{},
	}
	all := append(append([]Rule{}, DefaultRules()...), extra...)
	if err := e.setRules(all); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) setRules(rules []Rule) error {
	sorted := append([]Rule{}, rules...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	compiled := make(map[string]compiledPattern, len(sorted))
	for _, r := range sorted {
		if _, ok := compiled[r.ToolPattern]; ok {
			continue
		}
		cp, err := compilePattern(r.ToolPattern)
		if err != nil {
			return err
		}
		compiled[r.ToolPattern] = cp
	}
	e.mu.Lock()
	e.rules = sorted
	e.compiled = compiled
	e.mu.Unlock()
	return nil
}

// SetMode changes the session-wide confirmation posture.
func (e *Engine) SetMode(m Mode) {
	e.mu.Lock()
	e.mode = m
	e.mu.Unlock()
}

// GetMode returns the current mode.
func (e *Engine) GetMode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// Evaluate decides allow/deny/ask for a tool call, per spec §4.5:
//   - yolo mode scans only deny rules; anything else is allowed.
//   - otherwise a remembered decision for the tool wins if present.
//   - otherwise rules are scanned in ascending priority; the first rule
//     whose tool pattern, mode, and (if present) args pattern all match
//     wins.
//   - absent any match, the fallback is ask.
func (e *Engine) Evaluate(tool string, args map[string]interface{}) (Decision, error) {
	e.mu.RLock()
	mode := e.mode
	rules := e.rules
	compiled := e.compiled
	e.mu.RUnlock()

	serialized, err := json.Marshal(args)
	if err != nil {
		serialized = []byte("{}")
	}

	if mode == ModeYolo {
		for _, r := range rules {
			if r.Decision != Deny {
				continue
			}
			if !compiled[r.ToolPattern].matches(tool) {
				continue
			}
			ok, err := matchArgsPattern(r.ArgsPattern, string(serialized))
			if err != nil {
				return "", err
			}
			if ok {
				return Deny, nil
			}
		}
		return Allow, nil
	}

	if e.decisions != nil {
		if d, ok := e.decisions.Get(tool); ok {
			return d, nil
		}
	}

	for _, r := range rules {
		if !compiled[r.ToolPattern].matches(tool) {
			continue
		}
		if !modeAllowed(r.Modes, mode) {
			continue
		}
		if r.ArgsPattern != "" {
			ok, err := matchArgsPattern(r.ArgsPattern, string(serialized))
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
			if r.DecisionIfMatch != "" {
				return r.DecisionIfMatch, nil
			}
		}
		return r.Decision, nil
	}

	return Ask, nil
}
