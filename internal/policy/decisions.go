package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/popilot-dev/popilot/internal/edit"
)

// DecisionStore persists remembered per-tool decisions to
// <policyDir>/saved-decisions.json, written whole-file via atomic
// rename so a crash mid-write never corrupts the file.
type DecisionStore struct {
	mu        sync.RWMutex
	path      string
	decisions map[string]SavedDecision
}

// NewDecisionStore loads any existing saved-decisions.json from dir (a
// missing file is not an error: it simply starts empty).
func NewDecisionStore(dir string) (*DecisionStore, error) {
	s := &DecisionStore{
		path:      filepath.Join(dir, "saved-decisions.json"),
		decisions: map[string]SavedDecision{},
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var list []SavedDecision
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	for _, d := range list {
		s.decisions[d.Tool] = d
	}
	return s, nil
}

// Get returns a remembered decision for tool, if any.
func (s *DecisionStore) Get(tool string) (Decision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[tool]
	if !ok {
		return "", false
	}
	return d.Decision, true
}

// Remember records a decision for tool and flushes it to disk.
func (s *DecisionStore) Remember(tool string, decision Decision) error {
	s.mu.Lock()
	s.decisions[tool] = SavedDecision{Tool: tool, Decision: decision, SavedAt: time.Now()}
	list := make([]SavedDecision, 0, len(s.decisions))
	for _, d := range s.decisions {
		list = append(list, d)
	}
	s.mu.Unlock()
	return s.flush(list)
}

// flush writes list to disk via the same dot-prefixed temp-file-and-
// rename discipline internal/edit uses elsewhere (spec §5: "saved-
// decisions.json is written whole-file via atomic rename").
func (s *DecisionStore) flush(list []SavedDecision) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return edit.WriteWhole(s.path, data, false)
}
