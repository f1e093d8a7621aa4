package policy

import "testing"

func TestEvaluate_DefaultAsksForEdits(t *testing.T) {
	e, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, err := e.Evaluate("file.applyTextEdits", map[string]interface{}{"file_path": "a.go"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d != Ask {
		t.Fatalf("expected Ask, got %s", d)
	}
}

func TestEvaluate_ReadIsAllowed(t *testing.T) {
	e, _ := New(nil, nil)
	d, _ := e.Evaluate("file.read", map[string]interface{}{"path": "a.go"})
	if d != Allow {
		t.Fatalf("expected Allow, got %s", d)
	}
}

func TestEvaluate_YoloAllowsExceptDenyRules(t *testing.T) {
	e, err := New([]Rule{{ToolPattern: "run_terminal_command", Decision: Deny, Priority: 1}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.SetMode(ModeYolo)

	d, _ := e.Evaluate("run_terminal_command", map[string]interface{}{"command": "rm -rf /"})
	if d != Deny {
		t.Fatalf("expected Deny even in yolo mode, got %s", d)
	}
	d2, _ := e.Evaluate("file.applyTextEdits", map[string]interface{}{})
	if d2 != Allow {
		t.Fatalf("expected Allow for non-denied tool in yolo, got %s", d2)
	}
}

func TestEvaluate_PriorityOrderAscendingWins(t *testing.T) {
	e, err := New([]Rule{
		{ToolPattern: "git.*", Decision: Deny, Priority: 10},
		{ToolPattern: "git.status", Decision: Allow, Priority: 5},
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, _ := e.Evaluate("git.status", nil)
	if d != Allow {
		t.Fatalf("expected the lower-priority-number rule to win (Allow), got %s", d)
	}
}

func TestEvaluate_Determinism(t *testing.T) {
	e, _ := New(nil, nil)
	args := map[string]interface{}{"x": 1}
	d1, _ := e.Evaluate("run_terminal_command", args)
	d2, _ := e.Evaluate("run_terminal_command", args)
	if d1 != d2 {
		t.Fatalf("evaluate must be deterministic: %s != %s", d1, d2)
	}
}

func TestEvaluate_RememberedDecisionWins(t *testing.T) {
	dir := t.TempDir()
	ds, err := NewDecisionStore(dir)
	if err != nil {
		t.Fatalf("NewDecisionStore: %v", err)
	}
	if err := ds.Remember("run_terminal_command", Allow); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	e, _ := New(nil, ds)
	d, _ := e.Evaluate("run_terminal_command", nil)
	if d != Allow {
		t.Fatalf("expected remembered Allow, got %s", d)
	}

	ds2, err := NewDecisionStore(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got, ok := ds2.Get("run_terminal_command"); !ok || got != Allow {
		t.Fatalf("decision did not persist across reload: %v %v", got, ok)
	}
}
