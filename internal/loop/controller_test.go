package loop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/popilot-dev/popilot/internal/policy"
	"github.com/popilot-dev/popilot/internal/session"
	"github.com/popilot-dev/popilot/internal/tool"
)

// scriptedStreamer replays a fixed sequence of responses, one per call to
// Stream, optionally failing the first N calls to exercise the
// transient-error retry path.
type scriptedStreamer struct {
	fail      int // number of leading calls that return an error
	responses []string
	calls     int
}

func (s *scriptedStreamer) Stream(_ context.Context, _ []session.Message, onDelta func(string)) (string, string, error) {
	s.calls++
	if s.calls <= s.fail {
		return "", "", fmt.Errorf("transient network failure")
	}
	idx := s.calls - s.fail - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	text := s.responses[idx]
	onDelta(text)
	return text, "", nil
}

func newTestController(t *testing.T, stream Streamer) (*Controller, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := session.Init(filepath.Join(dir, "sessions"))
	if err != nil {
		t.Fatalf("session.Init: %v", err)
	}
	sess := store.Create("test-model")

	eng, err := policy.New(nil, nil)
	if err != nil {
		t.Fatalf("policy.New: %v", err)
	}

	tc := &tool.ToolContext{WorkDir: dir}
	ctrl := New(store, nil, eng, nil, tc, stream)
	return ctrl, sess.ID
}

func TestController_CompletesOnNoToolCalls(t *testing.T) {
	stream := &scriptedStreamer{responses: []string{"all done, nothing more to do"}}
	ctrl, sessID := newTestController(t, stream)

	if err := ctrl.RunTurn(context.Background(), sessID, "say hi"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", snap.Outcome, OutcomeCompleted)
	}

	sess, _ := ctrl.sessions.Get(sessID)
	var assistantCount, toolCount int
	for _, m := range sess.Messages {
		switch m.Role {
		case "assistant":
			assistantCount++
		case "tool":
			toolCount++
		}
	}
	if assistantCount != 1 {
		t.Errorf("assistant messages = %d, want 1", assistantCount)
	}
	if toolCount != 0 {
		t.Errorf("tool messages = %d, want 0", toolCount)
	}
}

// TestController_TwoTransientErrorsThenCompletion exercises the scenario
// of two consecutive transient stream failures followed by a valid
// zero-tool-call response: outcome completed, exactly one assistant
// message, no tool messages.
func TestController_TwoTransientErrorsThenCompletion(t *testing.T) {
	stream := &scriptedStreamer{fail: 2, responses: []string{"recovered, all done"}}
	ctrl, sessID := newTestController(t, stream)

	if err := ctrl.RunTurn(context.Background(), sessID, "say hi"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", snap.Outcome, OutcomeCompleted)
	}
	if stream.calls != 3 {
		t.Errorf("stream was called %d times, want 3 (2 failures + 1 success)", stream.calls)
	}

	sess, _ := ctrl.sessions.Get(sessID)
	var assistantCount, toolCount int
	for _, m := range sess.Messages {
		switch m.Role {
		case "assistant":
			assistantCount++
		case "tool":
			toolCount++
		}
	}
	if assistantCount != 1 {
		t.Errorf("assistant messages = %d, want 1", assistantCount)
	}
	if toolCount != 0 {
		t.Errorf("tool messages = %d, want 0", toolCount)
	}
}

func TestController_ExceedsErrorRetryBudget(t *testing.T) {
	stream := &scriptedStreamer{fail: 10, responses: []string{"unreachable"}}
	ctrl, sessID := newTestController(t, stream)

	err := ctrl.RunTurn(context.Background(), sessID, "say hi")
	if err == nil {
		t.Fatal("expected an error after exceeding the retry budget")
	}
	if ctrl.Snapshot().Outcome != OutcomeError {
		t.Errorf("outcome = %q, want %q", ctrl.Snapshot().Outcome, OutcomeError)
	}
	if stream.calls != MaxErrorRetries+1 {
		t.Errorf("stream was called %d times, want %d", stream.calls, MaxErrorRetries+1)
	}
}

func TestController_AllowedToolExecutesImmediately(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "readme.txt")
	if err := os.WriteFile(target, []byte("hello world\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	block := "TOOL_NAME: file.read\nBEGIN_ARG: path\nreadme.txt\nEND_ARG\n\nall set"
	stream := &scriptedStreamer{responses: []string{block, "read it, all done"}}

	store, err := session.Init(filepath.Join(dir, "sessions"))
	if err != nil {
		t.Fatalf("session.Init: %v", err)
	}
	sess := store.Create("test-model")
	eng, err := policy.New(nil, nil)
	if err != nil {
		t.Fatalf("policy.New: %v", err)
	}
	tc := &tool.ToolContext{WorkDir: dir}
	ctrl := New(store, nil, eng, nil, tc, stream)

	if err := ctrl.RunTurn(context.Background(), sess.ID, "read the file"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if ctrl.Snapshot().Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", ctrl.Snapshot().Outcome, OutcomeCompleted)
	}

	got, _ := ctrl.sessions.Get(sess.ID)
	var sawToolResult bool
	for _, m := range got.Messages {
		if m.Role == "tool" && m.Name == "file.read" {
			sawToolResult = true
			if !contains(m.Content, "hello world") {
				t.Errorf("tool result = %q, want it to contain file contents", m.Content)
			}
		}
	}
	if !sawToolResult {
		t.Fatal("expected a tool-role message for the file.read call")
	}
}

func TestController_AskSuspendsThenResumeExecutes(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main.go")
	if err := os.WriteFile(target, []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	block := "TOOL_NAME: create_new_file\nBEGIN_ARG: path\nnew.go\nEND_ARG\nBEGIN_ARG: content\npackage main\nEND_ARG\n\nmaking a file"
	stream := &scriptedStreamer{responses: []string{block, "created it, all done"}}

	store, err := session.Init(filepath.Join(dir, "sessions"))
	if err != nil {
		t.Fatalf("session.Init: %v", err)
	}
	sess := store.Create("test-model")
	eng, err := policy.New(nil, nil) // create_new_file defaults to Ask
	if err != nil {
		t.Fatalf("policy.New: %v", err)
	}
	tc := &tool.ToolContext{WorkDir: dir}
	ctrl := New(store, nil, eng, nil, tc, stream)

	if err := ctrl.RunTurn(context.Background(), sess.ID, "create a file"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.State != StateConfirming || snap.Pending == nil {
		t.Fatalf("state = %v, pending = %v; want confirming with a pending call", snap.State, snap.Pending)
	}
	if snap.Pending.ToolCalls[snap.Pending.CursorIndex].ToolName != "create_new_file" {
		t.Fatalf("pending call = %q, want create_new_file", snap.Pending.ToolCalls[snap.Pending.CursorIndex].ToolName)
	}

	if err := ctrl.Resume(context.Background(), sess.ID, ConfirmResponse{Approved: true}); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if ctrl.Snapshot().Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", ctrl.Snapshot().Outcome, OutcomeCompleted)
	}
	if _, err := os.Stat(filepath.Join(dir, "new.go")); err != nil {
		t.Errorf("expected new.go to be created after approval: %v", err)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (haystack == needle || indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
