package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	sess := store.Create("claude")
	if err := store.AddMessage(sess.ID, Message{Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := store.Flush(sess.ID); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reloaded, err := Init(dir)
	if err != nil {
		t.Fatalf("Init (reload): %v", err)
	}
	got, ok := reloaded.Get(sess.ID)
	if !ok {
		t.Fatalf("session %s not found after reload", sess.ID)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Errorf("reloaded session messages = %+v, want one message with content %q", got.Messages, "hello")
	}
	if got.Model != "claude" {
		t.Errorf("reloaded session model = %q, want %q", got.Model, "claude")
	}
}

func TestStore_ThreadIDImmutable(t *testing.T) {
	dir := t.TempDir()
	store, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	sess := store.Create("gpt")

	if err := store.SetThreadID(sess.ID, "thread-1"); err != nil {
		t.Fatalf("SetThreadID: %v", err)
	}
	if err := store.SetThreadID(sess.ID, "thread-2"); err == nil {
		t.Fatal("expected error changing an already-set thread_id")
	}
	// Setting the same value again is a no-op, not an error.
	if err := store.SetThreadID(sess.ID, "thread-1"); err != nil {
		t.Errorf("re-setting the same thread_id should not error: %v", err)
	}

	got, _ := store.Get(sess.ID)
	if got.ThreadID != "thread-1" {
		t.Errorf("thread_id = %q, want %q", got.ThreadID, "thread-1")
	}
}

func TestStore_RetentionBound(t *testing.T) {
	dir := t.TempDir()
	store, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	for i := 0; i < RetentionCount+5; i++ {
		sess := store.Create("model")
		if err := store.AddMessage(sess.ID, Message{Role: "user", Content: "x"}); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
		// Spread updated_at so retention ordering is deterministic.
		time.Sleep(time.Millisecond)
	}
	if err := store.FlushAll(); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	count := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			count++
		}
	}
	if count != RetentionCount {
		t.Errorf("on-disk session count = %d, want %d", count, RetentionCount)
	}
}

func TestStore_Restore(t *testing.T) {
	dir := t.TempDir()
	store, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	sess := store.Create("claude")

	id, ok := store.Restore()
	if !ok {
		t.Fatal("expected a restorable session id")
	}
	if id != sess.ID {
		t.Errorf("Restore() = %q, want %q", id, sess.ID)
	}
}

func TestCheckpointStore_CreateAndCascadeDelete(t *testing.T) {
	dir := t.TempDir()
	cps, err := NewCheckpointStore(dir, "sess-1")
	if err != nil {
		t.Fatalf("NewCheckpointStore: %v", err)
	}

	patchPath := filepath.Join(t.TempDir(), "patch.diff")
	if err := os.WriteFile(patchPath, []byte("--- a\n+++ b\n"), 0o644); err != nil {
		t.Fatalf("write patch: %v", err)
	}

	cp, err := cps.Create("before destructive edit", []Message{{Role: "user", Content: "do it"}}, "file.applyTextEdits", "", patchPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := cps.Get(cp.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Description != "before destructive edit" {
		t.Errorf("Description = %q", got.Description)
	}

	if err := cps.Delete(cp.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(patchPath); !os.IsNotExist(err) {
		t.Error("expected patch file to be removed by cascading delete")
	}
	if _, err := cps.Get(cp.ID); err == nil {
		t.Error("expected checkpoint record to be gone after delete")
	}
}
