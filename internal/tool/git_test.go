package tool

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")

	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	run("add", "README.md")
	run("commit", "-q", "-m", "initial commit")
}

func TestExecGit_Status(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "untracked.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tc := &ToolContext{WorkDir: dir}
	res, err := execGit(context.Background(), tc, "call-1", "git.status", KindGitStatus, nil)
	if err != nil {
		t.Fatalf("execGit: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.ResultText)
	}
	if !strings.Contains(res.ResultText, "untracked.txt") {
		t.Errorf("expected status output to mention untracked.txt, got %q", res.ResultText)
	}
}

func TestExecGit_Log(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)

	tc := &ToolContext{WorkDir: dir}
	res, err := execGit(context.Background(), tc, "call-1", "git.log", KindGitLog, nil)
	if err != nil {
		t.Fatalf("execGit: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.ResultText)
	}
	if !strings.Contains(res.ResultText, "initial commit") {
		t.Errorf("expected log output to mention the commit message, got %q", res.ResultText)
	}
}

func TestExecGit_Diff(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\nworld\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tc := &ToolContext{WorkDir: dir}
	res, err := execGit(context.Background(), tc, "call-1", "git.diff", KindGitDiff, nil)
	if err != nil {
		t.Fatalf("execGit: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.ResultText)
	}
	if !strings.Contains(res.ResultText, "world") {
		t.Errorf("expected diff output to mention the added line, got %q", res.ResultText)
	}
}

func TestExecGit_Restore(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("modified\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tc := &ToolContext{WorkDir: dir}
	res, err := execGit(context.Background(), tc, "call-1", "git.restore", KindGitRestore, map[string]string{"path": "README.md"})
	if err != nil {
		t.Fatalf("execGit: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.ResultText)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "README.md"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "hello\n" {
		t.Errorf("expected README.md restored to committed content, got %q", string(raw))
	}
}

func TestExecGit_RestoreRequiresPath(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)

	tc := &ToolContext{WorkDir: dir}
	res, err := execGit(context.Background(), tc, "call-1", "git.restore", KindGitRestore, nil)
	if err != nil {
		t.Fatalf("execGit: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure when path is missing")
	}
}

func TestExecGit_Show(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)

	tc := &ToolContext{WorkDir: dir}
	res, err := execGit(context.Background(), tc, "call-1", "git.show", KindGitShow, nil)
	if err != nil {
		t.Fatalf("execGit: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.ResultText)
	}
	if !strings.Contains(res.ResultText, "initial commit") {
		t.Errorf("expected show output to mention the commit message, got %q", res.ResultText)
	}
}
