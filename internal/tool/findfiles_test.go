package tool

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFindFiles_RankingExample(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"App.tsx", "AppTest.tsx", "apps/tsx/index.ts"} {
		writeTempFile(t, root, rel)
	}

	tc := &ToolContext{WorkDir: root}
	res, err := execFindFiles(tc, "call-1", "find_files", map[string]string{"query": "apptsx"})
	if err != nil {
		t.Fatalf("execFindFiles: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.ResultText)
	}

	want := map[string]bool{"App.tsx": true, "AppTest.tsx": true, filepath.Join("apps", "tsx", "index.ts"): true}
	got := splitNonEmpty(res.ResultText)
	if len(got) != len(want) {
		t.Fatalf("result count = %d, want %d; got %v", len(got), len(want), got)
	}
	for _, g := range got {
		if !want[g] {
			t.Errorf("unexpected result %q", g)
		}
	}
	// App.tsx is an exact case-insensitive filename match modulo one
	// skipped '.', the tightest possible candidate, so it must rank first
	// regardless of how the underlying matcher breaks ties among the
	// other two (both differ from the query by more extra characters).
	if got[0] != "App.tsx" {
		t.Errorf("expected App.tsx to rank first, got order %v", got)
	}
}

func TestFindFiles_RequiresQuery(t *testing.T) {
	tc := &ToolContext{WorkDir: t.TempDir()}
	res, err := execFindFiles(tc, "call-1", "find_files", map[string]string{})
	if err != nil {
		t.Fatalf("execFindFiles: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure for missing query")
	}
}

func TestFindFiles_SkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	writeTempFile(t, root, "src/main.go")
	writeTempFile(t, root, "node_modules/pkg/main.go")

	tc := &ToolContext{WorkDir: root}
	res, err := execFindFiles(tc, "call-1", "find_files", map[string]string{"query": "main"})
	if err != nil {
		t.Fatalf("execFindFiles: %v", err)
	}
	got := splitNonEmpty(res.ResultText)
	for _, g := range got {
		if filepath.Dir(g) == "node_modules/pkg" {
			t.Errorf("result %q should have been excluded by the node_modules blocklist", g)
		}
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
