package edit

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/popilot-dev/popilot/internal/perr"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return path
}

func shaOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestApply_SHAMismatch(t *testing.T) {
	path := writeTemp(t, "a\nb\nc\n")
	_, err := Apply(Request{
		FilePath:       path,
		ExpectedSHA256: "deadbeef00000000000000000000000000000000000000000000000000000000",
		Edits:          []TextEdit{{StartLine: 1, NewText: "A"}},
	})
	if !perr.Is(err, perr.CodeSHA256Mismatch) {
		t.Fatalf("expected SHA256_MISMATCH, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a\nb\nc\n" {
		t.Fatalf("file must be unchanged on mismatch, got %q", data)
	}
}

func TestApply_ReplaceSingleLine(t *testing.T) {
	content := "a\nb\nc\n"
	path := writeTemp(t, content)
	end := 2
	res, err := Apply(Request{
		FilePath:       path,
		ExpectedSHA256: shaOf(content),
		Edits:          []TextEdit{{StartLine: 2, EndLine: &end, NewText: "B"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a\nB\nc\n" {
		t.Fatalf("got %q", data)
	}
	if res.NewSHA256 != shaOf("a\nB\nc\n") {
		t.Fatalf("new sha mismatch")
	}
}

func TestApply_InsertAtEnd(t *testing.T) {
	content := "a\n"
	path := writeTemp(t, content)
	res, err := Apply(Request{
		FilePath:       path,
		ExpectedSHA256: shaOf(content),
		Edits:          []TextEdit{{StartLine: 2, NewText: "b"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a\nb\n" {
		t.Fatalf("got %q", data)
	}
	_ = res
}

func TestApply_WholeFileRejected(t *testing.T) {
	content := "x\ny\n"
	path := writeTemp(t, content)
	end := 2
	_, err := Apply(Request{
		FilePath:       path,
		ExpectedSHA256: shaOf(content),
		Edits:          []TextEdit{{StartLine: 1, EndLine: &end, NewText: "z\n"}},
	})
	if !perr.Is(err, perr.CodeWholeFileEditRejected) {
		t.Fatalf("expected WHOLE_FILE_EDIT_REJECTED, got %v", err)
	}
}

func TestApply_FileNotFound(t *testing.T) {
	_, err := Apply(Request{
		FilePath:       filepath.Join(t.TempDir(), "missing.txt"),
		ExpectedSHA256: shaOf(""),
		Edits:          []TextEdit{{StartLine: 1, NewText: "x"}},
	})
	if !perr.Is(err, perr.CodeFileNotFound) {
		t.Fatalf("expected FILE_NOT_FOUND, got %v", err)
	}
}

func TestApply_OverlappingEdits(t *testing.T) {
	content := "a\nb\nc\nd\n"
	path := writeTemp(t, content)
	end1, end2 := 2, 3
	_, err := Apply(Request{
		FilePath:       path,
		ExpectedSHA256: shaOf(content),
		Edits: []TextEdit{
			{StartLine: 1, EndLine: &end1, NewText: "X"},
			{StartLine: 2, EndLine: &end2, NewText: "Y"},
		},
	})
	if !perr.Is(err, perr.CodeOverlappingEdits) {
		t.Fatalf("expected OVERLAPPING_EDITS, got %v", err)
	}
}

func TestApply_DryRunIdempotent(t *testing.T) {
	content := "a\nb\nc\n"
	path := writeTemp(t, content)
	end := 2
	req := Request{
		FilePath:       path,
		ExpectedSHA256: shaOf(content),
		Edits:          []TextEdit{{StartLine: 2, EndLine: &end, NewText: "B"}},
		DryRun:         true,
	}
	r1, err := Apply(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := Apply(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1.Diff != r2.Diff || r1.NewSHA256 != r2.NewSHA256 {
		t.Fatalf("dry-run previews not idempotent")
	}
	data, _ := os.ReadFile(path)
	if string(data) != content {
		t.Fatalf("dry-run must not write: got %q", data)
	}
}

func TestApply_TooManyEdits(t *testing.T) {
	content := "a\n"
	path := writeTemp(t, content)
	edits := make([]TextEdit, 51)
	for i := range edits {
		edits[i] = TextEdit{StartLine: 1, NewText: "x"}
	}
	_, err := Apply(Request{
		FilePath:       path,
		ExpectedSHA256: shaOf(content),
		Edits:          edits,
	})
	if !perr.Is(err, perr.CodeTooManyEdits) {
		t.Fatalf("expected TOO_MANY_EDITS, got %v", err)
	}
}

func TestApply_AnchorMismatch(t *testing.T) {
	content := "a\nb\nc\n"
	path := writeTemp(t, content)
	end := 2
	_, err := Apply(Request{
		FilePath:       path,
		ExpectedSHA256: shaOf(content),
		Edits: []TextEdit{{
			StartLine: 2, EndLine: &end, NewText: "B",
			Anchor: &Anchor{ExpectedText: "zzz"},
		}},
	})
	if !perr.Is(err, perr.CodeAnchorMismatch) {
		t.Fatalf("expected ANCHOR_MISMATCH, got %v", err)
	}
}

func TestApply_CRLFPreserved(t *testing.T) {
	content := "a\r\nb\r\nc\r\n"
	path := writeTemp(t, content)
	end := 2
	_, err := Apply(Request{
		FilePath:       path,
		ExpectedSHA256: shaOf(content),
		Edits:          []TextEdit{{StartLine: 2, EndLine: &end, NewText: "B"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a\r\nB\r\nc\r\n" {
		t.Fatalf("CRLF not preserved: got %q", data)
	}
}

func TestApply_BoundaryAppendAndFullReplace(t *testing.T) {
	content := "one\ntwo\nthree\n"
	path := writeTemp(t, content)

	// start_line == total_lines+1 is a valid append.
	res, err := Apply(Request{
		FilePath:       path,
		ExpectedSHA256: shaOf(content),
		Edits:          []TextEdit{{StartLine: 4, NewText: "four"}},
	})
	if err != nil {
		t.Fatalf("append at EOF should succeed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "one\ntwo\nthree\nfour\n" {
		t.Fatalf("got %q", data)
	}

	// end_line == total_lines in REPLACE is valid (single-line replace too).
	end := 4
	_, err = Apply(Request{
		FilePath:       path,
		ExpectedSHA256: res.NewSHA256,
		Edits:          []TextEdit{{StartLine: 4, EndLine: &end, NewText: "FOUR"}},
	})
	if err != nil {
		t.Fatalf("end_line==total_lines replace should succeed: %v", err)
	}
}

func TestApplyMulti_CommitsAllFiles(t *testing.T) {
	c1, c2 := "a\n", "b\n"
	p1 := writeTemp(t, c1)
	p2 := writeTemp(t, c2)

	results, err := ApplyMulti([]MultiFileEdit{
		{Request: Request{FilePath: p1, ExpectedSHA256: shaOf(c1), Edits: []TextEdit{{StartLine: 1, NewText: "A"}}}, OriginalContent: c1},
		{Request: Request{FilePath: p2, ExpectedSHA256: shaOf(c2), Edits: []TextEdit{{StartLine: 1, NewText: "B"}}}, OriginalContent: c2},
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if results[0].Err != nil || results[1].Err != nil {
		t.Fatalf("expected both files to succeed: %+v", results)
	}
	d1, _ := os.ReadFile(p1)
	d2, _ := os.ReadFile(p2)
	if string(d1) != "A\na\n" || string(d2) != "B\nb\n" {
		t.Fatalf("unexpected contents: %q %q", d1, d2)
	}
}
