package edit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/popilot-dev/popilot/internal/perr"
)

// eol describes the line-ending convention detected in a file.
type eol struct {
	sep           string // "\r\n" or "\n"
	trailingBreak bool   // did the raw content end with a line break
}

func detectEOL(raw string) eol {
	sep := "\n"
	if strings.Contains(raw, "\r\n") {
		sep = "\r\n"
	}
	trailing := strings.HasSuffix(raw, sep)
	return eol{sep: sep, trailingBreak: trailing}
}

// splitLines splits raw content on the detected EOL, dropping the final
// empty element produced by a trailing terminator so callers work with
// a plain line array; rejoining must reattach the terminator.
func splitLines(raw string, e eol) []string {
	if raw == "" {
		return nil
	}
	s := raw
	if e.trailingBreak {
		s = strings.TrimSuffix(s, e.sep)
	}
	return strings.Split(s, e.sep)
}

func joinLines(lines []string, e eol) string {
	out := strings.Join(lines, e.sep)
	if e.trailingBreak {
		out += e.sep
	}
	return out
}

// sha256Hex returns the hex-encoded SHA256 of raw, unnormalized bytes.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// applyInMemory walks sorted, validated edits in reverse order so that
// earlier edits' line indices stay valid, and returns the resulting
// lines plus stats.
func applyInMemory(lines []string, sorted []TextEdit) ([]string, Stats) {
	out := append([]string(nil), lines...)
	var stats Stats

	for i := len(sorted) - 1; i >= 0; i-- {
		e := sorted[i]
		mode := e.ResolvedMode()
		newLines := splitNewText(e.NewText)

		switch mode {
		case ModeReplace:
			start := e.StartLine - 1
			end := e.End() // inclusive, 1-indexed -> exclusive bound at End()
			removed := end - start
			out = spliceLines(out, start, removed, newLines)
			stats.LinesRemoved += removed
			stats.LinesAdded += len(newLines)
			stats.TotalReplaced += removed
		case ModeInsert:
			start := e.StartLine - 1
			out = spliceLines(out, start, 0, newLines)
			stats.LinesAdded += len(newLines)
		}
		stats.EditsApplied++
	}

	return out, stats
}

// splitNewText splits an edit's replacement text into lines, trimming a
// single trailing terminator so it doesn't produce a spurious blank
// line at the end of the spliced region.
func splitNewText(text string) []string {
	if text == "" {
		return []string{""}
	}
	t := text
	t = strings.TrimSuffix(t, "\r\n")
	if strings.HasSuffix(text, "\r\n") {
		// already trimmed above
	} else {
		t = strings.TrimSuffix(t, "\n")
	}
	return strings.Split(t, "\n")
}

func spliceLines(lines []string, start, remove int, insert []string) []string {
	if start > len(lines) {
		start = len(lines)
	}
	end := start + remove
	if end > len(lines) {
		end = len(lines)
	}
	out := make([]string, 0, len(lines)-remove+len(insert))
	out = append(out, lines[:start]...)
	out = append(out, insert...)
	out = append(out, lines[end:]...)
	return out
}

// checkResultGuards enforces the post-apply guards from spec §4.2 step 4.
func checkResultGuards(oldRaw, newRaw string, pol Policy) error {
	if pol.RequireNonEmpty && strings.TrimSpace(newRaw) == "" {
		return perr.New(perr.CodeEmptyResult,
			"the edit result is empty or whitespace-only",
			"revise the edit so the file retains meaningful content")
	}
	oldLen := len(oldRaw)
	if oldLen > 100 {
		newLen := len(newRaw)
		diff := newLen - oldLen
		if diff < 0 {
			diff = -diff
		}
		ratio := float64(diff) / float64(oldLen)
		if ratio > pol.MaxChangeRatio {
			return perr.New(perr.CodeMaxChangeRatioExceeded,
				"the edit changes more of the file than the configured ratio allows",
				"split the change into smaller, targeted edits")
		}
	}
	return nil
}

// unifiedDiff produces a minimal unified diff between two line arrays
// with 3 lines of leading context. It is intended for human/model
// confirmation, not byte-identical parity with any particular diff tool.
func unifiedDiff(path string, oldLines, newLines []string) string {
	const context = 3

	type op struct {
		kind byte // ' ', '-', '+'
		text string
	}

	// naive LCS-free diff: find the common prefix/suffix and treat the
	// differing middle as one replaced block. This is sufficient for
	// the confirmation use case and always yields a syntactically valid
	// unified diff.
	oldN, newN := len(oldLines), len(newLines)
	prefix := 0
	for prefix < oldN && prefix < newN && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	oldSuffix, newSuffix := oldN, newN
	for oldSuffix > prefix && newSuffix > prefix && oldLines[oldSuffix-1] == newLines[newSuffix-1] {
		oldSuffix--
		newSuffix--
	}

	var ops []op
	ctxStart := prefix - context
	if ctxStart < 0 {
		ctxStart = 0
	}
	for i := ctxStart; i < prefix; i++ {
		ops = append(ops, op{' ', oldLines[i]})
	}
	for i := prefix; i < oldSuffix; i++ {
		ops = append(ops, op{'-', oldLines[i]})
	}
	for i := prefix; i < newSuffix; i++ {
		ops = append(ops, op{'+', newLines[i]})
	}
	ctxEnd := oldSuffix + context
	if ctxEnd > oldN {
		ctxEnd = oldN
	}
	for i := oldSuffix; i < ctxEnd; i++ {
		ops = append(ops, op{' ', oldLines[i]})
	}

	oldStart := ctxStart + 1
	newStart := ctxStart + 1
	oldCount := ctxEnd - ctxStart
	newCount := oldCount - (oldSuffix - prefix) + (newSuffix - prefix)

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
	for _, o := range ops {
		b.WriteByte(o.kind)
		b.WriteString(o.text)
		b.WriteByte('\n')
	}
	return b.String()
}
