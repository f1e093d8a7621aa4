package edit

import (
	"sort"
	"strings"

	"github.com/popilot-dev/popilot/internal/perr"
)

// validate sorts edits ascending by StartLine, checks bounds, overlap,
// anchors, the whole-file guard and the total-replaced-lines tally. It
// returns the sorted edits (with EndLine clamps applied) and any
// warnings produced along the way.
func validate(lines []string, edits []TextEdit, pol Policy) ([]TextEdit, []Warning, error) {
	if len(edits) == 0 || len(edits) > pol.MaxEdits {
		return nil, nil, perr.New(perr.CodeTooManyEdits,
			"edit count must be between 1 and the configured maximum",
			"split the edit into batches of at most the allowed size")
	}

	sorted := make([]TextEdit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartLine < sorted[j].StartLine
	})

	total := len(lines)
	var warnings []Warning
	var totalReplaced int

	for i := range sorted {
		e := &sorted[i]
		mode := e.ResolvedMode()

		if e.StartLine < 1 {
			return nil, nil, perr.New(perr.CodeInvalidRange,
				"start_line must be >= 1", "use a 1-indexed start_line within the file")
		}
		switch mode {
		case ModeReplace:
			if e.StartLine > total+1 {
				return nil, nil, perr.New(perr.CodeInvalidRange,
					"start_line exceeds file length", "re-read the file to get current bounds")
			}
			if e.EndLine == nil || *e.EndLine < e.StartLine {
				return nil, nil, perr.New(perr.CodeInvalidRange,
					"end_line must be present and >= start_line for a replace", "")
			}
			if *e.EndLine > total {
				clamped := total
				e.EndLine = &clamped
				warnings = append(warnings, Warning{Message: "end_line clamped to file length"})
			}
			totalReplaced += max0(*e.EndLine-e.StartLine+1)
		case ModeInsert:
			if e.StartLine > total+1 {
				return nil, nil, perr.New(perr.CodeInvalidRange,
					"start_line exceeds file length+1 for an insert", "re-read the file to get current bounds")
			}
		}

		if mode == ModeReplace && e.Anchor != nil && e.Anchor.ExpectedText != "" {
			end := e.End()
			if end > total {
				end = total
			}
			if e.StartLine > end || e.StartLine < 1 {
				return nil, nil, perr.New(perr.CodeAnchorMismatch,
					"anchor range out of bounds", "re-read the file and recompute the anchor")
			}
			slice := strings.Join(lines[e.StartLine-1:end], "\n")
			ok := false
			if e.Anchor.Strict {
				ok = slice == e.Anchor.ExpectedText
			} else {
				ok = strings.Contains(slice, e.Anchor.ExpectedText)
			}
			if !ok {
				return nil, nil, perr.New(perr.CodeAnchorMismatch,
					"anchor expected_text not found at the given range",
					"re-read the file; the target range has changed since it was last read")
			}
		}
	}

	// Overlap: adjacent sorted edits with A.end >= B.start overlap,
	// including point-inserts sharing a line.
	for i := 0; i+1 < len(sorted); i++ {
		a, b := sorted[i], sorted[i+1]
		if a.End() >= b.StartLine {
			return nil, nil, perr.New(perr.CodeOverlappingEdits,
				"edits overlap or touch the same line", "merge the overlapping edits into one")
		}
	}

	if pol.RejectSingleEditWholeFile && len(sorted) == 1 {
		e := sorted[0]
		if e.ResolvedMode() == ModeReplace && e.StartLine == 1 && e.End() >= total {
			return nil, nil, perr.New(perr.CodeWholeFileEditRejected,
				"a single edit may not replace the entire file",
				"use create_new_file to replace file contents wholesale")
		}
	}

	if totalReplaced > pol.MaxTotalReplacedLines {
		return nil, nil, perr.New(perr.CodeMaxReplacedLinesExceeded,
			"total replaced line count exceeds the configured maximum",
			"split the edit into smaller, separately-applied batches")
	}

	return sorted, warnings, nil
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
