// Package edit implements the atomic multi-hunk file edit engine:
// SHA256-gated, range-based line edits applied transactionally with
// same-directory temp-file-and-rename atomicity.
package edit

// Mode selects how a TextEdit is applied.
type Mode string

const (
	ModeUnset   Mode = ""
	ModeInsert  Mode = "insert"
	ModeReplace Mode = "replace"
)

// Anchor is a secondary precondition on a REPLACE edit: the current text
// at the target range must contain (or, if Strict, equal) ExpectedText.
type Anchor struct {
	ExpectedText string
	Strict       bool
}

// TextEdit describes one hunk of a multi-hunk edit. StartLine and
// EndLine are 1-indexed and inclusive. EndLine is nil for a pure insert.
type TextEdit struct {
	StartLine int
	EndLine   *int
	NewText   string
	Anchor    *Anchor
	Mode      Mode
}

// ResolvedMode returns the edit's effective mode: an explicit Mode wins;
// otherwise REPLACE iff EndLine is present, else INSERT.
func (e TextEdit) ResolvedMode() Mode {
	if e.Mode != ModeUnset {
		return e.Mode
	}
	if e.EndLine != nil {
		return ModeReplace
	}
	return ModeInsert
}

// End returns the effective end line for overlap/bounds checks: EndLine
// if present, else StartLine (a point edit).
func (e TextEdit) End() int {
	if e.EndLine != nil {
		return *e.EndLine
	}
	return e.StartLine
}

// Policy bounds the edit validator and the post-apply guards.
type Policy struct {
	MaxEdits                 int
	MaxTotalReplacedLines    int
	MaxChangeRatio           float64
	RejectSingleEditWholeFile bool
	RequireNonEmpty          bool
}

// DefaultPolicy matches spec §4.2/§4.3 defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxEdits:                  50,
		MaxTotalReplacedLines:     300,
		MaxChangeRatio:            0.4,
		RejectSingleEditWholeFile: true,
		RequireNonEmpty:           true,
	}
}

// Warning is a non-fatal note surfaced alongside a successful apply,
// e.g. an EndLine clamped down to the file's line count.
type Warning struct {
	Message string
}

// Stats summarizes the effect of an apply for the caller/model.
type Stats struct {
	EditsApplied   int
	LinesAdded     int
	LinesRemoved   int
	TotalReplaced  int
}

// Result is returned by Apply, whether dry-run or committed.
type Result struct {
	NewSHA256 string
	Diff      string
	Stats     Stats
	Warnings  []Warning
	DryRun    bool
}
