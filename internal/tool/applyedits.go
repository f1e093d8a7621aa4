package tool

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/popilot-dev/popilot/internal/edit"
	"github.com/popilot-dev/popilot/internal/perr"
)

// textEditDTO is the wire shape of one TextEdit, as carried in the
// "edits" argument's serialized JSON text (spec §3/§6.6: the argument
// named `edits` is itself a serialized TextEdit sequence). JSON is used
// because the teacher's own tool layer and session layer serialize
// every structured payload with encoding/json; no third-party codec is
// introduced for this.
type textEditDTO struct {
	StartLine int     `json:"start_line"`
	EndLine   *int    `json:"end_line,omitempty"`
	NewText   string  `json:"new_text"`
	Mode      string  `json:"mode,omitempty"`
	Anchor    *anchorDTO `json:"anchor,omitempty"`
}

type anchorDTO struct {
	ExpectedText string `json:"expected_text"`
	Strict       bool   `json:"strict,omitempty"`
}

func decodeEdits(raw string) ([]edit.TextEdit, error) {
	var dtos []textEditDTO
	if err := json.Unmarshal([]byte(raw), &dtos); err != nil {
		return nil, err
	}
	out := make([]edit.TextEdit, len(dtos))
	for i, d := range dtos {
		te := edit.TextEdit{
			StartLine: d.StartLine,
			NewText:   d.NewText,
			EndLine:   d.EndLine,
		}
		switch d.Mode {
		case "insert":
			te.Mode = edit.ModeInsert
		case "replace":
			te.Mode = edit.ModeReplace
		}
		if d.Anchor != nil {
			te.Anchor = &edit.Anchor{ExpectedText: d.Anchor.ExpectedText, Strict: d.Anchor.Strict}
		}
		out[i] = te
	}
	return out, nil
}

// execApplyTextEdits implements file.applyTextEdits (spec §4.2): the
// authoritative, transactional multi-hunk editor. Argument decoding
// failures surface as a clean ANCHOR/INVALID_RANGE-style error rather
// than a panic, per spec §9's FromArgs convention.
func execApplyTextEdits(tc *ToolContext, callID, name string, args map[string]string) (*ToolResult, error) {
	path := resolvePath(tc.WorkDir, args["file_path"])
	if path == "" {
		return errResult(callID, name, perr.New(perr.CodeInvalidRange, "file_path is required", "")), nil
	}
	expected := args["expected_sha256"]
	if expected == "" {
		return errResult(callID, name, perr.New(perr.CodeSHA256Mismatch, "expected_sha256 is required", "re-read the file first")), nil
	}

	edits, err := decodeEdits(args["edits"])
	if err != nil {
		return errResult(callID, name, perr.New(perr.CodeInvalidRange, "could not parse edits: "+err.Error(), "resend edits as a valid JSON array")), nil
	}

	dryRun := args["dry_run"] == "true"
	createBackup := args["create_backup"] == "true"

	res, err := edit.Apply(edit.Request{
		FilePath:       path,
		ExpectedSHA256: expected,
		Edits:          edits,
		DryRun:         dryRun,
		CreateBackup:   createBackup,
		Policy:         edit.DefaultPolicy(),
	})
	if err != nil {
		return errResult(callID, name, err), nil
	}

	text := fmt.Sprintf("applied %d edit(s) to %s\nnew_sha256=%s\n+%d -%d lines\n%s",
		res.Stats.EditsApplied, path, res.NewSHA256, res.Stats.LinesAdded, res.Stats.LinesRemoved, res.Diff)
	for _, w := range res.Warnings {
		text += "warning: " + w.Message + "\n"
	}
	if res.DryRun {
		text = "[dry run] " + text
	}

	return &ToolResult{CallID: callID, Name: name, ResultText: text, Success: true}, nil
}

// parseIntArg is a small shared helper for the handful of tools that
// take a bounded integer argument as a string.
func parseIntArg(args map[string]string, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
