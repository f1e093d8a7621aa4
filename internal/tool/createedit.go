package tool

import (
	"fmt"
	"os"

	"github.com/popilot-dev/popilot/internal/edit"
	"github.com/popilot-dev/popilot/internal/perr"
)

// execCreateNewFile creates (or wholesale overwrites) a file, atomically.
func execCreateNewFile(tc *ToolContext, callID, name string, args map[string]string) (*ToolResult, error) {
	path := resolvePath(tc.WorkDir, args["path"])
	if path == "" {
		return errResult(callID, name, perr.New(perr.CodeInvalidRange, "path is required", "")), nil
	}
	content := args["content"]

	_, existErr := os.Stat(path)
	existed := existErr == nil

	if err := edit.WriteWhole(path, []byte(content), false); err != nil {
		return errResult(callID, name, err), nil
	}

	action := "created"
	if existed {
		action = "overwrote"
	}
	return &ToolResult{
		CallID:     callID,
		Name:       name,
		ResultText: fmt.Sprintf("%s %s (%d bytes)", action, path, len(content)),
		Success:    true,
	}, nil
}

// execEditFile implements edit_file: a convenience single old_string ->
// new_string replacement, tolerant of minor whitespace drift (see
// fuzzyreplace.go), written atomically. Unlike file.applyTextEdits it
// has no SHA256 precondition; it is meant for quick, low-risk touch-ups
// the policy engine still gates via its own Ask/Allow/Deny rule.
func execEditFile(tc *ToolContext, callID, name string, args map[string]string) (*ToolResult, error) {
	path := resolvePath(tc.WorkDir, args["path"])
	if path == "" {
		return errResult(callID, name, perr.New(perr.CodeInvalidRange, "path is required", "")), nil
	}
	oldText := args["old_string"]
	newText := args["new_string"]
	if oldText == "" {
		return errResult(callID, name, perr.New(perr.CodeInvalidRange, "old_string is required", "")), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errResult(callID, name, perr.New(perr.CodeFileNotFound, "file does not exist: "+path, "")), nil
		}
		return errResult(callID, name, perr.New(perr.CodeReadError, err.Error(), "")), nil
	}

	updated, ok := fuzzyFindReplace(string(raw), oldText, newText)
	if !ok {
		return errResult(callID, name, perr.New(perr.CodeAnchorMismatch,
			"old_string was not found in the file", "re-read the file and retry with an exact excerpt")), nil
	}

	if err := edit.WriteWhole(path, []byte(updated), false); err != nil {
		return errResult(callID, name, err), nil
	}

	return &ToolResult{CallID: callID, Name: name, ResultText: fmt.Sprintf("edited %s", path), Success: true}, nil
}
