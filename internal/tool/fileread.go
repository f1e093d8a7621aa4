package tool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/popilot-dev/popilot/internal/perr"
)

// execFileRead implements file.read / read_file (spec §4.4): read
// UTF-8, hash the raw bytes, clamp to the requested 1-indexed inclusive
// range, and side-band large results as a FileAttachment.
func execFileRead(tc *ToolContext, callID, name string, args map[string]string) (*ToolResult, error) {
	path := resolvePath(tc.WorkDir, args["path"])
	if path == "" {
		return errResult(callID, name, perr.New(perr.CodeInvalidRange, "path is required", "")), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errResult(callID, name, perr.New(perr.CodeFileNotFound, "file does not exist: "+path, "")), nil
		}
		return errResult(callID, name, perr.New(perr.CodeReadError, err.Error(), "")), nil
	}

	sum := sha256.Sum256(raw)
	sha := hex.EncodeToString(sum[:])

	content := string(raw)
	trailingEOL := strings.HasSuffix(content, "\n")
	body := content
	if trailingEOL {
		body = strings.TrimSuffix(body, "\n")
	}
	lines := strings.Split(body, "\n")
	total := len(lines)

	start, end := 1, total
	if v, ok := args["offset"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			start = n
		}
	}
	if v, ok := args["limit"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			end = start + n - 1
		}
	}
	if start < 1 {
		start = 1
	}
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	if end < start {
		end = start
	}

	var rendered strings.Builder
	if total > 0 {
		for i := start; i <= end; i++ {
			fmt.Fprintf(&rendered, "%6d\t%s\n", i, lines[i-1])
		}
	}
	renderedStr := rendered.String()

	result := &ToolResult{
		CallID:  callID,
		Name:    name,
		Success: true,
	}

	if len(renderedStr) >= FileReadThreshold {
		result.ResultText = fmt.Sprintf("file=%s sha256=%s total_lines=%d range=%d-%d (content attached, %d bytes)",
			path, sha, total, start, end, len(renderedStr))
		result.FileAttachment = &FileAttachment{
			ID:             uuid.NewString(),
			Name:           path,
			PendingContent: renderedStr,
			MimeType:       "text/plain",
		}
	} else {
		result.ResultText = fmt.Sprintf("file=%s sha256=%s total_lines=%d range=%d-%d\n%s",
			path, sha, total, start, end, renderedStr)
	}

	return result, nil
}

func errResult(callID, name string, err error) *ToolResult {
	return &ToolResult{CallID: callID, Name: name, ResultText: err.Error(), Success: false}
}
