package tool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/popilot-dev/popilot/internal/perr"
)

type searchMatch struct {
	LineNumber     int
	Column         int
	MatchText      string
	Line           string
	ContextBefore  []string
	ContextAfter   []string
}

// execFileSearch implements file.search (spec §4.4) natively with the
// standard regexp package rather than shelling out: the spec requires
// structured per-match output (line/column/context), which a subprocess
// text scraper cannot produce, so this is grounded in the teacher's
// grep.go only for its truncation/output-shaping conventions.
func execFileSearch(tc *ToolContext, callID, name string, args map[string]string) (*ToolResult, error) {
	path := resolvePath(tc.WorkDir, args["path"])
	pattern := args["pattern"]
	if path == "" || pattern == "" {
		return errResult(callID, name, perr.New(perr.CodeInvalidRange, "path and pattern are required", "")), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return errResult(callID, name, perr.New(perr.CodeInvalidRange, "invalid regex: "+err.Error(), "")), nil
	}

	contextLines := 2
	if v, ok := args["context_lines"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 10 {
			contextLines = n
		}
	}
	maxMatches := 50
	if v, ok := args["max_matches"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 200 {
			maxMatches = n
		}
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

	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")

	var matches []searchMatch
	truncated := false
	for i, line := range lines {
		loc := re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		if len(matches) >= maxMatches {
			truncated = true
			break
		}
		m := searchMatch{
			LineNumber: i + 1,
			Column:     loc[0],
			MatchText:  line[loc[0]:loc[1]],
			Line:       line,
		}
		for b := max0(i - contextLines); b < i; b++ {
			m.ContextBefore = append(m.ContextBefore, lines[b])
		}
		for a := i + 1; a <= min(i+contextLines, len(lines)-1); a++ {
			m.ContextAfter = append(m.ContextAfter, lines[a])
		}
		matches = append(matches, m)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "file=%s sha256=%s matches=%d truncated=%t\n", path, sha, len(matches), truncated)
	for _, m := range matches {
		fmt.Fprintf(&b, "%d:%d: %s\n", m.LineNumber, m.Column, m.MatchText)
	}

	return &ToolResult{CallID: callID, Name: name, ResultText: b.String(), Success: true}, nil
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
