package tool

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/popilot-dev/popilot/internal/perr"
)

// execFindFiles implements find_files (spec §4.4): a VS-Code-style
// Ctrl-P fuzzy file finder. sahilm/fuzzy supplies the base in-order
// character match (which already enforces "all query chars must appear
// in order") and its MatchedIndexes; this wraps it with the additional
// bonus/penalty terms the spec's scorer requires, since the library
// alone has no notion of exact-filename, word-boundary, or depth scoring.
func execFindFiles(tc *ToolContext, callID, name string, args map[string]string) (*ToolResult, error) {
	query := args["query"]
	if query == "" {
		return errResult(callID, name, perr.New(perr.CodeInvalidRange, "query is required", "")), nil
	}
	root := resolvePath(tc.WorkDir, args["path"])
	if root == "" {
		root = tc.WorkDir
	}

	var paths []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if ignoredDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			rel = p
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return errResult(callID, name, perr.New(perr.CodeReadError, err.Error(), "")), nil
	}

	matches := fuzzy.Find(query, paths)

	type scored struct {
		path  string
		score int
	}
	results := make([]scored, 0, len(matches))
	for _, m := range matches {
		results = append(results, scored{path: m.Str, score: rankScore(query, m.Str, m.MatchedIndexes)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if len(results) > 50 {
		results = results[:50]
	}

	var b strings.Builder
	for _, r := range results {
		b.WriteString(r.path)
		b.WriteByte('\n')
	}
	return &ToolResult{CallID: callID, Name: name, ResultText: b.String(), Success: true}, nil
}

// rankScore applies the spec §4.4 scoring terms on top of a base
// in-order character match already confirmed by sahilm/fuzzy.
func rankScore(query, path string, matchedIndexes []int) int {
	base := filepath.Base(path)
	lowerBase := strings.ToLower(base)
	lowerQuery := strings.ToLower(query)

	score := 0
	switch {
	case lowerBase == lowerQuery:
		score += 1000
	case strings.HasPrefix(lowerBase, lowerQuery):
		score += 500
	case strings.Contains(lowerBase, lowerQuery):
		score += 200
	}

	// Consecutive-run bonus: reward adjacent matched indexes.
	consecutive := 0
	for i := 1; i < len(matchedIndexes); i++ {
		if matchedIndexes[i] == matchedIndexes[i-1]+1 {
			consecutive++
		}
	}
	score += consecutive * 10

	// Word-boundary / camel-hump bonus: a matched index right after a
	// separator or a lowercase->uppercase transition.
	for _, idx := range matchedIndexes {
		if idx == 0 {
			score += 5
			continue
		}
		prev := path[idx-1]
		cur := path[idx]
		if prev == '/' || prev == '_' || prev == '-' || prev == '.' {
			score += 5
		} else if isLower(prev) && isUpper(cur) {
			score += 5
		}
	}

	// Spread penalty: matches scattered far apart in a long string cost
	// more than a tight cluster.
	if len(matchedIndexes) > 1 {
		spread := matchedIndexes[len(matchedIndexes)-1] - matchedIndexes[0]
		score -= spread / 2
	}

	// Depth penalty: deeper paths cost a little, all else equal.
	score -= strings.Count(path, string(filepath.Separator)) * 2

	return score
}

func isLower(b byte) bool { return b >= 'a' && b <= 'z' }
func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
