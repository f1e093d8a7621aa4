package tool

import "strings"

// fuzzyReplacer is one strategy for locating oldText inside content.
// Adapted from the teacher's multi-strategy old_string/new_string
// editor: rather than the teacher's exact algorithm, edit_file only
// needs "find the best single occurrence", so the strategy list here is
// trimmed to the three that matter for a single confirm-then-write flow
// and wired into the atomic writer instead of the teacher's direct
// os.WriteFile.
type fuzzyReplacer func(content, oldText string) (start, end int, ok bool)

func simpleReplacer(content, oldText string) (int, int, bool) {
	idx := strings.Index(content, oldText)
	if idx < 0 {
		return 0, 0, false
	}
	return idx, idx + len(oldText), true
}

// lineTrimmedReplacer matches oldText against the content with leading
// and trailing whitespace on each line ignored, tolerating the model
// reproducing a block with slightly different indentation.
func lineTrimmedReplacer(content, oldText string) (int, int, bool) {
	oldLines := strings.Split(oldText, "\n")
	contentLines := strings.Split(content, "\n")
	if len(oldLines) == 0 || len(oldLines) > len(contentLines) {
		return 0, 0, false
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	for start := 0; start+len(oldLines) <= len(contentLines); start++ {
		match := true
		for j, ol := range oldLines {
			if trim(contentLines[start+j]) != trim(ol) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		byteStart := lineOffset(contentLines, start)
		// The span stops before the '\n' that ends the last matched line.
		byteEnd := lineOffset(contentLines, start+len(oldLines)) - 1
		return byteStart, byteEnd, true
	}
	return 0, 0, false
}

func lineOffset(lines []string, n int) int {
	off := 0
	for i := 0; i < n && i < len(lines); i++ {
		off += len(lines[i]) + 1 // +1 for the stripped '\n'
	}
	return off
}

// whitespaceNormalizedReplacer collapses runs of whitespace to a single
// space on both sides before comparing, tolerating reformatted blocks.
func whitespaceNormalizedReplacer(content, oldText string) (int, int, bool) {
	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	target := normalize(oldText)
	if target == "" {
		return 0, 0, false
	}
	normContent := normalize(content)
	idx := strings.Index(normContent, target)
	if idx < 0 {
		return 0, 0, false
	}
	// Map the normalized-string offset back to the original by scanning;
	// acceptable here since edit_file operates on already-small files the
	// model has just read.
	for i := 0; i < len(content); i++ {
		if c := content[i]; c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		// Offset of content[i] within normalize(content).
		if len(normalize(content[:i]+"x"))-1 == idx {
			for end := i; end <= len(content); end++ {
				if normalize(content[i:end]) == target {
					return i, end, true
				}
			}
			break
		}
	}
	return 0, 0, false
}

var replacers = []fuzzyReplacer{simpleReplacer, lineTrimmedReplacer, whitespaceNormalizedReplacer}

// fuzzyFindReplace tries each replacer strategy in order and returns the
// content with the first match's span replaced by newText.
func fuzzyFindReplace(content, oldText, newText string) (string, bool) {
	for _, r := range replacers {
		if start, end, ok := r(content, oldText); ok {
			return content[:start] + newText + content[end:], true
		}
	}
	return "", false
}
