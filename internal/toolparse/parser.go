package toolparse

import "strings"

type blockState struct {
	kind     openerKind
	toolName string
	args     map[string]string
	rawLines []string

	inArg       bool
	curArgName  string
	curArgLines []string
}

func newBlock(kind openerKind, openerLine string) *blockState {
	return &blockState{
		kind:     kind,
		args:     map[string]string{},
		rawLines: []string{openerLine},
	}
}

func (b *blockState) beginArg(name, srcLine string) {
	b.rawLines = append(b.rawLines, srcLine)
	b.inArg = true
	b.curArgName = name
	b.curArgLines = nil
}

func (b *blockState) appendArgLine(line string) {
	b.rawLines = append(b.rawLines, line)
	b.curArgLines = append(b.curArgLines, line)
}

func (b *blockState) commitArg(endLine string) {
	b.rawLines = append(b.rawLines, endLine)
	b.args[b.curArgName] = strings.Join(b.curArgLines, "\n")
	b.inArg = false
	b.curArgName = ""
	b.curArgLines = nil
}

func (b *blockState) finish(closingLine string) ToolCall {
	if closingLine != "" {
		b.rawLines = append(b.rawLines, closingLine)
	}
	return ToolCall{
		ToolName: b.toolName,
		Args:     b.args,
		RawBlock: strings.Join(b.rawLines, "\n"),
	}
}

func isOpenerLine(trimmed string) (openerKind, bool) {
	switch trimmed {
	case "```tool":
		return openerFence, true
	case "[CODE]tool":
		return openerBracket, true
	case "CODEBLOCK tool":
		return openerLiteral, true
	}
	if strings.HasPrefix(trimmed, "TOOL_NAME: ") {
		return openerBare, true
	}
	return openerNone, false
}

func isCloserLine(trimmed string, kind openerKind) bool {
	switch kind {
	case openerFence:
		return trimmed == "```"
	case openerBracket:
		return trimmed == "[CODE]"
	case openerLiteral:
		return trimmed == "CODEBLOCK"
	}
	return false
}

// ExtractAll scans the full accumulated response text and returns every
// well-formed tool call found in it, in document order. It never returns
// an error: a block with no TOOL_NAME line is malformed and produces no
// ToolCall, its text instead surviving into the cleaned display output
// (see RemoveToolBlocks).
func ExtractAll(text string) []ToolCall {
	calls, _ := scan(text)
	return calls
}

// RemoveToolBlocks strips every recognized tool block out of text,
// collapsing runs of blank lines left behind, and returns the remaining
// user-visible prose.
func RemoveToolBlocks(text string) string {
	_, cleaned := scan(text)
	return cleaned
}

// scan is the single pass shared by ExtractAll and RemoveToolBlocks.
func scan(text string) ([]ToolCall, string) {
	lines := strings.Split(text, "\n")
	var calls []ToolCall
	var prose []string
	var block *blockState

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if block == nil {
			if kind, ok := isOpenerLine(trimmed); ok {
				block = newBlock(kind, line)
				if kind == openerBare {
					block.toolName = strings.TrimSpace(strings.TrimPrefix(trimmed, "TOOL_NAME: "))
				}
				i++
				continue
			}
			prose = append(prose, line)
			i++
			continue
		}

		if block.inArg {
			if trimmed == "END_ARG" {
				block.commitArg(line)
				i++
				continue
			}
			block.appendArgLine(line)
			i++
			continue
		}

		switch {
		case trimmed == "":
			// A blank line after at least one committed/no arg closes a
			// bare (unfenced) block; fenced forms require their own
			// closing marker and simply accumulate blank lines as raw.
			if block.kind == openerBare && block.toolName != "" {
				calls = append(calls, block.finish(""))
				block = nil
			} else {
				block.rawLines = append(block.rawLines, line)
			}
			i++
		case block.kind == openerBare && block.toolName != "" && strings.HasPrefix(trimmed, "TOOL_NAME: "):
			// A second TOOL_NAME line starts a fresh bare call: the
			// previous one had no args (zero-argument form) and is done.
			calls = append(calls, block.finish(""))
			block = newBlock(openerBare, line)
			block.toolName = strings.TrimSpace(strings.TrimPrefix(trimmed, "TOOL_NAME: "))
			i++
		case strings.HasPrefix(trimmed, "TOOL_NAME: "):
			block.toolName = strings.TrimSpace(strings.TrimPrefix(trimmed, "TOOL_NAME: "))
			block.rawLines = append(block.rawLines, line)
			i++
		case strings.HasPrefix(trimmed, "BEGIN_ARG: "):
			block.beginArg(strings.TrimSpace(strings.TrimPrefix(trimmed, "BEGIN_ARG: ")), line)
			i++
		case isCloserLine(trimmed, block.kind):
			if block.toolName != "" {
				calls = append(calls, block.finish(line))
			} else {
				// Malformed: the block closed without a TOOL_NAME line, so
				// its text stays in the display output.
				prose = append(prose, block.rawLines...)
				prose = append(prose, line)
			}
			block = nil
			i++
		default:
			if block.kind == openerBare {
				if kind, ok := isOpenerLine(trimmed); ok {
					// Zero-argument bare form: a new opener starts before
					// this one ever closed. Finish the current call and
					// reprocess this line as a fresh block start.
					calls = append(calls, block.finish(""))
					block = newBlock(kind, line)
					if kind == openerBare {
						block.toolName = strings.TrimSpace(strings.TrimPrefix(trimmed, "TOOL_NAME: "))
					}
					i++
					continue
				}
			}
			block.rawLines = append(block.rawLines, line)
			i++
		}
	}

	if block != nil {
		if block.toolName != "" {
			calls = append(calls, block.finish(""))
		} else {
			// Malformed: no TOOL_NAME ever appeared. Treat the captured
			// text as ordinary display output rather than dropping it.
			prose = append(prose, block.rawLines...)
		}
	}

	return calls, collapseBlankRuns(strings.Join(prose, "\n"))
}

// collapseBlankRuns collapses 3+ consecutive newlines down to 2,
// matching the loop controller's display-filtering convention (spec
// §4.7 step 3) so removing a tool block doesn't leave a visible gap.
func collapseBlankRuns(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
