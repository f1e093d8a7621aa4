// Package toolparse extracts tool-call blocks from a model's raw,
// corruption-prone streamed output. The model is never given a
// structured tool-calling API; instead it emits one of several tolerated
// fence/marker grammars inline in its text, and this package is
// responsible for recognizing them without losing user-visible prose.
package toolparse

// ToolCall is one parsed invocation: a tool name, its raw string-keyed
// arguments, and the exact source text the call was parsed from (useful
// for diagnostics and for replaying a malformed call back to the model).
type ToolCall struct {
	ToolName string
	Args     map[string]string
	RawBlock string
}

type openerKind int

const (
	openerNone openerKind = iota
	openerFence
	openerBracket
	openerLiteral
	openerBare
)

// maxBuffer is the streaming fail-safe: if a tool block never closes
// within this many characters, it is flushed back out as plain text.
const maxBuffer = 100_000

// crossChunkKeep is how many trailing characters of plain-text output are
// held back between streaming chunks, in case a start marker straddles
// the chunk boundary.
const crossChunkKeep = 20
