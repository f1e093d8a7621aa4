// Package tool implements the dispatch table over the filesystem,
// shell, search and multi-edit tools the agentic loop can invoke (spec
// §4.4). Arguments arrive from the tool-block parser as an untyped
// string map that each tool reads directly; the tool name maps to a
// Kind, and a name with no Kind in that table yields a refusal result
// rather than an error so the loop can append it uniformly.
package tool

import "github.com/popilot-dev/popilot/internal/policy"

// Kind identifies which executor a supported tool name dispatches to.
type Kind int

const (
	KindUnsupported Kind = iota
	KindFileRead
	KindFileSearch
	KindApplyTextEdits
	KindCreateNewFile
	KindEditFile
	KindRunTerminalCommand
	KindListDirectory
	KindTree
	KindFindFiles
	KindGitStatus
	KindGitDiff
	KindGitLog
	KindGitRestore
	KindGitShow
)

// FileAttachment is the side-band reference produced when a tool result
// would otherwise bloat the request text (spec §3 FileReadResult, §6.2).
type FileAttachment struct {
	ID             string
	Name           string
	PendingContent string
	MimeType       string
}

// ToolResult is the public contract's return value (spec §4.4).
type ToolResult struct {
	CallID         string
	Name           string
	ResultText     string
	Success        bool
	FileAttachment *FileAttachment
}

// ToolContext carries the ambient state a tool execution needs: the
// workspace root for path resolution, the policy mode in effect (tools
// that shell out honor it for confirmation upstream, not internally),
// and a terminal-command timeout override.
type ToolContext struct {
	WorkDir        string
	Mode           policy.Mode
	CommandTimeout int // seconds, 0 = default
}

// FileReadThreshold is the spec §3 FILE_ATTACHMENT_THRESHOLD: rendered
// content at or above this many characters is side-banded as a
// FileAttachment instead of inlined.
const FileReadThreshold = 2000
