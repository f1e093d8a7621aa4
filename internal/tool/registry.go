package tool

import (
	"context"
	"path/filepath"
)

// supportedNames is the full set from spec §4.4, including the
// read_file alias of file.read.
var supportedNames = map[string]Kind{
	"file.read":             KindFileRead,
	"read_file":             KindFileRead,
	"file.search":           KindFileSearch,
	"file.applyTextEdits":   KindApplyTextEdits,
	"create_new_file":       KindCreateNewFile,
	"edit_file":             KindEditFile,
	"run_terminal_command":  KindRunTerminalCommand,
	"list_directory":        KindListDirectory,
	"tree":                  KindTree,
	"find_files":            KindFindFiles,
	"git.status":            KindGitStatus,
	"git.diff":              KindGitDiff,
	"git.log":               KindGitLog,
	"git.restore":           KindGitRestore,
	"git.show":              KindGitShow,
}

// IsSupported reports whether name is one of the tools the executor
// recognizes.
func IsSupported(name string) bool {
	_, ok := supportedNames[name]
	return ok
}

// Execute dispatches a parsed tool call by name. Unsupported names
// return a ToolResult carrying the supported set rather than an error,
// so the loop controller can append it as ordinary tool-result content
// and let the model self-correct (spec §4.7 step 7).
func Execute(ctx context.Context, tc *ToolContext, callID, name string, args map[string]string) (*ToolResult, error) {
	kind, ok := supportedNames[name]
	if !ok {
		return &ToolResult{
			CallID:     callID,
			Name:       name,
			ResultText: unsupportedMessage(name),
			Success:    false,
		}, nil
	}

	switch kind {
	case KindFileRead:
		return execFileRead(tc, callID, name, args)
	case KindFileSearch:
		return execFileSearch(tc, callID, name, args)
	case KindApplyTextEdits:
		return execApplyTextEdits(tc, callID, name, args)
	case KindCreateNewFile:
		return execCreateNewFile(tc, callID, name, args)
	case KindEditFile:
		return execEditFile(tc, callID, name, args)
	case KindRunTerminalCommand:
		return execRunTerminalCommand(ctx, tc, callID, name, args)
	case KindListDirectory:
		return execListDirectory(tc, callID, name, args)
	case KindTree:
		return execTree(tc, callID, name, args)
	case KindFindFiles:
		return execFindFiles(tc, callID, name, args)
	case KindGitStatus, KindGitDiff, KindGitLog, KindGitRestore, KindGitShow:
		return execGit(ctx, tc, callID, name, kind, args)
	}
	return &ToolResult{CallID: callID, Name: name, ResultText: unsupportedMessage(name)}, nil
}

func unsupportedMessage(name string) string {
	return "tool \"" + name + "\" is not supported; supported tools are: file.read, file.search, " +
		"file.applyTextEdits, create_new_file, edit_file, read_file, run_terminal_command, " +
		"list_directory, tree, find_files, git.status, git.diff, git.log, git.restore, git.show"
}

// resolvePath joins a possibly-relative path to the workspace root;
// absolute paths are used as-is; an empty path is the caller's error to
// surface.
func resolvePath(workDir, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	if workDir == "" {
		return path
	}
	return filepath.Join(workDir, path)
}
