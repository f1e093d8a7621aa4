package tool

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/popilot-dev/popilot/internal/perr"
)

// execGit dispatches the five-operation git subset spec §4.4 names:
// status, diff, log, restore, show. Adapted from the teacher's git.go
// operation switch (same default-flags-per-operation idea, same
// CombinedOutput execution), trimmed to the named subset and away from
// the open-ended "custom"/branch/commit/push surface the spec excludes.
func execGit(ctx context.Context, tc *ToolContext, callID, name string, kind Kind, args map[string]string) (*ToolResult, error) {
	var cmdArgs []string

	switch kind {
	case KindGitStatus:
		cmdArgs = []string{"status", "--short", "--branch"}
	case KindGitDiff:
		cmdArgs = []string{"diff"}
		if path := args["path"]; path != "" {
			cmdArgs = append(cmdArgs, "--", path)
		}
	case KindGitLog:
		cmdArgs = []string{"log", "--oneline", "--decorate", "-20"}
		if path := args["path"]; path != "" {
			cmdArgs = append(cmdArgs, "--", path)
		}
	case KindGitRestore:
		path := args["path"]
		if path == "" {
			return errResult(callID, name, perr.New(perr.CodeInvalidRange, "path is required for git.restore", "")), nil
		}
		cmdArgs = []string{"restore", "--", path}
	case KindGitShow:
		ref := args["ref"]
		if ref == "" {
			ref = "HEAD"
		}
		cmdArgs = []string{"show", ref}
	default:
		return errResult(callID, name, perr.New(perr.CodeUnsupportedTool, fmt.Sprintf("unsupported git kind for %q", name), "")), nil
	}

	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	cmd.Dir = tc.WorkDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return &ToolResult{
			CallID:     callID,
			Name:       name,
			ResultText: fmt.Sprintf("git %v failed: %s\n%s", cmdArgs, err, truncateMiddle(string(output), 10_000)),
			Success:    false,
		}, nil
	}

	return &ToolResult{
		CallID:     callID,
		Name:       name,
		ResultText: truncateMiddle(string(output), 30_000),
		Success:    true,
	}, nil
}
