package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/popilot-dev/popilot/internal/perr"
)

const defaultCommandTimeout = 60 * time.Second

// execRunTerminalCommand spawns command under a POSIX shell with the
// workspace as its working directory and a wall-clock timeout (spec
// §4.4 default 60s, vs. the teacher's 120s bash tool default).
func execRunTerminalCommand(ctx context.Context, tc *ToolContext, callID, name string, args map[string]string) (*ToolResult, error) {
	command := args["command"]
	if command == "" {
		return errResult(callID, name, perr.New(perr.CodeInvalidRange, "command is required", "")), nil
	}

	timeout := defaultCommandTimeout
	if tc.CommandTimeout > 0 {
		timeout = time.Duration(tc.CommandTimeout) * time.Second
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "bash", "-c", command)
	cmd.Dir = tc.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return errResult(callID, name, perr.New(perr.CodeTerminalTimeout,
			fmt.Sprintf("command timed out after %s", timeout), "shorten the command or raise the timeout")), nil
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n--- stderr ---\n" + stderr.String()
	}
	output = truncateMiddle(output, 30_000)

	exitCode := 0
	success := true
	if err != nil {
		success = false
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return &ToolResult{
		CallID:     callID,
		Name:       name,
		ResultText: fmt.Sprintf("exit_code=%d\n%s", exitCode, output),
		Success:    success,
	}, nil
}

// truncateMiddle keeps the head and tail of a large output and elides
// the middle, matching the teacher's head+tail truncation convention.
func truncateMiddle(s string, max int) string {
	if len(s) <= max {
		return s
	}
	half := max / 2
	return s[:half] + fmt.Sprintf("\n... (%d bytes truncated) ...\n", len(s)-max) + s[len(s)-half:]
}
