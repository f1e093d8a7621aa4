package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/popilot-dev/popilot/internal/perr"
)

// ignoredDirs is the fixed blocklist spec §4.4 requires for tree/list.
var ignoredDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, ".next": true,
	".cache": true, "dist": true, "build": true, "vendor": true,
	".venv": true, "venv": true, ".tox": true, "target": true, ".idea": true,
}

type dirEntry struct {
	name  string
	isDir bool
}

func sortedEntries(path string) ([]dirEntry, error) {
	raw, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]dirEntry, 0, len(raw))
	for _, e := range raw {
		out = append(out, dirEntry{name: e.Name(), isDir: e.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].isDir != out[j].isDir {
			return out[i].isDir // dirs first
		}
		return out[i].name < out[j].name
	})
	return out, nil
}

// execListDirectory lists the immediate contents of a directory, dirs
// first, skipping the fixed blocklist.
func execListDirectory(tc *ToolContext, callID, name string, args map[string]string) (*ToolResult, error) {
	path := resolvePath(tc.WorkDir, args["path"])
	if path == "" {
		path = tc.WorkDir
	}
	entries, err := sortedEntries(path)
	if err != nil {
		return errResult(callID, name, perr.New(perr.CodeReadError, err.Error(), "")), nil
	}

	var b strings.Builder
	for _, e := range entries {
		if e.isDir && ignoredDirs[e.name] {
			continue
		}
		if e.isDir {
			fmt.Fprintf(&b, "%s/\n", e.name)
		} else {
			fmt.Fprintf(&b, "%s\n", e.name)
		}
	}
	return &ToolResult{CallID: callID, Name: name, ResultText: b.String(), Success: true}, nil
}

// execTree renders a depth-bounded recursive tree, default depth 3.
func execTree(tc *ToolContext, callID, name string, args map[string]string) (*ToolResult, error) {
	path := resolvePath(tc.WorkDir, args["path"])
	if path == "" {
		path = tc.WorkDir
	}
	depth := parseIntArg(args, "depth", 3)

	var b strings.Builder
	b.WriteString(filepath.Base(path) + "/\n")
	if err := renderTree(&b, path, "", depth); err != nil {
		return errResult(callID, name, perr.New(perr.CodeReadError, err.Error(), "")), nil
	}
	return &ToolResult{CallID: callID, Name: name, ResultText: b.String(), Success: true}, nil
}

func renderTree(b *strings.Builder, path, prefix string, depth int) error {
	if depth <= 0 {
		return nil
	}
	entries, err := sortedEntries(path)
	if err != nil {
		return err
	}
	var visible []dirEntry
	for _, e := range entries {
		if e.isDir && ignoredDirs[e.name] {
			continue
		}
		visible = append(visible, e)
	}
	for i, e := range visible {
		last := i == len(visible)-1
		connector := "├── "
		childPrefix := prefix + "│   "
		if last {
			connector = "└── "
			childPrefix = prefix + "    "
		}
		suffix := ""
		if e.isDir {
			suffix = "/"
		}
		fmt.Fprintf(b, "%s%s%s%s\n", prefix, connector, e.name, suffix)
		if e.isDir {
			if err := renderTree(b, filepath.Join(path, e.name), childPrefix, depth-1); err != nil {
				return err
			}
		}
	}
	return nil
}
