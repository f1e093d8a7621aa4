package edit

import (
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/popilot-dev/popilot/internal/perr"
)

// Request is the input to Apply, mirroring spec §4.2's file.applyTextEdits.
type Request struct {
	FilePath       string
	ExpectedSHA256 string
	Edits          []TextEdit
	DryRun         bool
	CreateBackup   bool
	Policy         Policy
}

// Apply validates and, unless DryRun, atomically commits a multi-hunk
// edit to a single file. Preconditions are checked in the order spec.md
// §4.2 documents; the first failure aborts with its specific error code.
func Apply(req Request) (*Result, error) {
	pol := req.Policy
	if pol.MaxEdits == 0 {
		pol = DefaultPolicy()
	}

	raw, err := os.ReadFile(req.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.New(perr.CodeFileNotFound,
				"file does not exist: "+req.FilePath, "use create_new_file to create it first")
		}
		return nil, perr.New(perr.CodeReadError, err.Error(), "retry the read")
	}
	rawStr := string(raw)

	if sha256Hex(raw) != req.ExpectedSHA256 {
		return nil, perr.New(perr.CodeSHA256Mismatch,
			"file contents changed since expected_sha256 was computed",
			"re-read the file to get its current sha256 and retry")
	}

	e := detectEOL(rawStr)
	lines := splitLines(rawStr, e)

	sorted, warnings, err := validate(lines, req.Edits, pol)
	if err != nil {
		return nil, err
	}

	newLines, stats := applyInMemory(lines, sorted)
	newRaw := joinLines(newLines, e)

	if err := checkResultGuards(rawStr, newRaw, pol); err != nil {
		return nil, err
	}

	newSHA := sha256Hex([]byte(newRaw))
	diff := unifiedDiff(req.FilePath, lines, newLines)

	result := &Result{
		NewSHA256: newSHA,
		Diff:      diff,
		Stats:     stats,
		Warnings:  warnings,
		DryRun:    req.DryRun,
	}

	if req.DryRun {
		return result, nil
	}

	info, statErr := os.Stat(req.FilePath)
	mode := os.FileMode(0o644)
	if statErr == nil {
		mode = info.Mode()
	}
	if err := atomicWrite(req.FilePath, []byte(newRaw), mode, req.CreateBackup); err != nil {
		return nil, err
	}

	return result, nil
}

// MultiFileEdit is one file's contribution to a multi-file transaction.
type MultiFileEdit struct {
	Request         Request
	OriginalContent string // supplied by the caller for phase-2 rollback
}

// MultiResult is the per-file outcome of a multi-file commit.
type MultiResult struct {
	FilePath string
	Result   *Result
	Err      error
}

// ApplyMulti performs a two-phase commit across multiple files: phase 1
// stages a temp file per edit (in parallel, via errgroup) and validates
// everything in memory; phase 2 renames every staged file into place.
// If any phase-2 rename fails, already-renamed targets are restored from
// the caller-supplied OriginalContent where available.
func ApplyMulti(edits []MultiFileEdit) ([]MultiResult, error) {
	type staged struct {
		path     string
		tmp      string
		mode     os.FileMode
		result   *Result
		original string
	}

	stagedFiles := make([]staged, len(edits))
	results := make([]MultiResult, len(edits))

	g := new(errgroup.Group)
	for i, me := range edits {
		i, me := i, me
		g.Go(func() error {
			pol := me.Request.Policy
			if pol.MaxEdits == 0 {
				pol = DefaultPolicy()
			}

			raw, err := os.ReadFile(me.Request.FilePath)
			if err != nil {
				if os.IsNotExist(err) {
					results[i] = MultiResult{FilePath: me.Request.FilePath, Err: perr.New(perr.CodeFileNotFound,
						"file does not exist: "+me.Request.FilePath, "use create_new_file to create it first")}
					return nil
				}
				results[i] = MultiResult{FilePath: me.Request.FilePath, Err: perr.New(perr.CodeReadError, err.Error(), "retry the read")}
				return nil
			}
			rawStr := string(raw)
			if sha256Hex(raw) != me.Request.ExpectedSHA256 {
				results[i] = MultiResult{FilePath: me.Request.FilePath, Err: perr.New(perr.CodeSHA256Mismatch,
					"file contents changed since expected_sha256 was computed",
					"re-read the file to get its current sha256 and retry")}
				return nil
			}

			e := detectEOL(rawStr)
			lines := splitLines(rawStr, e)
			sorted, warnings, err := validate(lines, me.Request.Edits, pol)
			if err != nil {
				results[i] = MultiResult{FilePath: me.Request.FilePath, Err: err}
				return nil
			}
			newLines, stats := applyInMemory(lines, sorted)
			newRaw := joinLines(newLines, e)
			if err := checkResultGuards(rawStr, newRaw, pol); err != nil {
				results[i] = MultiResult{FilePath: me.Request.FilePath, Err: err}
				return nil
			}

			newSHA := sha256Hex([]byte(newRaw))
			diff := unifiedDiff(me.Request.FilePath, lines, newLines)
			res := &Result{NewSHA256: newSHA, Diff: diff, Stats: stats, Warnings: warnings, DryRun: me.Request.DryRun}

			if me.Request.DryRun {
				results[i] = MultiResult{FilePath: me.Request.FilePath, Result: res}
				return nil
			}

			info, statErr := os.Stat(me.Request.FilePath)
			mode := os.FileMode(0o644)
			if statErr == nil {
				mode = info.Mode()
			}
			tmp, err := stageTempFile(me.Request.FilePath, []byte(newRaw), mode)
			if err != nil {
				results[i] = MultiResult{FilePath: me.Request.FilePath, Err: err}
				return nil
			}
			stagedFiles[i] = staged{path: me.Request.FilePath, tmp: tmp, mode: mode, result: res, original: me.OriginalContent}
			results[i] = MultiResult{FilePath: me.Request.FilePath, Result: res}
			return nil
		})
	}
	// errgroup.Group.Go closures never return non-nil here; Wait always
	// succeeds, but the call is kept for future cancellable variants.
	_ = g.Wait()

	// Phase 2: rename every successfully staged file. On a failure,
	// restore any already-renamed targets from OriginalContent.
	renamed := make([]staged, 0, len(stagedFiles))
	var phase2Err error
	for i, s := range stagedFiles {
		if s.tmp == "" {
			continue // validation failed in phase 1, nothing staged
		}
		if err := os.Rename(s.tmp, s.path); err != nil {
			os.Remove(s.tmp)
			results[i].Err = perr.New(perr.CodeAtomicWriteFailed,
				"failed to rename staged file into place: "+err.Error(), "retry the multi-file edit")
			results[i].Result = nil
			phase2Err = results[i].Err
			break
		}
		renamed = append(renamed, s)
	}

	if phase2Err != nil {
		for _, s := range renamed {
			if s.original != "" {
				_ = os.WriteFile(s.path, []byte(s.original), s.mode)
			}
		}
		return results, phase2Err
	}

	return results, nil
}
