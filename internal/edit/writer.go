package edit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/popilot-dev/popilot/internal/perr"
)

// atomicWrite writes data to path via a dot-prefixed temp file in the
// same directory followed by a rename, so the rename is same-filesystem
// and POSIX-atomic: either it lands (success) or path is untouched.
func atomicWrite(path string, data []byte, mode os.FileMode, createBackup bool) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	if createBackup {
		if orig, err := os.ReadFile(path); err == nil {
			if err := os.WriteFile(path+".bak", orig, mode); err != nil {
				return perr.New(perr.CodeAtomicWriteFailed,
					"failed to write backup file: "+err.Error(), "retry without create_backup or check disk space")
			}
		}
	}

	tmp, err := tempFilePath(dir, base)
	if err != nil {
		return perr.New(perr.CodeAtomicWriteFailed, err.Error(), "retry the write")
	}

	if err := os.WriteFile(tmp, data, mode); err != nil {
		os.Remove(tmp)
		return perr.New(perr.CodeAtomicWriteFailed, "failed to write temp file: "+err.Error(), "retry the write")
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return perr.New(perr.CodeAtomicWriteFailed, "failed to rename temp file into place: "+err.Error(), "retry the write")
	}

	return nil
}

// WriteWhole atomically writes an entire file's contents via the same
// temp-file-and-rename discipline Apply uses, for tools (create_new_file,
// edit_file) that replace a file wholesale rather than hunk-by-hunk.
func WriteWhole(path string, data []byte, createBackup bool) error {
	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return perr.New(perr.CodeAtomicWriteFailed, err.Error(), "check directory permissions and retry")
		}
	}
	return atomicWrite(path, data, mode, createBackup)
}

// stageTempFile writes data to a temp file in the target's directory and
// returns its path without renaming, for two-phase multi-file commits.
func stageTempFile(path string, data []byte, mode os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := tempFilePath(dir, base)
	if err != nil {
		return "", perr.New(perr.CodeAtomicWriteFailed, err.Error(), "retry the write")
	}
	if err := os.WriteFile(tmp, data, mode); err != nil {
		os.Remove(tmp)
		return "", perr.New(perr.CodeAtomicWriteFailed, "failed to write temp file: "+err.Error(), "retry the write")
	}
	return tmp, nil
}

func tempFilePath(dir, base string) (string, error) {
	var rnd [4]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, hex.EncodeToString(rnd[:]))), nil
}
