// Package applog wires the process-wide structured logger. The TUI owns
// the terminal's raw mode, so nothing here ever writes to stdout/stderr;
// everything goes to a file under the workspace's state directory.
package applog

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Init opens the log file at <workspaceDir>/.popilot/log/popilot.log and
// configures the package-wide logger at the given level. Safe to call
// more than once; only the first call takes effect.
func Init(workspaceDir, level string) error {
	var initErr error
	once.Do(func() {
		dir := filepath.Join(workspaceDir, ".popilot", "log")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			initErr = err
			logger = zerolog.New(io.Discard)
			return
		}
		f, err := os.OpenFile(filepath.Join(dir, "popilot.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			initErr = err
			logger = zerolog.New(io.Discard)
			return
		}
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		logger = zerolog.New(f).Level(lvl).With().Timestamp().Logger()
	})
	return initErr
}

// Get returns the process logger. Before Init is called it silently
// discards output, so packages may log unconditionally during tests.
func Get() *zerolog.Logger {
	return &logger
}

// For returns a child logger tagged with a component name.
func For(component string) zerolog.Logger {
	return Get().With().Str("component", component).Logger()
}

func init() {
	logger = zerolog.New(io.Discard)
}
