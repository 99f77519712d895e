package pngine

import (
	"log/slog"

	"github.com/gogpu/pngine/internal/logging"
)

// SetLogger configures the logger for pngine and all its sub-packages.
// By default, pngine produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use. Pass nil to disable logging
// (restore the default silent behavior).
//
// Log levels used by pngine:
//   - [slog.LevelDebug]: per-opcode diagnostics, descriptor decode detail
//   - [slog.LevelInfo]: lifecycle events (module loaded, adapter selected)
//   - [slog.LevelWarn]: non-fatal issues (missing exec_pass target,
//     command-buffer drops, forced end_pass on submit)
func SetLogger(l *slog.Logger) {
	logging.SetLogger(l)
}

// Logger returns the current logger used by pngine. Sub-packages share
// the same configuration.
func Logger() *slog.Logger {
	return logging.Logger()
}
