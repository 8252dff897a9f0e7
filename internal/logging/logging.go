// Package logging builds the process-wide structured logger, the same
// slog.NewJSONHandler(os.Stderr, ...) + Verbose-bumps-to-Debug shape
// cmd/depot/main.go uses.
package logging

import (
	"io"
	"log/slog"
)

// New builds a JSON logger writing to w, at Info level unless verbose.
func New(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
