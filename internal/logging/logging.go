// Package logging builds the process logger. Records are JSON lines.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON logger writing to w at or above level. A nil w means
// stdout.
func New(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
