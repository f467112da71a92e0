package logging

import (
	"io"
	"log/slog"
	"os"
)

const jsonFormat = "json"

// New builds the process-wide structured logger, choosing a JSON or
// plain-text handler based on format. An empty or unrecognized format
// falls back to text. A nil writer defaults to stdout.
func New(format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(newHandler(format, w))
}

func newHandler(format string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == jsonFormat {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
