package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON in production so the operational
// channel (audit-write failures included) stays machine-parseable; text when
// devMode makes local output easier to read.
func New(devMode bool) *slog.Logger {
	if devMode {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
