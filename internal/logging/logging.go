// Package logging provides the structured logger shared by every component.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a level name to a slog.Level. An empty string yields Info;
// an unrecognized one yields Info together with an error.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// New builds a *slog.Logger writing to w. format selects between "json"
// (production) and anything else (human-readable text), mirroring the
// handler-selection the teacher's CLI does at startup.
func New(level slog.Level, format string, w *os.File) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Default returns slog.Default(), used by components constructed without an
// explicit logger (e.g. in tests).
func Default() *slog.Logger {
	return slog.Default()
}
