// Package logging configures the process-wide slog logger for the CLI.
//
// Library packages log through log/slog directly; this package only decides
// where those records go and which levels are visible.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel converts a level name ("debug", "info", "warn", "error") into
// a slog.Level. The comparison is case-insensitive.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Init installs a text handler writing to output as the default slog logger.
// It should be called once at application startup, before any subsystem logs.
func Init(level slog.Level, output io.Writer) {
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
