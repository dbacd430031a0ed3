// Package logging configures the structured JSON logger every process in
// this pipeline shares.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a JSON slog.Logger at the level named by LOG_LEVEL
// (debug|info|warn|error, default info), and installs it as the default
// logger so library code that calls slog.Default() picks it up too.
func New(component string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("component", component)
	slog.SetDefault(logger)
	return logger
}
