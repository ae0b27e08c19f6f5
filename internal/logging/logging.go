// Package logging configures the process-wide slog logger and hands out
// component-scoped loggers.
//
//	logging.Init("info", false)
//	log := logging.Component("ingest")
//	log.Warn("cache write failed", "vehicle_id", id, "error", err)
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init installs the default logger. Unknown levels fall back to info.
func Init(level string, jsonFormat bool) {
	InitWithWriter(os.Stdout, level, jsonFormat)
}

func InitWithWriter(w io.Writer, level string, jsonFormat bool) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler).With("service", "tracker"))
}

// Component returns a logger tagged with the component name.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
