package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/setevik/logrelay/internal/config"
)

func setupLogging(lc config.LogConfig) {
	slog.SetDefault(slog.New(newLogHandler(os.Stderr, lc, isTerminal(os.Stderr))))
}

// newLogHandler picks a text handler for terminals and JSON otherwise, unless
// the format is set explicitly.
func newLogHandler(w io.Writer, lc config.LogConfig, tty bool) slog.Handler {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	switch lc.Format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	}
	if tty {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// quietLog keeps one-shot commands from cluttering their output.
var quietLog = config.LogConfig{Level: "error", Format: "text"}
