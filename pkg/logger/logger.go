// Package logger provides opinionated logging capabilities for tokenprobe.
//
// All loggers are plain *slog.Logger values. The pretty handler is backed by
// charmbracelet/log for colorized CLI output; the JSON handler is slog's own.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	console io.Writer
	file    io.Writer
}

// New creates a *slog.Logger configured by the given options.
// Without options it writes info-level text logs to os.Stderr.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:   slog.LevelInfo,
		console: os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}

	console := c.consoleHandler()
	if c.file == nil {
		return slog.New(console)
	}

	file := slog.NewJSONHandler(c.file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(&multiHandler{handlers: []slog.Handler{console, file}})
}

func (c *config) consoleHandler() slog.Handler {
	switch {
	case c.json:
		return slog.NewJSONHandler(c.console, &slog.HandlerOptions{Level: c.level})

	case c.pretty:
		return charmlog.NewWithOptions(c.console, charmlog.Options{
			Level:           charmLevel(c.level),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		})

	default:
		return slog.NewTextHandler(c.console, &slog.HandlerOptions{Level: c.level})
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrNop returns l, or a Nop logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

func charmLevel(level slog.Level) charmlog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmlog.DebugLevel
	case level <= slog.LevelInfo:
		return charmlog.InfoLevel
	case level <= slog.LevelWarn:
		return charmlog.WarnLevel
	default:
		return charmlog.ErrorLevel
	}
}
