package logger

import (
	"io"
	"log/slog"
)

// Option configures a Logger created with New.
type Option func(*config)

// WithDebug lowers the console level to Debug.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = slog.LevelDebug
		} else {
			c.level = slog.LevelInfo
		}
	}
}

// WithPretty enables the charmbracelet/log console handler.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithJSON writes console records as JSON. It takes precedence over WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter overrides the console writer. Defaults to os.Stderr so that
// stdout stays reserved for the streamed reply and the report.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.console = w
	}
}

// WithLogFile also writes every record, down to Debug, as JSON to w. The
// console level is not affected.
func WithLogFile(w io.Writer) Option {
	return func(c *config) {
		c.file = w
	}
}
