package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or a Nop logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return Nop()
	}
	l, _ := ctx.Value(contextKey{}).(*slog.Logger)
	return OrNop(l)
}
