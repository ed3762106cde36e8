// Package logger builds the structured logger shared by every component.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Environment selects the log level: debug for dev, info otherwise.
type Environment string

const (
	Prod    Environment = "prod"
	Dev     Environment = "dev"
	Staging Environment = "staging"
)

// New creates a JSON slog.Logger writing to stdout.
func New(env Environment) *slog.Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a JSON slog.Logger writing to w.
func NewWithWriter(env Environment, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if env == Dev {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: env == Dev,
		Level:     level,
	})
	return slog.New(h)
}

// Discard returns a logger that drops every record. Components fall back to it
// when constructed with a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
