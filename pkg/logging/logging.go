// Package logging builds the slog logger used across OmniSniff and
// carries it through contexts.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/grokify/mogo/log/slogutil"
)

// Format names accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Environment variables that override the configured level and format.
const (
	EnvLevel  = "OMNISNIFF_LOG_LEVEL"
	EnvFormat = "OMNISNIFF_LOG_FORMAT"
)

// New returns a logger writing to w in the given format ("text" or
// "json") at the given level ("debug", "info", "warn", "error").
// Unknown values fall back to text and info. A nil w means stderr.
func New(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, FormatJSON) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "omnisniff")
}

// FromEnv is New with level and format replaced by the environment
// variables EnvLevel and EnvFormat when they are set.
func FromEnv(level, format string, w io.Writer) *slog.Logger {
	if v := os.Getenv(EnvLevel); v != "" {
		level = v
	}
	if v := os.Getenv(EnvFormat); v != "" {
		format = v
	}
	return New(level, format, w)
}

// ParseLevel converts a level name to a slog.Level.
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

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return slogutil.ContextWithLogger(ctx, logger)
}

// FromContext returns the logger carried by ctx, or a logger that
// discards everything.
func FromContext(ctx context.Context) *slog.Logger {
	return slogutil.LoggerFromContext(ctx, slogutil.Null())
}
