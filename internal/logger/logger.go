// Package logger builds the slog loggers used across the service.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

// Config holds the configuration of the logger.
type Config struct {
	Level  slog.Level
	Format string
	Output io.Writer
}

type contextKey string

const ContextKeyRequestID contextKey = "request_id"

// FromConfig maps the LOG_LEVEL / LOG_FORMAT strings onto a Config.
// Production environments always log JSON.
func FromConfig(logLevel, logFormat, env string) Config {
	cfg := Config{Level: slog.LevelInfo, Format: "text"}
	switch strings.ToLower(logLevel) {
	case "debug":
		cfg.Level = slog.LevelDebug
	case "warn", "warning":
		cfg.Level = slog.LevelWarn
	case "error":
		cfg.Level = slog.LevelError
	}
	if logFormat != "" {
		cfg.Format = strings.ToLower(logFormat)
	}
	if env == "production" {
		cfg.Format = "json"
	}
	return cfg
}

// New creates a logger: tint for terminals, JSON otherwise.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "json" {
		opts := &slog.HandlerOptions{
			Level: cfg.Level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String(a.Key, a.Value.Time().UTC().Format(time.RFC3339))
				}
				return a
			},
		}
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      cfg.Level,
		TimeFormat: time.Kitchen,
	}))
}

// WithComponent tags every line from l with a component name.
func WithComponent(l *slog.Logger, component string) *slog.Logger {
	return l.With(slog.String("component", component))
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}

// GenerateRequestID generates a new request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// Discard is a logger that drops everything. Tests use it.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
