// Package logger sets up structured JSON logging with log/slog and carries
// a per-scan correlation ID through context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const scanIDKey ctxKey = "scan_id"

// Init creates the process logger for service, writing JSON to stdout, and
// installs it as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	logger := New(os.Stdout, service, level)
	slog.SetDefault(logger)
	return logger
}

// New builds a JSON logger on w with the service name embedded.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With(slog.String("service", service))
}

// ParseLevel maps LOG_LEVEL strings (debug, info, warn, error) to a level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// NewScanID returns a fresh correlation ID for one scan cycle.
func NewScanID() string {
	return uuid.NewString()
}

// WithScanID stores a scan ID in the context for downstream log lines.
func WithScanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scanIDKey, id)
}

// ScanID extracts the scan ID from context. Returns "" if not set.
func ScanID(ctx context.Context) string {
	if v, ok := ctx.Value(scanIDKey).(string); ok {
		return v
	}
	return ""
}

// Attrs returns slog key/value pairs carrying the scan ID from context.
// Usage: slog.Info("msg", logger.Attrs(ctx)...)
func Attrs(ctx context.Context) []any {
	id := ScanID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("scan_id", id)}
}
