package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	// RequestIDKey carries the per-request correlation id.
	RequestIDKey contextKey = "request_id"
	// SubjectIDKey carries the authenticated subject id, when known.
	SubjectIDKey contextKey = "subject_id"
	// TenantIDKey carries the tenant id, when known.
	TenantIDKey contextKey = "tenant_id"
)

// Logger is a thin wrapper over slog that supports field chaining and
// context extraction. All service logs go through it so output stays
// uniform JSON.
type Logger struct {
	slogger *slog.Logger
}

// NewLogger builds a JSON logger at the given level. Unknown levels
// fall back to info.
func NewLogger(level string) *Logger {
	return NewLoggerWithWriter(level, os.Stdout)
}

// NewLoggerWithWriter is NewLogger with an explicit sink, used by tests.
func NewLoggerWithWriter(level string, w io.Writer) *Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return &Logger{slogger: slog.New(handler)}
}

// WithField returns a logger with one extra field attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{slogger: l.slogger.With(slog.Any(key, value))}
}

// WithFields returns a logger with all given fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return &Logger{slogger: l.slogger.With(attrs...)}
}

// WithError attaches an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// WithContext pulls the request id, subject id and tenant id out of ctx,
// when present, and attaches them as fields.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	out := l
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		out = out.WithField("request_id", v)
	}
	if v, ok := ctx.Value(SubjectIDKey).(string); ok && v != "" {
		out = out.WithField("subject_id", v)
	}
	if v, ok := ctx.Value(TenantIDKey).(string); ok && v != "" {
		out = out.WithField("tenant_id", v)
	}
	return out
}

func (l *Logger) Debug(msg string)                          { l.slogger.Debug(msg) }
func (l *Logger) Info(msg string)                           { l.slogger.Info(msg) }
func (l *Logger) Warn(msg string)                           { l.slogger.Warn(msg) }
func (l *Logger) Error(msg string)                          { l.slogger.Error(msg) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(slog.LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(slog.LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(slog.LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(slog.LevelError, format, args...) }

// Fatalf logs at error level and exits. Reserved for startup failures.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logf(slog.LevelError, format, args...)
	os.Exit(1)
}

func (l *Logger) logf(level slog.Level, format string, args ...interface{}) {
	if !l.slogger.Enabled(context.Background(), level) {
		return
	}
	l.slogger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}
