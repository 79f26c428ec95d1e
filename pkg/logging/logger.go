// Package logging provides structured logging for the QUIC HTTP binding.
// Loggers are backed by zap; a process-wide minimum level is shared by every
// logger created through Default so it can be changed at runtime.
package logging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	qerrors "github.com/ajitpratap0/quic-http-go/pkg/errors"
)

// Level represents the severity of a log message
type Level int

const (
	// DebugLevel is for detailed information useful for debugging
	DebugLevel Level = iota - 1
	// InfoLevel is for general informational messages
	InfoLevel
	// WarnLevel is for warning messages
	WarnLevel
	// ErrorLevel is for error messages
	ErrorLevel
	// FatalLevel is for fatal errors that will terminate the program
	FatalLevel
)

// String returns the string representation of a log level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch {
	case l <= DebugLevel:
		return zapcore.DebugLevel
	case l == InfoLevel:
		return zapcore.InfoLevel
	case l == WarnLevel:
		return zapcore.WarnLevel
	case l == ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error", "fatal")
// or its numeric form into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "-1":
		return DebugLevel, nil
	case "info", "0", "":
		return InfoLevel, nil
	case "warn", "warning", "1":
		return WarnLevel, nil
	case "error", "2":
		return ErrorLevel, nil
	case "fatal", "3":
		return FatalLevel, nil
	default:
		return InfoLevel, qerrors.InvalidParameter("log_level", s, "one of debug, info, warn, error, fatal")
	}
}

var minLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// SetMinLogLevel sets the process-wide minimum level for loggers built by Default.
func SetMinLogLevel(level Level) {
	minLevel.SetLevel(level.zapLevel())
}

// MinLogLevel returns the current process-wide minimum level.
func MinLogLevel() Level {
	switch minLevel.Level() {
	case zapcore.DebugLevel:
		return DebugLevel
	case zapcore.InfoLevel:
		return InfoLevel
	case zapcore.WarnLevel:
		return WarnLevel
	case zapcore.ErrorLevel:
		return ErrorLevel
	default:
		return FatalLevel
	}
}

// Field represents a key-value pair for structured logging
type Field = zap.Field

// String creates a string field
func String(key, value string) Field {
	return zap.String(key, value)
}

// Int creates an integer field
func Int(key string, value int) Field {
	return zap.Int(key, value)
}

// Uint64 creates an unsigned integer field
func Uint64(key string, value uint64) Field {
	return zap.Uint64(key, value)
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return zap.Bool(key, value)
}

// ErrorField creates an error field
func ErrorField(err error) Field {
	return zap.Error(err)
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return zap.Duration(key, value)
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return zap.Any(key, value)
}

// Logger is the interface for structured logging
type Logger interface {
	// Debug logs a debug message with fields
	Debug(msg string, fields ...Field)
	// Info logs an info message with fields
	Info(msg string, fields ...Field)
	// Warn logs a warning message with fields
	Warn(msg string, fields ...Field)
	// Error logs an error message with fields
	Error(msg string, fields ...Field)
	// Fatal logs a fatal message with fields and exits
	Fatal(msg string, fields ...Field)

	// WithFields returns a new logger with additional fields
	WithFields(fields ...Field) Logger
	// WithContext returns a new logger with context fields
	WithContext(ctx context.Context) Logger
	// WithError returns a new logger with error context
	WithError(err error) Logger
	// Named returns a new logger scoped to a component
	Named(component string) Logger

	// Zap exposes the underlying zap logger
	Zap() *zap.Logger
}

type zapLogger struct {
	z *zap.Logger
}

// New wraps an existing zap logger. A nil logger yields a no-op Logger.
func New(z *zap.Logger) Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &zapLogger{z: z}
}

// Default returns a JSON logger on stderr whose level follows SetMinLogLevel.
func Default() Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = minLevel
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		return New(zap.L())
	}
	return New(z)
}

// NewDevelopment returns a console logger whose level follows SetMinLogLevel.
func NewDevelopment() Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = minLevel

	z, err := cfg.Build()
	if err != nil {
		return New(zap.L())
	}
	return New(z)
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	return New(zap.NewNop())
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, fields...) }

func (l *zapLogger) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &zapLogger{z: l.z.With(fields...)}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		return l.WithFields(String("request_id", requestID))
	}
	return l
}

// WithError attaches err and, for binding errors, its code, category and
// severity along with the identifying context.
func (l *zapLogger) WithError(err error) Logger {
	fields := []Field{ErrorField(err)}

	if e, ok := qerrors.AsError(err); ok {
		fields = append(fields,
			String("error_code", fmt.Sprintf("%d", e.Code())),
			String("error_category", string(e.Category())),
			String("error_severity", string(e.Severity())),
		)

		if ctx := e.Context(); ctx != nil {
			if ctx.RequestID != "" {
				fields = append(fields, String("request_id", ctx.RequestID))
			}
			if ctx.SessionID != "" {
				fields = append(fields, String("session_id", ctx.SessionID))
			}
			if ctx.Component != "" {
				fields = append(fields, String("component", ctx.Component))
			}
			if ctx.Operation != "" {
				fields = append(fields, String("operation", ctx.Operation))
			}
		}
	}

	return l.WithFields(fields...)
}

func (l *zapLogger) Named(component string) Logger {
	return &zapLogger{z: l.z.Named(component)}
}

func (l *zapLogger) Zap() *zap.Logger {
	return l.z
}

type contextKey string

const requestIDKey contextKey = "request_id"

// ContextWithRequestID returns a context with a request ID
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from a context
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}
