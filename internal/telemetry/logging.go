package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents different logging levels
type LogLevel int

// LogLevelDebug represents debug logging level
const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Logger provides structured logging for the loader components.
// A nil *Logger and the zero Logger both discard everything.
type Logger struct {
	impl loggerImpl
}

// loggerImpl defines the internal interface for logger implementations.
type loggerImpl interface {
	log(ctx context.Context, level LogLevel, msg string, args ...any)
	with(args ...any) loggerImpl
	enabled(level LogLevel) bool
}

// LogConfig holds configuration for the loader logger.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error)
	Level LogLevel
	// EnableCallerInfo includes file and line number in logs
	EnableCallerInfo bool
	// EnableCacheOperations promotes per-operation cache logs from debug to info
	EnableCacheOperations bool
	// Output is where records are written. Defaults to os.Stderr.
	Output io.Writer
	// JSON selects the JSON handler instead of the text handler.
	JSON bool
}

// DefaultLogConfig returns a default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:                 LogLevelInfo,
		EnableCallerInfo:      false,
		EnableCacheOperations: false, // Disabled by default to avoid noise
	}
}

// slogLogger implements loggerImpl using slog.
type slogLogger struct {
	logger *slog.Logger
	config LogConfig
}

// NewLogger creates a new structured logger with the given configuration.
func NewLogger(config LogConfig) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.EnableCallerInfo,
	}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{impl: &slogLogger{logger: slog.New(handler), config: config}}
}

// NewNopLogger creates a no-op logger that discards all log messages.
func NewNopLogger() *Logger {
	return &Logger{impl: nopLogger{}}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *slogLogger) log(ctx context.Context, level LogLevel, msg string, args ...any) {
	if level < l.config.Level {
		return
	}
	l.logger.Log(ctx, level.slogLevel(), msg, args...)
}

func (l *slogLogger) with(args ...any) loggerImpl {
	return &slogLogger{logger: l.logger.With(args...), config: l.config}
}

func (l *slogLogger) enabled(level LogLevel) bool {
	return level >= l.config.Level
}

// nopLogger is a no-op logger implementation that discards all messages.
type nopLogger struct{}

func (nopLogger) log(context.Context, LogLevel, string, ...any) {}

func (n nopLogger) with(...any) loggerImpl {
	return n
}

func (nopLogger) enabled(LogLevel) bool {
	return false
}

func (l *Logger) emit(ctx context.Context, level LogLevel, msg string, args ...any) {
	if l == nil || l.impl == nil {
		return
	}
	l.impl.log(ctx, level, msg, args...)
}

// Debug logs debug-level messages
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, LogLevelDebug, msg, args...)
}

// Info logs info-level messages
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, LogLevelInfo, msg, args...)
}

// Warn logs warning-level messages
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, LogLevelWarn, msg, args...)
}

// Error logs error-level messages
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, LogLevelError, msg, args...)
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	if l == nil || l.impl == nil {
		return false
	}
	return l.impl.enabled(level)
}

// With returns a logger with additional context fields
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.impl == nil {
		return l
	}
	if _, ok := l.impl.(nopLogger); ok {
		return l
	}
	return &Logger{impl: l.impl.with(args...)}
}

// WithOperation returns a logger with operation context
func (l *Logger) WithOperation(operation Operation) *Logger {
	return l.With("operation", string(operation))
}

// WithKey returns a logger with resource identifier context
func (l *Logger) WithKey(key string) *Logger {
	return l.With("key", key)
}

// cacheOperationLevel is info when per-operation logging is turned on.
func (l *Logger) cacheOperationLevel() LogLevel {
	if l == nil {
		return LogLevelDebug
	}
	if s, ok := l.impl.(*slogLogger); ok && s.config.EnableCacheOperations {
		return LogLevelInfo
	}
	return LogLevelDebug
}

// Operation represents different types of loader operations for logging.
type Operation string

// Operation constants for loader operations
const (
	OpEnsureReady Operation = "ensure_ready"
	OpCacheGet    Operation = "cache_get"
	OpCachePut    Operation = "cache_put"
	OpFetch       Operation = "fetch"
	OpLoad        Operation = "load"
)

// LogOperation logs a completed operation with its duration and outcome.
// Failures are logged at warn; successes follow the cache operation level.
func LogOperation(
	ctx context.Context,
	logger *Logger,
	operation Operation,
	duration time.Duration,
	size int,
	err error,
) {
	if logger == nil {
		return
	}

	fields := []any{
		"operation", string(operation),
		"duration_ms", duration.Milliseconds(),
		"success", err == nil,
	}
	if size > 0 {
		fields = append(fields, "size", size)
	}

	if err != nil {
		fields = append(fields, "error", err.Error())
		logger.Warn(ctx, "operation failed", fields...)
		return
	}
	logger.emit(ctx, logger.cacheOperationLevel(), "operation completed", fields...)
}

// LogCacheHit logs a cache hit event.
func LogCacheHit(ctx context.Context, logger *Logger, key string, size int) {
	if logger == nil {
		return
	}

	logger.emit(ctx, logger.cacheOperationLevel(), "cache hit",
		"key", key,
		"size", size,
		"result", "hit")
}

// LogCacheMiss logs a cache miss event.
func LogCacheMiss(ctx context.Context, logger *Logger, key string, reason string) {
	if logger == nil {
		return
	}

	logger.emit(ctx, logger.cacheOperationLevel(), "cache miss",
		"key", key,
		"reason", reason,
		"result", "miss")
}

// ParseLogLevel parses a string log level into a LogLevel.
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// String returns the lower-case name of the level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "info"
	}
}
