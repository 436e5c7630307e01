// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the engine's data layers.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// SetOutput replaces the handler behind GlobalLogger.
func SetOutput(h slog.Handler) {
	GlobalLogger = &Logger{Logger: slog.New(h)}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// CorrelationID is the context key under which the correlation id is stored.
const CorrelationID LogContextKey = "correlation_id"

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableCorrelationID bool
	EnableStoreLogging  bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableCorrelationID: true,
	EnableStoreLogging:  true,
}

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// StoreLogger provides structured logging for entity reads and writes.
type StoreLogger struct {
	component string
	logger    *Logger
}

// NewStoreLogger creates a StoreLogger tagged with the component name.
func NewStoreLogger(component string) *StoreLogger {
	return &StoreLogger{
		component: component,
		logger:    GlobalLogger,
	}
}

func (l *StoreLogger) attrs(ctx context.Context, operation string, fields map[string]any) []any {
	attrs := []any{
		slog.String("component", l.component),
		slog.String("operation", operation),
	}
	if Config.EnableCorrelationID {
		attrs = append(attrs, slog.String("correlation_id", ExtractCorrelationID(ctx)))
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// LogWrite logs a committed write.
func (l *StoreLogger) LogWrite(ctx context.Context, operation string, fields map[string]any) {
	if !Config.EnableStoreLogging {
		return
	}
	l.current().InfoContext(ctx, "store write", l.attrs(ctx, operation, fields)...)
}

// LogRetry logs a transaction attempt that lost a version race.
func (l *StoreLogger) LogRetry(ctx context.Context, operation string, fields map[string]any) {
	if !Config.EnableStoreLogging {
		return
	}
	l.current().DebugContext(ctx, "store retry", l.attrs(ctx, operation, fields)...)
}

// LogError logs a failed operation.
func (l *StoreLogger) LogError(ctx context.Context, err error, operation string, fields map[string]any) {
	attrs := append(l.attrs(ctx, operation, fields), slog.String("error", err.Error()))
	l.current().ErrorContext(ctx, "store error", attrs...)
}

// current follows SetOutput after the logger was created.
func (l *StoreLogger) current() *Logger {
	if l.logger != GlobalLogger {
		l.logger = GlobalLogger
	}
	return l.logger
}

// LogAsyncOperationStart logs the start of an asynchronous operation.
func LogAsyncOperationStart(ctx context.Context, operation string, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_start"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "async operation started", attrs...)
}

// LogAsyncOperationEnd logs the completion of an asynchronous operation.
func LogAsyncOperationEnd(ctx context.Context, operation string, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_end"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "async operation completed", attrs...)
}

// LogAsyncOperationError logs an error in an asynchronous operation.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_error"),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.ErrorContext(ctx, "async operation failed", attrs...)
}
