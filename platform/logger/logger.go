// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// UserIDKey is the context key for user ID
	UserIDKey contextKey = "user_id"
	// JobIDKey is the context key for an asynchronous ingest job ID
	JobIDKey contextKey = "job_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Tests pass io.Discard.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewWithWriter("production", io.Discard)
}

// WithContext returns a logger with context values extracted.
// Supports request_id, user_id and job_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("user_id", userID))}
	}

	if jobID, ok := ctx.Value(JobIDKey).(string); ok && jobID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("job_id", jobID))}
	}

	return newLogger
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// IngestStage logs an ingestion milestone.
func (l *Logger) IngestStage(fileName, stage string, percent int) {
	l.Debug("ingest_stage",
		slog.String("file_name", fileName),
		slog.String("stage", stage),
		slog.Int("percent", percent),
	)
}

// IngestCompleted logs the outcome of an ingestion run.
func (l *Logger) IngestCompleted(batchID, fileName string, records, inserted, updated, unchanged int) {
	l.Info("ingest_completed",
		slog.String("batch_id", batchID),
		slog.String("file_name", fileName),
		slog.Int("records", records),
		slog.Int("inserted", inserted),
		slog.Int("updated", updated),
		slog.Int("unchanged", unchanged),
	)
}

// IngestFailed logs a failed ingestion run with the stage it stopped at.
func (l *Logger) IngestFailed(fileName, stage string, err error) {
	l.Warn("ingest_failed",
		slog.String("file_name", fileName),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// ComparisonCompleted logs a persisted reconciliation run.
func (l *Logger) ComparisonCompleted(runID, sourceA, sourceB string, totalA, totalB, divergences int) {
	l.Info("comparison_completed",
		slog.String("run_id", runID),
		slog.String("source_a", sourceA),
		slog.String("source_b", sourceB),
		slog.Int("total_a", totalA),
		slog.Int("total_b", totalB),
		slog.Int("divergences", divergences),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
