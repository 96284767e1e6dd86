// Package logging provides structured logging for autocommitd using slog.
//
// Unlike a per-invocation CLI, autocommitd is a long-running daemon: a
// single logger is initialized once at startup and shared by every
// repository worker. Per-repository and per-component context is carried
// via slog.Attr on each call site, not via separate log files.
package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevelEnvVar is the environment variable that controls log level.
const LogLevelEnvVar = "AUTOCOMMIT_LOG_LEVEL"

// LogsDirName is the directory (relative to the state directory) where
// rotated log files are written.
const LogsDirName = "logs"

var (
	logger       *slog.Logger
	logFile      *os.File
	logBufWriter *bufio.Writer
	mu           sync.RWMutex
)

// Init opens the daily log file under <stateDir>/logs/autocommitd-<date>.log
// and installs it as the package logger. Falls back to stderr if the file
// cannot be created or opened.
func Init(stateDir string, levelOverride string) error {
	mu.Lock()
	defer mu.Unlock()

	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	levelStr := levelOverride
	if env := os.Getenv(LogLevelEnvVar); env != "" {
		levelStr = env
	}
	level := parseLogLevel(levelStr)
	if levelStr != "" && !isValidLogLevel(levelStr) {
		fmt.Fprintf(os.Stderr, "[autocommitd] Warning: invalid log level %q, defaulting to INFO\n", levelStr)
	}

	logsPath := filepath.Join(stateDir, LogsDirName)
	if err := os.MkdirAll(logsPath, 0o750); err != nil {
		logger = createLogger(os.Stderr, level)
		return nil //nolint:nilerr // fall back to stderr rather than failing startup
	}

	fileName := fmt.Sprintf("autocommitd-%s.log", time.Now().UTC().Format("2006-01-02"))
	logFilePath := filepath.Join(logsPath, fileName)
	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // fixed filename, trusted dir
	if err != nil {
		logger = createLogger(os.Stderr, level)
		return nil //nolint:nilerr // fall back to stderr rather than failing startup
	}

	logFile = f
	logBufWriter = bufio.NewWriterSize(f, 8192)
	logger = createLogger(logBufWriter, level)
	return nil
}

// Close flushes and closes the current log file. Safe to call multiple times.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func createLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isValidLogLevel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "":
		return true
	default:
		return false
	}
}

// Debug logs at DEBUG level with context values automatically extracted.
func Debug(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelDebug, msg, attrs...) }

// Info logs at INFO level with context values automatically extracted.
func Info(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelInfo, msg, attrs...) }

// Warn logs at WARN level with context values automatically extracted.
func Warn(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelWarn, msg, attrs...) }

// Error logs at ERROR level with context values automatically extracted.
func Error(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelError, msg, attrs...) }

// LogDuration logs msg with a duration_ms attribute computed from start.
func LogDuration(ctx context.Context, level slog.Level, msg string, start time.Time, attrs ...any) {
	allAttrs := make([]any, 0, len(attrs)+1)
	allAttrs = append(allAttrs, slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	allAttrs = append(allAttrs, attrs...)
	log(ctx, level, msg, allAttrs...)
}

func log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	l := getLogger()

	var allAttrs []any
	allAttrs = append(allAttrs, contextAttrs(ctx)...)
	allAttrs = append(allAttrs, attrs...)

	l.Log(nil, level, msg, allAttrs...) //nolint:staticcheck // values already extracted from ctx above
}

func contextAttrs(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var attrs []any
	if v, ok := ctx.Value(repoRootKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("repo_root", v))
	}
	if v, ok := ctx.Value(componentKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("component", v))
	}
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("session_id", v))
	}
	return attrs
}
