package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Output formats accepted by InitForCLI.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// InitForCLI initializes the process logger. format is "text" or "json".
// This should be called once at application startup.
func InitForCLI(level LogLevel, output io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level.SlogLevel(),
	}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	logger := slog.New(handler)

	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
	slog.SetDefault(logger)

	return logger
}

// Logger returns the process logger, falling back to a stderr text logger
// when InitForCLI was never called (tests, library use).
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return defaultLogger
}

// For returns a logger tagged with the given subsystem.
func For(subsystem string) *slog.Logger {
	return Logger().With(slog.String("subsystem", subsystem))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func logInternal(level LogLevel, subsystem string, err error, msg string, args ...any) {
	attrs := make([]any, 0, len(args)+4)
	attrs = append(attrs, slog.String("subsystem", subsystem))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	attrs = append(attrs, args...)
	Logger().Log(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message with key/value pairs.
func Debug(subsystem, msg string, args ...any) {
	logInternal(LevelDebug, subsystem, nil, msg, args...)
}

// Info logs an informational message with key/value pairs.
func Info(subsystem, msg string, args ...any) {
	logInternal(LevelInfo, subsystem, nil, msg, args...)
}

// Warn logs a warning message with key/value pairs.
func Warn(subsystem, msg string, args ...any) {
	logInternal(LevelWarn, subsystem, nil, msg, args...)
}

// Error logs an error message with key/value pairs.
func Error(subsystem string, err error, msg string, args ...any) {
	logInternal(LevelError, subsystem, err, msg, args...)
}
