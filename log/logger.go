// Package log is the logging facade used across researchgraph. The engine logs
// through the Logger interface; binaries choose the implementation.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents logging severity
type LogLevel int

const (
	// LogLevelDebug for detailed debugging information
	LogLevelDebug LogLevel = iota
	// LogLevelInfo for general informational messages
	LogLevelInfo
	// LogLevelWarn for warning messages
	LogLevelWarn
	// LogLevelError for error messages
	LogLevelError
	// LogLevelNone disables all logging
	LogLevelNone
)

// Logger is a printf-style leveled logger
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// DefaultLogger implements Logger using Go's standard log package
type DefaultLogger struct {
	logger *log.Logger
	level  LogLevel
}

// NewDefaultLogger creates a new default logger
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(os.Stderr, "[researchgraph] ", log.LstdFlags),
		level:  level,
	}
}

// NewCustomLogger creates a logger with custom output
func NewCustomLogger(out io.Writer, level LogLevel) *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(out, "[researchgraph] ", log.LstdFlags),
		level:  level,
	}
}

// Debug logs debug messages
func (l *DefaultLogger) Debug(format string, v ...any) {
	if l.level <= LogLevelDebug {
		l.logger.Printf("[DEBUG] "+format, v...)
	}
}

// Info logs informational messages
func (l *DefaultLogger) Info(format string, v ...any) {
	if l.level <= LogLevelInfo {
		l.logger.Printf("[INFO] "+format, v...)
	}
}

// Warn logs warning messages
func (l *DefaultLogger) Warn(format string, v ...any) {
	if l.level <= LogLevelWarn {
		l.logger.Printf("[WARN] "+format, v...)
	}
}

// Error logs error messages
func (l *DefaultLogger) Error(format string, v ...any) {
	if l.level <= LogLevelError {
		l.logger.Printf("[ERROR] "+format, v...)
	}
}

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

// Debug does nothing
func (l *NoOpLogger) Debug(format string, v ...any) {}

// Info does nothing
func (l *NoOpLogger) Info(format string, v ...any) {}

// Warn does nothing
func (l *NoOpLogger) Warn(format string, v ...any) {}

// Error does nothing
func (l *NoOpLogger) Error(format string, v ...any) {}

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// ParseLogLevel maps a configuration string such as "debug" or "warn" to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none", "off", "disable":
		return LogLevelNone, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// WithPrefix returns a Logger that puts prefix in front of every message
// logged through l. Prefixes nest: WithPrefix(WithPrefix(l, "a: "), "b: ")
// logs "a: b: msg".
func WithPrefix(l Logger, prefix string) Logger {
	if l == nil {
		l = GetDefaultLogger()
	}
	if p, ok := l.(*prefixLogger); ok {
		return &prefixLogger{next: p.next, prefix: p.prefix + prefix}
	}
	return &prefixLogger{next: l, prefix: prefix}
}

type prefixLogger struct {
	next   Logger
	prefix string
}

func (p *prefixLogger) Debug(format string, v ...any) { p.next.Debug(p.prefix+format, v...) }
func (p *prefixLogger) Info(format string, v ...any)  { p.next.Info(p.prefix+format, v...) }
func (p *prefixLogger) Warn(format string, v ...any)  { p.next.Warn(p.prefix+format, v...) }
func (p *prefixLogger) Error(format string, v ...any) { p.next.Error(p.prefix+format, v...) }

// The package-level logger is read from concurrently running branches.
var (
	mu            sync.RWMutex
	defaultLogger Logger = NewDefaultLogger(LogLevelInfo)
)

// SetDefaultLogger sets the package-level logger. A nil logger disables
// package-level logging.
func SetDefaultLogger(logger Logger) {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
}

// GetDefaultLogger returns the current package-level logger
func GetDefaultLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// SetLogLevel replaces the package-level logger with a DefaultLogger at level.
func SetLogLevel(level LogLevel) {
	SetDefaultLogger(NewDefaultLogger(level))
}

// Debug logs a debug message using the package-level logger
func Debug(format string, v ...any) {
	GetDefaultLogger().Debug(format, v...)
}

// Info logs an informational message using the package-level logger
func Info(format string, v ...any) {
	GetDefaultLogger().Info(format, v...)
}

// Warn logs a warning message using the package-level logger
func Warn(format string, v ...any) {
	GetDefaultLogger().Warn(format, v...)
}

// Error logs an error message using the package-level logger
func Error(format string, v ...any) {
	GetDefaultLogger().Error(format, v...)
}
