// Package logger provides a thread-safe, levelled logger backed by the
// standard library's log package.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents a logging verbosity level.
type Level int

const (
	// LevelDebug emits all messages.
	LevelDebug Level = iota
	// LevelInfo emits INFO, WARN and ERROR messages.
	LevelInfo
	// LevelWarn emits WARN and ERROR messages.
	LevelWarn
	// LevelError emits only ERROR messages.
	LevelError
)

// String returns the upper-case level name used as the line prefix.
func (l Level) String() string {
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

// ParseLevel maps a case-insensitive level name ("debug", "info", "warn",
// "error") to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("logger: unknown level %q", s)
	}
}

// Hook receives every line that passes the level filter, after it has been
// written.  It is called synchronously and must not log through the same
// Logger.
type Hook func(level Level, msg string)

// Logger is a levelled logger.
//
// Thread-safety: log.Logger serialises writes to the underlying io.Writer
// with its own mutex.  The Logger wrapper adds an RWMutex for the level and
// hook fields so that SetLevel and SetHook may be called concurrently with
// logging methods.
type Logger struct {
	logs  [LevelError + 1]*log.Logger
	mu    sync.RWMutex
	level Level
	hook  Hook
}

// New creates a Logger that writes to stderr at the given minimum level.
func New(level Level) *Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a Logger that writes to w.  Each line carries a
// microsecond timestamp and the padded level name.
func NewWithWriter(w io.Writer, level Level) *Logger {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds
	l := &Logger{level: level}
	for lvl := LevelDebug; lvl <= LevelError; lvl++ {
		l.logs[lvl] = log.New(w, fmt.Sprintf("%-6s", lvl), flags)
	}
	return l
}

// Discard returns a Logger that drops everything.  Useful as a default for
// components constructed without a logger.
func Discard() *Logger {
	return NewWithWriter(io.Discard, LevelError+1)
}

// SetLevel changes the minimum log level at runtime.  Safe for concurrent use.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// SetHook installs h as the mirror for emitted lines; nil removes it.
func (l *Logger) SetHook(h Hook) {
	l.mu.Lock()
	l.hook = h
	l.mu.Unlock()
}

// Enabled reports whether messages at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *Logger) output(level Level, msg string) {
	l.mu.RLock()
	threshold, hook := l.level, l.hook
	l.mu.RUnlock()
	if level < threshold {
		return
	}
	l.logs[level].Output(3, msg) //nolint:errcheck
	if hook != nil {
		hook(level, msg)
	}
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string) { l.output(LevelDebug, msg) }

// Debugf logs a formatted message at DEBUG level.  The message is only
// formatted when DEBUG is enabled; the worker hot path relies on this.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.Enabled(LevelDebug) {
		return
	}
	l.output(LevelDebug, fmt.Sprintf(format, args...))
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string) { l.output(LevelInfo, msg) }

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.output(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn logs a message at WARN level.
func (l *Logger) Warn(msg string) { l.output(LevelWarn, msg) }

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.output(LevelWarn, fmt.Sprintf(format, args...))
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string) { l.output(LevelError, msg) }

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.output(LevelError, fmt.Sprintf(format, args...))
}
