// Package logx provides a standard logger implementation for the niftynet
// library.
package logx

import (
	"log"
	"os"
	"sync"

	"github.com/localrivet/niftynet/types"
)

// Level controls which messages a logger emits.
type Level int

// Logging levels, from most to least verbose.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// DefaultLogger provides a basic logger implementation using the standard
// log package.
type DefaultLogger struct {
	logger *log.Logger
	level  Level
	mu     sync.Mutex
}

// NewDefaultLogger creates a new logger writing to stderr with standard flags.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(os.Stderr, "[NiftyNet] ", log.LstdFlags|log.Lmsgprefix),
		level:  LevelInfo,
	}
}

// NewLogger creates a new logger instance at the level named by levelStr:
// "debug", "info", "warning" or "error". Unknown strings default to info.
func NewLogger(levelStr string) types.Logger {
	logger := NewDefaultLogger()

	switch levelStr {
	case "debug":
		logger.level = LevelDebug
	case "info":
		logger.level = LevelInfo
	case "warning", "warn":
		logger.level = LevelWarn
	case "error":
		logger.level = LevelError
	}

	return logger
}

// SetLevel updates the logging level.
func (l *DefaultLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// IsLevelEnabled reports whether messages at the given level are emitted.
func (l *DefaultLogger) IsLevelEnabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

// Debug logs a message at DEBUG level.
func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	if !l.IsLevelEnabled(LevelDebug) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("DEBUG: "+msg, args...)
}

// Info logs a message at INFO level.
func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	if !l.IsLevelEnabled(LevelInfo) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("INFO: "+msg, args...)
}

// Warn logs a message at WARN level.
func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	if !l.IsLevelEnabled(LevelWarn) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("WARN: "+msg, args...)
}

// Error logs a message at ERROR level. Errors are always emitted.
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("ERROR: "+msg, args...)
}

// Ensure interface compliance
var _ types.Logger = (*DefaultLogger)(nil)
