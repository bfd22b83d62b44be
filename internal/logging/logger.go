// Package logging provides the file-backed debug logger used across colony.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger writes timestamped lines to a file.
// A nil logger, or one without a file, discards everything.
type DebugLogger struct {
	out    *logFile
	prefix string
}

type logFile struct {
	mu   sync.Mutex
	file *os.File
}

// NewDebugLogger creates a logger writing to the specified path.
// If the path is empty, returns a no-op logger.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &DebugLogger{out: &logFile{file: f}}
	logger.Log("=== colony debug log started at %s ===", time.Now().Format(time.RFC3339))

	return logger, nil
}

// ForDir creates a debug logger at <dir>/logs/colony-debug.log.
// Returns a no-op logger if the file cannot be created.
func ForDir(dir string) *DebugLogger {
	logger, err := NewDebugLogger(filepath.Join(dir, "logs", "colony-debug.log"))
	if err != nil {
		return &DebugLogger{}
	}
	return logger
}

// NopLogger returns a no-op logger for testing or when logging is disabled.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// With returns a logger that shares the same file and tags every line
// with component.
func (l *DebugLogger) With(component string) *DebugLogger {
	if l == nil {
		return nil
	}
	return &DebugLogger{out: l.out, prefix: "[" + component + "] "}
}

// Log writes a timestamped message to the debug log.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.out == nil {
		return
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.out.file, "[%s] %s%s\n", timestamp, l.prefix, msg)
	l.out.file.Sync()
}

// Close closes the log file.
// Safe to call on nil logger or logger without file.
func (l *DebugLogger) Close() error {
	if l == nil || l.out == nil {
		return nil
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	return l.out.file.Close()
}
