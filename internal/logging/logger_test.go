package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDebugLogger_EmptyPathIsNop(t *testing.T) {
	l, err := NewDebugLogger("")
	if err != nil {
		t.Fatalf("NewDebugLogger(\"\") failed: %v", err)
	}
	l.Log("dropped %d", 1)
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestDebugLogger_WritesPrefixedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "debug.log")
	l, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}

	l.With("gate").Log("denied %s", "worker-3")
	l.Log("plain")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[gate] denied worker-3") {
		t.Errorf("log missing prefixed line:\n%s", content)
	}
	if !strings.Contains(content, "plain") {
		t.Errorf("log missing plain line:\n%s", content)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *DebugLogger
	l.Log("nothing")
	if l.With("x") != nil {
		t.Error("With on nil logger should return nil")
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}
