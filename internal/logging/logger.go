// Package logging provides the file-backed debug log shared by the engine packages.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// sink is the file shared by a logger and everything derived from it via With.
type sink struct {
	mu   sync.Mutex
	file *os.File
}

// DebugLogger writes timestamped debug lines to a file.
// A nil logger, or one without a file, discards everything.
type DebugLogger struct {
	sink   *sink
	prefix string
}

// New creates a logger writing to the specified path.
// If the path is empty, returns a no-op logger.
// Creates parent directories if they don't exist.
func New(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &DebugLogger{sink: &sink{file: f}}
	logger.Log("=== conclave debug log started at %s ===", time.Now().Format(time.RFC3339))

	return logger, nil
}

// PathForWorkspace returns the default log location inside a workspace.
func PathForWorkspace(workspace string) string {
	return filepath.Join(workspace, ".conclave", "logs", "conclave-debug.log")
}

// NewForWorkspace creates a debug logger in the workspace's .conclave/logs directory.
// Returns a no-op logger if the directory cannot be created.
func NewForWorkspace(workspace string) *DebugLogger {
	logger, err := New(PathForWorkspace(workspace))
	if err != nil {
		return &DebugLogger{}
	}
	return logger
}

// Nop returns a logger that discards everything.
func Nop() *DebugLogger {
	return &DebugLogger{}
}

// With returns a logger writing to the same file with every line tagged by component.
func (l *DebugLogger) With(component string) *DebugLogger {
	if l == nil {
		return nil
	}
	return &DebugLogger{sink: l.sink, prefix: l.prefix + "[" + component + "] "}
}

// Log writes a timestamped message to the debug log.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.sink == nil {
		return
	}

	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	timestamp := time.Now().Format("15:04:05.000")

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.file == nil {
		return
	}
	fmt.Fprintf(l.sink.file, "[%s] %s%s\n", timestamp, l.prefix, msg)
}

// Close closes the log file. Derived loggers stop writing afterwards.
// Safe to call on nil logger or logger without file.
func (l *DebugLogger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.file == nil {
		return nil
	}
	err := l.sink.file.Close()
	l.sink.file = nil
	return err
}
