package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_EmptyPathIsNop(t *testing.T) {
	l, err := New("")
	if err != nil {
		t.Fatalf("New(\"\") error = %v", err)
	}
	l.Log("dropped %d", 1)
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNew_WritesTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "debug.log")
	l, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Log("hello %s", "world")
	l.With("graph").Log("rebuilt %d files", 3)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "hello world") {
		t.Errorf("log missing message, got %q", content)
	}
	if !strings.Contains(content, "[graph] rebuilt 3 files") {
		t.Errorf("log missing component prefix, got %q", content)
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

func TestLogAfterClose(t *testing.T) {
	l, err := New(filepath.Join(t.TempDir(), "debug.log"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	child := l.With("child")
	_ = l.Close()
	child.Log("after close")
	if err := child.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestPathForWorkspace(t *testing.T) {
	got := PathForWorkspace("/repo")
	want := filepath.Join("/repo", ".conclave", "logs", "conclave-debug.log")
	if got != want {
		t.Errorf("PathForWorkspace() = %q, want %q", got, want)
	}
}
