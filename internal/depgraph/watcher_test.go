package depgraph

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherUpdatesGraph(t *testing.T) {
	g := buildGraph(t, map[string]string{"a.ts": "export const A = 1;\n"})

	updated := make(chan string, 16)
	w, err := NewWatcher(g, WithDebounce(20*time.Millisecond), WithOnUpdate(func(file string) {
		updated <- file
	}))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFiles(t, g.Root(), map[string]string{"src/b.ts": "import { A } from '../a';\n"})

	deadline := time.After(5 * time.Second)
	for {
		select {
		case f := <-updated:
			if f == "src/b.ts" && contains(g.GetDependents("a.ts"), "src/b.ts") {
				cancel()
				if err := <-done; err != nil {
					t.Errorf("Run() error = %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatalf("graph not updated; dependents(a.ts) = %v", g.GetDependents("a.ts"))
		}
	}
}

func TestWatcherIgnoresSkippedDirs(t *testing.T) {
	g := buildGraph(t, map[string]string{"a.ts": ""})
	w, err := NewWatcher(g)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if !w.ignored("node_modules/x/y.js") {
		t.Error("node_modules path should be ignored")
	}
	if !w.ignored(".git/config.js") {
		t.Error("hidden dir path should be ignored")
	}
	if w.ignored(filepath.ToSlash("src/app.ts")) {
		t.Error("src path should not be ignored")
	}
}
