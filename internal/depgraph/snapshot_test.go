package depgraph

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestSnapshotRoundTrip(t *testing.T) {
	g := chainGraph(t)
	path := DefaultSnapshotPath(g.Root())
	if err := g.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	loaded := New(g.Root())
	if err := loaded.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	if !reflect.DeepEqual(loaded.Files(), g.Files()) {
		t.Errorf("Files() = %v, want %v", loaded.Files(), g.Files())
	}
	for _, f := range g.Files() {
		if got, want := loaded.GetDependents(f), g.GetDependents(f); !reflect.DeepEqual(got, want) {
			t.Errorf("GetDependents(%s) = %v, want %v", f, got, want)
		}
	}
	if loaded.Version() != g.Version() {
		t.Errorf("Version() = %d, want %d", loaded.Version(), g.Version())
	}
	if !loaded.LastUpdated().Equal(g.LastUpdated()) {
		t.Errorf("LastUpdated() = %v, want %v", loaded.LastUpdated(), g.LastUpdated())
	}
	if got := loaded.FilesExporting("B"); !reflect.DeepEqual(got, []string{"b.ts"}) {
		t.Errorf("FilesExporting(B) = %v", got)
	}
}

func TestLoadSnapshotRootMismatch(t *testing.T) {
	g := chainGraph(t)
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := g.SaveSnapshot(path); err != nil {
		t.Fatal(err)
	}
	if err := New(t.TempDir()).LoadSnapshot(path); err == nil {
		t.Error("expected root mismatch error")
	}
}

func TestIsStale(t *testing.T) {
	g := New(t.TempDir())
	if !g.IsStale(time.Hour) {
		t.Error("never-built graph should be stale")
	}
	if err := g.BuildGraph(context.Background()); err != nil {
		t.Fatal(err)
	}
	if g.IsStale(time.Hour) {
		t.Error("fresh graph should not be stale")
	}
	if !g.IsStale(0) {
		t.Error("graph should be stale with zero max age")
	}
}

func TestEnsureFresh(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.ts": "export const A = 1;\n",
		"b.ts": "import { A } from './a';\n",
	})
	path := DefaultSnapshotPath(root)
	ctx := context.Background()

	rebuilt, err := New(root).EnsureFresh(ctx, path, time.Hour)
	if err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if !rebuilt {
		t.Error("first EnsureFresh should rebuild")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	g := New(root)
	rebuilt, err = g.EnsureFresh(ctx, path, time.Hour)
	if err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if rebuilt {
		t.Error("second EnsureFresh should load the snapshot")
	}
	if got := g.GetDependents("a.ts"); !reflect.DeepEqual(got, []string{"b.ts"}) {
		t.Errorf("GetDependents(a.ts) = %v", got)
	}
}
