package depgraph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/pkg/models"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func buildGraph(t *testing.T, files map[string]string, opts ...Option) *Graph {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, files)
	g := New(root, opts...)
	if err := g.BuildGraph(context.Background()); err != nil {
		t.Fatalf("BuildGraph() error = %v", err)
	}
	return g
}

func TestBuildGraphTwoFiles(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"a.ts": "export const X = 1;\n",
		"b.ts": "import { X } from './a';\nconsole.log(X);\n",
	})

	if got := g.GetDependents("a.ts"); !reflect.DeepEqual(got, []string{"b.ts"}) {
		t.Errorf("GetDependents(a.ts) = %v, want [b.ts]", got)
	}
	if got := g.GetDependencies("b.ts"); !reflect.DeepEqual(got, []string{"a.ts"}) {
		t.Errorf("GetDependencies(b.ts) = %v, want [a.ts]", got)
	}
	if got := g.GetDependents("b.ts"); len(got) != 0 {
		t.Errorf("GetDependents(b.ts) = %v, want empty", got)
	}

	impact := g.GetImpactAnalysis([]models.FileChange{{File: "a.ts", Type: models.ChangeModify}})
	if !reflect.DeepEqual(impact.DirectlyAffected, []string{"b.ts"}) {
		t.Errorf("DirectlyAffected = %v, want [b.ts]", impact.DirectlyAffected)
	}
	if impact.ImpactLevel != models.ImpactLow {
		t.Errorf("ImpactLevel = %s, want low", impact.ImpactLevel)
	}
	if len(impact.Risks) != 1 {
		t.Errorf("Risks = %v, want one contract risk", impact.Risks)
	}
}

func TestBuildGraphWorkspaceMissing(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.ts")
	writeFiles(t, dir, map[string]string{"file.ts": ""})

	tests := []struct {
		name string
		root string
	}{
		{"nonexistent", filepath.Join(dir, "missing")},
		{"not a directory", file},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.root).BuildGraph(context.Background())
			if !errors.Is(err, ErrWorkspaceMissing) {
				t.Errorf("BuildGraph() error = %v, want ErrWorkspaceMissing", err)
			}
		})
	}
}

func TestBuildGraphResolution(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"src/app.ts":       "import lib from './lib';\nimport { u } from './util';\nimport { s } from '../shared';\nimport React from 'react';\n",
		"src/lib/index.ts": "export default 1;\n",
		"src/util.js":      "export const u = 1;\n",
		"shared.ts":        "export const s = 1;\n",
		"pkg/service.py":   "from .models import User\nimport os\n",
		"pkg/models.py":    "class User:\n    pass\n",
		"pkg/__init__.py":  "",
		"main.py":          "from .pkg import service\n",
	})

	tests := []struct {
		file string
		want []string
	}{
		{"src/app.ts", []string{"src/lib/index.ts", "src/util.js", "shared.ts"}},
		{"pkg/service.py", []string{"pkg/models.py"}},
		{"main.py", []string{"pkg/__init__.py"}},
	}
	for _, tt := range tests {
		if got := g.GetDependencies(tt.file); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("GetDependencies(%s) = %v, want %v", tt.file, got, tt.want)
		}
	}

	if got := g.FilesImporting("react"); !reflect.DeepEqual(got, []string{"src/app.ts"}) {
		t.Errorf("FilesImporting(react) = %v", got)
	}
	if got := g.FilesExporting("User"); !reflect.DeepEqual(got, []string{"pkg/models.py"}) {
		t.Errorf("FilesExporting(User) = %v", got)
	}
}

func TestDependentsMatchResolvedImports(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"a.ts":       "export const A = 1;\n",
		"b.ts":       "import { A } from './a';\nexport const B = A;\n",
		"c.ts":       "import { A } from './a';\nimport { B } from './b';\n",
		"d/index.ts": "import { B } from '../b';\n",
		"e.ts":       "import x from './d';\nimport y from './nowhere';\n",
	})

	files := g.Files()
	for _, f := range files {
		deps := g.GetDependencies(f)
		for _, x := range files {
			imports := contains(deps, x)
			isDependent := contains(g.GetDependents(x), f)
			if imports != isDependent {
				t.Errorf("%s imports %s = %v but dependent = %v", f, x, imports, isDependent)
			}
		}
	}
}

func TestBuildGraphSkipsDirectories(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"src/a.ts":              "",
		"node_modules/pkg/x.js": "",
		".git/hooks/y.js":       "",
		"dist/z.js":             "",
		"vendor/v.go":           "",
		"deep/one/two/w.ts":     "",
		"README.md":             "",
	}, WithConfig(config.GraphConfig{MaxDepth: 2, SkipDirs: config.DefaultSkipDirs}))

	want := []string{"src/a.ts"}
	if got := g.Files(); !reflect.DeepEqual(got, want) {
		t.Errorf("Files() = %v, want %v", got, want)
	}
}

type panicParser struct{}

func (panicParser) Parse(content string) ParseResult {
	if strings.Contains(content, "boom") {
		panic("malformed")
	}
	return ScriptParser{}.Parse(content)
}

func TestBuildGraphSkipsParseFailures(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"good.ts": "export const ok = 1;\n",
		"bad.ts":  "boom\n",
	}, WithParser(".ts", panicParser{}))

	if got := g.Files(); !reflect.DeepEqual(got, []string{"good.ts"}) {
		t.Errorf("Files() = %v, want [good.ts]", got)
	}
}

func TestUpdateFile(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"a.ts": "export const X = 1;\n",
		"b.ts": "import { X } from './a';\n",
	})
	ctx := context.Background()
	root := g.Root()
	v0 := g.Version()

	writeFiles(t, root, map[string]string{"c.ts": "import { X } from './a';\nexport const Y = X;\n"})
	if err := g.UpdateFile(ctx, filepath.Join(root, "c.ts")); err != nil {
		t.Fatalf("UpdateFile(c.ts) error = %v", err)
	}
	if got := g.GetDependents("a.ts"); !reflect.DeepEqual(got, []string{"b.ts", "c.ts"}) {
		t.Errorf("after add, GetDependents(a.ts) = %v", got)
	}
	if g.Version() <= v0 {
		t.Errorf("Version() = %d, want > %d", g.Version(), v0)
	}

	writeFiles(t, root, map[string]string{"b.ts": "console.log('standalone, no imports here');\n"})
	if err := g.UpdateFile(ctx, "b.ts"); err != nil {
		t.Fatalf("UpdateFile(b.ts) error = %v", err)
	}
	if got := g.GetDependents("a.ts"); !reflect.DeepEqual(got, []string{"c.ts"}) {
		t.Errorf("after edit, GetDependents(a.ts) = %v", got)
	}
	if got := g.FilesImporting("./a"); !reflect.DeepEqual(got, []string{"c.ts"}) {
		t.Errorf("after edit, FilesImporting(./a) = %v", got)
	}

	if err := os.Remove(filepath.Join(root, "a.ts")); err != nil {
		t.Fatal(err)
	}
	if err := g.UpdateFile(ctx, "a.ts"); err != nil {
		t.Fatalf("UpdateFile(a.ts) error = %v", err)
	}
	if _, ok := g.File("a.ts"); ok {
		t.Error("a.ts still tracked after removal")
	}
	if got := g.GetDependencies("c.ts"); len(got) != 0 {
		t.Errorf("GetDependencies(c.ts) = %v, want empty after target removed", got)
	}
	if got := g.FilesExporting("X"); len(got) != 0 {
		t.Errorf("FilesExporting(X) = %v, want empty", got)
	}
}

func TestUpdateFileOutsideWorkspace(t *testing.T) {
	g := buildGraph(t, map[string]string{"a.ts": ""})
	if err := g.UpdateFile(context.Background(), "../escape.ts"); err == nil {
		t.Error("expected error for path outside workspace")
	}
}

func TestParseCacheReuse(t *testing.T) {
	g := buildGraph(t, map[string]string{"a.ts": "export const X = 1;\n"})
	if g.cache.len() != 1 {
		t.Fatalf("cache len = %d, want 1", g.cache.len())
	}
	if err := g.BuildGraph(context.Background()); err != nil {
		t.Fatal(err)
	}
	info, ok := g.File("a.ts")
	if !ok || !reflect.DeepEqual(info.Exports, []string{"X"}) {
		t.Errorf("File(a.ts) after cached rebuild = %+v", info)
	}
}

type countingParser struct {
	calls atomic.Int64
}

func (p *countingParser) Parse(content string) ParseResult {
	p.calls.Add(1)
	return ScriptParser{}.Parse(content)
}

func TestParseCacheSkipsUnchangedFiles(t *testing.T) {
	p := &countingParser{}
	g := buildGraph(t, map[string]string{
		"a.ts": "export const X = 1;\n",
		"b.ts": "import { X } from './a';\n",
	}, WithParser(".ts", p))

	if err := g.BuildGraph(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("Parse calls after two builds = %d, want 2", got)
	}
}

func TestParseCacheMissOnModTimeChange(t *testing.T) {
	p := &countingParser{}
	g := buildGraph(t, map[string]string{"a.ts": "export const X = 1;\n"}, WithParser(".ts", p))

	file := filepath.Join(g.Root(), "a.ts")
	if err := os.WriteFile(file, []byte("export const X = 1;\nexport const Y = 2;\n"), 0644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(file, later, later); err != nil {
		t.Fatal(err)
	}
	if err := g.BuildGraph(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := g.FilesExporting("Y"); !reflect.DeepEqual(got, []string{"a.ts"}) {
		t.Errorf("FilesExporting(Y) = %v, want [a.ts]", got)
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("Parse calls = %d, want 2", got)
	}
}

func TestUpdateFileConcurrentWithBuild(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"a.ts": "export const X = 1;\n",
		"b.ts": "import { X } from './a';\n",
		"c.ts": "import { X } from './a';\n",
	})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- g.BuildGraph(context.Background())
		}()
		go func() {
			defer wg.Done()
			errs <- g.UpdateFile(context.Background(), "b.ts")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent mutation error = %v", err)
		}
	}

	if got := g.Files(); !reflect.DeepEqual(got, []string{"a.ts", "b.ts", "c.ts"}) {
		t.Errorf("Files() = %v", got)
	}
	if got := g.GetDependents("a.ts"); !reflect.DeepEqual(got, []string{"b.ts", "c.ts"}) {
		t.Errorf("GetDependents(a.ts) = %v, want [b.ts c.ts]", got)
	}
}

func TestBuildGraphCanceled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.ts": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(root).BuildGraph(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("BuildGraph() error = %v, want context.Canceled", err)
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
