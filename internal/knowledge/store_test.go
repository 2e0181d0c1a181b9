package knowledge

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/pkg/models"
)

func populated(t *testing.T, workspace string) *Base {
	t.Helper()
	b, err := New(workspace)
	if err != nil {
		t.Fatal(err)
	}
	b.SetProfile(&models.ProjectProfile{Name: "shop", Patterns: []string{"repository"}})
	b.RecordPattern("repository")
	b.RecordStandard("errors wrapped with %w")
	b.SetDependencies(map[string][]string{"b.ts": {"a.ts"}})
	first := decision("backend", true, 0.9, "keep handlers thin")
	first.TaskType = models.TaskTypeFeature
	first.Outcome.Issues = []string{"flaky test"}
	b.AddDecision(first)
	b.AddDecision(decision("qa", false, 0.2))
	return b
}

func assertRestored(t *testing.T, orig, got *Base) {
	t.Helper()
	want := orig.History()
	have := got.History()
	if len(have) != len(want) {
		t.Fatalf("history length = %d, want %d", len(have), len(want))
	}
	for i := range want {
		w, h := want[i], have[i]
		if h.ID != w.ID || h.TaskType != w.TaskType || h.Decision != w.Decision ||
			h.Outcome.Success != w.Outcome.Success || h.Outcome.ExecutionTime != w.Outcome.ExecutionTime ||
			!h.Timestamp.Equal(w.Timestamp) || len(h.Lessons) != len(w.Lessons) ||
			len(h.Outcome.Issues) != len(w.Outcome.Issues) {
			t.Errorf("history[%d] = %+v, want %+v", i, h, w)
		}
	}
	if got.Profile() == nil || got.Profile().Name != "shop" {
		t.Errorf("Profile = %+v", got.Profile())
	}
	if p := got.Patterns(); len(p) != 1 || p[0] != "repository" {
		t.Errorf("Patterns = %v", p)
	}
	if s := got.Standards(); len(s) != 1 {
		t.Errorf("Standards = %v", s)
	}
	if m := got.GetMetrics(); m.TotalDecisions != 2 || m.SuccessRate != 0.5 {
		t.Errorf("Metrics = %+v", m)
	}
	if !got.LastUpdated().Equal(orig.LastUpdated()) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated(), orig.LastUpdated())
	}
}

func TestFileStore(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	store := NewFileStore(JSONPath(ws))

	empty, err := store.Load(ctx, ws)
	if err != nil {
		t.Fatalf("Load(missing) error = %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("empty base has %d decisions", empty.Len())
	}

	orig := populated(t, ws)
	if err := store.Save(ctx, orig); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(JSONPath(ws) + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	got, err := store.Load(ctx, ws)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertRestored(t, orig, got)
}

func TestFileStoreCorrupt(t *testing.T) {
	ws := t.TempDir()
	path := JSONPath(ws)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(context.Background(), ws); err == nil {
		t.Error("expected parse error")
	}
}

func TestSQLiteStore(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	store, err := OpenSQLite(SQLitePath(ws))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer store.Close()

	empty, err := store.Load(ctx, ws)
	if err != nil {
		t.Fatalf("Load(empty) error = %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("empty base has %d decisions", empty.Len())
	}

	orig := populated(t, ws)
	if err := store.Save(ctx, orig); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Load(ctx, ws)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertRestored(t, orig, got)

	// saving again replaces rows instead of duplicating them
	orig.AddDecision(decision("frontend", true, 0.7))
	if err := store.Save(ctx, orig); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	got, err = store.Load(ctx, ws)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 3 {
		t.Errorf("Len() after resave = %d, want 3", got.Len())
	}

	other, err := store.Load(ctx, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if other.Len() != 0 {
		t.Error("workspaces share decisions")
	}
}

func TestSQLiteStoreKeepsSubMillisecondDurations(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	store, err := OpenSQLite(SQLitePath(ws))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	b, err := New(ws)
	if err != nil {
		t.Fatal(err)
	}
	d := decision("backend", true, 0.9)
	d.Outcome.ExecutionTime = 1234567 * time.Nanosecond
	b.AddDecision(d)
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, ws)
	if err != nil {
		t.Fatal(err)
	}
	h := got.History()
	if len(h) != 1 {
		t.Fatalf("history length = %d, want 1", len(h))
	}
	if h[0].Outcome.ExecutionTime != 1234567*time.Nanosecond {
		t.Errorf("ExecutionTime = %v, want 1.234567ms", h[0].Outcome.ExecutionTime)
	}
}

func TestSQLiteStoreSavesAfterDuplicateID(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	store, err := OpenSQLite(SQLitePath(ws))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	b, err := New(ws)
	if err != nil {
		t.Fatal(err)
	}
	for _, agent := range []string{"backend", "qa"} {
		d := decision(agent, true, 0.5)
		d.ID = "same"
		b.AddDecision(d)
	}
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Load(ctx, ws)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 2 {
		t.Errorf("Len() = %d, want 2", got.Len())
	}
}

func TestSQLiteMigrateConvertsMilliseconds(t *testing.T) {
	ws := t.TempDir()
	path := SQLitePath(ws)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	setup := []string{
		"CREATE TABLE knowledge_schema_version (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP)",
		migrationV1Documents,
		migrationV2Decisions,
		migrationV3TaskType,
		"INSERT INTO knowledge_schema_version (version) VALUES (1), (2), (3)",
	}
	for _, q := range setup {
		if _, err := conn.Exec(q); err != nil {
			t.Fatalf("setup %q: %v", q, err)
		}
	}
	_, err = conn.Exec(`INSERT INTO decisions (id, workspace, task_id, timestamp, success, execution_ms)
		VALUES ('old', ?, 'task-1', ?, 1, 1500)`, ws, formatTime(time.Now()))
	if err != nil {
		t.Fatalf("insert v3 decision: %v", err)
	}
	conn.Close()

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer store.Close()
	got, err := store.Load(context.Background(), ws)
	if err != nil {
		t.Fatal(err)
	}
	if h := got.History(); len(h) != 1 || h[0].Outcome.ExecutionTime != 1500*time.Millisecond {
		t.Errorf("history = %+v, want one decision of 1.5s", h)
	}
}

func TestSQLiteMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Migrate(); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
	store.Close()

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	reopened.Close()
}

func TestOpen(t *testing.T) {
	ws := t.TempDir()
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"", false},
		{BackendJSON, false},
		{BackendSQLite, false},
		{"mongo", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := Open(ws, config.KnowledgeConfig{Backend: tt.backend})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open(%q) error = %v", tt.backend, err)
			}
			if s != nil {
				s.Close()
			}
		})
	}
	if _, err := Open("", config.KnowledgeConfig{}); err != ErrNoWorkspace {
		t.Errorf("Open(\"\") error = %v", err)
	}
}
