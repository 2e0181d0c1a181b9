package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// SQLiteStore keeps knowledge bases in an SQLite database: one document row
// per workspace and one row per decision.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets readers proceed while a save is in flight
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: conn, path: path}
	if err := s.Migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Migrate creates the schema, applying each missing version in its own
// transaction.
func (s *SQLiteStore) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS knowledge_schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM knowledge_schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Documents},
		{2, migrationV2Decisions},
		{3, migrationV3TaskType},
		{4, migrationV4ExecutionNanos},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO knowledge_schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

const migrationV1Documents = `
CREATE TABLE IF NOT EXISTS knowledge_documents (
	workspace TEXT PRIMARY KEY,
	structure TEXT NOT NULL DEFAULT '{}',
	dependencies TEXT NOT NULL DEFAULT '{}',
	patterns TEXT NOT NULL DEFAULT '[]',
	standards TEXT NOT NULL DEFAULT '[]',
	profile TEXT,
	last_updated TEXT NOT NULL
);
`

const migrationV2Decisions = `
CREATE TABLE IF NOT EXISTS decisions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	workspace TEXT NOT NULL,
	task_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	solution_id TEXT,
	agent_id TEXT,
	reasoning TEXT,
	success INTEGER NOT NULL,
	execution_ms INTEGER NOT NULL DEFAULT 0,
	files_changed INTEGER NOT NULL DEFAULT 0,
	quality REAL NOT NULL DEFAULT 0,
	issues TEXT NOT NULL DEFAULT '[]',
	lessons TEXT NOT NULL DEFAULT '[]',
	UNIQUE (workspace, id)
);

CREATE INDEX IF NOT EXISTS idx_decisions_workspace ON decisions(workspace, seq);
CREATE INDEX IF NOT EXISTS idx_decisions_agent ON decisions(agent_id);
`

// Records written before v3 have an empty task type and fall back to
// keyword inference.
const migrationV3TaskType = `
ALTER TABLE decisions ADD COLUMN task_type TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS idx_decisions_task_type ON decisions(task_type);
`

// execution_ms is kept for older readers; execution_ns is authoritative.
const migrationV4ExecutionNanos = `
ALTER TABLE decisions ADD COLUMN execution_ns INTEGER NOT NULL DEFAULT 0;
UPDATE decisions SET execution_ns = execution_ms * 1000000;
`

// Load reads the workspace's document and decisions. A workspace with no
// rows yields an empty Base.
func (s *SQLiteStore) Load(ctx context.Context, workspace string, opts ...Option) (*Base, error) {
	if workspace == "" {
		return nil, ErrNoWorkspace
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := Document{Workspace: workspace}
	var (
		structure, deps, patterns, standards string
		profile                              sql.NullString
		lastUpdated                          string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT structure, dependencies, patterns, standards, profile, last_updated
		FROM knowledge_documents WHERE workspace = ?`, workspace,
	).Scan(&structure, &deps, &patterns, &standards, &profile, &lastUpdated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load knowledge document: %w", err)
	default:
		cols := []struct {
			raw string
			dst any
		}{
			{structure, &doc.Structure},
			{deps, &doc.Dependencies},
			{patterns, &doc.Patterns},
			{standards, &doc.Standards},
		}
		for _, c := range cols {
			if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
				return nil, fmt.Errorf("decode knowledge document: %w", err)
			}
		}
		if profile.Valid {
			var p models.ProjectProfile
			if err := json.Unmarshal([]byte(profile.String), &p); err != nil {
				return nil, fmt.Errorf("decode profile: %w", err)
			}
			doc.Profile = &p
		}
		if doc.LastUpdated, err = parseTime(lastUpdated); err != nil {
			return nil, fmt.Errorf("decode last_updated: %w", err)
		}
	}

	history, err := s.loadDecisions(ctx, workspace)
	if err != nil {
		return nil, err
	}
	doc.History = history
	return FromDocument(doc, opts...)
}

func (s *SQLiteStore) loadDecisions(ctx context.Context, workspace string) ([]models.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, task_type, timestamp, solution_id, agent_id, reasoning,
			success, execution_ns, files_changed, quality, issues, lessons
		FROM decisions WHERE workspace = ? ORDER BY seq`, workspace)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []models.Decision
	for rows.Next() {
		var (
			d                           models.Decision
			taskType, ts                string
			solutionID, agentID, reason sql.NullString
			success                     int
			execNS                      int64
			issues, lessons             string
		)
		if err := rows.Scan(&d.ID, &d.TaskID, &taskType, &ts, &solutionID, &agentID, &reason,
			&success, &execNS, &d.Outcome.FilesChanged, &d.Outcome.Quality, &issues, &lessons); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.TaskType = models.TaskType(taskType)
		if d.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("decode decision %s timestamp: %w", d.ID, err)
		}
		d.Decision = models.DecisionChoice{
			SolutionID: solutionID.String,
			AgentID:    agentID.String,
			Reasoning:  reason.String,
		}
		d.Outcome.Success = success != 0
		d.Outcome.ExecutionTime = time.Duration(execNS)
		if err := json.Unmarshal([]byte(issues), &d.Outcome.Issues); err != nil {
			return nil, fmt.Errorf("decode decision %s issues: %w", d.ID, err)
		}
		if err := json.Unmarshal([]byte(lessons), &d.Lessons); err != nil {
			return nil, fmt.Errorf("decode decision %s lessons: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Save replaces the workspace's document and decision rows in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, b *Base) error {
	doc := b.Document()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var profile sql.NullString
	if doc.Profile != nil {
		raw, err := json.Marshal(doc.Profile)
		if err != nil {
			return fmt.Errorf("encode profile: %w", err)
		}
		profile = sql.NullString{String: string(raw), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO knowledge_documents (workspace, structure, dependencies, patterns, standards, profile, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace) DO UPDATE SET
			structure = excluded.structure,
			dependencies = excluded.dependencies,
			patterns = excluded.patterns,
			standards = excluded.standards,
			profile = excluded.profile,
			last_updated = excluded.last_updated`,
		doc.Workspace, mustJSON(doc.Structure), mustJSON(doc.Dependencies),
		mustJSON(doc.Patterns), mustJSON(doc.Standards), profile, formatTime(doc.LastUpdated))
	if err != nil {
		return fmt.Errorf("save knowledge document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM decisions WHERE workspace = ?", doc.Workspace); err != nil {
		return fmt.Errorf("clear decisions: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO decisions (id, workspace, task_id, task_type, timestamp, solution_id, agent_id,
			reasoning, success, execution_ms, execution_ns, files_changed, quality, issues, lessons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare decision insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range doc.History {
		success := 0
		if d.Outcome.Success {
			success = 1
		}
		_, err := stmt.ExecContext(ctx, d.ID, doc.Workspace, d.TaskID, string(d.TaskType), formatTime(d.Timestamp),
			nullString(d.Decision.SolutionID), nullString(d.Decision.AgentID), nullString(d.Decision.Reasoning),
			success, d.Outcome.ExecutionTime.Milliseconds(), int64(d.Outcome.ExecutionTime), d.Outcome.FilesChanged, d.Outcome.Quality,
			mustJSON(d.Outcome.Issues), mustJSON(d.Lessons))
		if err != nil {
			return fmt.Errorf("insert decision %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// mustJSON encodes plain string containers, which cannot fail. nil encodes
// as an empty container so the NOT NULL defaults hold.
func mustJSON(v any) string {
	switch t := v.(type) {
	case []string:
		if t == nil {
			return "[]"
		}
	case map[string][]string:
		if t == nil {
			return "{}"
		}
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// nullString treats empty as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
