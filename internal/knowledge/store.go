package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/conclave/internal/config"
)

// Store persists knowledge bases. Load returns an empty Base when nothing
// has been saved for the workspace.
type Store interface {
	Load(ctx context.Context, workspace string, opts ...Option) (*Base, error)
	Save(ctx context.Context, b *Base) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// DataDir is the per-workspace directory holding persisted state.
const DataDir = ".conclave"

// JSONPath returns the JSON document location for a workspace.
func JSONPath(workspace string) string {
	return filepath.Join(workspace, DataDir, "knowledge.json")
}

// SQLitePath returns the SQLite database location for a workspace.
func SQLitePath(workspace string) string {
	return filepath.Join(workspace, DataDir, "knowledge.db")
}

// Open returns the store selected by cfg.Backend for workspace.
func Open(workspace string, cfg config.KnowledgeConfig) (Store, error) {
	if workspace == "" {
		return nil, ErrNoWorkspace
	}
	switch cfg.Backend {
	case "", BackendJSON:
		return NewFileStore(JSONPath(workspace)), nil
	case BackendSQLite:
		return OpenSQLite(SQLitePath(workspace))
	default:
		return nil, fmt.Errorf("unknown knowledge backend %q", cfg.Backend)
	}
}

// FileStore keeps one JSON document per workspace.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the document. A missing file yields an empty Base.
func (s *FileStore) Load(ctx context.Context, workspace string, opts ...Option) (*Base, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return New(workspace, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse knowledge base %s: %w", s.path, err)
	}
	doc.Workspace = workspace
	return FromDocument(doc, opts...)
}

// Save writes the document through a temp file and rename.
func (s *FileStore) Save(ctx context.Context, b *Base) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(b.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal knowledge base: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create knowledge directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write knowledge base: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace knowledge base: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
