package depgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SnapshotFileName is the graph snapshot location inside a workspace.
const SnapshotFileName = ".conclave/graph.json"

// Snapshot is the persisted form of a graph.
type Snapshot struct {
	Version     int                  `json:"version"`
	LastUpdated time.Time            `json:"lastUpdated"`
	Root        string               `json:"root"`
	Files       map[string]*FileInfo `json:"files"`
	Indexes     SnapshotIndexes      `json:"indexes"`
}

// SnapshotIndexes are the export and import indexes in persisted form.
type SnapshotIndexes struct {
	ByExport map[string][]string `json:"byExport"`
	ByImport map[string][]string `json:"byImport"`
}

// DefaultSnapshotPath returns the snapshot path for a workspace root.
func DefaultSnapshotPath(root string) string {
	return filepath.Join(root, filepath.FromSlash(SnapshotFileName))
}

// Snapshot returns a deep copy of the current graph state.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := Snapshot{
		Version:     g.version,
		LastUpdated: g.lastUpdated,
		Root:        g.root,
		Files:       make(map[string]*FileInfo, len(g.files)),
		Indexes: SnapshotIndexes{
			ByExport: make(map[string][]string, len(g.exportIndex)),
			ByImport: make(map[string][]string, len(g.importIndex)),
		},
	}
	for p, info := range g.files {
		snap.Files[p] = info.clone()
	}
	for sym, set := range g.exportIndex {
		snap.Indexes.ByExport[sym] = set.sorted()
	}
	for spec, set := range g.importIndex {
		snap.Indexes.ByImport[spec] = set.sorted()
	}
	return snap
}

// SaveSnapshot writes the graph as JSON to path.
func (g *Graph) SaveSnapshot(path string) error {
	data, err := json.MarshalIndent(g.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write graph snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the graph with the snapshot at path. Indexes and
// dependents are recomputed from the stored nodes rather than trusted.
func (g *Graph) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read graph snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse graph snapshot: %w", err)
	}
	if snap.Root != "" && snap.Root != g.root {
		return fmt.Errorf("snapshot root %s does not match workspace %s", snap.Root, g.root)
	}

	g.buildMu.Lock()
	defer g.buildMu.Unlock()

	files := make(map[string]*FileInfo, len(snap.Files))
	for p, info := range snap.Files {
		if info == nil {
			continue
		}
		info.Path = p
		files[p] = info
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.files = files
	g.exportIndex = make(map[string]pathSet)
	g.importIndex = make(map[string]pathSet)
	for _, info := range files {
		g.indexFile(info)
	}
	g.buildDependents()
	g.version = snap.Version
	g.lastUpdated = snap.LastUpdated
	return nil
}

// IsStale reports whether the graph was never built or is older than maxAge.
func (g *Graph) IsStale(maxAge time.Duration) bool {
	updated := g.LastUpdated()
	return updated.IsZero() || time.Since(updated) > maxAge
}

// EnsureFresh loads the snapshot at path if it is younger than maxAge, and
// otherwise rebuilds the graph and saves a new snapshot. It reports whether
// a rebuild happened.
func (g *Graph) EnsureFresh(ctx context.Context, path string, maxAge time.Duration) (bool, error) {
	if err := g.LoadSnapshot(path); err == nil && !g.IsStale(maxAge) {
		return false, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		g.logger.Log("ignoring snapshot %s: %v", path, err)
	}

	if err := g.BuildGraph(ctx); err != nil {
		return false, err
	}
	if err := g.SaveSnapshot(path); err != nil {
		g.logger.Log("save snapshot: %v", err)
	}
	return true, nil
}
