// Package depgraph tracks cross-file import/export relationships in a
// workspace and answers change-impact queries over them.
package depgraph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/internal/metrics"
)

// ErrWorkspaceMissing is returned when the workspace root is absent or unreadable.
var ErrWorkspaceMissing = errors.New("workspace root missing")

// resolveExtensions is the order in which extensionless imports are tried.
var resolveExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".py", ".go"}

// FileInfo is one node of the graph. Dependents are derived and rewritten on
// every structural change.
type FileInfo struct {
	Path string `json:"path"`
	// Imports are the raw specifiers in source order.
	Imports []string `json:"imports"`
	// ResolvedImports are the graph keys the relative imports resolved to.
	ResolvedImports []string  `json:"resolvedImports"`
	Exports         []string  `json:"exports"`
	Symbols         []string  `json:"symbols,omitempty"`
	Dependents      []string  `json:"dependents"`
	ModTime         time.Time `json:"modTime"`
}

func (f *FileInfo) clone() *FileInfo {
	c := *f
	c.Imports = append([]string(nil), f.Imports...)
	c.ResolvedImports = append([]string(nil), f.ResolvedImports...)
	c.Exports = append([]string(nil), f.Exports...)
	c.Symbols = append([]string(nil), f.Symbols...)
	c.Dependents = append([]string(nil), f.Dependents...)
	return &c
}

type pathSet map[string]struct{}

func (s pathSet) sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Graph is the dependency graph of one workspace.
//
// Mutations (BuildGraph, UpdateFile, LoadSnapshot) are serialized; queries
// take a read lock and always observe a fully rebuilt dependents pass.
type Graph struct {
	root     string
	parsers  map[string]SourceParser
	maxDepth int
	workers  int
	skipDirs map[string]bool
	cache    *parseCache
	logger   *logging.DebugLogger
	metrics  *metrics.Metrics

	buildMu sync.Mutex

	mu          sync.RWMutex
	version     int
	lastUpdated time.Time
	files       map[string]*FileInfo
	exportIndex map[string]pathSet
	importIndex map[string]pathSet
}

// Option configures a Graph.
type Option func(*Graph)

// WithParser registers a parser for a file extension such as ".ts".
func WithParser(ext string, p SourceParser) Option {
	return func(g *Graph) {
		g.parsers[strings.ToLower(ext)] = p
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(g *Graph) {
		g.logger = l.With("depgraph")
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Graph) {
		g.metrics = m
	}
}

// WithConfig applies walk depth, worker, cache and skip settings.
func WithConfig(cfg config.GraphConfig) Option {
	return func(g *Graph) {
		if cfg.MaxDepth > 0 {
			g.maxDepth = cfg.MaxDepth
		}
		if cfg.Workers > 0 {
			g.workers = cfg.Workers
		}
		if len(cfg.SkipDirs) > 0 {
			g.skipDirs = toSet(cfg.SkipDirs)
		}
		g.cache = newParseCache(cfg.CacheSize, cfg.CacheTTL)
	}
}

// New creates an empty graph for the workspace rooted at root.
func New(root string, opts ...Option) *Graph {
	if abs, err := filepath.Abs(root); err == nil && root != "" {
		root = abs
	}
	defaults := config.Default().Graph
	g := &Graph{
		root:        root,
		parsers:     DefaultParsers(),
		maxDepth:    defaults.MaxDepth,
		workers:     defaults.Workers,
		skipDirs:    toSet(defaults.SkipDirs),
		logger:      logging.Nop(),
		files:       make(map[string]*FileInfo),
		exportIndex: make(map[string]pathSet),
		importIndex: make(map[string]pathSet),
	}
	g.cache = newParseCache(defaults.CacheSize, defaults.CacheTTL)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Root returns the absolute workspace root.
func (g *Graph) Root() string {
	return g.root
}

// BuildGraph walks the workspace, parses every source file and rebuilds the
// whole graph. Files that cannot be read are logged and left out.
func (g *Graph) BuildGraph(ctx context.Context) error {
	g.buildMu.Lock()
	defer g.buildMu.Unlock()

	start := time.Now()
	if err := g.checkRoot(); err != nil {
		return err
	}

	paths, err := g.collectSourceFiles(ctx)
	if err != nil {
		return err
	}

	parsed := make([]*FileInfo, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, rel := range paths {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			info, err := g.parseFile(rel)
			if err != nil {
				g.logger.Log("skip %s: %v", rel, err)
				g.metrics.ParseError()
				return nil
			}
			parsed[i] = info
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	files := make(map[string]*FileInfo, len(parsed))
	for _, info := range parsed {
		if info != nil {
			files[info.Path] = info
		}
	}

	g.mu.Lock()
	g.files = files
	g.exportIndex = make(map[string]pathSet)
	g.importIndex = make(map[string]pathSet)
	for _, info := range files {
		g.indexFile(info)
	}
	g.buildDependents()
	g.touch()
	count := len(g.files)
	g.mu.Unlock()

	g.metrics.GraphRebuilt(count, time.Since(start))
	g.logger.Log("built graph: %d files in %s", count, time.Since(start).Round(time.Millisecond))
	return nil
}

// UpdateFile re-parses one file and rebuilds dependents. A file that no
// longer exists is removed from the graph. Read failures are logged and leave
// the previous node in place.
func (g *Graph) UpdateFile(ctx context.Context, file string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := g.key(file)
	if err != nil {
		return err
	}
	if ParserFor(g.parsers, key) == nil {
		return nil
	}

	g.buildMu.Lock()
	defer g.buildMu.Unlock()

	g.cache.invalidate(key)
	info, err := g.parseFile(key)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		g.logger.Log("update %s: %v", key, err)
		g.metrics.ParseError()
		return nil
	}

	g.mu.Lock()
	if old, ok := g.files[key]; ok {
		g.unindexFile(old)
		delete(g.files, key)
	}
	if info != nil {
		g.files[key] = info
		g.indexFile(info)
	}
	g.buildDependents()
	g.touch()
	count := len(g.files)
	g.mu.Unlock()

	g.metrics.GraphFiles(count)
	if info == nil {
		g.logger.Log("removed %s", key)
	} else {
		g.logger.Log("updated %s", key)
	}
	return nil
}

// GetDependencies returns the graph files the given file imports.
func (g *Graph) GetDependencies(file string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if info := g.lookup(file); info != nil {
		return append([]string{}, info.ResolvedImports...)
	}
	return []string{}
}

// GetDependents returns the graph files that import the given file.
func (g *Graph) GetDependents(file string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if info := g.lookup(file); info != nil {
		return append([]string{}, info.Dependents...)
	}
	return []string{}
}

// File returns a copy of the node for file.
func (g *Graph) File(file string) (*FileInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	info := g.lookup(file)
	if info == nil {
		return nil, false
	}
	return info.clone(), true
}

// Files returns every tracked file key, sorted.
func (g *Graph) Files() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.files))
	for p := range g.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// FilesExporting returns the files that export symbol.
func (g *Graph) FilesExporting(symbol string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.exportIndex[symbol].sorted()
}

// FilesImporting returns the files whose raw import list contains spec.
func (g *Graph) FilesImporting(spec string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.importIndex[spec].sorted()
}

// Version increments on every structural change.
func (g *Graph) Version() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// LastUpdated is the time of the last structural change.
func (g *Graph) LastUpdated() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastUpdated
}

func (g *Graph) checkRoot() error {
	if g.root == "" {
		return fmt.Errorf("%w: no workspace root configured", ErrWorkspaceMissing)
	}
	st, err := os.Stat(g.root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWorkspaceMissing, err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrWorkspaceMissing, g.root)
	}
	return nil
}

// parseFile reads and parses one file, consulting the cache by mtime.
func (g *Graph) parseFile(key string) (info *FileInfo, err error) {
	parser := ParserFor(g.parsers, key)
	if parser == nil {
		return nil, fmt.Errorf("no parser for %s", key)
	}

	abs := filepath.Join(g.root, filepath.FromSlash(key))
	st, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	result, ok := g.cache.get(key, st.ModTime(), st.Size())
	if !ok {
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, err
		}
		result, err = safeParse(parser, string(data))
		if err != nil {
			return nil, err
		}
		g.cache.put(key, st.ModTime(), st.Size(), result)
	}

	exports := append([]string{}, result.Exports...)
	sort.Strings(exports)
	return &FileInfo{
		Path:            key,
		Imports:         append([]string{}, result.Imports...),
		ResolvedImports: []string{},
		Exports:         exports,
		Symbols:         append([]string{}, result.Symbols...),
		Dependents:      []string{},
		ModTime:         st.ModTime(),
	}, nil
}

// safeParse converts a parser panic into an error so one file cannot abort a rebuild.
func safeParse(p SourceParser, content string) (result ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return p.Parse(content), nil
}

// buildDependents clears and recomputes every derived edge. Caller holds mu.
func (g *Graph) buildDependents() {
	dependents := make(map[string]pathSet, len(g.files))
	for _, info := range g.files {
		resolved := newOrderedSet()
		for _, spec := range info.Imports {
			target, ok := g.resolveImport(info.Path, spec)
			if !ok || target == info.Path {
				continue
			}
			resolved.add(target)
			if dependents[target] == nil {
				dependents[target] = make(pathSet)
			}
			dependents[target][info.Path] = struct{}{}
		}
		info.ResolvedImports = resolved.items
	}
	for p, info := range g.files {
		info.Dependents = dependents[p].sorted()
	}
}

// resolveImport maps a relative specifier onto a graph key. Caller holds mu.
func (g *Graph) resolveImport(from, spec string) (string, bool) {
	if !isRelative(spec) {
		return "", false
	}
	base := path.Join(path.Dir(from), spec)
	if base == ".." || strings.HasPrefix(base, "../") {
		return "", false
	}

	candidates := []string{base}
	for _, ext := range resolveExtensions {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range resolveExtensions {
		candidates = append(candidates, path.Join(base, "index"+ext))
	}
	candidates = append(candidates, path.Join(base, "__init__.py"))

	for _, c := range candidates {
		if _, ok := g.files[c]; ok {
			return c, true
		}
	}
	return "", false
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

func (g *Graph) indexFile(info *FileInfo) {
	for _, sym := range info.Exports {
		if g.exportIndex[sym] == nil {
			g.exportIndex[sym] = make(pathSet)
		}
		g.exportIndex[sym][info.Path] = struct{}{}
	}
	for _, spec := range info.Imports {
		if g.importIndex[spec] == nil {
			g.importIndex[spec] = make(pathSet)
		}
		g.importIndex[spec][info.Path] = struct{}{}
	}
}

func (g *Graph) unindexFile(info *FileInfo) {
	for _, sym := range info.Exports {
		if set := g.exportIndex[sym]; set != nil {
			delete(set, info.Path)
			if len(set) == 0 {
				delete(g.exportIndex, sym)
			}
		}
	}
	for _, spec := range info.Imports {
		if set := g.importIndex[spec]; set != nil {
			delete(set, info.Path)
			if len(set) == 0 {
				delete(g.importIndex, spec)
			}
		}
	}
}

func (g *Graph) touch() {
	g.version++
	g.lastUpdated = time.Now()
}

// key converts an absolute or root-relative path into a graph key.
func (g *Graph) key(file string) (string, error) {
	p := file
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(g.root, p)
		if err != nil {
			return "", fmt.Errorf("path %s: %w", file, err)
		}
		p = rel
	}
	k := path.Clean(filepath.ToSlash(p))
	if k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("path %s is outside workspace %s", file, g.root)
	}
	return k, nil
}

// lookup finds the node for file. Caller holds mu.
func (g *Graph) lookup(file string) *FileInfo {
	k, err := g.key(file)
	if err != nil {
		return nil
	}
	return g.files[k]
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
