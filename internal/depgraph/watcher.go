package depgraph

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher keeps a graph current by feeding file system events into UpdateFile.
// Bursts of events are coalesced per file before the graph is touched.
type Watcher struct {
	graph    *Graph
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onUpdate func(file string)

	mu      sync.Mutex
	pending map[string]struct{}

	closeOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnUpdate registers a callback invoked with each graph key after it is updated.
func WithOnUpdate(fn func(file string)) WatcherOption {
	return func(w *Watcher) {
		w.onUpdate = fn
	}
}

// NewWatcher watches every directory the graph walk would visit.
func NewWatcher(g *Graph, opts ...WatcherOption) (*Watcher, error) {
	if err := g.checkRoot(); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		graph:    g,
		fsw:      fsw,
		debounce: defaultDebounce,
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(g.root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(event) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.graph.logger.Log("watch error: %v", err)
		case <-timer.C:
			w.flush(ctx)
		}
	}
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}

// handle records an event and reports whether anything was queued.
func (w *Watcher) handle(event fsnotify.Event) bool {
	g := w.graph
	key, err := g.key(event.Name)
	if err != nil || key == "." {
		return false
	}
	if w.ignored(key) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if st, err := statDir(event.Name); err == nil && st {
			if err := w.addTree(event.Name); err != nil {
				g.logger.Log("watch %s: %v", key, err)
			}
			return w.queueUnder(event.Name)
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	if ParserFor(g.parsers, key) != nil {
		w.queue(key)
		return true
	}

	// A removed directory takes its tracked files with it.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		queued := false
		for _, f := range g.Files() {
			if strings.HasPrefix(f, key+"/") {
				w.queue(f)
				queued = true
			}
		}
		return queued
	}
	return false
}

// ignored reports whether any directory component of key is skipped.
func (w *Watcher) ignored(key string) bool {
	parts := strings.Split(key, "/")
	for _, part := range parts[:len(parts)-1] {
		if w.graph.shouldSkipDir(part) {
			return true
		}
	}
	return false
}

func (w *Watcher) queue(key string) {
	w.mu.Lock()
	w.pending[key] = struct{}{}
	w.mu.Unlock()
}

// queueUnder queues source files inside a newly created directory, which may
// have been populated before its watch was registered.
func (w *Watcher) queueUnder(dir string) bool {
	queued := false
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if key, err := w.graph.key(p); err == nil && ParserFor(w.graph.parsers, key) != nil {
			w.queue(key)
			queued = true
		}
		return nil
	})
	return queued
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	keys := make([]string, 0, len(w.pending))
	for k := range w.pending {
		keys = append(keys, k)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := w.graph.UpdateFile(ctx, k); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.graph.logger.Log("watch update %s: %v", k, err)
			continue
		}
		if w.onUpdate != nil {
			w.onUpdate(k)
		}
	}
}

// addTree registers a watch on dir and every subdirectory the walk would visit.
func (w *Watcher) addTree(dir string) error {
	g := w.graph
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != g.root {
			rel, err := filepath.Rel(g.root, p)
			if err != nil {
				return fs.SkipDir
			}
			if g.shouldSkipDir(d.Name()) || dirDepth(rel) > g.maxDepth {
				return fs.SkipDir
			}
		}
		if err := w.fsw.Add(p); err != nil {
			g.logger.Log("watch add %s: %v", p, err)
		}
		return nil
	})
}

func statDir(p string) (bool, error) {
	st, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	return st.IsDir(), nil
}
