package protect

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Finding is one protected file a solution touches.
type Finding struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Detector checks paths and proposed code against protected areas. Paths
// are matched by glob pattern, then keyword, then extension; proposed file
// content is scanned for hard-coded secrets and security-sensitive imports.
type Detector struct {
	mu        sync.RWMutex
	patterns  []string
	keywords  []string
	fileTypes []string
	imports   *importScanner
	secrets   *secretScanner
}

// fileConfig is the protected_areas section of .conclave.yaml.
type fileConfig struct {
	ProtectedAreas struct {
		Patterns  []string `yaml:"patterns"`
		Keywords  []string `yaml:"keywords"`
		FileTypes []string `yaml:"file_types"`
	} `yaml:"protected_areas"`
}

// New creates a detector with the default areas.
func New() *Detector {
	return &Detector{
		patterns:  append([]string(nil), DefaultPatterns...),
		keywords:  append([]string(nil), DefaultKeywords...),
		fileTypes: append([]string(nil), DefaultFileTypes...),
		imports:   newImportScanner(),
		secrets:   newSecretScanner(DefaultSecretPatterns),
	}
}

// CheckPath reports whether path is protected and why.
func (d *Detector) CheckPath(path string) (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p := filepath.ToSlash(path)
	lower := strings.ToLower(p)
	for _, pattern := range d.patterns {
		if matchGlob(p, pattern) {
			return true, "matches protected pattern " + pattern
		}
	}
	for _, kw := range d.keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true, "path contains " + kw
		}
	}
	ext := strings.ToLower(filepath.Ext(p))
	for _, ft := range d.fileTypes {
		if ext == strings.ToLower(ft) {
			return true, "protected file type " + ft
		}
	}
	return false, ""
}

// CheckSolution returns every protected file the solution modifies or whose
// proposed content embeds a secret or imports security-sensitive code,
// sorted by file.
func (d *Detector) CheckSolution(s *models.AgentSolution) []Finding {
	if s == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []Finding
	add := func(file, reason string) {
		if seen[file] {
			return
		}
		seen[file] = true
		out = append(out, Finding{File: file, Reason: reason})
	}

	for _, f := range s.Solution.FilesToModify {
		if ok, reason := d.CheckPath(f); ok {
			add(f, reason)
		}
	}
	for _, c := range s.Solution.CodeChanges {
		if ok, reason := d.CheckPath(c.File); ok {
			add(c.File, reason)
			continue
		}
		if reason, ok := d.secrets.scan(c.Content); ok {
			add(c.File, "contains "+reason)
			continue
		}
		if reason, ok := d.imports.scan(c.File, c.Content); ok {
			add(c.File, "imports "+reason)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

// AddPattern adds a glob pattern.
func (d *Detector) AddPattern(pattern string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patterns = append(d.patterns, pattern)
}

// AddKeyword adds a path keyword.
func (d *Detector) AddKeyword(keyword string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keywords = append(d.keywords, keyword)
}

// AddFileType adds a protected extension, with or without the dot.
func (d *Detector) AddFileType(ext string) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fileTypes = append(d.fileTypes, ext)
}

// LoadConfig adds the protected_areas section of a YAML file. A missing
// file is not an error.
func (d *Detector) LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse protected areas in %s: %w", path, err)
	}
	for _, p := range cfg.ProtectedAreas.Patterns {
		d.AddPattern(p)
	}
	for _, k := range cfg.ProtectedAreas.Keywords {
		d.AddKeyword(k)
	}
	for _, ft := range cfg.ProtectedAreas.FileTypes {
		d.AddFileType(ft)
	}
	return nil
}
