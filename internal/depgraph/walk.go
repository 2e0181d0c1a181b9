package depgraph

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// collectSourceFiles returns the graph keys of every parseable file under the
// root, honouring the depth bound and skip list.
func (g *Graph) collectSourceFiles(ctx context.Context) ([]string, error) {
	var files []string

	err := filepath.WalkDir(g.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == g.root {
				return fmt.Errorf("%w: %v", ErrWorkspaceMissing, err)
			}
			g.logger.Log("walk %s: %v", p, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == g.root {
			return nil
		}

		rel, err := filepath.Rel(g.root, p)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if g.shouldSkipDir(d.Name()) || dirDepth(rel) > g.maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || ParserFor(g.parsers, d.Name()) == nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// shouldSkipDir reports whether a directory name is excluded from the walk.
func (g *Graph) shouldSkipDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	return g.skipDirs[name]
}

// dirDepth is the nesting level of a root-relative directory; "a" is 1.
func dirDepth(rel string) int {
	return strings.Count(rel, string(filepath.Separator)) + 1
}
