package depgraph

import (
	"fmt"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Impact level thresholds on the total affected count.
const (
	highImpactThreshold   = 20
	mediumImpactThreshold = 5
)

// GetImpactAnalysis computes which files a change set affects. It reads the
// current graph only and returns the same result for the same state.
func (g *Graph) GetImpactAnalysis(changes []models.FileChange) models.ImpactAnalysis {
	g.mu.RLock()
	defer g.mu.RUnlock()

	changed := make(pathSet, len(changes))
	direct := make(pathSet)
	risks := newOrderedSet()

	for _, c := range changes {
		key, err := g.key(c.File)
		if err != nil {
			continue
		}
		changed[key] = struct{}{}

		info := g.files[key]
		if info == nil {
			continue
		}

		switch c.Type {
		case models.ChangeModify:
			for _, d := range info.Dependents {
				direct[d] = struct{}{}
			}
			if len(info.Exports) > 0 {
				risks.add(fmt.Sprintf("%s exports %d symbol(s); changing its contract may break dependents", key, len(info.Exports)))
			}
		case models.ChangeDelete:
			for _, d := range info.Dependents {
				direct[d] = struct{}{}
			}
			if len(info.Dependents) > 0 {
				risks.add(fmt.Sprintf("%s is deleted but imported by %d file(s)", key, len(info.Dependents)))
			}
		}
	}

	indirect := make(pathSet)
	for d := range direct {
		info := g.files[d]
		if info == nil {
			continue
		}
		for _, dd := range info.Dependents {
			if _, ok := direct[dd]; ok {
				continue
			}
			if _, ok := changed[dd]; ok {
				continue
			}
			indirect[dd] = struct{}{}
		}
	}

	total := len(direct) + len(indirect)
	return models.ImpactAnalysis{
		DirectlyAffected:   direct.sorted(),
		IndirectlyAffected: indirect.sorted(),
		ImpactLevel:        LevelFor(total),
		Risks:              risks.items,
	}
}

// LevelFor buckets an affected-file count.
func LevelFor(affected int) models.ImpactLevel {
	switch {
	case affected > highImpactThreshold:
		return models.ImpactHigh
	case affected > mediumImpactThreshold:
		return models.ImpactMedium
	default:
		return models.ImpactLow
	}
}

// FindRelatedFiles expands over import and dependent edges up to depth hops
// from file. The start file is not included.
func (g *Graph) FindRelatedFiles(file string, depth int) []string {
	if depth <= 0 {
		return []string{}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	start, err := g.key(file)
	if err != nil || g.files[start] == nil {
		return []string{}
	}

	visited := pathSet{start: {}}
	frontier := []string{start}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, p := range frontier {
			info := g.files[p]
			if info == nil {
				continue
			}
			for _, list := range [][]string{info.ResolvedImports, info.Dependents} {
				for _, n := range list {
					if _, seen := visited[n]; seen {
						continue
					}
					visited[n] = struct{}{}
					next = append(next, n)
				}
			}
		}
		frontier = next
	}

	delete(visited, start)
	return visited.sorted()
}
