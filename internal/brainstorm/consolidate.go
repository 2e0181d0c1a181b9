package brainstorm

import (
	"math"
	"sort"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Consolidation weights and tolerances.
const (
	relevanceTieWindow = 0.1
	blendRelevance     = 0.4
	blendScore         = 0.6
	neutralRelevance   = 0.5
)

// Consolidation is the ranked, filtered view of a session's solutions.
type Consolidation struct {
	Ranked []*models.AgentSolution `json:"ranked"`
	Best   *models.AgentSolution   `json:"best,omitempty"`
	// Excluded are the IDs filtered out as off-task.
	Excluded []string `json:"excluded,omitempty"`
	// UsedFallback is set when every solution was off-task and the
	// unfiltered set was ranked instead.
	UsedFallback bool `json:"used_fallback"`
}

// ConsolidateSolutions ranks solutions and picks the best one. deviations is
// keyed by agent ID (solution ID is also accepted); when it is empty, ranking
// uses overall score alone. The result is never empty for non-empty input.
func (c *Coordinator) ConsolidateSolutions(solutions []*models.AgentSolution, original *models.Task, deviations map[string]models.DeviationResult) Consolidation {
	var input []*models.AgentSolution
	for _, s := range solutions {
		if s != nil {
			input = append(input, s)
		}
	}
	out := Consolidation{Ranked: []*models.AgentSolution{}}
	if len(input) == 0 {
		return out
	}

	if len(deviations) == 0 {
		ranked := append([]*models.AgentSolution(nil), input...)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Evaluation.OverallScore > ranked[j].Evaluation.OverallScore
		})
		out.Ranked = ranked
		out.Best = ranked[0]
		return out
	}

	devFor := func(s *models.AgentSolution) (models.DeviationResult, bool) {
		if d, ok := deviations[s.AgentID]; ok {
			return d, true
		}
		d, ok := deviations[s.ID]
		return d, ok
	}
	relevance := func(s *models.AgentSolution) float64 {
		if d, ok := devFor(s); ok {
			return d.Relevance
		}
		return neutralRelevance
	}

	var kept []*models.AgentSolution
	for _, s := range input {
		if d, ok := devFor(s); ok && d.OffTask() {
			out.Excluded = append(out.Excluded, s.ID)
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		taskID := ""
		if original != nil {
			taskID = original.ID
		}
		c.logger.Log("consolidate %s: all %d solutions off-task; ranking unfiltered set", taskID, len(input))
		c.metrics.Fallback("consolidate")
		kept = append(kept, input...)
		out.Excluded = nil
		out.UsedFallback = true
	}

	sort.SliceStable(kept, func(i, j int) bool {
		ri, rj := relevance(kept[i]), relevance(kept[j])
		if math.Abs(ri-rj) <= relevanceTieWindow {
			return kept[i].Evaluation.OverallScore > kept[j].Evaluation.OverallScore
		}
		return ri > rj
	})
	out.Ranked = kept

	best, bestScore := kept[0], math.Inf(-1)
	for _, s := range kept {
		blended := blendRelevance*relevance(s) + blendScore*s.Evaluation.OverallScore
		if blended > bestScore {
			best, bestScore = s, blended
		}
	}
	out.Best = best
	return out
}
