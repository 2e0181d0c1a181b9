package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// ErrNoSolutions is returned when there is nothing to merge.
var ErrNoSolutions = errors.New("no solutions to merge")

// MergedAgentID marks solutions assembled from several agents.
const MergedAgentID = "merged"

// MergedSolution is the result of combining several solutions.
// SourceSolutions lists contributing IDs, base first. UsedFallback is set
// when the relevance filter rejected every solution and the unfiltered set
// was merged.
type MergedSolution struct {
	Solution        *models.AgentSolution `json:"solution"`
	SourceSolutions []string              `json:"source_solutions"`
	Reasoning       string                `json:"reasoning"`
	UsedFallback    bool                  `json:"used_fallback"`
	Averages        map[Criterion]float64 `json:"averages"`
}

// MergeSolutions combines solutions into one. The base is the highest scoring
// solution; for files touched by several solutions, the change from the
// higher scoring one wins.
func (e *Evaluator) MergeSolutions(ctx context.Context, solutions []*models.AgentSolution, ectx EvalContext, original *models.Task) (*MergedSolution, error) {
	var input []*models.AgentSolution
	for _, s := range solutions {
		if s != nil {
			input = append(input, s)
		}
	}
	if len(input) == 0 {
		return nil, ErrNoSolutions
	}

	if len(input) == 1 {
		s := input[0]
		report := e.EvaluateSolution(ctx, s, ectx, original)
		return &MergedSolution{
			Solution:        s,
			SourceSolutions: []string{s.ID},
			Reasoning:       fmt.Sprintf("Single solution from %s; nothing to merge", s.AgentID),
			Averages:        report.Breakdown,
		}, nil
	}

	reports := make([]EvaluationReport, 0, len(input))
	for _, s := range input {
		reports = append(reports, e.EvaluateSolution(ctx, s, ectx, original))
	}

	kept, usedFallback := e.filterRelevant(reports)
	if hasDeviation(kept) {
		sort.SliceStable(kept, func(i, j int) bool {
			return relevance(kept[i]) > relevance(kept[j])
		})
	}

	base := 0
	for i := range kept {
		if ranksAbove(kept[i], kept[base]) {
			base = i
		}
	}

	merged := mergeBodies(kept, base)
	sources := []string{kept[base].Solution.ID}
	for i, r := range kept {
		if i != base {
			sources = append(sources, r.Solution.ID)
		}
	}

	return &MergedSolution{
		Solution:        merged,
		SourceSolutions: sources,
		Reasoning: fmt.Sprintf("Merged %d solutions using %q from %s as the base",
			len(kept), kept[base].Solution.Solution.Title, kept[base].Solution.AgentID),
		UsedFallback: usedFallback,
		Averages:     averageBreakdown(kept),
	}, nil
}

// filterRelevant drops off-task solutions. If that would leave nothing, the
// unfiltered set is returned and the fallback is logged.
func (e *Evaluator) filterRelevant(reports []EvaluationReport) ([]EvaluationReport, bool) {
	if !hasDeviation(reports) {
		return reports, false
	}
	var kept []EvaluationReport
	for _, r := range reports {
		if r.Deviation == nil || !r.Deviation.OffTask() {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		e.logger.Log("merge: all %d solutions judged off-task; merging unfiltered set", len(reports))
		e.metrics.Fallback("merge")
		return reports, true
	}
	return kept, false
}

func mergeBodies(reports []EvaluationReport, base int) *models.AgentSolution {
	b := reports[base].Solution

	files := newOrderedList()
	depFiles := newOrderedList()
	owner := make(map[string]int)
	changes := make(map[string]models.CodeChange)
	var changeOrder []string
	impact := models.ImpactLow

	var eval models.Evaluation
	confidence := 0.0

	for i, r := range reports {
		s := r.Solution
		for _, f := range s.Solution.FilesToModify {
			files.add(f)
		}
		for _, f := range s.Solution.Dependencies.Files {
			depFiles.add(f)
		}
		for _, c := range s.Solution.CodeChanges {
			prev, seen := owner[c.File]
			if !seen {
				changeOrder = append(changeOrder, c.File)
			}
			if !seen || r.Score > reports[prev].Score {
				owner[c.File] = i
				changes[c.File] = c
			}
		}
		impact = maxImpact(impact, s.Solution.Dependencies.Impact)

		eval.Quality += s.Evaluation.Quality
		eval.Performance += s.Evaluation.Performance
		eval.Security += s.Evaluation.Security
		eval.Maintainability += s.Evaluation.Maintainability
		eval.Compliance += s.Evaluation.Compliance
		eval.OverallScore += r.Score
		confidence += s.Confidence
	}

	n := float64(len(reports))
	eval.Quality /= n
	eval.Performance /= n
	eval.Security /= n
	eval.Maintainability /= n
	eval.Compliance /= n
	eval.OverallScore /= n

	codeChanges := make([]models.CodeChange, 0, len(changeOrder))
	for _, f := range changeOrder {
		codeChanges = append(codeChanges, changes[f])
	}

	return &models.AgentSolution{
		ID:      uuid.New().String(),
		AgentID: MergedAgentID,
		TaskID:  b.TaskID,
		Solution: models.SolutionBody{
			Title:         b.Solution.Title,
			Description:   b.Solution.Description,
			Approach:      b.Solution.Approach,
			FilesToModify: files.items,
			CodeChanges:   codeChanges,
			Dependencies: models.SolutionDependencies{
				Files:  depFiles.items,
				Impact: impact,
			},
		},
		Evaluation: eval,
		Reasoning:  b.Reasoning,
		Confidence: confidence / n,
		CreatedAt:  time.Now(),
	}
}

func hasDeviation(reports []EvaluationReport) bool {
	for _, r := range reports {
		if r.Deviation != nil {
			return true
		}
	}
	return false
}

func relevance(r EvaluationReport) float64 {
	if r.Deviation == nil {
		return 0
	}
	return r.Deviation.Relevance
}

func maxImpact(a, b models.ImpactLevel) models.ImpactLevel {
	rank := map[models.ImpactLevel]int{models.ImpactLow: 0, models.ImpactMedium: 1, models.ImpactHigh: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

type orderedList struct {
	seen  map[string]bool
	items []string
}

func newOrderedList() *orderedList {
	return &orderedList{seen: make(map[string]bool), items: []string{}}
}

func (l *orderedList) add(v string) {
	if v == "" || l.seen[v] {
		return
	}
	l.seen[v] = true
	l.items = append(l.items, v)
}
