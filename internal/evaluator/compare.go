package evaluator

import (
	"context"
	"math"
	"sort"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Comparison is the ranked evaluation of a solution set.
type Comparison struct {
	// Ranked is sorted by score, highest first.
	Ranked   []EvaluationReport    `json:"ranked"`
	Best     *EvaluationReport     `json:"best,omitempty"`
	Worst    *EvaluationReport     `json:"worst,omitempty"`
	Averages map[Criterion]float64 `json:"averages"`
}

// CompareSolutions evaluates every solution and ranks them. Equal scores fall
// back to the solution's declared overall score, then to input order.
func (e *Evaluator) CompareSolutions(ctx context.Context, solutions []*models.AgentSolution, ectx EvalContext, original *models.Task) Comparison {
	cmp := Comparison{
		Ranked:   make([]EvaluationReport, 0, len(solutions)),
		Averages: make(map[Criterion]float64, len(Criteria)),
	}
	for _, s := range solutions {
		if s == nil {
			continue
		}
		cmp.Ranked = append(cmp.Ranked, e.EvaluateSolution(ctx, s, ectx, original))
	}
	if len(cmp.Ranked) == 0 {
		return cmp
	}

	sort.SliceStable(cmp.Ranked, func(i, j int) bool {
		return ranksAbove(cmp.Ranked[i], cmp.Ranked[j])
	})
	cmp.Best = &cmp.Ranked[0]
	cmp.Worst = &cmp.Ranked[len(cmp.Ranked)-1]
	cmp.Averages = averageBreakdown(cmp.Ranked)
	return cmp
}

const scoreEpsilon = 1e-9

// ranksAbove orders reports by computed score, then by declared overall score.
func ranksAbove(a, b EvaluationReport) bool {
	if math.Abs(a.Score-b.Score) >= scoreEpsilon {
		return a.Score > b.Score
	}
	return declaredScore(a) > declaredScore(b)+scoreEpsilon
}

func declaredScore(r EvaluationReport) float64 {
	if r.Solution == nil {
		return 0
	}
	return r.Solution.Evaluation.OverallScore
}

func averageBreakdown(reports []EvaluationReport) map[Criterion]float64 {
	avg := make(map[Criterion]float64, len(Criteria))
	if len(reports) == 0 {
		return avg
	}
	for _, r := range reports {
		for _, c := range Criteria {
			avg[c] += r.Breakdown[c]
		}
	}
	n := float64(len(reports))
	for _, c := range Criteria {
		avg[c] /= n
	}
	return avg
}
