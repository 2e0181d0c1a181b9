package evaluator

import (
	"context"
	"testing"

	"github.com/ShayCichocki/conclave/pkg/models"
)

func TestCompareSolutionsPicksHighest(t *testing.T) {
	solutions := []*models.AgentSolution{uniform("b", 0.6), uniform("a", 0.9), uniform("c", 0.3)}

	cmp := New(nil).CompareSolutions(context.Background(), solutions, EvalContext{}, nil)

	if cmp.Best == nil || cmp.Best.Solution.Evaluation.OverallScore != 0.9 {
		t.Fatalf("Best = %+v, want the 0.9 solution", cmp.Best)
	}
	if cmp.Worst.Solution.Evaluation.OverallScore != 0.3 {
		t.Errorf("Worst overall = %v, want 0.3", cmp.Worst.Solution.Evaluation.OverallScore)
	}
	for i := 1; i < len(cmp.Ranked); i++ {
		if cmp.Ranked[i-1].Score < cmp.Ranked[i].Score {
			t.Errorf("Ranked not sorted at %d", i)
		}
	}
	if got := cmp.Averages[Quality]; !approx(got, 0.6) {
		t.Errorf("Averages[quality] = %v, want 0.6", got)
	}
}

func TestCompareSolutionsEmpty(t *testing.T) {
	cmp := New(nil).CompareSolutions(context.Background(), nil, EvalContext{}, nil)
	if cmp.Best != nil || cmp.Worst != nil || len(cmp.Ranked) != 0 {
		t.Errorf("empty comparison = %+v", cmp)
	}
}

func declared(id string, overall float64) *models.AgentSolution {
	return &models.AgentSolution{
		ID:         id,
		AgentID:    "agent-" + id,
		TaskID:     "task-1",
		Solution:   models.SolutionBody{Title: "Solution " + id},
		Evaluation: models.Evaluation{OverallScore: overall},
	}
}

func TestCompareSolutionsTieBreaksOnDeclaredScore(t *testing.T) {
	solutions := []*models.AgentSolution{declared("c", 0.3), declared("b", 0.6), declared("a", 0.9)}

	cmp := New(nil).CompareSolutions(context.Background(), solutions, EvalContext{}, nil)

	if cmp.Best == nil || cmp.Best.Solution.ID != "a" {
		t.Fatalf("Best = %+v, want solution a", cmp.Best)
	}
	want := []string{"a", "b", "c"}
	for i, r := range cmp.Ranked {
		if r.Solution.ID != want[i] {
			t.Errorf("Ranked[%d] = %s, want %s", i, r.Solution.ID, want[i])
		}
	}
}

func TestCompareSolutionsEqualDeclaredKeepsInputOrder(t *testing.T) {
	solutions := []*models.AgentSolution{declared("x", 0.5), declared("y", 0.5)}

	cmp := New(nil).CompareSolutions(context.Background(), solutions, EvalContext{}, nil)

	if cmp.Ranked[0].Solution.ID != "x" || cmp.Ranked[1].Solution.ID != "y" {
		t.Errorf("Ranked = %s, %s; want x, y", cmp.Ranked[0].Solution.ID, cmp.Ranked[1].Solution.ID)
	}
}

func TestMergeSolutionsBaseTieBreaksOnDeclaredScore(t *testing.T) {
	solutions := []*models.AgentSolution{declared("c", 0.3), declared("a", 0.9), declared("b", 0.6)}

	merged, err := New(nil).MergeSolutions(context.Background(), solutions, EvalContext{}, nil)
	if err != nil {
		t.Fatalf("MergeSolutions: %v", err)
	}
	if len(merged.SourceSolutions) == 0 || merged.SourceSolutions[0] != "a" {
		t.Errorf("SourceSolutions = %v, want a first", merged.SourceSolutions)
	}
}
