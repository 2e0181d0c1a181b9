package deviation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ShayCichocki/conclave/pkg/models"
)

func solution(title, desc string) *models.AgentSolution {
	return &models.AgentSolution{
		ID:       "s1",
		AgentID:  "backend",
		Solution: models.SolutionBody{Title: title, Description: desc},
	}
}

func TestKeywordChecker(t *testing.T) {
	task := models.Task{ID: "t1", Description: "Add caching layer for user profile lookups"}

	tests := []struct {
		name      string
		solution  *models.AgentSolution
		wantLevel models.DeviationLevel
		offTask   bool
	}{
		{
			name:      "on task",
			solution:  solution("Cache user profile lookups", "Introduce a caching layer in front of profile lookup"),
			wantLevel: models.DeviationNone,
		},
		{
			name:      "unrelated",
			solution:  solution("Rewrite the logging subsystem", "Switch to structured logs"),
			wantLevel: models.DeviationHigh,
			offTask:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewKeywordChecker().CheckDeviation(context.Background(), task, tt.solution)
			if err != nil {
				t.Fatalf("CheckDeviation() error = %v", err)
			}
			if got.DeviationLevel != tt.wantLevel {
				t.Errorf("DeviationLevel = %s (relevance %.2f), want %s", got.DeviationLevel, got.Relevance, tt.wantLevel)
			}
			if got.OffTask() != tt.offTask {
				t.Errorf("OffTask() = %v, want %v", got.OffTask(), tt.offTask)
			}
			if got.Relevance < 0 || got.Relevance > 1 {
				t.Errorf("Relevance = %f out of range", got.Relevance)
			}
		})
	}
}

func TestKeywordCheckerEmptyTask(t *testing.T) {
	got, err := NewKeywordChecker().CheckDeviation(context.Background(), models.Task{}, solution("x", "y"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Relevance != 1 || got.DeviationLevel != models.DeviationNone {
		t.Errorf("got %+v, want full relevance", got)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		relevance float64
		want      models.DeviationLevel
	}{
		{1, models.DeviationNone},
		{0.75, models.DeviationNone},
		{0.6, models.DeviationLow},
		{0.4, models.DeviationMedium},
		{0.1, models.DeviationHigh},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.relevance); got != tt.want {
			t.Errorf("LevelFor(%v) = %s, want %s", tt.relevance, got, tt.want)
		}
	}
}

func TestRoleVariationGenerator(t *testing.T) {
	task := models.Task{ID: "t1", Type: models.TaskTypeFeature, Description: "Add login"}
	got, err := NewRoleVariationGenerator().GenerateVariations(context.Background(), task, []string{"backend", "qa-2", "custom"}, 1)
	if err != nil {
		t.Fatalf("GenerateVariations() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].AgentID != "backend" || got[0].Focus != roleFocus[models.AgentRoleBackend] {
		t.Errorf("backend variation = %+v", got[0])
	}
	if got[1].Focus != roleFocus[models.AgentRoleQA] {
		t.Errorf("qa-2 focus = %q", got[1].Focus)
	}
	for _, v := range got {
		if !strings.HasPrefix(v.Variation.Description, "Add login") {
			t.Errorf("variation lost original description: %q", v.Variation.Description)
		}
		if v.Variation.Type != task.Type {
			t.Errorf("variation type = %s", v.Variation.Type)
		}
	}
}

func TestRoleVariationGeneratorCount(t *testing.T) {
	got, err := NewRoleVariationGenerator().GenerateVariations(context.Background(), models.Task{ID: "t"}, []string{"backend"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Variation.ID == got[1].Variation.ID {
		t.Error("variation IDs should differ")
	}
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f fakeCompleter) Complete(context.Context, string, string) (string, error) {
	return f.reply, f.err
}

func TestLLMChecker(t *testing.T) {
	task := models.Task{Description: "Add caching layer for user profile lookups"}
	sol := solution("Cache user profile lookups", "caching layer")

	tests := []struct {
		name      string
		completer fakeCompleter
		wantLevel models.DeviationLevel
		wantRel   float64
	}{
		{
			name:      "model reply",
			completer: fakeCompleter{reply: "```json\n{\"relevance\": 0.2, \"deviation_level\": \"high\", \"feedback\": \"off scope\"}\n```"},
			wantLevel: models.DeviationHigh,
			wantRel:   0.2,
		},
		{
			name:      "invalid level derives from relevance",
			completer: fakeCompleter{reply: `{"relevance": 1.4, "deviation_level": "extreme"}`},
			wantLevel: models.DeviationNone,
			wantRel:   1,
		},
		{
			name:      "call error falls back to keywords",
			completer: fakeCompleter{err: errors.New("rate limited")},
			wantLevel: models.DeviationNone,
			wantRel:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLLMChecker(tt.completer).CheckDeviation(context.Background(), task, sol)
			if err != nil {
				t.Fatalf("CheckDeviation() error = %v", err)
			}
			if got.DeviationLevel != tt.wantLevel || got.Relevance != tt.wantRel {
				t.Errorf("got %+v, want level %s relevance %v", got, tt.wantLevel, tt.wantRel)
			}
		})
	}
}
