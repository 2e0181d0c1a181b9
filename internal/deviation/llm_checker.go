package deviation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/conclave/internal/llm"
	"github.com/ShayCichocki/conclave/pkg/models"
)

const checkerSystemPrompt = `You review proposed software changes for scope drift.
Reply with a single JSON object: {"relevance": <0..1>, "deviation_level": "none|low|medium|high", "feedback": "<one sentence>"}.`

// LLMChecker asks a model to judge relevance. When the call or the reply
// fails, it falls back to the keyword checker.
type LLMChecker struct {
	completer llm.Completer
	fallback  Checker
}

// NewLLMChecker creates a model-backed checker.
func NewLLMChecker(c llm.Completer) *LLMChecker {
	return &LLMChecker{completer: c, fallback: NewKeywordChecker()}
}

// CheckDeviation implements Checker.
func (c *LLMChecker) CheckDeviation(ctx context.Context, original models.Task, solution *models.AgentSolution) (models.DeviationResult, error) {
	if solution == nil {
		return models.DeviationResult{}, fmt.Errorf("nil solution")
	}

	reply, err := c.completer.Complete(ctx, checkerSystemPrompt, buildCheckPrompt(original, solution))
	if err != nil {
		return c.fallback.CheckDeviation(ctx, original, solution)
	}

	var out struct {
		Relevance      float64               `json:"relevance"`
		DeviationLevel models.DeviationLevel `json:"deviation_level"`
		Feedback       string                `json:"feedback"`
	}
	if err := llm.DecodeJSON(reply, &out); err != nil {
		return c.fallback.CheckDeviation(ctx, original, solution)
	}

	relevance := clamp01(out.Relevance)
	level := out.DeviationLevel
	if !level.Valid() {
		level = LevelFor(relevance)
	}
	return models.DeviationResult{Relevance: relevance, DeviationLevel: level, Feedback: out.Feedback}, nil
}

func buildCheckPrompt(task models.Task, s *models.AgentSolution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original task (%s):\n%s\n\n", task.Type, task.Description)
	fmt.Fprintf(&b, "Proposed solution: %s\n%s\n\nApproach:\n%s\n", s.Solution.Title, s.Solution.Description, s.Solution.Approach)
	if len(s.Solution.FilesToModify) > 0 {
		fmt.Fprintf(&b, "\nFiles: %s\n", strings.Join(s.Solution.FilesToModify, ", "))
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
