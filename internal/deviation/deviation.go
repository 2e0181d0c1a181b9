// Package deviation measures how far a solution strays from its task and
// produces per-agent task variations for brainstorming.
package deviation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Checker scores a solution's relevance to the original task.
type Checker interface {
	CheckDeviation(ctx context.Context, original models.Task, solution *models.AgentSolution) (models.DeviationResult, error)
}

// VariationGenerator rephrases a task once per agent.
type VariationGenerator interface {
	GenerateVariations(ctx context.Context, task models.Task, agentIDs []string, count int) ([]models.TaskVariation, error)
}

// Relevance cut-offs for the keyword checker's deviation levels.
const (
	noneThreshold   = 0.75
	lowThreshold    = 0.5
	mediumThreshold = 0.3
)

// LevelFor buckets a relevance score into a deviation level.
func LevelFor(relevance float64) models.DeviationLevel {
	switch {
	case relevance >= noneThreshold:
		return models.DeviationNone
	case relevance >= lowThreshold:
		return models.DeviationLow
	case relevance >= mediumThreshold:
		return models.DeviationMedium
	default:
		return models.DeviationHigh
	}
}

// KeywordChecker measures relevance as the share of the task's significant
// terms that reappear in the solution text.
type KeywordChecker struct{}

// NewKeywordChecker returns a keyword overlap checker.
func NewKeywordChecker() *KeywordChecker {
	return &KeywordChecker{}
}

// CheckDeviation implements Checker.
func (KeywordChecker) CheckDeviation(_ context.Context, original models.Task, solution *models.AgentSolution) (models.DeviationResult, error) {
	if solution == nil {
		return models.DeviationResult{}, fmt.Errorf("nil solution")
	}
	taskTerms := Terms(original.Description)
	if len(taskTerms) == 0 {
		return models.DeviationResult{Relevance: 1, DeviationLevel: models.DeviationNone}, nil
	}

	body := solution.Solution
	solTerms := Terms(strings.Join([]string{body.Title, body.Description, body.Approach, solution.Reasoning}, " "))

	var missing []string
	hits := 0
	for term := range taskTerms {
		if _, ok := solTerms[term]; ok {
			hits++
		} else {
			missing = append(missing, term)
		}
	}
	sort.Strings(missing)

	relevance := float64(hits) / float64(len(taskTerms))
	level := LevelFor(relevance)
	result := models.DeviationResult{Relevance: relevance, DeviationLevel: level}
	if level != models.DeviationNone && len(missing) > 0 {
		if len(missing) > 5 {
			missing = missing[:5]
		}
		result.Feedback = "solution does not address: " + strings.Join(missing, ", ")
	}
	return result, nil
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "in": true, "into": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "so": true, "that": true, "the": true, "this": true,
	"to": true, "we": true, "with": true, "should": true, "must": true, "when": true,
	"add": true, "make": true, "use": true, "new": true,
}

// Terms returns the lower-cased significant words of text.
func Terms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		terms[stem(w)] = struct{}{}
	}
	return terms
}

// stem strips a few common English suffixes so "lookups" matches "lookup".
func stem(w string) string {
	for _, suffix := range []string{"ing", "ed", "es", "s"} {
		if len(w) > len(suffix)+3 && strings.HasSuffix(w, suffix) {
			return strings.TrimSuffix(w, suffix)
		}
	}
	return w
}
