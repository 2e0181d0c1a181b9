// Package learning derives agent preferences and evaluator weights from the
// knowledge base history.
package learning

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/conclave/internal/evaluator"
	"github.com/ShayCichocki/conclave/internal/knowledge"
	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/pkg/models"
)

const (
	recentSuccesses = 100
	preferredCount  = 3
)

// Summary reports what one learning pass produced.
type Summary struct {
	Decisions  int                             `json:"decisions"`
	Inferred   int                             `json:"inferred"`
	Strategies map[models.TaskType][]string    `json:"strategies"`
	Weights    map[evaluator.Criterion]float64 `json:"weights"`
	LessonHits map[evaluator.Criterion]int     `json:"lesson_hits"`
	LearnedAt  time.Time                       `json:"learned_at"`
}

// Engine holds the strategies and criterion weights from the last Learn call.
type Engine struct {
	kb     *knowledge.Base
	logger *logging.DebugLogger

	mu         sync.RWMutex
	strategies map[models.TaskType]models.AgentStrategy
	weights    map[evaluator.Criterion]float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(e *Engine) {
		e.logger = l.With("learning")
	}
}

// NewEngine creates an engine over kb. Until Learn runs it has no strategies
// and the default evaluator weights.
func NewEngine(kb *knowledge.Base, opts ...Option) *Engine {
	e := &Engine{
		kb:         kb,
		logger:     logging.Nop(),
		strategies: map[models.TaskType]models.AgentStrategy{},
		weights:    evaluator.DefaultWeights(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type agentTally struct {
	total, successes int
}

// Learn replaces every strategy and the criterion weights with values
// derived from the most recent successful decisions. Success rates are
// measured over all decisions since the oldest of those successes.
func (e *Engine) Learn() Summary {
	now := time.Now()
	successes := e.kb.GetSuccessfulDecisions(recentSuccesses)
	summary := Summary{
		Decisions:  len(successes),
		Strategies: map[models.TaskType][]string{},
		LearnedAt:  now,
	}

	strategies := map[models.TaskType]models.AgentStrategy{}
	if len(successes) > 0 {
		cutoff := successes[len(successes)-1].Timestamp
		tallies := map[models.TaskType]map[string]*agentTally{}
		for _, d := range e.kb.History() {
			if d.Timestamp.Before(cutoff) || d.Decision.AgentID == "" {
				continue
			}
			tt, inferred := taskTypeOf(d)
			if inferred && d.Outcome.Success {
				summary.Inferred++
			}
			group, ok := tallies[tt]
			if !ok {
				group = map[string]*agentTally{}
				tallies[tt] = group
			}
			t, ok := group[d.Decision.AgentID]
			if !ok {
				t = &agentTally{}
				group[d.Decision.AgentID] = t
			}
			t.total++
			if d.Outcome.Success {
				t.successes++
			}
		}
		for tt, group := range tallies {
			s := strategyFor(tt, group, now)
			if len(s.PreferredAgents) == 0 {
				continue
			}
			strategies[tt] = s
			summary.Strategies[tt] = s.PreferredAgents
		}
	}

	hits := lessonHits(successes)
	weights := weightsFromHits(hits)
	summary.LessonHits = hits
	summary.Weights = weights

	e.mu.Lock()
	e.strategies = strategies
	e.weights = weights
	e.mu.Unlock()

	e.logger.Log("learned from %d successful decisions (%d inferred types): %d strategies, weights %s",
		summary.Decisions, summary.Inferred, len(strategies), evaluator.FormatWeights(weights))
	return summary
}

func strategyFor(tt models.TaskType, group map[string]*agentTally, now time.Time) models.AgentStrategy {
	s := models.AgentStrategy{
		TaskType:  tt,
		Weights:   make(map[string]float64, len(group)),
		UpdatedAt: now,
	}
	type ranked struct {
		id        string
		rate      float64
		successes int
	}
	var candidates []ranked
	for id, t := range group {
		rate := float64(t.successes) / float64(t.total)
		s.Weights[id] = rate
		if t.successes > 0 {
			candidates = append(candidates, ranked{id, rate, t.successes})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.rate != b.rate {
			return a.rate > b.rate
		}
		if a.successes != b.successes {
			return a.successes > b.successes
		}
		return a.id < b.id
	})
	for i := 0; i < len(candidates) && i < preferredCount; i++ {
		s.PreferredAgents = append(s.PreferredAgents, candidates[i].id)
	}
	return s
}

// taskTypeOf returns the recorded type, or one inferred from the reasoning.
func taskTypeOf(d models.Decision) (models.TaskType, bool) {
	if d.TaskType.Valid() {
		return d.TaskType, false
	}
	return InferTaskType(d.Decision.Reasoning), true
}

// RecommendAgents returns the preferred agents for the task that are
// available, in preference order. When none are, every available agent is
// returned.
func (e *Engine) RecommendAgents(task models.Task, available []string) []string {
	tt := task.Type
	if !tt.Valid() {
		tt = InferTaskType(task.Description)
	}

	e.mu.RLock()
	strategy, ok := e.strategies[tt]
	e.mu.RUnlock()

	if ok {
		avail := make(map[string]bool, len(available))
		for _, id := range available {
			avail[id] = true
		}
		var out []string
		for _, id := range strategy.PreferredAgents {
			if avail[id] {
				out = append(out, id)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return append([]string(nil), available...)
}

// Strategy returns the learned strategy for a task type.
func (e *Engine) Strategy(tt models.TaskType) (models.AgentStrategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[tt]
	if !ok {
		return models.AgentStrategy{}, false
	}
	s.PreferredAgents = append([]string(nil), s.PreferredAgents...)
	w := make(map[string]float64, len(s.Weights))
	for k, v := range s.Weights {
		w[k] = v
	}
	s.Weights = w
	return s, true
}

// Strategies returns the task types with a learned strategy, sorted.
func (e *Engine) Strategies() []models.TaskType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.TaskType, 0, len(e.strategies))
	for tt := range e.strategies {
		out = append(out, tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CriterionWeights returns the learned evaluator weights.
func (e *Engine) CriterionWeights() map[evaluator.Criterion]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[evaluator.Criterion]float64, len(e.weights))
	for c, w := range e.weights {
		out[c] = w
	}
	return out
}

// ApplyTo installs the learned weights on ev.
func (e *Engine) ApplyTo(ev *evaluator.Evaluator) {
	ev.SetWeights(e.CriterionWeights())
}

// typeKeywords is checked in order; the first type with a hit wins.
var typeKeywords = []struct {
	taskType models.TaskType
	words    []string
}{
	{models.TaskTypeBug, []string{"fix", "bug", "crash", "broken", "regression", "error"}},
	{models.TaskTypeRefactoring, []string{"refactor", "restructur", "extract", "rename", "cleanup", "clean up"}},
	{models.TaskTypeDocumentation, []string{"document", "readme", "docs", "docstring", "changelog"}},
	{models.TaskTypeQualityCheck, []string{"test", "review", "audit", "lint", "coverage"}},
	{models.TaskTypeImprovement, []string{"improve", "optimiz", "enhance", "speed up", "faster"}},
}

// InferTaskType classifies free text by keyword. Text with no hit is a feature.
func InferTaskType(text string) models.TaskType {
	lower := strings.ToLower(text)
	for _, tk := range typeKeywords {
		for _, w := range tk.words {
			if strings.Contains(lower, w) {
				return tk.taskType
			}
		}
	}
	return models.TaskTypeFeature
}

var criterionKeywords = map[evaluator.Criterion][]string{
	evaluator.Quality:          {"quality", "bug", "test", "correct", "readab", "clean"},
	evaluator.Performance:      {"performance", "fast", "slow", "latency", "memory", "cache", "optimiz"},
	evaluator.Security:         {"security", "auth", "vulnerab", "secret", "inject", "encrypt", "permission"},
	evaluator.Maintainability:  {"maintain", "refactor", "simple", "complex", "modular", "duplicat"},
	evaluator.Compliance:       {"complian", "standard", "convention", "lint", "style", "guideline"},
	evaluator.DependencyImpact: {"dependenc", "coupling", "impact", "breaking", "ripple", "import"},
	evaluator.Architecture:     {"architect", "pattern", "layer", "boundar", "design"},
}

// lessonHits counts, per criterion, the lessons mentioning it.
func lessonHits(decisions []models.Decision) map[evaluator.Criterion]int {
	hits := make(map[evaluator.Criterion]int, len(criterionKeywords))
	for c := range criterionKeywords {
		hits[c] = 0
	}
	for _, d := range decisions {
		for _, lesson := range d.Lessons {
			lower := strings.ToLower(lesson)
			for c, words := range criterionKeywords {
				for _, w := range words {
					if strings.Contains(lower, w) {
						hits[c]++
						break
					}
				}
			}
		}
	}
	return hits
}

// weightsFromHits boosts each default weight by its share of lesson hits,
// then renormalizes. No hits yields the defaults.
func weightsFromHits(hits map[evaluator.Criterion]int) map[evaluator.Criterion]float64 {
	total := 0
	for _, n := range hits {
		total += n
	}
	weights := evaluator.DefaultWeights()
	if total == 0 {
		return weights
	}
	for c, n := range hits {
		weights[c] *= 1 + float64(n)/float64(total)
	}
	normalized, _ := evaluator.Normalize(weights)
	return normalized
}
