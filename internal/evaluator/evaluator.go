// Package evaluator scores, ranks and merges competing agent solutions.
package evaluator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/conclave/internal/deviation"
	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/internal/metrics"
	"github.com/ShayCichocki/conclave/internal/protect"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// Criterion names one scoring dimension.
type Criterion string

const (
	Quality          Criterion = "quality"
	Performance      Criterion = "performance"
	Security         Criterion = "security"
	Maintainability  Criterion = "maintainability"
	Compliance       Criterion = "compliance"
	DependencyImpact Criterion = "dependencyImpact"
	Architecture     Criterion = "architecture"
	TaskAlignment    Criterion = "taskAlignment"
)

// Criteria lists every dimension in report order.
var Criteria = []Criterion{
	Quality, Performance, Security, Maintainability, Compliance,
	DependencyImpact, Architecture, TaskAlignment,
}

// Neutral scores used when a dimension cannot be measured.
const (
	neutralAlignment       = 0.5
	noArchitectureScore    = 0.5
	unmatchedArchitecture  = 0.6
	patternArchitecture    = 0.8
	matchedArchitecture    = 0.9
	strengthThreshold      = 0.8
	weaknessThreshold      = 0.6
	mediumImpactMultiplier = 0.85
	highImpactMultiplier   = 0.7
)

// DefaultWeights returns the built-in criterion weights. They sum to 1.
func DefaultWeights() map[Criterion]float64 {
	return map[Criterion]float64{
		Quality:          0.13,
		Performance:      0.13,
		Security:         0.13,
		Maintainability:  0.13,
		Compliance:       0.13,
		DependencyImpact: 0.13,
		Architecture:     0.09,
		TaskAlignment:    0.13,
	}
}

// ImpactAnalyzer is the slice of the dependency graph the evaluator needs.
type ImpactAnalyzer interface {
	GetImpactAnalysis(changes []models.FileChange) models.ImpactAnalysis
}

// AreaChecker finds protected files a solution touches.
type AreaChecker interface {
	CheckSolution(s *models.AgentSolution) []protect.Finding
}

// EvalContext carries project facts used by the architecture criterion.
type EvalContext struct {
	Profile *models.ProjectProfile
	// Deviations are checks already run for this task, keyed by agent ID.
	// A solution with an entry here is not re-checked.
	Deviations map[string]models.DeviationResult
}

// EvaluationReport is the scored view of one solution. It is never persisted.
type EvaluationReport struct {
	Solution  *models.AgentSolution   `json:"solution"`
	Score     float64                 `json:"score"`
	Breakdown map[Criterion]float64   `json:"breakdown"`
	Deviation *models.DeviationResult `json:"deviation,omitempty"`
	Impact    *models.ImpactAnalysis  `json:"impact,omitempty"`
	Protected []protect.Finding       `json:"protected,omitempty"`

	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// Evaluator scores solutions against weighted criteria.
type Evaluator struct {
	graph   ImpactAnalyzer
	checker deviation.Checker
	areas   AreaChecker
	logger  *logging.DebugLogger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	weights map[Criterion]float64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithDeviationChecker enables the taskAlignment criterion.
func WithDeviationChecker(c deviation.Checker) Option {
	return func(e *Evaluator) {
		e.checker = c
	}
}

// WithAreaChecker flags solutions that touch protected areas.
func WithAreaChecker(c AreaChecker) Option {
	return func(e *Evaluator) {
		e.areas = c
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(e *Evaluator) {
		e.logger = l.With("evaluator")
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// New creates an evaluator. graph may be nil, in which case dependency
// impact always scores 1.
func New(graph ImpactAnalyzer, opts ...Option) *Evaluator {
	e := &Evaluator{
		graph:   graph,
		logger:  logging.Nop(),
		weights: DefaultWeights(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights returns a copy of the active criterion weights.
func (e *Evaluator) Weights() map[Criterion]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[Criterion]float64, len(e.weights))
	for c, w := range e.weights {
		out[c] = w
	}
	return out
}

// SetWeights overrides the given criteria on top of the defaults and
// renormalizes so the weights sum to 1. Unknown criteria and negative values
// are ignored; an all-zero result keeps the previous weights.
func (e *Evaluator) SetWeights(weights map[Criterion]float64) {
	next := DefaultWeights()
	for c, w := range weights {
		if _, known := next[c]; known && w >= 0 {
			next[c] = w
		}
	}
	normalized, ok := Normalize(next)
	if !ok {
		return
	}
	e.mu.Lock()
	e.weights = normalized
	e.mu.Unlock()
	e.logger.Log("weights updated: %s", FormatWeights(normalized))
}

// Normalize scales weights to sum to 1. It reports false when the sum is zero.
func Normalize(weights map[Criterion]float64) (map[Criterion]float64, bool) {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return nil, false
	}
	out := make(map[Criterion]float64, len(weights))
	for c, w := range weights {
		out[c] = w / sum
	}
	return out, true
}

// FormatWeights renders weights in criterion order.
func FormatWeights(weights map[Criterion]float64) string {
	parts := make([]string, 0, len(Criteria))
	for _, c := range Criteria {
		parts = append(parts, fmt.Sprintf("%s=%.3f", c, weights[c]))
	}
	return strings.Join(parts, " ")
}

// EvaluateSolution scores one solution. original may be nil, in which case
// task alignment is neutral.
func (e *Evaluator) EvaluateSolution(ctx context.Context, s *models.AgentSolution, ectx EvalContext, original *models.Task) EvaluationReport {
	report := EvaluationReport{
		Solution:        s,
		Breakdown:       make(map[Criterion]float64, len(Criteria)),
		Strengths:       []string{},
		Weaknesses:      []string{},
		Recommendations: []string{},
	}

	report.Breakdown[Quality] = clamp01(s.Evaluation.Quality)
	report.Breakdown[Performance] = clamp01(s.Evaluation.Performance)
	report.Breakdown[Security] = clamp01(s.Evaluation.Security)
	report.Breakdown[Maintainability] = clamp01(s.Evaluation.Maintainability)
	report.Breakdown[Compliance] = clamp01(s.Evaluation.Compliance)

	depScore, impact := e.dependencyImpactScore(s)
	report.Breakdown[DependencyImpact] = depScore
	report.Impact = impact
	report.Breakdown[Architecture] = architectureScore(s, ectx.Profile)

	alignment := neutralAlignment
	if known, ok := ectx.Deviations[s.AgentID]; ok {
		alignment = clamp01(known.Relevance)
		report.Deviation = &known
	} else if e.checker != nil && original != nil {
		res, err := e.checker.CheckDeviation(ctx, *original, s)
		if err != nil {
			e.logger.Log("deviation check for %s failed: %v", s.ID, err)
		} else {
			alignment = clamp01(res.Relevance)
			report.Deviation = &res
		}
	}
	report.Breakdown[TaskAlignment] = alignment

	weights := e.Weights()
	score := 0.0
	for _, c := range Criteria {
		score += weights[c] * report.Breakdown[c]
	}
	report.Score = clamp01(score)

	for _, c := range Criteria {
		v := report.Breakdown[c]
		switch {
		case v >= strengthThreshold:
			report.Strengths = append(report.Strengths, fmt.Sprintf("%s: %.2f", c, v))
		case v < weaknessThreshold:
			report.Weaknesses = append(report.Weaknesses, fmt.Sprintf("%s: %.2f", c, v))
			report.Recommendations = append(report.Recommendations, recommendations[c])
		}
	}
	if s.Solution.Dependencies.Impact == models.ImpactHigh {
		report.Recommendations = append(report.Recommendations,
			"Warning: the solution declares a high dependency impact; review and test every dependent before merging")
	}
	if e.areas != nil {
		report.Protected = e.areas.CheckSolution(s)
		if n := len(report.Protected); n > 0 {
			files := make([]string, n)
			for i, f := range report.Protected {
				files[i] = f.File
			}
			report.Recommendations = append(report.Recommendations,
				"Get a security review for protected files: "+strings.Join(files, ", "))
		}
	}

	e.metrics.Evaluation(report.Score)
	return report
}

var recommendations = map[Criterion]string{
	Quality:          "Improve code quality: tighten error handling and remove duplication",
	Performance:      "Address performance: avoid repeated work on hot paths and measure the change",
	Security:         "Harden security: validate inputs and avoid exposing secrets or internals",
	Maintainability:  "Improve maintainability: split large units and document non-obvious behavior",
	Compliance:       "Align with project standards and conventions",
	DependencyImpact: "Reduce the blast radius: touch fewer shared modules or stage the change",
	Architecture:     "Follow the project's declared architecture and patterns",
	TaskAlignment:    "Refocus on the original task; the solution drifts from what was asked",
}

// dependencyImpactScore steps down as the affected-file count grows and is
// penalized further by the analysis' impact level.
func (e *Evaluator) dependencyImpactScore(s *models.AgentSolution) (float64, *models.ImpactAnalysis) {
	files := s.Solution.FilesToModify
	if e.graph == nil || len(files) == 0 {
		return 1, nil
	}

	changes := make([]models.FileChange, 0, len(files))
	for _, f := range files {
		changes = append(changes, models.FileChange{File: f, Type: models.ChangeModify})
	}
	analysis := e.graph.GetImpactAnalysis(changes)

	affected := analysis.TotalAffected()
	score := 1.0
	switch {
	case affected > 20:
		score = 0.4
	case affected > 10:
		score = 0.6
	case affected > 5:
		score = 0.8
	}
	switch analysis.ImpactLevel {
	case models.ImpactMedium:
		score *= mediumImpactMultiplier
	case models.ImpactHigh:
		score *= highImpactMultiplier
	}
	return score, &analysis
}

func architectureScore(s *models.AgentSolution, profile *models.ProjectProfile) float64 {
	if profile == nil || strings.TrimSpace(profile.Architecture) == "" {
		return noArchitectureScore
	}
	text := strings.ToLower(s.Solution.Title + " " + s.Solution.Description + " " + s.Solution.Approach)
	if strings.Contains(text, strings.ToLower(profile.Architecture)) {
		return matchedArchitecture
	}
	for _, p := range profile.Patterns {
		if p != "" && strings.Contains(text, strings.ToLower(p)) {
			return patternArchitecture
		}
	}
	return unmatchedArchitecture
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
