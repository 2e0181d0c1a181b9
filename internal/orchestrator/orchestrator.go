// Package orchestrator ties the dependency graph, brainstorming coordinator,
// evaluator and knowledge base together for one workspace.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/conclave/internal/brainstorm"
	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/internal/depgraph"
	"github.com/ShayCichocki/conclave/internal/deviation"
	"github.com/ShayCichocki/conclave/internal/evaluator"
	"github.com/ShayCichocki/conclave/internal/knowledge"
	"github.com/ShayCichocki/conclave/internal/learning"
	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/internal/metrics"
	"github.com/ShayCichocki/conclave/internal/protect"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// relatedDepth bounds graph expansion around files named in a task.
const relatedDepth = 2

// Orchestrator owns the engine components for one workspace.
type Orchestrator struct {
	workspace string
	cfg       *config.Config
	logger    *logging.DebugLogger
	metrics   *metrics.Metrics
	checker   deviation.Checker
	generator deviation.VariationGenerator
	observer  func(sessionID string, t models.Thought)

	graph       *depgraph.Graph
	coordinator *brainstorm.Coordinator
	evaluator   *evaluator.Evaluator
	store       knowledge.Store
	kb          *knowledge.Base
	learner     *learning.Engine
	profile     *models.ProjectProfile

	saveMu   sync.Mutex
	outcomes sync.Map
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the debug logger shared by every component.
func WithLogger(l *logging.DebugLogger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink shared by every component.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithDeviationChecker replaces the keyword checker used for task alignment.
func WithDeviationChecker(c deviation.Checker) Option {
	return func(o *Orchestrator) {
		o.checker = c
	}
}

// WithVariationGenerator replaces the role-based variation generator.
func WithVariationGenerator(g deviation.VariationGenerator) Option {
	return func(o *Orchestrator) {
		o.generator = g
	}
}

// WithStore replaces the knowledge store selected by config.
func WithStore(s knowledge.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithThoughtObserver receives every streamed agent thought.
func WithThoughtObserver(fn func(sessionID string, t models.Thought)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// New loads the knowledge base and project profile for workspace, applies
// learned evaluator weights and wires the coordinator. The graph is not
// built until AnalyzeProject.
func New(ctx context.Context, workspace string, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if workspace == "" {
		return nil, fmt.Errorf("%w: no workspace given", depgraph.ErrWorkspaceMissing)
	}
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", depgraph.ErrWorkspaceMissing, err)
	}

	o := &Orchestrator{
		workspace: abs,
		cfg:       cfg,
		logger:    logging.Nop(),
		checker:   deviation.NewKeywordChecker(),
		generator: deviation.NewRoleVariationGenerator(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.graph = depgraph.New(abs,
		depgraph.WithConfig(cfg.Graph),
		depgraph.WithLogger(o.logger),
		depgraph.WithMetrics(o.metrics),
	)

	if o.store == nil {
		if o.store, err = knowledge.Open(abs, cfg.Knowledge); err != nil {
			return nil, fmt.Errorf("open knowledge store: %w", err)
		}
	}
	o.kb, err = o.store.Load(ctx, abs,
		knowledge.WithMaxHistory(cfg.Knowledge.MaxHistory),
		knowledge.WithLogger(o.logger),
		knowledge.WithMetrics(o.metrics),
	)
	if err != nil {
		o.store.Close()
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}

	profile, err := config.LoadProfile(config.ProfilePath(abs))
	if err != nil {
		o.logger.Log("profile: %v", err)
		profile = &models.ProjectProfile{}
	}
	if profile.Architecture == "" && len(profile.Patterns) == 0 {
		if stored := o.kb.Profile(); stored != nil {
			profile = stored
		}
	}
	o.profile = profile

	areas := protect.New()
	if err := areas.LoadConfig(filepath.Join(abs, config.ProjectConfigName)); err != nil {
		o.logger.Log("protected areas: %v", err)
	}

	o.evaluator = evaluator.New(o.graph,
		evaluator.WithDeviationChecker(o.checker),
		evaluator.WithAreaChecker(areas),
		evaluator.WithLogger(o.logger),
		evaluator.WithMetrics(o.metrics),
	)
	o.learner = learning.NewEngine(o.kb, learning.WithLogger(o.logger))
	o.learner.Learn()
	o.learner.ApplyTo(o.evaluator)

	coordOpts := []brainstorm.Option{
		brainstorm.WithConfig(cfg.Brainstorm),
		brainstorm.WithDeviationChecker(o.checker),
		brainstorm.WithVariationGenerator(o.generator),
		brainstorm.WithLogger(o.logger),
		brainstorm.WithMetrics(o.metrics),
		brainstorm.WithRecorder(brainstorm.RecorderFunc(o.record)),
	}
	if o.observer != nil {
		coordOpts = append(coordOpts, brainstorm.WithThoughtObserver(o.observer))
	}
	o.coordinator = brainstorm.NewCoordinator(coordOpts...)
	return o, nil
}

// Close releases the knowledge store and stops event delivery.
func (o *Orchestrator) Close() error {
	o.coordinator.Close()
	return o.store.Close()
}

// Workspace returns the absolute workspace root.
func (o *Orchestrator) Workspace() string { return o.workspace }

// Graph returns the dependency graph.
func (o *Orchestrator) Graph() *depgraph.Graph { return o.graph }

// Coordinator returns the brainstorming coordinator.
func (o *Orchestrator) Coordinator() *brainstorm.Coordinator { return o.coordinator }

// Evaluator returns the solution evaluator.
func (o *Orchestrator) Evaluator() *evaluator.Evaluator { return o.evaluator }

// Knowledge returns the knowledge base.
func (o *Orchestrator) Knowledge() *knowledge.Base { return o.kb }

// Learner returns the learning engine.
func (o *Orchestrator) Learner() *learning.Engine { return o.learner }

// Profile returns the project profile in use.
func (o *Orchestrator) Profile() *models.ProjectProfile { return o.profile }

// AnalyzeProject loads or rebuilds the dependency graph and copies the
// project layout into the knowledge base. It reports whether the graph was
// rebuilt. A missing workspace is the only fatal error.
func (o *Orchestrator) AnalyzeProject(ctx context.Context) (bool, error) {
	rebuilt, err := o.graph.EnsureFresh(ctx, depgraph.DefaultSnapshotPath(o.workspace), o.cfg.Graph.StaleAfter)
	if err != nil {
		return false, err
	}

	structure := map[string][]string{}
	deps := map[string][]string{}
	for _, f := range o.graph.Files() {
		dir := filepath.ToSlash(filepath.Dir(f))
		structure[dir] = append(structure[dir], f)
		if resolved := o.graph.GetDependencies(f); len(resolved) > 0 {
			deps[f] = resolved
		}
	}
	o.kb.SetStructure(structure)
	o.kb.SetDependencies(deps)
	if o.profile != nil && (o.profile.Architecture != "" || len(o.profile.Patterns) > 0) {
		o.kb.SetProfile(o.profile)
		for _, p := range o.profile.Patterns {
			o.kb.RecordPattern(p)
		}
	}
	if err := o.save(ctx); err != nil {
		o.logger.Log("analyze: %v", err)
	}
	return rebuilt, nil
}

// AgentContext builds the context handed to agents for task: the project
// profile, graph neighbours of files the task names and recent lessons.
func (o *Orchestrator) AgentContext(task models.Task) brainstorm.AgentContext {
	actx := brainstorm.AgentContext{Workspace: o.workspace, Profile: o.profile}

	related := map[string]bool{}
	for _, f := range o.graph.Files() {
		if !strings.Contains(task.Description, f) {
			continue
		}
		related[f] = true
		for _, r := range o.graph.FindRelatedFiles(f, relatedDepth) {
			related[r] = true
		}
	}
	for f := range related {
		actx.RelatedFiles = append(actx.RelatedFiles, f)
	}
	sort.Strings(actx.RelatedFiles)

	var notes []string
	for _, p := range o.kb.GetMetrics().TopPatterns {
		notes = append(notes, "- "+p.Pattern)
	}
	if len(notes) > 0 {
		actx.Notes = "Lessons from earlier work:\n" + strings.Join(notes, "\n")
	}
	return actx
}

// RecommendAgents narrows agents to the learned preference for task. It
// never returns an empty list when agents is non-empty.
func (o *Orchestrator) RecommendAgents(task models.Task, agents []brainstorm.Agent) []brainstorm.Agent {
	ids := make([]string, len(agents))
	byID := make(map[string]brainstorm.Agent, len(agents))
	for i, a := range agents {
		ids[i] = a.ID()
		byID[a.ID()] = a
	}
	var out []brainstorm.Agent
	for _, id := range o.learner.RecommendAgents(task, ids) {
		out = append(out, byID[id])
	}
	return out
}

// Outcome is everything one brainstorming run produced.
type Outcome struct {
	Result        *brainstorm.Result        `json:"result"`
	Consolidation brainstorm.Consolidation  `json:"consolidation"`
	Comparison    evaluator.Comparison      `json:"comparison"`
	Merged        *evaluator.MergedSolution `json:"merged,omitempty"`
	Decision      *models.Decision          `json:"decision,omitempty"`
}

// Brainstorm runs agents on task, waits for the session to end, then ranks
// and merges what came back. Completed sessions are recorded in the
// knowledge base.
func (o *Orchestrator) Brainstorm(ctx context.Context, task models.Task, agents []brainstorm.Agent) (*Outcome, error) {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	id, err := o.coordinator.InitiateBrainstorming(ctx, task, agents, o.AgentContext(task))
	if err != nil {
		return nil, err
	}
	res, err := o.coordinator.WaitForAllAgents(ctx, id)
	if err != nil {
		o.coordinator.CancelSession(id)
		return nil, err
	}
	if cached, ok := o.outcomes.LoadAndDelete(id); ok {
		return cached.(*Outcome), nil
	}
	return o.assess(ctx, res), nil
}

// assess consolidates and scores a session's solutions.
func (o *Orchestrator) assess(ctx context.Context, res *brainstorm.Result) *Outcome {
	task := res.Task
	out := &Outcome{
		Result:        res,
		Consolidation: o.coordinator.ConsolidateSolutions(res.Solutions, &task, res.Deviations),
	}
	ectx := evaluator.EvalContext{Profile: o.profile, Deviations: res.Deviations}
	out.Comparison = o.evaluator.CompareSolutions(ctx, out.Consolidation.Ranked, ectx, &task)
	if len(out.Consolidation.Ranked) > 1 {
		merged, err := o.evaluator.MergeSolutions(ctx, out.Consolidation.Ranked, ectx, &task)
		if err != nil {
			o.logger.Log("session %s: merge: %v", res.SessionID, err)
		} else {
			out.Merged = merged
		}
	}
	return out
}

// record is the coordinator's completion hook. It stores the selection as a
// decision so later learning passes see it.
func (o *Orchestrator) record(ctx context.Context, res *brainstorm.Result) error {
	out := o.assess(ctx, res)
	defer o.outcomes.Store(res.SessionID, out)

	best := out.Consolidation.Best
	if best == nil {
		return nil
	}
	score := best.Evaluation.OverallScore
	if out.Comparison.Best != nil {
		for _, r := range out.Comparison.Ranked {
			if r.Solution.ID == best.ID {
				score = r.Score
				break
			}
		}
	}

	reasoning := fmt.Sprintf("selected %q from %s among %d solutions", best.Solution.Title, best.AgentID, len(res.Solutions))
	if best.Reasoning != "" {
		reasoning += ": " + best.Reasoning
	}
	d := o.kb.AddDecision(models.Decision{
		TaskID:   res.Task.ID,
		TaskType: res.Task.Type,
		Decision: models.DecisionChoice{
			SolutionID: best.ID,
			AgentID:    best.AgentID,
			Reasoning:  reasoning,
		},
		Outcome: models.DecisionOutcome{
			Success:       score >= 0.6,
			ExecutionTime: res.Duration,
			FilesChanged:  len(best.Solution.FilesToModify),
			Quality:       score,
			Issues:        failureIssues(res),
		},
	})
	out.Decision = &d
	return o.save(ctx)
}

func failureIssues(res *brainstorm.Result) []string {
	var issues []string
	for _, id := range res.FailedAgents() {
		issues = append(issues, fmt.Sprintf("%s: %s", id, res.Failures[id]))
	}
	return issues
}

// RecordOutcome appends the real result of applying a solution, then
// relearns and reapplies evaluator weights.
func (o *Orchestrator) RecordOutcome(ctx context.Context, task models.Task, chosen *models.AgentSolution, outcome models.DecisionOutcome, lessons []string) (models.Decision, error) {
	d := models.Decision{
		TaskID:   task.ID,
		TaskType: task.Type,
		Outcome:  outcome,
		Lessons:  lessons,
	}
	if chosen != nil {
		d.Decision = models.DecisionChoice{SolutionID: chosen.ID, AgentID: chosen.AgentID, Reasoning: chosen.Reasoning}
	}
	d = o.kb.AddDecision(d)
	o.Relearn()
	return d, o.save(ctx)
}

// Relearn runs a learning pass and applies the resulting weights.
func (o *Orchestrator) Relearn() learning.Summary {
	summary := o.learner.Learn()
	o.learner.ApplyTo(o.evaluator)
	return summary
}

func (o *Orchestrator) save(ctx context.Context) error {
	o.saveMu.Lock()
	defer o.saveMu.Unlock()
	if err := o.store.Save(ctx, o.kb); err != nil {
		return fmt.Errorf("save knowledge base: %w", err)
	}
	return nil
}
