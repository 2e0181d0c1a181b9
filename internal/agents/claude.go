package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/conclave/internal/brainstorm"
	"github.com/ShayCichocki/conclave/internal/llm"
	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/pkg/models"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

// ClaudeAgent implements brainstorm.Agent over an LLM completer.
type ClaudeAgent struct {
	id       string
	role     models.AgentRole
	llm      llm.Completer
	logger   *logging.DebugLogger
	attempts int
	backoff  time.Duration

	mu sync.Mutex
	cb func(models.Thought)
}

var _ brainstorm.Agent = (*ClaudeAgent)(nil)

// Option configures a ClaudeAgent.
type Option func(*ClaudeAgent)

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(a *ClaudeAgent) {
		a.logger = l.With("agent")
	}
}

// WithRetry sets how many completions are attempted per call and the delay
// before the first retry. The delay doubles on each further attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(a *ClaudeAgent) {
		if attempts > 0 {
			a.attempts = attempts
		}
		if backoff >= 0 {
			a.backoff = backoff
		}
	}
}

// New creates an agent with the given ID and role.
func New(id string, role models.AgentRole, c llm.Completer, opts ...Option) *ClaudeAgent {
	a := &ClaudeAgent{
		id:       id,
		role:     role,
		llm:      c,
		logger:   logging.Nop(),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewTeam creates one agent per role, using the role name as the ID.
func NewTeam(roles []models.AgentRole, c llm.Completer, opts ...Option) []brainstorm.Agent {
	team := make([]brainstorm.Agent, 0, len(roles))
	for _, r := range roles {
		team = append(team, New(string(r), r, c, opts...))
	}
	return team
}

// ID returns the agent ID.
func (a *ClaudeAgent) ID() string { return a.id }

// Role returns the agent role.
func (a *ClaudeAgent) Role() models.AgentRole { return a.role }

// SetThoughtsCallback installs the thought sink for the next session.
func (a *ClaudeAgent) SetThoughtsCallback(fn func(models.Thought)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = fn
}

func (a *ClaudeAgent) emit(t models.Thought) {
	a.mu.Lock()
	cb := a.cb
	a.mu.Unlock()
	if cb != nil {
		cb(t)
	}
}

type thoughtsReply struct {
	Thoughts []struct {
		Kind    string `json:"kind"`
		Content string `json:"content"`
	} `json:"thoughts"`
}

// Think asks the model for a short list of observations about the task and
// streams each one to the callback.
func (a *ClaudeAgent) Think(ctx context.Context, task models.Task, actx brainstorm.AgentContext) (models.Thoughts, error) {
	var reply thoughtsReply
	if err := a.ask(ctx, thinkPrompt(task, actx), &reply); err != nil {
		return nil, fmt.Errorf("%s think: %w", a.id, err)
	}

	out := make(models.Thoughts, 0, len(reply.Thoughts))
	for _, r := range reply.Thoughts {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		t := models.Thought{
			AgentID:   a.id,
			Kind:      thoughtKind(r.Kind),
			Content:   content,
			CreatedAt: time.Now(),
		}
		a.emit(t)
		out = append(out, t)
	}
	return out, nil
}

type solutionReply struct {
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Approach      string              `json:"approach"`
	FilesToModify []string            `json:"files_to_modify"`
	CodeChanges   []models.CodeChange `json:"code_changes"`
	Impact        models.ImpactLevel  `json:"impact"`
	Scores        models.Evaluation   `json:"scores"`
	Reasoning     string              `json:"reasoning"`
	Confidence    float64             `json:"confidence"`
}

// ProposeSolution turns the thoughts into a concrete solution.
func (a *ClaudeAgent) ProposeSolution(ctx context.Context, task models.Task, thoughts models.Thoughts, actx brainstorm.AgentContext) (*models.AgentSolution, error) {
	var reply solutionReply
	if err := a.ask(ctx, proposePrompt(task, thoughts, actx), &reply); err != nil {
		return nil, fmt.Errorf("%s propose: %w", a.id, err)
	}
	if strings.TrimSpace(reply.Title) == "" && strings.TrimSpace(reply.Description) == "" {
		return nil, errors.New("model returned an empty solution")
	}

	files := reply.FilesToModify
	for _, ch := range reply.CodeChanges {
		files = appendUnique(files, ch.File)
	}

	impact := reply.Impact
	switch impact {
	case models.ImpactLow, models.ImpactMedium, models.ImpactHigh:
	default:
		impact = models.ImpactLow
	}

	return &models.AgentSolution{
		AgentID: a.id,
		TaskID:  task.ID,
		Solution: models.SolutionBody{
			Title:         reply.Title,
			Description:   reply.Description,
			Approach:      reply.Approach,
			FilesToModify: files,
			CodeChanges:   reply.CodeChanges,
			Dependencies:  models.SolutionDependencies{Files: files, Impact: impact},
		},
		Evaluation: normalizeScores(reply.Scores),
		Reasoning:  reply.Reasoning,
		Confidence: clamp01(reply.Confidence),
		CreatedAt:  time.Now(),
	}, nil
}

// ask completes prompt and decodes the JSON reply, retrying failed
// completions and unparseable replies. Context errors are not retried.
func (a *ClaudeAgent) ask(ctx context.Context, prompt string, v any) error {
	system := Persona(a.role) + "\n\n" + replyRules
	delay := a.backoff

	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		if attempt > 1 {
			a.logger.Log("%s: attempt %d after: %v", a.id, attempt, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		text, err := a.llm.Complete(ctx, system, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}
		if err := llm.DecodeJSON(text, v); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", a.attempts, lastErr)
}

func thoughtKind(s string) models.ThoughtKind {
	switch k := models.ThoughtKind(strings.ToLower(strings.TrimSpace(s))); k {
	case models.ThoughtAnalysis, models.ThoughtIdea, models.ThoughtConcern, models.ThoughtProgress:
		return k
	default:
		return models.ThoughtAnalysis
	}
}

// normalizeScores clamps each score and fills the overall score with the
// mean of the five criteria when the model left it out.
func normalizeScores(e models.Evaluation) models.Evaluation {
	e.Quality = clamp01(e.Quality)
	e.Performance = clamp01(e.Performance)
	e.Security = clamp01(e.Security)
	e.Maintainability = clamp01(e.Maintainability)
	e.Compliance = clamp01(e.Compliance)
	if e.OverallScore <= 0 {
		e.OverallScore = (e.Quality + e.Performance + e.Security + e.Maintainability + e.Compliance) / 5
	}
	e.OverallScore = clamp01(e.OverallScore)
	return e
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
