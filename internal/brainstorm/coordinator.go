package brainstorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/internal/deviation"
	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/internal/metrics"
	"github.com/ShayCichocki/conclave/pkg/models"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoAgents is returned when a session is requested with no agents.
	ErrNoAgents = errors.New("no agents to brainstorm with")
)

// Finished sessions stay queryable for this long after leaving the active registry.
const (
	finishedSessionLimit = 256
	finishedSessionTTL   = time.Hour
)

// Coordinator dispatches agents and tracks their sessions.
type Coordinator struct {
	store          SessionStore
	finished       *expirable.LRU[string, *Session]
	checker        deviation.Checker
	generator      deviation.VariationGenerator
	variationCount int
	timeout        time.Duration
	emitter        *EventEmitter
	observer       func(sessionID string, t models.Thought)
	recorder       Recorder
	logger         *logging.DebugLogger
	metrics        *metrics.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore replaces the in-memory session registry.
func WithStore(s SessionStore) Option {
	return func(c *Coordinator) {
		c.store = s
	}
}

// WithDeviationChecker checks every produced solution against the original task.
func WithDeviationChecker(ch deviation.Checker) Option {
	return func(c *Coordinator) {
		c.checker = ch
	}
}

// WithVariationGenerator sets the per-agent task rephraser.
func WithVariationGenerator(g deviation.VariationGenerator) Option {
	return func(c *Coordinator) {
		c.generator = g
	}
}

// WithSessionTimeout bounds how long a session waits for its agents.
func WithSessionTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithThoughtObserver receives every accepted thought.
func WithThoughtObserver(fn func(sessionID string, t models.Thought)) Option {
	return func(c *Coordinator) {
		c.observer = fn
	}
}

// WithRecorder is notified when a session completes normally.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithEmitter replaces the event emitter.
func WithEmitter(e *EventEmitter) Option {
	return func(c *Coordinator) {
		c.emitter = e
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(c *Coordinator) {
		c.logger = l.With("brainstorm")
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithConfig applies timeout, variation count and event buffer settings.
func WithConfig(cfg config.BrainstormConfig) Option {
	return func(c *Coordinator) {
		if cfg.SessionTimeout > 0 {
			c.timeout = cfg.SessionTimeout
		}
		if cfg.Variations > 0 {
			c.variationCount = cfg.Variations
		}
		if cfg.EventBuffer > 0 {
			c.emitter = NewEventEmitter(cfg.EventBuffer, c.metrics)
		}
	}
}

// NewCoordinator creates a coordinator with defaults from config.Default.
func NewCoordinator(opts ...Option) *Coordinator {
	defaults := config.Default().Brainstorm
	c := &Coordinator{
		store:          NewMemoryStore(),
		finished:       expirable.NewLRU[string, *Session](finishedSessionLimit, nil, finishedSessionTTL),
		variationCount: defaults.Variations,
		timeout:        defaults.SessionTimeout,
		logger:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.emitter == nil {
		c.emitter = NewEventEmitter(defaults.EventBuffer, c.metrics)
	}
	if c.metrics != nil {
		c.emitter.metrics = c.metrics
	}
	return c
}

// Events returns the coordinator's event stream.
func (c *Coordinator) Events() <-chan Event {
	return c.emitter.Events()
}

// Close stops event delivery.
func (c *Coordinator) Close() {
	c.emitter.Close()
}

// InitiateBrainstorming creates a session and starts every agent on its own
// task variation. It returns as soon as the agents are dispatched. ctx only
// scopes variation generation; agents run until the session ends.
func (c *Coordinator) InitiateBrainstorming(ctx context.Context, task models.Task, agents []Agent, actx AgentContext) (string, error) {
	if len(agents) == 0 {
		return "", ErrNoAgents
	}
	ids := make([]string, 0, len(agents))
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if seen[a.ID()] {
			return "", fmt.Errorf("duplicate agent %q", a.ID())
		}
		seen[a.ID()] = true
		ids = append(ids, a.ID())
	}

	variations := c.variationsFor(ctx, task, ids)

	s := newSession(uuid.New().String(), task, ids, variations)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	c.store.Put(s)
	c.metrics.SessionStarted()
	s.mu.Lock()
	s.timer = time.AfterFunc(c.timeout, func() { c.expire(s) })
	s.mu.Unlock()

	c.logger.Log("session %s: task %s with %d agents, timeout %s", s.ID, task.ID, len(agents), c.timeout)
	c.emitter.Emit(Event{Type: EventSessionStarted, SessionID: s.ID, Timestamp: time.Now()})

	for _, a := range agents {
		agentTask := task
		if v, ok := variations[a.ID()]; ok {
			agentTask = v.Variation
		}
		a.SetThoughtsCallback(c.thoughtSink(s, a.ID()))
		go c.runAgent(runCtx, s, a, agentTask, actx)
	}
	return s.ID, nil
}

// variationsFor produces one variation per agent. On failure every agent gets
// the original task.
func (c *Coordinator) variationsFor(ctx context.Context, task models.Task, ids []string) map[string]models.TaskVariation {
	out := make(map[string]models.TaskVariation, len(ids))
	if c.generator == nil {
		return out
	}
	list, err := c.generator.GenerateVariations(ctx, task, ids, c.variationCount)
	if err != nil {
		c.logger.Log("variation generation failed, using original task: %v", err)
		return out
	}
	for _, v := range list {
		if _, taken := out[v.AgentID]; !taken {
			out[v.AgentID] = v
		}
	}
	return out
}

func (c *Coordinator) thoughtSink(s *Session, agentID string) func(models.Thought) {
	return func(t models.Thought) {
		if t.AgentID == "" {
			t.AgentID = agentID
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		if !s.addThought(agentID, t) {
			return
		}
		if c.observer != nil {
			c.observer(s.ID, t)
		}
		c.emitter.TryEmit(Event{Type: EventThought, SessionID: s.ID, AgentID: agentID, Thought: &t, Timestamp: t.CreatedAt})
	}
}

// runAgent executes think, propose and deviation check for one agent. Any
// failure, including a panic, settles the agent without a solution.
func (c *Coordinator) runAgent(ctx context.Context, s *Session, a Agent, task models.Task, actx AgentContext) {
	id := a.ID()
	start := time.Now()

	var failure error
	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Errorf("agent panic: %v", r)
		}
		c.settle(s, id, failure, time.Since(start))
	}()

	thoughts, err := a.Think(ctx, task, actx)
	if err != nil {
		failure = fmt.Errorf("think: %w", err)
		return
	}
	s.setThoughts(id, thoughts)

	sol, err := a.ProposeSolution(ctx, task, thoughts, actx)
	if err != nil {
		failure = fmt.Errorf("propose: %w", err)
		return
	}
	if sol == nil {
		failure = errors.New("propose: no solution returned")
		return
	}
	sol = normalizeSolution(sol, id, s.Task.ID)

	var dev *models.DeviationResult
	if c.checker != nil {
		res, err := c.checker.CheckDeviation(ctx, s.Task, sol)
		if err != nil {
			c.logger.Log("session %s: deviation check for %s failed: %v", s.ID, id, err)
		} else {
			dev = &res
		}
	}

	if !s.addSolution(id, sol, dev) {
		c.logger.Log("session %s: discarded late solution from %s", s.ID, id)
	}
}

// settle marks an agent done and completes the session when it was the last.
func (c *Coordinator) settle(s *Session, agentID string, failure error, d time.Duration) {
	c.metrics.AgentRun(agentID, failure == nil, d)

	msg := ""
	evt := Event{Type: EventAgentCompleted, SessionID: s.ID, AgentID: agentID, Timestamp: time.Now()}
	if failure != nil {
		msg = failure.Error()
		evt.Type = EventAgentFailed
		evt.Error = failure
		c.logger.Log("session %s: agent %s failed: %v", s.ID, agentID, failure)
	}

	if s.markCompleted(agentID, msg) {
		c.emitter.Emit(evt)
		c.finish(s)
		return
	}
	if s.Status() == StatusActive {
		c.emitter.Emit(evt)
	}
}

// finish moves a terminal session out of the active registry.
func (c *Coordinator) finish(s *Session) {
	c.store.Delete(s.ID)
	c.finished.Add(s.ID, s)

	result := s.result()
	c.metrics.SessionFinished(string(result.Status))
	c.logger.Log("session %s %s: %d/%d agents, %d solutions in %s",
		s.ID, result.Status, result.Completed, result.Total, len(result.Solutions), result.Duration.Round(time.Millisecond))

	evt := Event{Type: EventSessionCompleted, SessionID: s.ID, Timestamp: time.Now()}
	if result.Status == StatusCancelled {
		evt.Type = EventSessionCancelled
	}
	c.emitter.Emit(evt)

	if result.Status == StatusCompleted && c.recorder != nil {
		if err := c.recorder.Record(context.Background(), result); err != nil {
			c.logger.Log("session %s: recorder: %v", s.ID, err)
		}
	}
	s.signalDone()
}

func (c *Coordinator) expire(s *Session) {
	if s.terminate() {
		c.logger.Log("session %s timed out after %s", s.ID, c.timeout)
		c.finish(s)
	}
}

// WaitForAllAgents blocks until the session completes or times out, or ctx
// is done.
func (c *Coordinator) WaitForAllAgents(ctx context.Context, sessionID string) (*Result, error) {
	s, ok := c.lookup(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	select {
	case <-s.Done():
		return s.result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetSessionStatus reports progress for an active or recently finished session.
func (c *Coordinator) GetSessionStatus(sessionID string) (SessionStatus, error) {
	s, ok := c.lookup(sessionID)
	if !ok {
		return SessionStatus{}, ErrSessionNotFound
	}
	return s.summary(), nil
}

// CancelSession cancels an active session. Cancelling a finished session is a no-op.
func (c *Coordinator) CancelSession(sessionID string) error {
	s, ok := c.lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if s.terminate() {
		c.logger.Log("session %s cancelled", s.ID)
		c.finish(s)
	}
	return nil
}

// ActiveSessions lists the IDs in the active registry.
func (c *Coordinator) ActiveSessions() []string {
	return c.store.List()
}

func (c *Coordinator) lookup(id string) (*Session, bool) {
	if s, ok := c.store.Get(id); ok {
		return s, true
	}
	return c.finished.Get(id)
}

// normalizeSolution fills identity fields the agent left empty and pins the
// task ID to the session's task, since agents may see a renamed variation.
// The agent's value is copied, not modified.
func normalizeSolution(sol *models.AgentSolution, agentID, taskID string) *models.AgentSolution {
	out := *sol
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.AgentID == "" {
		out.AgentID = agentID
	}
	out.TaskID = taskID
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	return &out
}
