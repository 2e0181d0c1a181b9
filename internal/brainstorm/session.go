package brainstorm

import (
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Session is one brainstorming run. Its maps are written by concurrent agent
// goroutines, each under the session lock and each only for its own agent.
// Once terminal, a session accepts no further writes.
type Session struct {
	ID        string
	Task      models.Task
	AgentIDs  []string
	CreatedAt time.Time

	mu         sync.Mutex
	status     Status
	finishedAt time.Time
	solutions  map[string]*models.AgentSolution
	thoughts   map[string]models.Thoughts
	completed  map[string]struct{}
	failures   map[string]string
	variations map[string]models.TaskVariation
	deviations map[string]models.DeviationResult

	timer    *time.Timer
	cancel   func()
	done     chan struct{}
	doneOnce sync.Once
}

func newSession(id string, task models.Task, agentIDs []string, variations map[string]models.TaskVariation) *Session {
	return &Session{
		ID:         id,
		Task:       task,
		AgentIDs:   append([]string(nil), agentIDs...),
		CreatedAt:  time.Now(),
		status:     StatusActive,
		solutions:  make(map[string]*models.AgentSolution),
		thoughts:   make(map[string]models.Thoughts),
		completed:  make(map[string]struct{}),
		failures:   make(map[string]string),
		variations: variations,
		deviations: make(map[string]models.DeviationResult),
		cancel:     func() {},
		done:       make(chan struct{}),
	}
}

// Done is closed after the session reaches a terminal status.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) addThought(agentID string, t models.Thought) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return false
	}
	s.thoughts[agentID] = append(s.thoughts[agentID], t)
	return true
}

// setThoughts stores the think step's output unless thoughts were already streamed.
func (s *Session) setThoughts(agentID string, thoughts models.Thoughts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive || len(s.thoughts[agentID]) > 0 {
		return
	}
	s.thoughts[agentID] = append(models.Thoughts(nil), thoughts...)
}

// addSolution records an agent's solution. It reports false for late writes.
func (s *Session) addSolution(agentID string, sol *models.AgentSolution, dev *models.DeviationResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return false
	}
	s.solutions[agentID] = sol
	if dev != nil {
		s.deviations[agentID] = *dev
	}
	return true
}

// markCompleted settles one agent. failure is empty on success. It reports
// whether this call completed the session.
func (s *Session) markCompleted(agentID, failure string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return false
	}
	if _, dup := s.completed[agentID]; dup {
		return false
	}
	s.completed[agentID] = struct{}{}
	if failure != "" {
		s.failures[agentID] = failure
	}
	if len(s.completed) < len(s.AgentIDs) {
		return false
	}
	s.finishLocked(StatusCompleted)
	return true
}

// terminate moves an active session to cancelled. It reports whether this
// call made the transition.
func (s *Session) terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return false
	}
	s.finishLocked(StatusCancelled)
	return true
}

func (s *Session) finishLocked(status Status) {
	s.status = status
	s.finishedAt = time.Now()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
}

// signalDone releases waiters. The coordinator calls it once the terminal
// bookkeeping for the session is finished.
func (s *Session) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// SessionStatus is a point-in-time summary of a session.
type SessionStatus struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Solutions int    `json:"solutions"`
}

func (s *Session) summary() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStatus{
		ID:        s.ID,
		Status:    s.status,
		Completed: len(s.completed),
		Total:     len(s.AgentIDs),
		Solutions: len(s.solutions),
	}
}

// Result is a copy of a session's collected output.
type Result struct {
	SessionID string        `json:"session_id"`
	Task      models.Task   `json:"task"`
	Status    Status        `json:"status"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Duration  time.Duration `json:"duration"`

	// Solutions follow the session's agent order.
	Solutions  []*models.AgentSolution           `json:"solutions"`
	Thoughts   map[string]models.Thoughts        `json:"thoughts"`
	Variations map[string]models.TaskVariation   `json:"variations"`
	Deviations map[string]models.DeviationResult `json:"deviations"`
	Failures   map[string]string                 `json:"failures,omitempty"`
}

func (s *Session) result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.finishedAt
	if end.IsZero() {
		end = time.Now()
	}
	r := &Result{
		SessionID:  s.ID,
		Task:       s.Task,
		Status:     s.status,
		Completed:  len(s.completed),
		Total:      len(s.AgentIDs),
		Duration:   end.Sub(s.CreatedAt),
		Solutions:  make([]*models.AgentSolution, 0, len(s.solutions)),
		Thoughts:   make(map[string]models.Thoughts, len(s.thoughts)),
		Variations: make(map[string]models.TaskVariation, len(s.variations)),
		Deviations: make(map[string]models.DeviationResult, len(s.deviations)),
		Failures:   make(map[string]string, len(s.failures)),
	}
	for _, id := range s.AgentIDs {
		if sol, ok := s.solutions[id]; ok {
			r.Solutions = append(r.Solutions, sol)
		}
	}
	for id, t := range s.thoughts {
		r.Thoughts[id] = append(models.Thoughts(nil), t...)
	}
	for id, v := range s.variations {
		r.Variations[id] = v
	}
	for id, d := range s.deviations {
		r.Deviations[id] = d
	}
	for id, f := range s.failures {
		r.Failures[id] = f
	}
	return r
}

// FailedAgents returns the agents that settled without a solution, sorted.
func (r *Result) FailedAgents() []string {
	out := make([]string, 0, len(r.Failures))
	for id := range r.Failures {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
