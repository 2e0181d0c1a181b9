// Package knowledge keeps the per-workspace decision history and the
// rollup metrics derived from it.
package knowledge

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/internal/metrics"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// ErrNoWorkspace is returned when a knowledge base is requested without a workspace.
var ErrNoWorkspace = errors.New("knowledge base requires a workspace")

const (
	// DefaultMaxHistory caps the decision log. Oldest entries are evicted first.
	DefaultMaxHistory = 1000

	topAgentCount   = 5
	topPatternCount = 10
)

// AgentStat is one agent's record across the decision history.
type AgentStat struct {
	AgentID     string  `json:"agent_id"`
	Decisions   int     `json:"decisions"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// PatternStat counts how often a lesson recurs.
type PatternStat struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// Metrics are recomputed from the full history after every change.
type Metrics struct {
	TotalDecisions       int           `json:"total_decisions"`
	SuccessRate          float64       `json:"success_rate"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`
	AverageQuality       float64       `json:"average_quality"`
	TopAgents            []AgentStat   `json:"top_agents"`
	TopPatterns          []PatternStat `json:"top_patterns"`
}

// Document is the persisted form of a Base.
type Document struct {
	Workspace    string                 `json:"workspace"`
	Structure    map[string][]string    `json:"structure"`
	Dependencies map[string][]string    `json:"dependencies"`
	Patterns     []string               `json:"patterns"`
	Standards    []string               `json:"standards"`
	History      []models.Decision      `json:"history"`
	Metrics      Metrics                `json:"metrics"`
	Profile      *models.ProjectProfile `json:"profile,omitempty"`
	LastUpdated  time.Time              `json:"lastUpdated"`
}

// Base is the knowledge aggregate for one workspace. All methods are safe
// for concurrent use.
type Base struct {
	mu           sync.RWMutex
	workspace    string
	maxHistory   int
	structure    map[string][]string
	dependencies map[string][]string
	patterns     []string
	standards    []string
	history      []models.Decision
	metrics      Metrics
	profile      *models.ProjectProfile
	lastUpdated  time.Time

	logger  *logging.DebugLogger
	sink    *metrics.Metrics
	nowFunc func() time.Time
}

// Option configures a Base.
type Option func(*Base)

// WithMaxHistory overrides the history cap.
func WithMaxHistory(n int) Option {
	return func(b *Base) {
		if n > 0 {
			b.maxHistory = n
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(b *Base) {
		b.logger = l.With("knowledge")
	}
}

// WithMetrics counts recorded decisions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Base) {
		b.sink = m
	}
}

// New creates an empty knowledge base for workspace.
func New(workspace string, opts ...Option) (*Base, error) {
	if strings.TrimSpace(workspace) == "" {
		return nil, ErrNoWorkspace
	}
	b := &Base{
		workspace:    workspace,
		maxHistory:   DefaultMaxHistory,
		structure:    map[string][]string{},
		dependencies: map[string][]string{},
		logger:       logging.Nop(),
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.metrics = computeMetrics(nil)
	return b, nil
}

// FromDocument rebuilds a Base from its persisted form. Stored metrics are
// ignored and recomputed; history beyond the cap is trimmed oldest first.
func FromDocument(doc Document, opts ...Option) (*Base, error) {
	b, err := New(doc.Workspace, opts...)
	if err != nil {
		return nil, err
	}
	if doc.Structure != nil {
		b.structure = copyMap(doc.Structure)
	}
	if doc.Dependencies != nil {
		b.dependencies = copyMap(doc.Dependencies)
	}
	b.patterns = append([]string(nil), doc.Patterns...)
	b.standards = append([]string(nil), doc.Standards...)
	b.history = append([]models.Decision(nil), doc.History...)
	if doc.Profile != nil {
		p := *doc.Profile
		b.profile = &p
	}
	b.lastUpdated = doc.LastUpdated
	b.trimLocked()
	b.metrics = computeMetrics(b.history)
	return b, nil
}

// Document returns a copy of the persisted form.
func (b *Base) Document() Document {
	b.mu.RLock()
	defer b.mu.RUnlock()
	doc := Document{
		Workspace:    b.workspace,
		Structure:    copyMap(b.structure),
		Dependencies: copyMap(b.dependencies),
		Patterns:     append([]string{}, b.patterns...),
		Standards:    append([]string{}, b.standards...),
		History:      append([]models.Decision{}, b.history...),
		Metrics:      b.metrics,
		LastUpdated:  b.lastUpdated,
	}
	if b.profile != nil {
		p := *b.profile
		doc.Profile = &p
	}
	return doc
}

// Workspace returns the workspace this base belongs to.
func (b *Base) Workspace() string {
	return b.workspace
}

// AddDecision appends a decision, filling ID and timestamp when missing, and
// returns the stored value. An ID already present in the history is replaced
// with a fresh one.
func (b *Base) AddDecision(d models.Decision) models.Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	if d.ID == "" {
		d.ID = uuid.New().String()
	} else if b.hasDecisionLocked(d.ID) {
		fresh := uuid.New().String()
		b.logger.Log("decision id %s already recorded, stored as %s", d.ID, fresh)
		d.ID = fresh
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = now
	}
	d.Lessons = append([]string(nil), d.Lessons...)
	d.Outcome.Issues = append([]string(nil), d.Outcome.Issues...)

	b.history = append(b.history, d)
	if evicted := b.trimLocked(); evicted > 0 {
		b.logger.Log("history cap %d reached, evicted %d oldest", b.maxHistory, evicted)
	}
	b.metrics = computeMetrics(b.history)
	b.lastUpdated = now
	b.sink.DecisionRecorded(d.Outcome.Success)
	b.logger.Log("decision %s for task %s by %s (success=%v)", d.ID, d.TaskID, d.Decision.AgentID, d.Outcome.Success)
	return d
}

func (b *Base) hasDecisionLocked(id string) bool {
	for _, d := range b.history {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (b *Base) trimLocked() int {
	over := len(b.history) - b.maxHistory
	if over <= 0 {
		return 0
	}
	b.history = append([]models.Decision(nil), b.history[over:]...)
	return over
}

// GetSuccessfulDecisions returns successful decisions, most recent first.
// limit <= 0 returns all of them.
func (b *Base) GetSuccessfulDecisions(limit int) []models.Decision {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.Decision
	for i := len(b.history) - 1; i >= 0; i-- {
		if !b.history[i].Outcome.Success {
			continue
		}
		out = append(out, b.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// History returns every decision, oldest first.
func (b *Base) History() []models.Decision {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.Decision(nil), b.history...)
}

// Len returns the history length.
func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.history)
}

// GetMetrics returns the current rollup.
func (b *Base) GetMetrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m := b.metrics
	m.TopAgents = append([]AgentStat(nil), m.TopAgents...)
	m.TopPatterns = append([]PatternStat(nil), m.TopPatterns...)
	return m
}

// RecordPattern remembers a project pattern. Duplicates are ignored.
func (b *Base) RecordPattern(pattern string) {
	b.appendUnique(&b.patterns, pattern)
}

// RecordStandard remembers a coding standard. Duplicates are ignored.
func (b *Base) RecordStandard(standard string) {
	b.appendUnique(&b.standards, standard)
}

func (b *Base) appendUnique(list *[]string, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, have := range *list {
		if strings.EqualFold(have, v) {
			return
		}
	}
	*list = append(*list, v)
	b.lastUpdated = b.nowFunc()
}

// Patterns returns the recorded project patterns.
func (b *Base) Patterns() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.patterns...)
}

// Standards returns the recorded coding standards.
func (b *Base) Standards() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.standards...)
}

// SetStructure replaces the directory → files layout.
func (b *Base) SetStructure(structure map[string][]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.structure = copyMap(structure)
	b.lastUpdated = b.nowFunc()
}

// SetDependencies replaces the file → resolved imports map.
func (b *Base) SetDependencies(deps map[string][]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dependencies = copyMap(deps)
	b.lastUpdated = b.nowFunc()
}

// Dependencies returns the recorded file → imports map.
func (b *Base) Dependencies() map[string][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyMap(b.dependencies)
}

// SetProfile replaces the project profile.
func (b *Base) SetProfile(p *models.ProjectProfile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p == nil {
		b.profile = nil
	} else {
		cp := *p
		b.profile = &cp
	}
	b.lastUpdated = b.nowFunc()
}

// Profile returns the project profile, or nil.
func (b *Base) Profile() *models.ProjectProfile {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.profile == nil {
		return nil
	}
	p := *b.profile
	return &p
}

// LastUpdated returns the time of the last change.
func (b *Base) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdated
}

func computeMetrics(history []models.Decision) Metrics {
	m := Metrics{
		TotalDecisions: len(history),
		TopAgents:      []AgentStat{},
		TopPatterns:    []PatternStat{},
	}
	if len(history) == 0 {
		return m
	}

	var (
		successes int
		totalTime time.Duration
		totalQual float64
	)
	agents := map[string]*AgentStat{}
	lessons := map[string]*PatternStat{}
	for _, d := range history {
		if d.Outcome.Success {
			successes++
		}
		totalTime += d.Outcome.ExecutionTime
		totalQual += d.Outcome.Quality

		if id := d.Decision.AgentID; id != "" {
			st, ok := agents[id]
			if !ok {
				st = &AgentStat{AgentID: id}
				agents[id] = st
			}
			st.Decisions++
			if d.Outcome.Success {
				st.Successes++
			}
		}

		for _, l := range d.Lessons {
			key := strings.ToLower(strings.TrimSpace(l))
			if key == "" {
				continue
			}
			p, ok := lessons[key]
			if !ok {
				p = &PatternStat{Pattern: key}
				lessons[key] = p
			}
			p.Count++
		}
	}

	n := float64(len(history))
	m.SuccessRate = float64(successes) / n
	m.AverageExecutionTime = totalTime / time.Duration(len(history))
	m.AverageQuality = totalQual / n

	for _, st := range agents {
		st.SuccessRate = float64(st.Successes) / float64(st.Decisions)
		m.TopAgents = append(m.TopAgents, *st)
	}
	sort.Slice(m.TopAgents, func(i, j int) bool {
		a, b := m.TopAgents[i], m.TopAgents[j]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		if a.Decisions != b.Decisions {
			return a.Decisions > b.Decisions
		}
		return a.AgentID < b.AgentID
	})
	if len(m.TopAgents) > topAgentCount {
		m.TopAgents = m.TopAgents[:topAgentCount]
	}

	for _, p := range lessons {
		m.TopPatterns = append(m.TopPatterns, *p)
	}
	sort.Slice(m.TopPatterns, func(i, j int) bool {
		a, b := m.TopPatterns[i], m.TopPatterns[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Pattern < b.Pattern
	})
	if len(m.TopPatterns) > topPatternCount {
		m.TopPatterns = m.TopPatterns[:topPatternCount]
	}
	return m
}

func copyMap(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}
