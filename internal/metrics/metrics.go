// Package metrics exposes Prometheus instruments for the orchestration engine.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's instruments and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	sessions          *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	agentRuns         *prometheus.CounterVec
	agentDuration     *prometheus.HistogramVec
	droppedThoughts   prometheus.Counter
	evaluations       prometheus.Counter
	evaluationScore   prometheus.Histogram
	fallbacks         *prometheus.CounterVec
	graphRebuilds     prometheus.Counter
	graphRebuildTime  prometheus.Histogram
	graphFiles        prometheus.Gauge
	graphParseErrors  prometheus.Counter
	decisionsRecorded *prometheus.CounterVec
}

// New creates the instruments and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conclave_brainstorm_sessions_total",
			Help: "Brainstorming sessions by terminal status.",
		}, []string{"status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conclave_brainstorm_sessions_active",
			Help: "Brainstorming sessions currently active.",
		}),
		agentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conclave_agent_runs_total",
			Help: "Agent think/propose runs by agent and result.",
		}, []string{"agent", "result"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conclave_agent_run_duration_seconds",
			Help:    "Agent run duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"agent"}),
		droppedThoughts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conclave_thoughts_dropped_total",
			Help: "Thought events dropped because the event channel was full.",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conclave_evaluations_total",
			Help: "Solutions scored by the evaluator.",
		}),
		evaluationScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "conclave_evaluation_score",
			Help:    "Distribution of overall evaluation scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conclave_filter_fallbacks_total",
			Help: "Times a relevance filter emptied the set and the unfiltered set was used.",
		}, []string{"site"}),
		graphRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conclave_graph_rebuilds_total",
			Help: "Full dependency graph rebuilds.",
		}),
		graphRebuildTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "conclave_graph_rebuild_duration_seconds",
			Help:    "Dependency graph rebuild duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		graphFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conclave_graph_files",
			Help: "Files currently tracked by the dependency graph.",
		}),
		graphParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conclave_graph_parse_errors_total",
			Help: "Source files skipped because they could not be read or parsed.",
		}),
		decisionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conclave_decisions_total",
			Help: "Decisions appended to the knowledge base by outcome.",
		}, []string{"success"}),
	}

	m.registry.MustRegister(
		m.sessions, m.activeSessions, m.agentRuns, m.agentDuration, m.droppedThoughts,
		m.evaluations, m.evaluationScore, m.fallbacks,
		m.graphRebuilds, m.graphRebuildTime, m.graphFiles, m.graphParseErrors,
		m.decisionsRecorded,
	)
	return m
}

// Registry returns the registry backing these instruments.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionFinished records a session reaching a terminal status.
func (m *Metrics) SessionFinished(status string) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessions.WithLabelValues(status).Inc()
}

// AgentRun records one agent run and how long it took.
func (m *Metrics) AgentRun(agentID string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.agentRuns.WithLabelValues(agentID, result).Inc()
	m.agentDuration.WithLabelValues(agentID).Observe(d.Seconds())
}

// ThoughtDropped records a dropped thought event.
func (m *Metrics) ThoughtDropped() {
	if m == nil {
		return
	}
	m.droppedThoughts.Inc()
}

// Evaluation records a scored solution.
func (m *Metrics) Evaluation(score float64) {
	if m == nil {
		return
	}
	m.evaluations.Inc()
	m.evaluationScore.Observe(score)
}

// Fallback records a filter fallback at the named site.
func (m *Metrics) Fallback(site string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(site).Inc()
}

// GraphRebuilt records a full rebuild.
func (m *Metrics) GraphRebuilt(files int, d time.Duration) {
	if m == nil {
		return
	}
	m.graphRebuilds.Inc()
	m.graphRebuildTime.Observe(d.Seconds())
	m.graphFiles.Set(float64(files))
}

// GraphFiles sets the tracked file gauge after an incremental update.
func (m *Metrics) GraphFiles(files int) {
	if m == nil {
		return
	}
	m.graphFiles.Set(float64(files))
}

// ParseError records a skipped source file.
func (m *Metrics) ParseError() {
	if m == nil {
		return
	}
	m.graphParseErrors.Inc()
}

// DecisionRecorded records a decision appended to the knowledge base.
func (m *Metrics) DecisionRecorded(success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.decisionsRecorded.WithLabelValues(label).Inc()
}
