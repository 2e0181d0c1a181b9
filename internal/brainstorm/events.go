package brainstorm

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/conclave/internal/metrics"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// EventType represents the type of brainstorming event.
type EventType string

const (
	// EventSessionStarted indicates agents have been dispatched.
	EventSessionStarted EventType = "session_started"
	// EventThought carries one streamed agent thought.
	EventThought EventType = "thought"
	// EventAgentCompleted indicates an agent produced a solution.
	EventAgentCompleted EventType = "agent_completed"
	// EventAgentFailed indicates an agent errored or produced nothing.
	EventAgentFailed EventType = "agent_failed"
	// EventSessionCompleted indicates every agent settled.
	EventSessionCompleted EventType = "session_completed"
	// EventSessionCancelled indicates the session timed out or was cancelled.
	EventSessionCancelled EventType = "session_cancelled"
)

// Event is emitted by the coordinator as sessions progress.
type Event struct {
	Type      EventType
	SessionID string
	AgentID   string
	Thought   *models.Thought
	Message   string
	Error     error
	Timestamp time.Time
}

// EventEmitter fans coordinator events out on a buffered channel.
type EventEmitter struct {
	mu           sync.RWMutex
	closed       bool
	events       chan Event
	droppedCount atomic.Uint64
	metrics      *metrics.Metrics
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int, m *metrics.Metrics) *EventEmitter {
	return &EventEmitter{
		events:  make(chan Event, bufferSize),
		metrics: m,
	}
}

// Emit sends a lifecycle event. If the channel is full it waits briefly for
// the receiver to drain before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		e.drop(event)
	}
}

// TryEmit sends an event only if there is room. Thoughts use this so a slow
// observer never holds up an agent.
func (e *EventEmitter) TryEmit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- event:
	default:
		e.drop(event)
	}
}

func (e *EventEmitter) drop(event Event) {
	count := e.droppedCount.Add(1)
	if event.Type == EventThought {
		e.metrics.ThoughtDropped()
	}
	if count%10 == 1 {
		log.Printf("[brainstorm] WARNING: Event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Later emits are ignored.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.events)
}
