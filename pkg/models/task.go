package models

import "time"

// TaskType categorizes what kind of change a task asks for.
type TaskType string

const (
	// TaskTypeFeature adds new behavior.
	TaskTypeFeature TaskType = "feature"
	// TaskTypeBug fixes incorrect behavior.
	TaskTypeBug TaskType = "bug"
	// TaskTypeImprovement enhances existing behavior.
	TaskTypeImprovement TaskType = "improvement"
	// TaskTypeRefactoring restructures code without changing behavior.
	TaskTypeRefactoring TaskType = "refactoring"
	// TaskTypeDocumentation changes docs only.
	TaskTypeDocumentation TaskType = "documentation"
	// TaskTypeQualityCheck reviews or tests existing code.
	TaskTypeQualityCheck TaskType = "quality-check"
)

// AllTaskTypes lists every known task type in a stable order.
var AllTaskTypes = []TaskType{
	TaskTypeFeature,
	TaskTypeBug,
	TaskTypeImprovement,
	TaskTypeRefactoring,
	TaskTypeDocumentation,
	TaskTypeQualityCheck,
}

// Valid returns true if the type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeFeature, TaskTypeBug, TaskTypeImprovement,
		TaskTypeRefactoring, TaskTypeDocumentation, TaskTypeQualityCheck:
		return true
	default:
		return false
	}
}

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in-progress"
	// TaskStatusCompleted indicates the task finished.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusBlocked indicates the task cannot proceed.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// Task represents a unit of work handed to the agents.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Type is the category of change requested.
	Type TaskType `json:"type"`
	// Description is the free-text statement of the work.
	Description string `json:"description"`
	// Priority is a planner-assigned ordering hint (higher first).
	Priority int `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// AssignedAgent is the ID of the agent working on this task, if any.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
}

// IsTerminal reports whether the task has reached completed or blocked.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusBlocked
}

// TaskVariation is a per-agent rephrasing of a shared task.
type TaskVariation struct {
	// AgentID is the agent this variation was produced for.
	AgentID string `json:"agent_id"`
	// Variation is the rephrased task.
	Variation Task `json:"variation"`
	// Focus names the angle the variation emphasizes.
	Focus string `json:"focus,omitempty"`
}

// DeviationLevel is the categorical distance between a solution and its task.
type DeviationLevel string

const (
	DeviationNone   DeviationLevel = "none"
	DeviationLow    DeviationLevel = "low"
	DeviationMedium DeviationLevel = "medium"
	DeviationHigh   DeviationLevel = "high"
)

// Valid returns true if the level is a known value.
func (l DeviationLevel) Valid() bool {
	switch l {
	case DeviationNone, DeviationLow, DeviationMedium, DeviationHigh:
		return true
	default:
		return false
	}
}

// DeviationResult describes how far a solution strays from the original task.
type DeviationResult struct {
	// Relevance is in [0,1]; 1 means fully on task.
	Relevance float64 `json:"relevance"`
	// DeviationLevel buckets the deviation.
	DeviationLevel DeviationLevel `json:"deviation_level"`
	// Feedback is a human-readable explanation.
	Feedback string `json:"feedback,omitempty"`
}

// OffTask reports whether the result should be excluded from primary ranking.
func (d DeviationResult) OffTask() bool {
	return d.DeviationLevel == DeviationHigh || d.Relevance < 0.5
}
