package models

import "time"

// DecisionChoice records which solution was picked and why.
type DecisionChoice struct {
	SolutionID string `json:"solution_id"`
	AgentID    string `json:"agent_id"`
	Reasoning  string `json:"reasoning"`
}

// DecisionOutcome records what happened after applying the chosen solution.
type DecisionOutcome struct {
	Success       bool          `json:"success"`
	ExecutionTime time.Duration `json:"execution_time"`
	FilesChanged  int           `json:"files_changed"`
	Quality       float64       `json:"quality"`
	Issues        []string      `json:"issues,omitempty"`
}

// Decision is one entry in the knowledge base history.
type Decision struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
	// TaskType is empty on records written before the type was persisted.
	TaskType  TaskType        `json:"task_type,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Decision  DecisionChoice  `json:"decision"`
	Outcome   DecisionOutcome `json:"outcome"`
	Lessons   []string        `json:"lessons,omitempty"`
}
