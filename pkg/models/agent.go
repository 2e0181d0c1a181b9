package models

import "time"

// AgentRole is the specialization of a solution producer.
type AgentRole string

const (
	AgentRoleBackend   AgentRole = "backend"
	AgentRoleFrontend  AgentRole = "frontend"
	AgentRoleArchitect AgentRole = "architect"
	AgentRoleAnalyst   AgentRole = "analyst"
	AgentRoleDevOps    AgentRole = "devops"
	AgentRoleQA        AgentRole = "qa"
)

// Valid returns true if the role is a known value.
func (r AgentRole) Valid() bool {
	switch r {
	case AgentRoleBackend, AgentRoleFrontend, AgentRoleArchitect,
		AgentRoleAnalyst, AgentRoleDevOps, AgentRoleQA:
		return true
	default:
		return false
	}
}

// ThoughtKind labels an intermediate agent thought.
type ThoughtKind string

const (
	ThoughtAnalysis ThoughtKind = "analysis"
	ThoughtIdea     ThoughtKind = "idea"
	ThoughtConcern  ThoughtKind = "concern"
	ThoughtProgress ThoughtKind = "progress"
)

// Thought is one intermediate reasoning step streamed by an agent.
type Thought struct {
	AgentID   string      `json:"agent_id"`
	Kind      ThoughtKind `json:"kind"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Thoughts is the ordered output of an agent's think step.
type Thoughts []Thought

// AgentStrategy is the learned agent preference for one task type.
// It is replaced wholesale on every learning pass.
type AgentStrategy struct {
	TaskType        TaskType           `json:"task_type"`
	PreferredAgents []string           `json:"preferred_agents"`
	Weights         map[string]float64 `json:"weights"`
	UpdatedAt       time.Time          `json:"updated_at"`
}
