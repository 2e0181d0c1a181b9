package models

import "time"

// ChangeKind is the kind of file change a solution proposes.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeModify ChangeKind = "modify"
	ChangeDelete ChangeKind = "delete"
)

// Valid returns true if the kind is a known value.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeCreate, ChangeModify, ChangeDelete:
		return true
	default:
		return false
	}
}

// CodeChange is a proposed edit to one file.
type CodeChange struct {
	File    string     `json:"file"`
	Kind    ChangeKind `json:"kind,omitempty"`
	Content string     `json:"content"`
}

// SolutionDependencies is the producer's own view of what the solution touches.
type SolutionDependencies struct {
	Files []string `json:"files,omitempty"`
	// Impact is the producer-declared impact level (low, medium, high).
	Impact ImpactLevel `json:"impact,omitempty"`
}

// SolutionBody is the substance of a proposed solution.
type SolutionBody struct {
	Title         string               `json:"title"`
	Description   string               `json:"description"`
	Approach      string               `json:"approach"`
	FilesToModify []string             `json:"files_to_modify,omitempty"`
	CodeChanges   []CodeChange         `json:"code_changes,omitempty"`
	Dependencies  SolutionDependencies `json:"dependencies"`
}

// Evaluation holds the producer-assigned criterion scores, each in [0,1].
type Evaluation struct {
	Quality         float64 `json:"quality"`
	Performance     float64 `json:"performance"`
	Security        float64 `json:"security"`
	Maintainability float64 `json:"maintainability"`
	Compliance      float64 `json:"compliance"`
	OverallScore    float64 `json:"overall_score"`
}

// AgentSolution is a solution produced by one agent for one task.
// It is treated as immutable once produced.
type AgentSolution struct {
	ID         string       `json:"id"`
	AgentID    string       `json:"agent_id"`
	TaskID     string       `json:"task_id"`
	Solution   SolutionBody `json:"solution"`
	Evaluation Evaluation   `json:"evaluation"`
	Reasoning  string       `json:"reasoning,omitempty"`
	Confidence float64      `json:"confidence"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ImpactLevel buckets how many files a change transitively affects.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// FileChange is one entry of a change set fed to impact analysis.
type FileChange struct {
	File string     `json:"file"`
	Type ChangeKind `json:"type"`
}

// ImpactAnalysis is the result of a change-impact query. It is never stored.
type ImpactAnalysis struct {
	DirectlyAffected   []string    `json:"directly_affected"`
	IndirectlyAffected []string    `json:"indirectly_affected"`
	ImpactLevel        ImpactLevel `json:"impact_level"`
	Risks              []string    `json:"risks"`
}

// TotalAffected returns the number of directly and indirectly affected files.
func (a ImpactAnalysis) TotalAffected() int {
	return len(a.DirectlyAffected) + len(a.IndirectlyAffected)
}

// ProjectProfile describes the host project for architecture scoring.
type ProjectProfile struct {
	Name         string   `json:"name" yaml:"name"`
	Languages    []string `json:"languages,omitempty" yaml:"languages"`
	Frameworks   []string `json:"frameworks,omitempty" yaml:"frameworks"`
	Architecture string   `json:"architecture,omitempty" yaml:"architecture"`
	Patterns     []string `json:"patterns,omitempty" yaml:"patterns"`
}
