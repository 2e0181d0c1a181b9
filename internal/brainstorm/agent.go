// Package brainstorm runs several agents concurrently over a shared task and
// collects their divergent solutions.
package brainstorm

import (
	"context"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// AgentContext carries workspace facts handed to every agent call.
type AgentContext struct {
	Workspace string
	Profile   *models.ProjectProfile
	// RelatedFiles are graph neighbours of the files the task mentions.
	RelatedFiles []string
	// Notes is free-form guidance such as learned lessons.
	Notes string
}

// Agent is a role-specialized solution producer. Think always precedes
// ProposeSolution for a given task. Agent handles are bound to one session
// at a time since the thoughts callback is replaced on dispatch.
type Agent interface {
	ID() string
	Think(ctx context.Context, task models.Task, actx AgentContext) (models.Thoughts, error)
	ProposeSolution(ctx context.Context, task models.Task, thoughts models.Thoughts, actx AgentContext) (*models.AgentSolution, error)
	SetThoughtsCallback(fn func(models.Thought))
}

// Recorder is notified once when a session completes normally.
type Recorder interface {
	Record(ctx context.Context, result *Result) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, result *Result) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, result *Result) error {
	return f(ctx, result)
}
