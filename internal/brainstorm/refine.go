package brainstorm

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// RefineSolution runs one more think/propose round for agent with the
// feedback and the previous solution's title folded into the task. Callers
// decide whether to refine again.
func (c *Coordinator) RefineSolution(ctx context.Context, previous *models.AgentSolution, feedback string, agent Agent, task models.Task, actx AgentContext) (*models.AgentSolution, error) {
	refined := task
	title := ""
	if previous != nil {
		title = previous.Solution.Title
	}
	refined.Description = fmt.Sprintf("%s\n\nRefine your previous solution %q using this feedback:\n%s", task.Description, title, feedback)

	thoughts, err := agent.Think(ctx, refined, actx)
	if err != nil {
		return nil, fmt.Errorf("refine think: %w", err)
	}
	sol, err := agent.ProposeSolution(ctx, refined, thoughts, actx)
	if err != nil {
		return nil, fmt.Errorf("refine propose: %w", err)
	}
	if sol == nil {
		return nil, fmt.Errorf("refine propose: no solution returned")
	}
	c.logger.Log("refined solution for task %s from %s", task.ID, agent.ID())
	return normalizeSolution(sol, agent.ID(), task.ID), nil
}
